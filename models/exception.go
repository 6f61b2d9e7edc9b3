package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Attendry/Konzern-sub004/config"
	"github.com/Attendry/Konzern-sub004/utils"
	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type ExceptionSourceType string

const (
	SourceTypePlausibilityCheck ExceptionSourceType = "plausibility_check"
	SourceTypeVariance          ExceptionSourceType = "variance"
	SourceTypeValidationError   ExceptionSourceType = "validation_error"
	SourceTypeManual            ExceptionSourceType = "manual"
)

type ExceptionPriority string

const (
	PriorityCritical ExceptionPriority = "critical"
	PriorityHigh     ExceptionPriority = "high"
	PriorityMedium   ExceptionPriority = "medium"
	PriorityLow      ExceptionPriority = "low"
)

type ExceptionStatus string

const (
	ExceptionStatusOpen      ExceptionStatus = "open"
	ExceptionStatusInReview  ExceptionStatus = "in_review"
	ExceptionStatusResolved  ExceptionStatus = "resolved"
	ExceptionStatusEscalated ExceptionStatus = "escalated"
	ExceptionStatusWaived    ExceptionStatus = "waived"
	ExceptionStatusClosed    ExceptionStatus = "closed"
)

type ResolutionType string

const (
	ResolutionCorrection  ResolutionType = "correction"
	ResolutionAdjustment  ResolutionType = "adjustment"
	ResolutionWaiver      ResolutionType = "waiver"
	ResolutionExplanation ResolutionType = "explanation"
)

// ExceptionAction is one entry of the append-only action log embedded in the
// exception record.
type ExceptionAction struct {
	Timestamp time.Time       `json:"timestamp"`
	UserId    string          `json:"user_id,omitempty"`
	Action    string          `json:"action"`
	Details   string          `json:"details,omitempty"`
	OldStatus ExceptionStatus `json:"old_status,omitempty"`
	NewStatus ExceptionStatus `json:"new_status,omitempty"`
}

// ExceptionReport is the tracked remediation item. The action log is owned
// exclusively by the workflow functions in this file; every state-changing
// operation appends exactly one entry before persisting.
type ExceptionReport struct {
	ID          int `gorm:"primary_key" json:"id"`
	StatementId int `gorm:"not null;index" json:"statement_id"`

	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`

	SourceType ExceptionSourceType `gorm:"size:20;not null;index" json:"source_type"`
	SourceId   int                 `gorm:"index" json:"source_id"`

	Category     string            `gorm:"size:40;index" json:"category"`
	Priority     ExceptionPriority `gorm:"size:10;not null;default:'medium';index" json:"priority"`
	Status       ExceptionStatus   `gorm:"size:12;not null;default:'open';index" json:"status"`
	HGBReference string            `gorm:"size:50" json:"hgb_reference"`

	ImpactAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"impact_amount"`
	ImpactDescription string          `gorm:"type:text" json:"impact_description"`

	AffectsDisclosure   *bool `gorm:"not null;default:false" json:"affects_disclosure"`
	AffectsAuditOpinion *bool `gorm:"not null;default:false" json:"affects_audit_opinion"`

	AssignedTo string     `gorm:"size:64;index" json:"assigned_to"`
	AssignedBy string     `gorm:"size:64" json:"assigned_by"`
	AssignedAt *time.Time `json:"assigned_at"`

	Resolution     string         `gorm:"type:text" json:"resolution"`
	ResolutionType ResolutionType `gorm:"size:12" json:"resolution_type"`
	ResolvedBy     string         `gorm:"size:64" json:"resolved_by"`
	ResolvedAt     *time.Time     `json:"resolved_at"`

	EscalatedTo      string     `gorm:"size:64" json:"escalated_to"`
	EscalationReason string     `gorm:"type:text" json:"escalation_reason"`
	EscalatedAt      *time.Time `json:"escalated_at"`

	// json array of ExceptionAction, append-only
	ActionLog []byte `gorm:"type:json" json:"action_log"`

	DueDate           *time.Time `json:"due_date"`
	ExternalReference string     `gorm:"size:100" json:"external_reference"`

	CreatedBy string    `gorm:"size:64" json:"created_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Actions decodes the embedded action log.
func (e *ExceptionReport) Actions() ([]ExceptionAction, error) {
	if len(e.ActionLog) == 0 {
		return nil, nil
	}
	var actions []ExceptionAction
	if err := json.Unmarshal(e.ActionLog, &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

func (e *ExceptionReport) appendAction(entry ExceptionAction) error {
	actions, err := e.Actions()
	if err != nil {
		return fmt.Errorf("decode action log: %w", err)
	}
	actions = append(actions, entry)
	encoded, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("encode action log: %w", err)
	}
	e.ActionLog = encoded
	return nil
}

// withExceptionLock serializes workflow transitions per exception when redis
// is configured. The lock is a best-effort optimization; without redis the
// read-modify-write on the action log can race across instances.
func withExceptionLock(ctx context.Context, exceptionId int, fn func() error) error {
	locker := config.GetRedisLock()
	if locker == nil {
		return fn()
	}
	key := fmt.Sprintf("exception:%d", exceptionId)
	lock, err := locker.Obtain(ctx, key, 5*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 10),
	})
	if err != nil {
		config.LogError(config.GetLogger(), "exception.go", "withExceptionLock", "obtain "+key, nil, err)
		return fn()
	}
	defer lock.Release(ctx)
	return fn()
}

type NewExceptionReport struct {
	StatementId int    `json:"statement_id" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`

	SourceType ExceptionSourceType `json:"source_type"`
	SourceId   int                 `json:"source_id"`

	Category     string            `json:"category"`
	Priority     ExceptionPriority `json:"priority"`
	HGBReference string            `json:"hgb_reference"`

	ImpactAmount      decimal.Decimal `json:"impact_amount"`
	ImpactDescription string          `json:"impact_description"`

	AffectsDisclosure   bool `json:"affects_disclosure"`
	AffectsAuditOpinion bool `json:"affects_audit_opinion"`

	DueDate           *time.Time `json:"due_date"`
	ExternalReference string     `json:"external_reference"`
}

func CreateException(ctx context.Context, input *NewExceptionReport) (*ExceptionReport, error) {

	if err := utils.ValidateResourceId[FinancialStatement](ctx, input.StatementId); err != nil {
		return nil, errors.New("statement not found")
	}

	userId, _ := utils.GetUserIdFromContext(ctx)

	exception := ExceptionReport{
		StatementId:         input.StatementId,
		Title:               input.Title,
		Description:         input.Description,
		SourceType:          input.SourceType,
		SourceId:            input.SourceId,
		Category:            input.Category,
		Priority:            input.Priority,
		Status:              ExceptionStatusOpen,
		HGBReference:        input.HGBReference,
		ImpactAmount:        input.ImpactAmount,
		ImpactDescription:   input.ImpactDescription,
		AffectsDisclosure:   &input.AffectsDisclosure,
		AffectsAuditOpinion: &input.AffectsAuditOpinion,
		DueDate:             input.DueDate,
		ExternalReference:   input.ExternalReference,
		CreatedBy:           userId,
	}
	if exception.SourceType == "" {
		exception.SourceType = SourceTypeManual
	}
	if exception.Priority == "" {
		exception.Priority = PriorityMedium
	}

	if err := exception.appendAction(ExceptionAction{
		Timestamp: time.Now().UTC(),
		UserId:    userId,
		Action:    "created",
		NewStatus: ExceptionStatusOpen,
	}); err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&exception).Error; err != nil {
		return nil, fmt.Errorf("create exception: %w", err)
	}
	recordAudit(ctx, "create", "ExceptionReport", exception.ID, nil, &exception, "exception created: "+exception.Title)
	return &exception, nil
}

// CreateExceptionFromCheck creates one exception for a failed or warning
// check; at most one exception per check.
func CreateExceptionFromCheck(ctx context.Context, checkId int) (*ExceptionReport, error) {

	check, err := utils.FetchModel[PlausibilityCheck](ctx, checkId)
	if err != nil {
		return nil, errors.New("check not found")
	}
	if check.Status != CheckStatusFailed && check.Status != CheckStatusWarning {
		return nil, errors.New("only failed or warning checks produce exceptions")
	}

	db := config.GetDB()
	var count int64
	err = db.WithContext(ctx).Model(&ExceptionReport{}).
		Where("source_type = ? AND source_id = ?", SourceTypePlausibilityCheck, check.ID).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("an exception already exists for this check")
	}

	return CreateException(ctx, exceptionInputFromCheck(check))
}

func exceptionInputFromCheck(check *PlausibilityCheck) *NewExceptionReport {
	priority := PriorityMedium
	if check.Severity == SeverityError {
		priority = PriorityHigh
	}
	return &NewExceptionReport{
		StatementId:       check.StatementId,
		Title:             check.RuleName,
		Description:       check.Message,
		SourceType:        SourceTypePlausibilityCheck,
		SourceId:          check.ID,
		Category:          string(check.Category),
		Priority:          priority,
		HGBReference:      check.HGBReference,
		ImpactAmount:      check.DifferenceValue.Abs(),
		ImpactDescription: check.Details,
	}
}

// CreateExceptionFromVariance creates one exception for a material
// unexplained variance; at most one exception per variance row.
func CreateExceptionFromVariance(ctx context.Context, varianceId int) (*ExceptionReport, error) {

	analysis, err := utils.FetchModel[VarianceAnalysis](ctx, varianceId)
	if err != nil {
		return nil, errors.New("variance analysis not found")
	}

	db := config.GetDB()
	var count int64
	err = db.WithContext(ctx).Model(&ExceptionReport{}).
		Where("source_type = ? AND source_id = ?", SourceTypeVariance, analysis.ID).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("an exception already exists for this variance")
	}

	return CreateException(ctx, exceptionInputFromVariance(analysis))
}

func exceptionInputFromVariance(analysis *VarianceAnalysis) *NewExceptionReport {
	priority := PriorityMedium
	if analysis.IsMaterial != nil && *analysis.IsMaterial {
		priority = PriorityHigh
	}
	return &NewExceptionReport{
		StatementId: analysis.StatementId,
		Title:       fmt.Sprintf("Material variance %s", analysis.ComparisonKey),
		Description: fmt.Sprintf("variance of %s (%s) against fiscal year %d",
			utils.FormatAmount(analysis.AbsoluteVariance), utils.FormatPercent(analysis.PercentageVariance), analysis.PriorFiscalYear),
		SourceType:   SourceTypeVariance,
		SourceId:     analysis.ID,
		Category:     string(CategoryYearOverYear),
		Priority:     priority,
		ImpactAmount: analysis.AbsoluteVariance.Abs(),
	}
}

func GetException(ctx context.Context, id int) (*ExceptionReport, error) {
	exception, err := utils.FetchModel[ExceptionReport](ctx, id)
	if err != nil {
		return nil, errors.New("exception not found")
	}
	return exception, nil
}

func GetExceptions(ctx context.Context, statementId int, status ExceptionStatus, priority ExceptionPriority) ([]*ExceptionReport, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("statement_id = ?", statementId)
	if status != "" {
		dbCtx = dbCtx.Where("status = ?", status)
	}
	if priority != "" {
		dbCtx = dbCtx.Where("priority = ?", priority)
	}
	var exceptions []*ExceptionReport
	if err := dbCtx.Order("id asc").Find(&exceptions).Error; err != nil {
		return nil, err
	}
	return exceptions, nil
}

func GetOpenExceptions(ctx context.Context, statementId int) ([]*ExceptionReport, error) {
	db := config.GetDB()
	var exceptions []*ExceptionReport
	err := db.WithContext(ctx).
		Where("statement_id = ?", statementId).
		Where("status IN ?", []ExceptionStatus{ExceptionStatusOpen, ExceptionStatusInReview, ExceptionStatusEscalated}).
		Order("id asc").
		Find(&exceptions).Error
	if err != nil {
		return nil, err
	}
	return exceptions, nil
}

// applyExceptionTransition is the single write path for workflow transitions:
// fetch, guard/mutate, append exactly one log entry, write back.
func applyExceptionTransition(ctx context.Context, exceptionId int, action string, newStatus ExceptionStatus, details string, mutate func(*ExceptionReport) error) (*ExceptionReport, error) {

	var result *ExceptionReport
	err := withExceptionLock(ctx, exceptionId, func() error {

		exception, err := utils.FetchModel[ExceptionReport](ctx, exceptionId)
		if err != nil {
			return errors.New("exception not found")
		}
		before := *exception
		oldStatus := exception.Status

		if mutate != nil {
			if err := mutate(exception); err != nil {
				return err
			}
		}
		if newStatus != "" {
			exception.Status = newStatus
		}

		userId, _ := utils.GetUserIdFromContext(ctx)
		entry := ExceptionAction{
			Timestamp: time.Now().UTC(),
			UserId:    userId,
			Action:    action,
			Details:   details,
		}
		if newStatus != "" {
			entry.OldStatus = oldStatus
			entry.NewStatus = exception.Status
		}
		if err := exception.appendAction(entry); err != nil {
			return err
		}

		db := config.GetDB()
		if err := db.WithContext(ctx).Save(exception).Error; err != nil {
			return fmt.Errorf("update exception: %w", err)
		}
		recordAudit(ctx, action, "ExceptionReport", exception.ID, &before, exception, "exception "+action)
		result = exception
		return nil
	})
	return result, err
}

func AssignException(ctx context.Context, exceptionId int, assignee string) (*ExceptionReport, error) {
	if strings.TrimSpace(assignee) == "" {
		return nil, errors.New("assignee is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	now := time.Now().UTC()
	return applyExceptionTransition(ctx, exceptionId, "assigned", ExceptionStatusInReview, "assigned to "+assignee,
		func(e *ExceptionReport) error {
			e.AssignedTo = assignee
			e.AssignedBy = userId
			e.AssignedAt = &now
			return nil
		})
}

func EscalateException(ctx context.Context, exceptionId int, escalateTo, reason string) (*ExceptionReport, error) {
	if strings.TrimSpace(escalateTo) == "" {
		return nil, errors.New("escalation target is required")
	}
	now := time.Now().UTC()
	return applyExceptionTransition(ctx, exceptionId, "escalated", ExceptionStatusEscalated, reason,
		func(e *ExceptionReport) error {
			e.EscalatedTo = escalateTo
			e.EscalationReason = reason
			e.EscalatedAt = &now
			return nil
		})
}

func ResolveException(ctx context.Context, exceptionId int, resolution string, resolutionType ResolutionType) (*ExceptionReport, error) {
	if strings.TrimSpace(resolution) == "" {
		return nil, errors.New("resolution text is required")
	}
	switch resolutionType {
	case ResolutionCorrection, ResolutionAdjustment, ResolutionWaiver, ResolutionExplanation:
	case "":
		resolutionType = ResolutionExplanation
	default:
		return nil, errors.New("unknown resolution type")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	now := time.Now().UTC()
	return applyExceptionTransition(ctx, exceptionId, "resolved", ExceptionStatusResolved, resolution,
		func(e *ExceptionReport) error {
			e.Resolution = resolution
			e.ResolutionType = resolutionType
			e.ResolvedBy = userId
			e.ResolvedAt = &now
			return nil
		})
}

// WaiveException waives the exception; the resolution type is always waiver.
func WaiveException(ctx context.Context, exceptionId int, reason string) (*ExceptionReport, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, errors.New("waive reason is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	now := time.Now().UTC()
	return applyExceptionTransition(ctx, exceptionId, "waived", ExceptionStatusWaived, reason,
		func(e *ExceptionReport) error {
			e.Resolution = reason
			e.ResolutionType = ResolutionWaiver
			e.ResolvedBy = userId
			e.ResolvedAt = &now
			return nil
		})
}

// CloseException closes a resolved or waived exception; any other state is
// rejected before anything is written.
func CloseException(ctx context.Context, exceptionId int) (*ExceptionReport, error) {
	return applyExceptionTransition(ctx, exceptionId, "closed", ExceptionStatusClosed, "",
		func(e *ExceptionReport) error {
			if e.Status != ExceptionStatusResolved && e.Status != ExceptionStatusWaived {
				return fmt.Errorf("cannot close exception in status %q; only resolved or waived exceptions can be closed", e.Status)
			}
			return nil
		})
}

// ReopenException puts the exception back to open and clears the resolution.
func ReopenException(ctx context.Context, exceptionId int, reason string) (*ExceptionReport, error) {
	return applyExceptionTransition(ctx, exceptionId, "reopened", ExceptionStatusOpen, reason,
		func(e *ExceptionReport) error {
			e.Resolution = ""
			e.ResolutionType = ""
			e.ResolvedBy = ""
			e.ResolvedAt = nil
			return nil
		})
}

// UpdateExceptionPriority changes the priority without touching the status.
func UpdateExceptionPriority(ctx context.Context, exceptionId int, priority ExceptionPriority) (*ExceptionReport, error) {
	switch priority {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
	default:
		return nil, errors.New("unknown priority")
	}
	return applyExceptionTransition(ctx, exceptionId, "priority_updated", "", "priority set to "+string(priority),
		func(e *ExceptionReport) error {
			e.Priority = priority
			return nil
		})
}

/* auto-generation */

// GenerationResult reports the outcome of a batch generation. A partial batch
// is an accepted outcome, not an error.
type GenerationResult struct {
	Created       int                `json:"created"`
	AlreadyExists int                `json:"already_exists"`
	Failed        int                `json:"failed"`
	Exceptions    []*ExceptionReport `json:"exceptions"`
}

// GenerateExceptionsFromChecks creates one exception per failed or warning
// check of the statement that does not have one yet. Dedup is a scan of the
// existing exceptions' source ids.
func GenerateExceptionsFromChecks(ctx context.Context, statementId int) (*GenerationResult, error) {

	db := config.GetDB()
	logger := config.GetLogger()

	var checks []*PlausibilityCheck
	err := db.WithContext(ctx).
		Where("statement_id = ?", statementId).
		Where("status IN ?", []CheckStatus{CheckStatusFailed, CheckStatusWarning}).
		Order("id asc").
		Find(&checks).Error
	if err != nil {
		return nil, fmt.Errorf("load checks: %w", err)
	}

	existing, err := existingSourceIds(ctx, statementId, SourceTypePlausibilityCheck)
	if err != nil {
		return nil, err
	}

	result := &GenerationResult{}
	for _, check := range checks {
		if existing[check.ID] {
			result.AlreadyExists++
			continue
		}
		exception, cerr := CreateException(ctx, exceptionInputFromCheck(check))
		if cerr != nil {
			config.LogError(logger, "exception.go", "GenerateExceptionsFromChecks", "create for check "+check.RuleCode, nil, cerr)
			result.Failed++
			continue
		}
		result.Created++
		result.Exceptions = append(result.Exceptions, exception)
	}

	logger.WithFields(logrus.Fields{
		"field":        "ExceptionGeneration",
		"statement_id": statementId,
		"created":      result.Created,
		"existing":     result.AlreadyExists,
		"failed":       result.Failed,
	}).Info("exceptions generated from checks")
	return result, nil
}

// GenerateExceptionsFromVariances creates one exception per material
// unexplained variance of the statement that does not have one yet.
func GenerateExceptionsFromVariances(ctx context.Context, statementId int) (*GenerationResult, error) {

	db := config.GetDB()
	logger := config.GetLogger()

	var analyses []*VarianceAnalysis
	err := db.WithContext(ctx).
		Where("statement_id = ?", statementId).
		Where("is_material = ?", true).
		Where("explanation = '' OR explanation IS NULL").
		Order("id asc").
		Find(&analyses).Error
	if err != nil {
		return nil, fmt.Errorf("load variances: %w", err)
	}

	existing, err := existingSourceIds(ctx, statementId, SourceTypeVariance)
	if err != nil {
		return nil, err
	}

	result := &GenerationResult{}
	for _, analysis := range analyses {
		if existing[analysis.ID] {
			result.AlreadyExists++
			continue
		}
		exception, cerr := CreateException(ctx, exceptionInputFromVariance(analysis))
		if cerr != nil {
			config.LogError(logger, "exception.go", "GenerateExceptionsFromVariances", "create for variance "+analysis.ComparisonKey, nil, cerr)
			result.Failed++
			continue
		}
		result.Created++
		result.Exceptions = append(result.Exceptions, exception)
	}

	logger.WithFields(logrus.Fields{
		"field":        "ExceptionGeneration",
		"statement_id": statementId,
		"created":      result.Created,
		"existing":     result.AlreadyExists,
		"failed":       result.Failed,
	}).Info("exceptions generated from variances")
	return result, nil
}

func existingSourceIds(ctx context.Context, statementId int, sourceType ExceptionSourceType) (map[int]bool, error) {
	db := config.GetDB()
	var ids []int
	err := db.WithContext(ctx).Model(&ExceptionReport{}).
		Where("statement_id = ? AND source_type = ?", statementId, sourceType).
		Pluck("source_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load existing exception sources: %w", err)
	}
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

/* summary */

type ExceptionStatusTally struct {
	Status ExceptionStatus `json:"status"`
	Count  int             `json:"count"`
}

type ExceptionPriorityTally struct {
	Priority ExceptionPriority `json:"priority"`
	Count    int               `json:"count"`
}

type ExceptionCategoryTally struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type ExceptionSummary struct {
	Total        int                      `json:"total"`
	Open         int                      `json:"open"`
	OverdueCount int                      `json:"overdue_count"`
	TotalImpact  decimal.Decimal          `json:"total_impact"`
	ByStatus     []ExceptionStatusTally   `json:"by_status"`
	ByPriority   []ExceptionPriorityTally `json:"by_priority"`
	ByCategory   []ExceptionCategoryTally `json:"by_category"`
}

var priorityRank = map[ExceptionPriority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
}

// GetExceptionSummary tallies all exceptions of a statement in one scan.
// An exception is overdue when its due date has passed and it is not
// resolved, waived or closed.
func GetExceptionSummary(ctx context.Context, statementId int) (*ExceptionSummary, error) {

	exceptions, err := utils.FetchStatementModels[ExceptionReport](ctx, statementId)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	summary := &ExceptionSummary{Total: len(exceptions)}
	byStatus := make(map[ExceptionStatus]int)
	byPriority := make(map[ExceptionPriority]int)
	byCategory := make(map[string]int)
	statusOrder := []ExceptionStatus{}
	categoryOrder := []string{}

	for _, e := range exceptions {
		if _, ok := byStatus[e.Status]; !ok {
			statusOrder = append(statusOrder, e.Status)
		}
		byStatus[e.Status]++
		byPriority[e.Priority]++
		if _, ok := byCategory[e.Category]; !ok {
			categoryOrder = append(categoryOrder, e.Category)
		}
		byCategory[e.Category]++

		switch e.Status {
		case ExceptionStatusOpen, ExceptionStatusInReview, ExceptionStatusEscalated:
			summary.Open++
			if e.DueDate != nil && e.DueDate.Before(now) {
				summary.OverdueCount++
			}
		}
		summary.TotalImpact = summary.TotalImpact.Add(e.ImpactAmount.Abs())
	}

	for _, s := range statusOrder {
		summary.ByStatus = append(summary.ByStatus, ExceptionStatusTally{Status: s, Count: byStatus[s]})
	}
	priorities := make([]ExceptionPriority, 0, len(byPriority))
	for p := range byPriority {
		priorities = append(priorities, p)
	}
	sort.Slice(priorities, func(i, j int) bool { return priorityRank[priorities[i]] < priorityRank[priorities[j]] })
	for _, p := range priorities {
		summary.ByPriority = append(summary.ByPriority, ExceptionPriorityTally{Priority: p, Count: byPriority[p]})
	}
	for _, c := range categoryOrder {
		summary.ByCategory = append(summary.ByCategory, ExceptionCategoryTally{Category: c, Count: byCategory[c]})
	}
	return summary, nil
}
