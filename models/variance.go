package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Attendry/Konzern-sub004/config"
	"github.com/Attendry/Konzern-sub004/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type VarianceLevel string

const (
	VarianceLevelTotal   VarianceLevel = "total"
	VarianceLevelCompany VarianceLevel = "company"
	VarianceLevelAccount VarianceLevel = "account"
)

type VarianceSignificance string

const (
	SignificanceMaterial    VarianceSignificance = "material"
	SignificanceSignificant VarianceSignificance = "significant"
	SignificanceMinor       VarianceSignificance = "minor"
	SignificanceImmaterial  VarianceSignificance = "immaterial"
)

// VarianceAnalysis is one period-over-period comparison. The full set for a
// statement is deleted and regenerated on every run.
type VarianceAnalysis struct {
	ID               int           `gorm:"primary_key" json:"id"`
	StatementId      int           `gorm:"not null;index" json:"statement_id"`
	PriorStatementId int           `gorm:"not null;index" json:"prior_statement_id"`
	Level            VarianceLevel `gorm:"size:10;not null" json:"level"`
	ComparisonKey    string        `gorm:"size:128;not null;index" json:"comparison_key"`
	CompanyId        int           `gorm:"index" json:"company_id"`
	AccountNumber    string        `gorm:"size:20" json:"account_number"`

	CurrentFiscalYear int `gorm:"not null" json:"current_fiscal_year"`
	PriorFiscalYear   int `gorm:"not null" json:"prior_fiscal_year"`

	CurrentValue       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_value"`
	PriorValue         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"prior_value"`
	AbsoluteVariance   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"absolute_variance"`
	PercentageVariance decimal.Decimal `gorm:"type:decimal(12,4);default:0" json:"percentage_variance"`

	AppliedPlanning    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"applied_planning"`
	AppliedPerformance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"applied_performance"`
	AppliedTrivial     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"applied_trivial"`

	Significance VarianceSignificance `gorm:"size:12;not null;index" json:"significance"`
	IsMaterial   *bool                `gorm:"not null;default:false;index" json:"is_material"`

	Explanation         string     `gorm:"type:text" json:"explanation"`
	ExplanationCategory string     `gorm:"size:50" json:"explanation_category"`
	ExplainedBy         string     `gorm:"size:64" json:"explained_by"`
	ExplainedAt         *time.Time `json:"explained_at"`

	ReviewedBy    string     `gorm:"size:64" json:"reviewed_by"`
	ReviewedAt    *time.Time `json:"reviewed_at"`
	ReviewComment string     `gorm:"type:text" json:"review_comment"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// classifySignificance picks the highest tier whose threshold the absolute
// variance reaches. A zero variance is always immaterial.
func classifySignificance(absVariance, planning, performance, trivial decimal.Decimal) VarianceSignificance {
	abs := absVariance.Abs()
	if abs.IsZero() {
		return SignificanceImmaterial
	}
	if abs.GreaterThanOrEqual(planning) {
		return SignificanceMaterial
	}
	if abs.GreaterThanOrEqual(performance) {
		return SignificanceSignificant
	}
	if abs.GreaterThanOrEqual(trivial) {
		return SignificanceMinor
	}
	return SignificanceImmaterial
}

type varianceValue struct {
	CompanyId     int
	AccountNumber string
	Value         decimal.Decimal
}

// buildVarianceValues aggregates a statement's balances under the comparison
// keys of the chosen level.
func buildVarianceValues(ctx context.Context, statementId int, level VarianceLevel) (map[string]*varianceValue, error) {

	db := config.GetDB()

	var balances []*AccountBalance
	if err := db.WithContext(ctx).Where("statement_id = ?", statementId).Find(&balances).Error; err != nil {
		return nil, err
	}

	var accounts []*Account
	if err := db.WithContext(ctx).Find(&accounts).Error; err != nil {
		return nil, err
	}
	numberById := make(map[int]string, len(accounts))
	for _, a := range accounts {
		numberById[a.ID] = a.AccountNumber
	}

	values := make(map[string]*varianceValue)
	for _, b := range balances {
		var key string
		entry := &varianceValue{}
		switch level {
		case VarianceLevelTotal:
			key = "total"
		case VarianceLevelCompany:
			key = fmt.Sprintf("company_%d", b.CompanyId)
			entry.CompanyId = b.CompanyId
		case VarianceLevelAccount:
			number := numberById[b.AccountId]
			if number == "" {
				continue
			}
			if b.CompanyId > 0 {
				key = fmt.Sprintf("%d_%s", b.CompanyId, number)
			} else {
				key = number
			}
			entry.CompanyId = b.CompanyId
			entry.AccountNumber = number
		default:
			return nil, errors.New("unknown variance level")
		}

		if existing, ok := values[key]; ok {
			existing.Value = existing.Value.Add(b.Balance)
		} else {
			entry.Value = b.Balance
			values[key] = entry
		}
	}
	return values, nil
}

// RunVarianceAnalysis compares two statements at the chosen granularity and
// replaces all variance rows of the current statement. Missing materiality
// thresholds default to zero, which classifies every nonzero variance as
// material (fail-open).
func RunVarianceAnalysis(ctx context.Context, currentStatementId, priorStatementId int, level VarianceLevel) ([]*VarianceAnalysis, error) {

	current, err := GetFinancialStatement(ctx, currentStatementId)
	if err != nil {
		return nil, errors.New("current statement not found")
	}
	prior, err := GetFinancialStatement(ctx, priorStatementId)
	if err != nil {
		return nil, errors.New("prior statement not found")
	}

	db := config.GetDB()
	logger := config.GetLogger()

	planning, performance, trivial := decimal.Zero, decimal.Zero, decimal.Zero
	if thresholds, terr := GetMaterialityThresholds(ctx, currentStatementId); terr == nil {
		planning = thresholds.PlanningThreshold
		performance = thresholds.PerformanceThreshold
		trivial = thresholds.TrivialThreshold
	}

	priorValues, err := buildVarianceValues(ctx, priorStatementId, level)
	if err != nil {
		return nil, fmt.Errorf("aggregate prior period: %w", err)
	}
	currentValues, err := buildVarianceValues(ctx, currentStatementId, level)
	if err != nil {
		return nil, fmt.Errorf("aggregate current period: %w", err)
	}

	// union of both key sets, deterministic order
	keys := make([]string, 0, len(currentValues)+len(priorValues))
	for key := range currentValues {
		keys = append(keys, key)
	}
	for key := range priorValues {
		if _, ok := currentValues[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	// full replace: idempotent per invocation given identical inputs
	if err := db.WithContext(ctx).Where("statement_id = ?", currentStatementId).Delete(&VarianceAnalysis{}).Error; err != nil {
		return nil, fmt.Errorf("delete previous variance rows: %w", err)
	}

	hundred := decimal.NewFromInt(100)
	analyses := make([]*VarianceAnalysis, 0, len(keys))
	var insertFailures int

	for _, key := range keys {
		currentValue := decimal.Zero
		priorValue := decimal.Zero
		companyId := 0
		accountNumber := ""
		if v, ok := currentValues[key]; ok {
			currentValue = v.Value
			companyId = v.CompanyId
			accountNumber = v.AccountNumber
		}
		if v, ok := priorValues[key]; ok {
			priorValue = v.Value
			if companyId == 0 {
				companyId = v.CompanyId
			}
			if accountNumber == "" {
				accountNumber = v.AccountNumber
			}
		}

		absoluteVariance := currentValue.Sub(priorValue)

		var percentageVariance decimal.Decimal
		if !priorValue.IsZero() {
			percentageVariance = absoluteVariance.Div(priorValue.Abs()).Mul(hundred)
		} else if !currentValue.IsZero() {
			percentageVariance = hundred
		}

		significance := classifySignificance(absoluteVariance, planning, performance, trivial)
		isMaterial := significance == SignificanceMaterial

		analysis := &VarianceAnalysis{
			StatementId:        currentStatementId,
			PriorStatementId:   priorStatementId,
			Level:              level,
			ComparisonKey:      key,
			CompanyId:          companyId,
			AccountNumber:      accountNumber,
			CurrentFiscalYear:  current.FiscalYear,
			PriorFiscalYear:    prior.FiscalYear,
			CurrentValue:       currentValue,
			PriorValue:         priorValue,
			AbsoluteVariance:   absoluteVariance,
			PercentageVariance: percentageVariance,
			AppliedPlanning:    planning,
			AppliedPerformance: performance,
			AppliedTrivial:     trivial,
			Significance:       significance,
			IsMaterial:         &isMaterial,
		}

		if err := db.WithContext(ctx).Create(analysis).Error; err != nil {
			config.LogError(logger, "variance.go", "RunVarianceAnalysis", "insert variance row "+key, nil, err)
			insertFailures++
			continue
		}
		analyses = append(analyses, analysis)
	}

	recordAudit(ctx, "run_variance_analysis", "FinancialStatement", currentStatementId, nil, nil,
		fmt.Sprintf("variance analysis (%s) produced %d rows against statement %d", level, len(analyses), priorStatementId))

	logger.WithFields(logrus.Fields{
		"field":           "VarianceAnalysis",
		"statement_id":    currentStatementId,
		"prior_id":        priorStatementId,
		"level":           string(level),
		"rows":            len(analyses),
		"insert_failures": insertFailures,
	}).Info("variance analysis completed")

	return analyses, nil
}

func GetVarianceAnalyses(ctx context.Context, statementId int, materialOnly, unexplainedOnly bool) ([]*VarianceAnalysis, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("statement_id = ?", statementId)
	if materialOnly {
		dbCtx = dbCtx.Where("is_material = ?", true)
	}
	if unexplainedOnly {
		dbCtx = dbCtx.Where("explanation = '' OR explanation IS NULL")
	}
	var analyses []*VarianceAnalysis
	if err := dbCtx.Order("comparison_key asc").Find(&analyses).Error; err != nil {
		return nil, err
	}
	return analyses, nil
}

func ExplainVariance(ctx context.Context, varianceId int, explanation, category string) (*VarianceAnalysis, error) {

	if strings.TrimSpace(explanation) == "" {
		return nil, errors.New("explanation is required")
	}

	analysis, err := utils.FetchModel[VarianceAnalysis](ctx, varianceId)
	if err != nil {
		return nil, errors.New("variance analysis not found")
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	now := time.Now().UTC()
	before := *analysis

	db := config.GetDB()
	err = db.WithContext(ctx).Model(analysis).Updates(map[string]interface{}{
		"Explanation":         explanation,
		"ExplanationCategory": category,
		"ExplainedBy":         userId,
		"ExplainedAt":         &now,
	}).Error
	if err != nil {
		return nil, err
	}
	recordAudit(ctx, "explain", "VarianceAnalysis", analysis.ID, &before, analysis, "variance "+analysis.ComparisonKey+" explained")
	return analysis, nil
}

func ReviewVariance(ctx context.Context, varianceId int, comment string) (*VarianceAnalysis, error) {

	analysis, err := utils.FetchModel[VarianceAnalysis](ctx, varianceId)
	if err != nil {
		return nil, errors.New("variance analysis not found")
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	now := time.Now().UTC()
	before := *analysis

	db := config.GetDB()
	err = db.WithContext(ctx).Model(analysis).Updates(map[string]interface{}{
		"ReviewedBy":    userId,
		"ReviewedAt":    &now,
		"ReviewComment": comment,
	}).Error
	if err != nil {
		return nil, err
	}
	recordAudit(ctx, "review", "VarianceAnalysis", analysis.ID, &before, analysis, "variance "+analysis.ComparisonKey+" reviewed")
	return analysis, nil
}

type VarianceCategoryTally struct {
	ExplanationCategory string          `json:"explanation_category"`
	Count               int             `json:"count"`
	TotalAbsolute       decimal.Decimal `json:"total_absolute"`
}

type VarianceSummary struct {
	Total       int `json:"total"`
	Material    int `json:"material"`
	Explained   int `json:"explained"`
	Unexplained int `json:"unexplained"`
	Reviewed    int `json:"reviewed"`
	// material variances still waiting for an explanation
	OpenMaterial int                     `json:"open_material"`
	ByCategory   []VarianceCategoryTally `json:"by_category"`
}

// GetVarianceSummary tallies all variance rows of a statement in one scan.
func GetVarianceSummary(ctx context.Context, statementId int) (*VarianceSummary, error) {

	analyses, err := utils.FetchStatementModels[VarianceAnalysis](ctx, statementId)
	if err != nil {
		return nil, err
	}

	summary := &VarianceSummary{Total: len(analyses)}
	byCategory := make(map[string]*VarianceCategoryTally)
	categoryOrder := []string{}

	for _, a := range analyses {
		if a.IsMaterial != nil && *a.IsMaterial {
			summary.Material++
		}
		explained := a.Explanation != ""
		if explained {
			summary.Explained++
		} else {
			summary.Unexplained++
			if a.IsMaterial != nil && *a.IsMaterial {
				summary.OpenMaterial++
			}
		}
		if a.ReviewedAt != nil {
			summary.Reviewed++
		}

		category := a.ExplanationCategory
		if category == "" {
			category = "unexplained"
		}
		tally := byCategory[category]
		if tally == nil {
			tally = &VarianceCategoryTally{ExplanationCategory: category}
			byCategory[category] = tally
			categoryOrder = append(categoryOrder, category)
		}
		tally.Count++
		tally.TotalAbsolute = tally.TotalAbsolute.Add(a.AbsoluteVariance.Abs())
	}

	for _, c := range categoryOrder {
		summary.ByCategory = append(summary.ByCategory, *byCategory[c])
	}
	return summary, nil
}
