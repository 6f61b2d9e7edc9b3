package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Attendry/Konzern-sub004/config"
	"github.com/Attendry/Konzern-sub004/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type CheckStatus string

const (
	CheckStatusPassed       CheckStatus = "passed"
	CheckStatusFailed       CheckStatus = "failed"
	CheckStatusWarning      CheckStatus = "warning"
	CheckStatusSkipped      CheckStatus = "skipped"
	CheckStatusAcknowledged CheckStatus = "acknowledged"
	CheckStatusWaived       CheckStatus = "waived"
)

// PlausibilityCheck is one evaluated rule within one check run. Rule code,
// name and category are denormalized so results stay readable after rule
// edits.
type PlausibilityCheck struct {
	ID          int `gorm:"primary_key" json:"id"`
	CheckRunId  int `gorm:"not null;index" json:"check_run_id"`
	RuleId      int `gorm:"not null;index" json:"rule_id"`
	StatementId int `gorm:"not null;index" json:"statement_id"`
	CompanyId   int `gorm:"index" json:"company_id"`

	RuleCode     string       `gorm:"size:50;not null" json:"rule_code"`
	RuleName     string       `gorm:"size:255;not null" json:"rule_name"`
	Category     RuleCategory `gorm:"size:40;not null;index" json:"category"`
	Severity     RuleSeverity `gorm:"size:10;not null" json:"severity"`
	HGBReference string       `gorm:"size:50" json:"hgb_reference"`

	ExpectedValue     decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"expected_value"`
	ActualValue       decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"actual_value"`
	DifferenceValue   decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"difference_value"`
	DifferencePercent *decimal.Decimal `gorm:"type:decimal(12,4)" json:"difference_percent"`

	Status  CheckStatus `gorm:"size:14;not null;index" json:"status"`
	Message string      `gorm:"type:text" json:"message"`
	Details string      `gorm:"type:text" json:"details"`

	// json array of account numbers
	AffectedAccounts []byte `gorm:"type:json" json:"affected_accounts"`

	AcknowledgedBy     string     `gorm:"size:64" json:"acknowledged_by"`
	AcknowledgedAt     *time.Time `json:"acknowledged_at"`
	AcknowledgeComment string     `gorm:"type:text" json:"acknowledge_comment"`
	WaivedBy           string     `gorm:"size:64" json:"waived_by"`
	WaivedAt           *time.Time `json:"waived_at"`
	WaiveReason        string     `gorm:"type:text" json:"waive_reason"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type CheckRunStatus string

const (
	CheckRunStatusRunning   CheckRunStatus = "running"
	CheckRunStatusCompleted CheckRunStatus = "completed"
	CheckRunStatusFailed    CheckRunStatus = "failed"
	CheckRunStatusCancelled CheckRunStatus = "cancelled"
)

type CheckRun struct {
	ID          int            `gorm:"primary_key" json:"id"`
	StatementId int            `gorm:"not null;index" json:"statement_id"`
	Status      CheckRunStatus `gorm:"size:12;not null;index" json:"status"`
	StartedAt   time.Time      `gorm:"not null" json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at"`

	TotalRules   int `gorm:"default:0" json:"total_rules"`
	PassedCount  int `gorm:"default:0" json:"passed_count"`
	FailedCount  int `gorm:"default:0" json:"failed_count"`
	WarningCount int `gorm:"default:0" json:"warning_count"`
	SkippedCount int `gorm:"default:0" json:"skipped_count"`

	// comma separated category filter, empty = all
	CategoriesFiltered string `gorm:"size:255" json:"categories_filtered"`
	ErrorMessage       string `gorm:"type:text" json:"error_message"`
	RunBy              string `gorm:"size:64" json:"run_by"`
	CorrelationId      string `gorm:"size:64;index" json:"correlation_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CheckInput is the aggregate snapshot every evaluator receives. Both
// aggregates are computed once per run, not per rule.
type CheckInput struct {
	Statement     *FinancialStatement
	BalanceSheet  *BalanceSheetAggregate
	Consolidation *ConsolidationAggregate
	Companies     []*Company
}

// CheckOutcome is what an evaluator reports back. When Skip is false the
// executor classifies pass/fail/warning from expected vs. actual using the
// rule's tolerance and severity.
type CheckOutcome struct {
	Expected         decimal.Decimal
	Actual           decimal.Decimal
	Message          string
	Details          string
	AffectedAccounts []string
	Skip             bool
	SkipReason       string
}

type CheckEvaluator func(ctx context.Context, rule *PlausibilityRule, input *CheckInput) (*CheckOutcome, error)

var checkEvaluators = map[RuleCategory]CheckEvaluator{
	CategoryBalanceSheetEquation:       balanceSheetEquationCheck,
	CategoryIntercompanyBalances:       intercompanyBalancesCheck,
	CategoryDebtConsolidation:          debtConsolidationCheck,
	CategoryIncomeExpenseConsolidation: incomeExpenseConsolidationCheck,
	CategoryMinorityInterest:           minorityInterestCheck,
	CategoryCapitalConsolidation:       capitalConsolidationCheck,
	CategoryGoodwill:                   capitalConsolidationCheck,
	CategoryYearOverYear:               yearOverYearCheck,
}

// RegisterCheckEvaluator adds or replaces the evaluator for a category.
// The executor loop itself never needs to change for new categories.
func RegisterCheckEvaluator(category RuleCategory, evaluator CheckEvaluator) {
	checkEvaluators[category] = evaluator
}

// RunAllChecks evaluates every active rule against one statement and returns
// the finished run. Per-rule failures are recorded as skipped and never abort
// the run; a failure to persist the run itself is fatal.
func RunAllChecks(ctx context.Context, statementId int, categories ...RuleCategory) (*CheckRun, error) {

	statement, err := GetFinancialStatement(ctx, statementId)
	if err != nil {
		return nil, errors.New("statement not found")
	}

	db := config.GetDB()
	logger := config.GetLogger()

	userId, _ := utils.GetUserIdFromContext(ctx)
	cid, _ := utils.GetCorrelationIdFromContext(ctx)

	categoryNames := make([]string, 0, len(categories))
	for _, c := range categories {
		categoryNames = append(categoryNames, string(c))
	}

	run := CheckRun{
		StatementId:        statementId,
		Status:             CheckRunStatusRunning,
		StartedAt:          time.Now().UTC(),
		CategoriesFiltered: strings.Join(categoryNames, ","),
		RunBy:              userId,
		CorrelationId:      cid,
	}
	if err := db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, fmt.Errorf("create check run: %w", err)
	}

	rules, err := GetActiveRules(ctx)
	if err != nil {
		return nil, failCheckRun(ctx, &run, fmt.Errorf("load active rules: %w", err))
	}
	if len(categories) > 0 {
		wanted := make(map[RuleCategory]bool, len(categories))
		for _, c := range categories {
			wanted[c] = true
		}
		filtered := rules[:0]
		for _, r := range rules {
			if wanted[r.Category] {
				filtered = append(filtered, r)
			}
		}
		rules = filtered
	}

	// Aggregate snapshots: once per run, not per rule.
	balanceSheet, err := ComputeBalanceSheetAggregate(ctx, statementId)
	if err != nil {
		return nil, failCheckRun(ctx, &run, fmt.Errorf("compute balance sheet aggregate: %w", err))
	}
	consolidation, err := ComputeConsolidationAggregate(ctx, statementId)
	if err != nil {
		return nil, failCheckRun(ctx, &run, fmt.Errorf("compute consolidation aggregate: %w", err))
	}
	companies, err := GetCompanies(ctx)
	if err != nil {
		return nil, failCheckRun(ctx, &run, fmt.Errorf("load companies: %w", err))
	}

	input := &CheckInput{
		Statement:     statement,
		BalanceSheet:  balanceSheet,
		Consolidation: consolidation,
		Companies:     companies,
	}

	run.TotalRules = len(rules)
	for _, rule := range rules {
		check := executeRule(ctx, rule, input)
		check.CheckRunId = run.ID
		check.StatementId = statementId

		if err := db.WithContext(ctx).Create(check).Error; err != nil {
			config.LogError(logger, "check.go", "RunAllChecks", "persist check for rule "+rule.Code, nil, err)
			run.SkippedCount++
			continue
		}

		switch check.Status {
		case CheckStatusPassed:
			run.PassedCount++
		case CheckStatusFailed:
			run.FailedCount++
		case CheckStatusWarning:
			run.WarningCount++
		default:
			run.SkippedCount++
		}
	}

	now := time.Now().UTC()
	run.Status = CheckRunStatusCompleted
	run.CompletedAt = &now
	if err := db.WithContext(ctx).Save(&run).Error; err != nil {
		return nil, fmt.Errorf("complete check run: %w", err)
	}

	recordAudit(ctx, "run_checks", "CheckRun", run.ID, nil, &run,
		fmt.Sprintf("plausibility checks completed: %d passed, %d failed, %d warning, %d skipped",
			run.PassedCount, run.FailedCount, run.WarningCount, run.SkippedCount))

	logger.WithFields(logrus.Fields{
		"field":        "PlausibilityChecks",
		"statement_id": statementId,
		"run_id":       run.ID,
		"total":        run.TotalRules,
		"passed":       run.PassedCount,
		"failed":       run.FailedCount,
		"warning":      run.WarningCount,
		"skipped":      run.SkippedCount,
	}).Info("check run completed")

	return &run, nil
}

// failCheckRun marks the run failed and returns the original error.
func failCheckRun(ctx context.Context, run *CheckRun, cause error) error {
	db := config.GetDB()
	now := time.Now().UTC()
	run.Status = CheckRunStatusFailed
	run.CompletedAt = &now
	run.ErrorMessage = cause.Error()
	if err := db.WithContext(ctx).Save(run).Error; err != nil {
		config.LogError(config.GetLogger(), "check.go", "failCheckRun", "persist failed run", nil, err)
	}
	return cause
}

// executeRule evaluates one rule. Evaluation errors and panics are converted
// into a skipped check so a single bad rule cannot abort the run.
func executeRule(ctx context.Context, rule *PlausibilityRule, input *CheckInput) (check *PlausibilityCheck) {

	check = &PlausibilityCheck{
		RuleId:       rule.ID,
		RuleCode:     rule.Code,
		RuleName:     rule.Name,
		Category:     rule.Category,
		Severity:     rule.Severity,
		HGBReference: rule.HGBReference,
	}

	defer func() {
		if r := recover(); r != nil {
			check.Status = CheckStatusSkipped
			check.Message = fmt.Sprintf("rule evaluation panicked: %v", r)
		}
	}()

	evaluator, ok := checkEvaluators[rule.Category]
	if !ok {
		check.Status = CheckStatusSkipped
		check.Message = fmt.Sprintf("no evaluator registered for category %q", rule.Category)
		return check
	}

	outcome, err := evaluator(ctx, rule, input)
	if err != nil {
		check.Status = CheckStatusSkipped
		check.Message = "rule evaluation failed: " + err.Error()
		return check
	}
	if outcome.Skip {
		check.Status = CheckStatusSkipped
		check.Message = outcome.SkipReason
		return check
	}

	check.ExpectedValue = outcome.Expected
	check.ActualValue = outcome.Actual
	check.Message = outcome.Message
	check.Details = outcome.Details
	if len(outcome.AffectedAccounts) > 0 {
		if b, merr := json.Marshal(outcome.AffectedAccounts); merr == nil {
			check.AffectedAccounts = b
		}
	}

	difference := outcome.Actual.Sub(outcome.Expected)
	check.DifferenceValue = difference

	// percentage only defined for a nonzero expected value
	if !outcome.Expected.IsZero() {
		pct := difference.Div(outcome.Expected.Abs()).Mul(decimal.NewFromInt(100))
		check.DifferencePercent = &pct
	}

	// breach when |expected - actual| > max(tolerance, absolute threshold)
	tolerance := rule.ToleranceAmount
	if rule.ThresholdAbsolute != nil && rule.ThresholdAbsolute.GreaterThan(tolerance) {
		tolerance = *rule.ThresholdAbsolute
	}
	if difference.Abs().GreaterThan(tolerance) {
		if rule.Severity == SeverityError {
			check.Status = CheckStatusFailed
		} else {
			check.Status = CheckStatusWarning
		}
		if check.Message == "" {
			check.Message = fmt.Sprintf("expected %s, got %s", utils.FormatAmount(outcome.Expected), utils.FormatAmount(outcome.Actual))
		}
	} else {
		check.Status = CheckStatusPassed
	}
	return check
}

/* evaluators */

func balanceSheetEquationCheck(ctx context.Context, rule *PlausibilityRule, input *CheckInput) (*CheckOutcome, error) {
	bs := input.BalanceSheet
	return &CheckOutcome{
		Expected: bs.LiabilitiesAndEquity,
		Actual:   bs.TotalAssets,
		Message: fmt.Sprintf("total assets %s vs. liabilities and equity %s",
			utils.FormatAmount(bs.TotalAssets), utils.FormatAmount(bs.LiabilitiesAndEquity)),
		Details: fmt.Sprintf("assets=%s liabilities=%s equity=%s net income=%s",
			bs.TotalAssets, bs.TotalLiabilities, bs.TotalEquity, bs.NetIncome),
	}, nil
}

func intercompanyBalancesCheck(ctx context.Context, rule *PlausibilityRule, input *CheckInput) (*CheckOutcome, error) {
	cons := input.Consolidation
	return &CheckOutcome{
		Expected: cons.ICReceivables,
		Actual:   cons.ICPayables,
		Message: fmt.Sprintf("intercompany receivables %s vs. payables %s",
			utils.FormatAmount(cons.ICReceivables), utils.FormatAmount(cons.ICPayables)),
	}, nil
}

func debtConsolidationCheck(ctx context.Context, rule *PlausibilityRule, input *CheckInput) (*CheckOutcome, error) {
	cons := input.Consolidation
	return &CheckOutcome{
		Expected: decimal.Zero,
		Actual:   cons.UnreconciledDifference,
		Message: fmt.Sprintf("%d unreconciled intercompany pairs, open difference %s",
			cons.UnreconciledPairs, utils.FormatAmount(cons.UnreconciledDifference)),
	}, nil
}

func incomeExpenseConsolidationCheck(ctx context.Context, rule *PlausibilityRule, input *CheckInput) (*CheckOutcome, error) {
	cons := input.Consolidation
	return &CheckOutcome{
		Expected: cons.ICRevenue,
		Actual:   cons.ICExpenses,
		Message: fmt.Sprintf("intercompany revenue %s vs. intercompany expenses %s",
			utils.FormatAmount(cons.ICRevenue), utils.FormatAmount(cons.ICExpenses)),
	}, nil
}

// minorityInterestCheck compares the reported minority interest balance with
// the share of subsidiary equity not attributable to the group.
func minorityInterestCheck(ctx context.Context, rule *PlausibilityRule, input *CheckInput) (*CheckOutcome, error) {

	hundred := decimal.NewFromInt(100)
	expected := decimal.Zero
	affected := []string{}

	for _, company := range input.Companies {
		if company.IsParent != nil && *company.IsParent {
			continue
		}
		if company.ConsolidationMethod != ConsolidationMethodFull {
			continue
		}
		if company.OwnershipPercent.GreaterThanOrEqual(hundred) {
			continue
		}
		equity, ok := input.BalanceSheet.EquityByCompany[company.ID]
		if !ok {
			continue
		}
		minorityShare := equity.Mul(hundred.Sub(company.OwnershipPercent)).Div(hundred)
		expected = expected.Add(minorityShare)
		affected = append(affected, company.Name)
	}

	return &CheckOutcome{
		Expected: expected,
		Actual:   input.BalanceSheet.MinorityInterestBalance,
		Message: fmt.Sprintf("minority interest reported %s, computed from ownership %s",
			utils.FormatAmount(input.BalanceSheet.MinorityInterestBalance), utils.FormatAmount(expected)),
		AffectedAccounts: affected,
	}, nil
}

// capitalConsolidationCheck flags negative goodwill from capital
// consolidation; a credit difference must be shown separately, not netted
// into the goodwill line.
func capitalConsolidationCheck(ctx context.Context, rule *PlausibilityRule, input *CheckInput) (*CheckOutcome, error) {

	goodwill := input.BalanceSheet.GoodwillBalance
	expected := goodwill
	if goodwill.IsNegative() {
		expected = decimal.Zero
	}
	return &CheckOutcome{
		Expected: expected,
		Actual:   goodwill,
		Message:  fmt.Sprintf("goodwill balance %s", utils.FormatAmount(goodwill)),
	}, nil
}

func yearOverYearCheck(ctx context.Context, rule *PlausibilityRule, input *CheckInput) (*CheckOutcome, error) {
	return &CheckOutcome{
		Skip:       true,
		SkipReason: "year-over-year movements are evaluated by the variance analysis",
	}, nil
}

/* result access & review */

func GetCheckResults(ctx context.Context, statementId int, status CheckStatus) ([]*PlausibilityCheck, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("statement_id = ?", statementId)
	if status != "" {
		dbCtx = dbCtx.Where("status = ?", status)
	}
	var checks []*PlausibilityCheck
	if err := dbCtx.Order("id asc").Find(&checks).Error; err != nil {
		return nil, err
	}
	return checks, nil
}

func GetCheckRuns(ctx context.Context, statementId int) ([]*CheckRun, error) {
	db := config.GetDB()
	var runs []*CheckRun
	if err := db.WithContext(ctx).Where("statement_id = ?", statementId).Order("started_at desc, id desc").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// AcknowledgeCheck marks a failed or warning check as seen. Acknowledging
// never auto-reverts.
func AcknowledgeCheck(ctx context.Context, checkId int, comment string) (*PlausibilityCheck, error) {

	check, err := utils.FetchModel[PlausibilityCheck](ctx, checkId)
	if err != nil {
		return nil, errors.New("check not found")
	}
	if check.Status != CheckStatusFailed && check.Status != CheckStatusWarning {
		return nil, errors.New("only failed or warning checks can be acknowledged")
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	now := time.Now().UTC()
	before := *check

	db := config.GetDB()
	err = db.WithContext(ctx).Model(check).Updates(map[string]interface{}{
		"Status":             CheckStatusAcknowledged,
		"AcknowledgedBy":     userId,
		"AcknowledgedAt":     &now,
		"AcknowledgeComment": comment,
	}).Error
	if err != nil {
		return nil, err
	}
	recordAudit(ctx, "acknowledge", "PlausibilityCheck", check.ID, &before, check, "check "+check.RuleCode+" acknowledged")
	return check, nil
}

// WaiveCheck waives a failed or warning check with a mandatory reason.
func WaiveCheck(ctx context.Context, checkId int, reason string) (*PlausibilityCheck, error) {

	if strings.TrimSpace(reason) == "" {
		return nil, errors.New("waive reason is required")
	}

	check, err := utils.FetchModel[PlausibilityCheck](ctx, checkId)
	if err != nil {
		return nil, errors.New("check not found")
	}
	if check.Status != CheckStatusFailed && check.Status != CheckStatusWarning {
		return nil, errors.New("only failed or warning checks can be waived")
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	now := time.Now().UTC()
	before := *check

	db := config.GetDB()
	err = db.WithContext(ctx).Model(check).Updates(map[string]interface{}{
		"Status":      CheckStatusWaived,
		"WaivedBy":    userId,
		"WaivedAt":    &now,
		"WaiveReason": reason,
	}).Error
	if err != nil {
		return nil, err
	}
	recordAudit(ctx, "waive", "PlausibilityCheck", check.ID, &before, check, "check "+check.RuleCode+" waived")
	return check, nil
}

/* summary */

type CheckCategoryTally struct {
	Category RuleCategory `json:"category"`
	Passed   int          `json:"passed"`
	Failed   int          `json:"failed"`
	Warning  int          `json:"warning"`
	Skipped  int          `json:"skipped"`
}

type CheckSeverityTally struct {
	Severity RuleSeverity `json:"severity"`
	Passed   int          `json:"passed"`
	Failed   int          `json:"failed"`
	Warning  int          `json:"warning"`
}

type CheckSummary struct {
	Total        int                  `json:"total"`
	Passed       int                  `json:"passed"`
	Failed       int                  `json:"failed"`
	Warning      int                  `json:"warning"`
	Skipped      int                  `json:"skipped"`
	Acknowledged int                  `json:"acknowledged"`
	Waived       int                  `json:"waived"`
	ByCategory   []CheckCategoryTally `json:"by_category"`
	BySeverity   []CheckSeverityTally `json:"by_severity"`
}

// GetCheckSummary tallies all checks of a statement in one scan.
func GetCheckSummary(ctx context.Context, statementId int) (*CheckSummary, error) {

	checks, err := utils.FetchStatementModels[PlausibilityCheck](ctx, statementId)
	if err != nil {
		return nil, err
	}

	summary := &CheckSummary{Total: len(checks)}
	byCategory := make(map[RuleCategory]*CheckCategoryTally)
	bySeverity := make(map[RuleSeverity]*CheckSeverityTally)
	categoryOrder := []RuleCategory{}
	severityOrder := []RuleSeverity{}

	for _, check := range checks {
		cat := byCategory[check.Category]
		if cat == nil {
			cat = &CheckCategoryTally{Category: check.Category}
			byCategory[check.Category] = cat
			categoryOrder = append(categoryOrder, check.Category)
		}
		sev := bySeverity[check.Severity]
		if sev == nil {
			sev = &CheckSeverityTally{Severity: check.Severity}
			bySeverity[check.Severity] = sev
			severityOrder = append(severityOrder, check.Severity)
		}

		switch check.Status {
		case CheckStatusPassed:
			summary.Passed++
			cat.Passed++
			sev.Passed++
		case CheckStatusFailed:
			summary.Failed++
			cat.Failed++
			sev.Failed++
		case CheckStatusWarning:
			summary.Warning++
			cat.Warning++
			sev.Warning++
		case CheckStatusSkipped:
			summary.Skipped++
			cat.Skipped++
		case CheckStatusAcknowledged:
			summary.Acknowledged++
		case CheckStatusWaived:
			summary.Waived++
		}
	}

	for _, c := range categoryOrder {
		summary.ByCategory = append(summary.ByCategory, *byCategory[c])
	}
	for _, s := range severityOrder {
		summary.BySeverity = append(summary.BySeverity, *bySeverity[s])
	}
	return summary, nil
}
