package models

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/Attendry/Konzern-sub004/config"
	"github.com/Attendry/Konzern-sub004/utils"
	"github.com/shopspring/decimal"
)

type RuleCategory string

// The HGB consolidation topics a rule can cover. The check executor only has
// evaluators for a subset; rules in other categories are recorded as skipped.
const (
	CategoryBalanceSheetEquation       RuleCategory = "balance_sheet_equation"
	CategoryIntercompanyBalances       RuleCategory = "intercompany_balances"
	CategoryDebtConsolidation          RuleCategory = "debt_consolidation"
	CategoryIncomeExpenseConsolidation RuleCategory = "income_expense_consolidation"
	CategoryCapitalConsolidation       RuleCategory = "capital_consolidation"
	CategoryGoodwill                   RuleCategory = "goodwill"
	CategoryMinorityInterest           RuleCategory = "minority_interest"
	CategoryIntercompanyProfit         RuleCategory = "intercompany_profit"
	CategoryCurrencyTranslation        RuleCategory = "currency_translation"
	CategoryDeferredTaxes              RuleCategory = "deferred_taxes"
	CategoryEquityMethod               RuleCategory = "equity_method"
	CategoryCompleteness               RuleCategory = "completeness"
	CategoryConsistency                RuleCategory = "consistency"
	CategoryYearOverYear               RuleCategory = "year_over_year"
	CategoryCashFlow                   RuleCategory = "cash_flow"
	CategoryDisclosure                 RuleCategory = "disclosure"
	CategoryOther                      RuleCategory = "other"
)

type RuleSeverity string

const (
	SeverityError   RuleSeverity = "error"
	SeverityWarning RuleSeverity = "warning"
	SeverityInfo    RuleSeverity = "info"
)

type RuleType string

const (
	RuleTypeFormula    RuleType = "formula"
	RuleTypeComparison RuleType = "comparison"
	RuleTypeThreshold  RuleType = "threshold"
	RuleTypeCustom     RuleType = "custom"
)

type PlausibilityRule struct {
	ID          int          `gorm:"primary_key" json:"id"`
	Code        string       `gorm:"size:50;not null;uniqueIndex" json:"code" binding:"required"`
	Name        string       `gorm:"size:255;not null" json:"name" binding:"required"`
	Description string       `gorm:"type:text" json:"description"`
	Category    RuleCategory `gorm:"size:40;not null;index" json:"category" binding:"required"`
	Severity    RuleSeverity `gorm:"size:10;not null;default:'error'" json:"severity"`
	RuleType    RuleType     `gorm:"size:12;not null;default:'comparison'" json:"rule_type"`

	// Expression is an opaque payload; the engine only interprets it for
	// specially handled categories.
	Expression string `gorm:"type:text" json:"expression"`

	ThresholdAbsolute *decimal.Decimal `gorm:"type:decimal(20,4)" json:"threshold_absolute"`
	ThresholdPercent  *decimal.Decimal `gorm:"type:decimal(9,4)" json:"threshold_percent"`
	ToleranceAmount   decimal.Decimal  `gorm:"type:decimal(20,4);default:0.01" json:"tolerance_amount"`

	// Applicability filters, comma separated ("consolidated,single").
	AppliesToStatementTypes string `gorm:"size:100" json:"applies_to_statement_types"`
	AppliesToEntityTypes    string `gorm:"size:100" json:"applies_to_entity_types"`

	HGBReference string `gorm:"size:50" json:"hgb_reference"`

	IsActive       *bool     `gorm:"not null;default:true;index" json:"is_active"`
	IsMandatory    *bool     `gorm:"not null;default:false" json:"is_mandatory"`
	ExecutionOrder int       `gorm:"not null;default:100;index" json:"execution_order"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPlausibilityRule struct {
	Code              string           `json:"code" binding:"required"`
	Name              string           `json:"name" binding:"required"`
	Description       string           `json:"description"`
	Category          RuleCategory     `json:"category" binding:"required"`
	Severity          RuleSeverity     `json:"severity"`
	RuleType          RuleType         `json:"rule_type"`
	Expression        string           `json:"expression"`
	ThresholdAbsolute *decimal.Decimal `json:"threshold_absolute"`
	ThresholdPercent  *decimal.Decimal `json:"threshold_percent"`
	ToleranceAmount   *decimal.Decimal `json:"tolerance_amount"`

	AppliesToStatementTypes string `json:"applies_to_statement_types"`
	AppliesToEntityTypes    string `json:"applies_to_entity_types"`
	HGBReference            string `json:"hgb_reference"`

	IsMandatory    bool `json:"is_mandatory"`
	ExecutionOrder int  `json:"execution_order"`
}

const activeRulesCacheKey = "ActiveRules"

func invalidateRuleCache() {
	_ = config.RemoveRedisKey(activeRulesCacheKey)
}

func (input *NewPlausibilityRule) validate(ctx context.Context, id int) error {
	if err := utils.ValidateUnique[PlausibilityRule](ctx, "code", input.Code, id); err != nil {
		return err
	}
	if id > 0 {
		if err := utils.ValidateResourceId[PlausibilityRule](ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func CreateRule(ctx context.Context, input *NewPlausibilityRule) (*PlausibilityRule, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	rule := PlausibilityRule{
		Code:                    input.Code,
		Name:                    input.Name,
		Description:             input.Description,
		Category:                input.Category,
		Severity:                input.Severity,
		RuleType:                input.RuleType,
		Expression:              input.Expression,
		ThresholdAbsolute:       input.ThresholdAbsolute,
		ThresholdPercent:        input.ThresholdPercent,
		AppliesToStatementTypes: input.AppliesToStatementTypes,
		AppliesToEntityTypes:    input.AppliesToEntityTypes,
		HGBReference:            input.HGBReference,
		IsActive:                utils.NewTrue(),
		IsMandatory:             &input.IsMandatory,
		ExecutionOrder:          input.ExecutionOrder,
	}
	if rule.Severity == "" {
		rule.Severity = SeverityError
	}
	if rule.RuleType == "" {
		rule.RuleType = RuleTypeComparison
	}
	if rule.ExecutionOrder == 0 {
		rule.ExecutionOrder = 100
	}
	if input.ToleranceAmount != nil {
		rule.ToleranceAmount = *input.ToleranceAmount
	} else {
		rule.ToleranceAmount = decimal.NewFromFloat(0.01)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&rule).Error; err != nil {
		return nil, err
	}
	invalidateRuleCache()
	recordAudit(ctx, "create", "PlausibilityRule", rule.ID, nil, &rule, "plausibility rule "+rule.Code+" created")
	return &rule, nil
}

func UpdateRule(ctx context.Context, id int, input *NewPlausibilityRule) (*PlausibilityRule, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	rule, err := utils.FetchModel[PlausibilityRule](ctx, id)
	if err != nil {
		return nil, err
	}
	before := *rule

	updates := map[string]interface{}{
		"Code":                    input.Code,
		"Name":                    input.Name,
		"Description":             input.Description,
		"Category":                input.Category,
		"Expression":              input.Expression,
		"ThresholdAbsolute":       input.ThresholdAbsolute,
		"ThresholdPercent":        input.ThresholdPercent,
		"AppliesToStatementTypes": input.AppliesToStatementTypes,
		"AppliesToEntityTypes":    input.AppliesToEntityTypes,
		"HGBReference":            input.HGBReference,
		"IsMandatory":             input.IsMandatory,
	}
	if input.Severity != "" {
		updates["Severity"] = input.Severity
	}
	if input.RuleType != "" {
		updates["RuleType"] = input.RuleType
	}
	if input.ExecutionOrder > 0 {
		updates["ExecutionOrder"] = input.ExecutionOrder
	}
	if input.ToleranceAmount != nil {
		updates["ToleranceAmount"] = *input.ToleranceAmount
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(rule).Updates(updates).Error; err != nil {
		return nil, err
	}
	invalidateRuleCache()
	recordAudit(ctx, "update", "PlausibilityRule", rule.ID, &before, rule, "plausibility rule "+rule.Code+" updated")
	return rule, nil
}

func DeleteRule(ctx context.Context, id int) error {

	rule, err := utils.FetchModel[PlausibilityRule](ctx, id)
	if err != nil {
		return err
	}
	if rule.IsMandatory != nil && *rule.IsMandatory {
		return errors.New("mandatory rules cannot be deleted; deactivate instead")
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(&PlausibilityRule{}, id).Error; err != nil {
		return err
	}
	invalidateRuleCache()
	recordAudit(ctx, "delete", "PlausibilityRule", id, rule, nil, "plausibility rule "+rule.Code+" deleted")
	return nil
}

func SetRuleActive(ctx context.Context, id int, isActive bool) (*PlausibilityRule, error) {

	rule, err := utils.FetchModel[PlausibilityRule](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(rule).Update("IsActive", isActive).Error; err != nil {
		return nil, err
	}
	invalidateRuleCache()
	return rule, nil
}

// GetActiveRules returns active rules ordered by execution order, ties broken
// by insertion order. Optional category filter. The unfiltered list is cached
// in redis when configured.
func GetActiveRules(ctx context.Context, categories ...RuleCategory) ([]*PlausibilityRule, error) {

	var rules []*PlausibilityRule

	exists, err := config.GetRedisObject(activeRulesCacheKey, &rules)
	if err != nil {
		config.LogError(config.GetLogger(), "rule.go", "GetActiveRules", "redis read", nil, err)
		exists = false
	}
	if !exists {
		db := config.GetDB()
		if err := db.WithContext(ctx).
			Where("is_active = ?", true).
			Order("execution_order asc, id asc").
			Find(&rules).Error; err != nil {
			return nil, err
		}
		if err := config.SetRedisObject(activeRulesCacheKey, &rules, 10*time.Minute); err != nil {
			config.LogError(config.GetLogger(), "rule.go", "GetActiveRules", "redis write", nil, err)
		}
	} else {
		// restore execution ordering after the JSON round-trip
		sort.SliceStable(rules, func(i, j int) bool {
			if rules[i].ExecutionOrder != rules[j].ExecutionOrder {
				return rules[i].ExecutionOrder < rules[j].ExecutionOrder
			}
			return rules[i].ID < rules[j].ID
		})
	}

	if len(categories) == 0 {
		return rules, nil
	}

	wanted := make(map[RuleCategory]bool, len(categories))
	for _, c := range categories {
		wanted[c] = true
	}
	filtered := make([]*PlausibilityRule, 0, len(rules))
	for _, r := range rules {
		if wanted[r.Category] {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}
