package models

import (
	"context"

	"github.com/Attendry/Konzern-sub004/config"
	"github.com/Attendry/Konzern-sub004/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func thresholdOf(value float64) *decimal.Decimal {
	d := decimal.NewFromFloat(value)
	return &d
}

// DefaultRuleCatalog returns the built-in HGB rule set. Codes are stable;
// SeedDefaultRules matches on them.
func DefaultRuleCatalog() []*NewPlausibilityRule {
	return []*NewPlausibilityRule{
		{
			Code:           "HGB-BS-001",
			Name:           "Bilanzgleichung",
			Description:    "Total assets must equal total liabilities plus equity including net income.",
			Category:       CategoryBalanceSheetEquation,
			Severity:       SeverityError,
			RuleType:       RuleTypeFormula,
			HGBReference:   "§ 247 HGB",
			IsMandatory:    true,
			ExecutionOrder: 10,
		},
		{
			Code:           "HGB-IC-001",
			Name:           "Konzerninterne Salden",
			Description:    "Intercompany receivables must mirror intercompany payables across the group.",
			Category:       CategoryIntercompanyBalances,
			Severity:       SeverityError,
			RuleType:       RuleTypeComparison,
			HGBReference:   "§ 303 HGB",
			IsMandatory:    true,
			ExecutionOrder: 20,
		},
		{
			Code:           "HGB-IC-002",
			Name:           "Schuldenkonsolidierung",
			Description:    "All intercompany receivable/payable pairs must be reconciled before consolidation.",
			Category:       CategoryDebtConsolidation,
			Severity:       SeverityError,
			RuleType:       RuleTypeComparison,
			HGBReference:   "§ 303 HGB",
			IsMandatory:    true,
			ExecutionOrder: 30,
		},
		{
			Code:           "HGB-IC-003",
			Name:           "Aufwands- und Ertragskonsolidierung",
			Description:    "Intercompany revenue must match intercompany expenses.",
			Category:       CategoryIncomeExpenseConsolidation,
			Severity:       SeverityError,
			RuleType:       RuleTypeComparison,
			HGBReference:   "§ 305 HGB",
			IsMandatory:    true,
			ExecutionOrder: 40,
		},
		{
			Code:           "HGB-KK-001",
			Name:           "Kapitalkonsolidierung",
			Description:    "A credit difference from capital consolidation may not be netted into goodwill.",
			Category:       CategoryCapitalConsolidation,
			Severity:       SeverityError,
			RuleType:       RuleTypeFormula,
			HGBReference:   "§ 301 HGB",
			IsMandatory:    true,
			ExecutionOrder: 50,
		},
		{
			Code:           "HGB-GW-001",
			Name:           "Geschäfts- oder Firmenwert",
			Description:    "Goodwill from consolidation must be shown as an asset and amortized over its useful life.",
			Category:       CategoryGoodwill,
			Severity:       SeverityWarning,
			RuleType:       RuleTypeFormula,
			HGBReference:   "§ 309 HGB",
			ExecutionOrder: 60,
		},
		{
			Code:           "HGB-MI-001",
			Name:           "Anteile anderer Gesellschafter",
			Description:    "Minority interest must equal the equity share not attributable to the parent.",
			Category:       CategoryMinorityInterest,
			Severity:       SeverityError,
			RuleType:       RuleTypeFormula,
			HGBReference:   "§ 307 HGB",
			IsMandatory:    true,
			ExecutionOrder: 70,
		},
		{
			Code:              "HGB-IP-001",
			Name:              "Zwischenergebniseliminierung",
			Description:       "Profits from intercompany deliveries must be eliminated from consolidated inventory.",
			Category:          CategoryIntercompanyProfit,
			Severity:          SeverityWarning,
			RuleType:          RuleTypeThreshold,
			ThresholdAbsolute: thresholdOf(1000),
			HGBReference:      "§ 304 HGB",
			ExecutionOrder:    80,
		},
		{
			Code:           "HGB-CT-001",
			Name:           "Währungsumrechnung",
			Description:    "Foreign subsidiary statements must be translated at the closing rate method.",
			Category:       CategoryCurrencyTranslation,
			Severity:       SeverityWarning,
			RuleType:       RuleTypeCustom,
			HGBReference:   "§ 308a HGB",
			ExecutionOrder: 90,
		},
		{
			Code:           "HGB-DT-001",
			Name:           "Latente Steuern",
			Description:    "Deferred taxes on consolidation adjustments must be recognized.",
			Category:       CategoryDeferredTaxes,
			Severity:       SeverityWarning,
			RuleType:       RuleTypeCustom,
			HGBReference:   "§ 306 HGB",
			ExecutionOrder: 100,
		},
		{
			Code:           "HGB-YY-001",
			Name:           "Vorjahresvergleich",
			Description:    "Material movements against the prior period require an explanation.",
			Category:       CategoryYearOverYear,
			Severity:       SeverityInfo,
			RuleType:       RuleTypeComparison,
			HGBReference:   "§ 265 Abs. 2 HGB",
			ExecutionOrder: 110,
		},
	}
}

// SeedDefaultRules inserts every catalog rule whose code is not present yet.
// Existing rules are never overwritten, so local edits survive reseeding.
func SeedDefaultRules(ctx context.Context) (int, error) {

	logger := config.GetLogger()
	created := 0

	for _, input := range DefaultRuleCatalog() {
		if err := utils.ValidateUnique[PlausibilityRule](ctx, "code", input.Code, 0); err != nil {
			continue
		}
		if _, err := CreateRule(ctx, input); err != nil {
			config.LogError(logger, "ruleCatalog.go", "SeedDefaultRules", "create "+input.Code, nil, err)
			return created, err
		}
		created++
	}

	logger.WithFields(logrus.Fields{
		"field":   "RuleCatalog",
		"created": created,
		"total":   len(DefaultRuleCatalog()),
	}).Info("default rule catalog seeded")
	return created, nil
}
