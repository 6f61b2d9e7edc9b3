package models_test

import (
	"testing"

	"github.com/Attendry/Konzern-sub004/models"
	"github.com/stretchr/testify/require"
)

func TestRuleCodeMustBeUnique(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()

	_, err := models.CreateRule(ctx, &models.NewPlausibilityRule{
		Code: "BS-1", Name: "Bilanzgleichung", Category: models.CategoryBalanceSheetEquation,
	})
	require.NoError(t, err)

	_, err = models.CreateRule(ctx, &models.NewPlausibilityRule{
		Code: "BS-1", Name: "Duplikat", Category: models.CategoryBalanceSheetEquation,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")
}

func TestGetActiveRulesOrdering(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()

	for _, r := range []struct {
		code  string
		order int
	}{
		{"THIRD", 30},
		{"FIRST", 10},
		{"SECOND", 20},
	} {
		_, err := models.CreateRule(ctx, &models.NewPlausibilityRule{
			Code:           r.code,
			Name:           r.code,
			Category:       models.CategoryOther,
			ExecutionOrder: r.order,
		})
		require.NoError(t, err)
	}

	rules, err := models.GetActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	require.Equal(t, "FIRST", rules[0].Code)
	require.Equal(t, "SECOND", rules[1].Code)
	require.Equal(t, "THIRD", rules[2].Code)
}

func TestSetRuleActiveHidesFromActiveRules(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()

	rule, err := models.CreateRule(ctx, &models.NewPlausibilityRule{
		Code: "BS-1", Name: "Bilanzgleichung", Category: models.CategoryBalanceSheetEquation,
	})
	require.NoError(t, err)

	_, err = models.SetRuleActive(ctx, rule.ID, false)
	require.NoError(t, err)

	rules, err := models.GetActiveRules(ctx)
	require.NoError(t, err)
	require.Empty(t, rules)
}

func TestDeleteMandatoryRuleRejected(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()

	mandatory, err := models.CreateRule(ctx, &models.NewPlausibilityRule{
		Code:        "BS-1",
		Name:        "Bilanzgleichung",
		Category:    models.CategoryBalanceSheetEquation,
		IsMandatory: true,
	})
	require.NoError(t, err)

	err = models.DeleteRule(ctx, mandatory.ID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "deactivate instead")

	optional, err := models.CreateRule(ctx, &models.NewPlausibilityRule{
		Code: "OPT-1", Name: "Optional", Category: models.CategoryOther,
	})
	require.NoError(t, err)
	require.NoError(t, models.DeleteRule(ctx, optional.ID))
}

func TestGetActiveRulesCategoryFilter(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()

	_, err := models.CreateRule(ctx, &models.NewPlausibilityRule{
		Code: "BS-1", Name: "Bilanzgleichung", Category: models.CategoryBalanceSheetEquation,
	})
	require.NoError(t, err)
	_, err = models.CreateRule(ctx, &models.NewPlausibilityRule{
		Code: "IC-1", Name: "IC", Category: models.CategoryIntercompanyBalances,
	})
	require.NoError(t, err)

	rules, err := models.GetActiveRules(ctx, models.CategoryIntercompanyBalances)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, "IC-1", rules[0].Code)
}

func TestSeedDefaultRulesIsIdempotent(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()

	created, err := models.SeedDefaultRules(ctx)
	require.NoError(t, err)
	require.Equal(t, len(models.DefaultRuleCatalog()), created)

	again, err := models.SeedDefaultRules(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, again)

	rules, err := models.GetActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, len(models.DefaultRuleCatalog()))
	// mandatory § 247 rule runs first
	require.Equal(t, "HGB-BS-001", rules[0].Code)
}
