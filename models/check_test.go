package models_test

import (
	"testing"

	"github.com/Attendry/Konzern-sub004/models"
	"github.com/stretchr/testify/require"
)

func TestRunAllChecksBalancedStatementPasses(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()

	statement := seedBalancedStatement(t, ctx, "fy24", 2024)
	newBalanceSheetRule(t, ctx, "BS-1", models.SeverityError, "0.01")

	run, err := models.RunAllChecks(ctx, statement.ID)
	require.NoError(t, err)
	require.Equal(t, models.CheckRunStatusCompleted, run.Status)
	require.Equal(t, 1, run.TotalRules)
	require.Equal(t, 1, run.PassedCount)
	require.Equal(t, 0, run.FailedCount)
	require.NotNil(t, run.CompletedAt)

	checks, err := models.GetCheckResults(ctx, statement.ID, "")
	require.NoError(t, err)
	require.Len(t, checks, 1)
	require.Equal(t, models.CheckStatusPassed, checks[0].Status)
	require.True(t, checks[0].DifferenceValue.IsZero())
}

func TestRunAllChecksUnbalancedStatementFails(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()

	statement := seedBalancedStatement(t, ctx, "fy24", 2024)
	extra := newAccount(t, ctx, "A2-fy24", "More assets", models.AccountTypeAsset, "")
	addBalance(t, ctx, statement.ID, extra.ID, 1, "100")
	newBalanceSheetRule(t, ctx, "BS-1", models.SeverityError, "0.01")

	run, err := models.RunAllChecks(ctx, statement.ID)
	require.NoError(t, err)
	require.Equal(t, 1, run.FailedCount)

	checks, err := models.GetCheckResults(ctx, statement.ID, models.CheckStatusFailed)
	require.NoError(t, err)
	require.Len(t, checks, 1)

	check := checks[0]
	require.Equal(t, "BS-1", check.RuleCode)
	// expected = liabilities + equity + net income = 1000, actual assets = 1100
	require.True(t, check.ExpectedValue.Equal(mustDecimal(t, "1000")), "expected %s", check.ExpectedValue)
	require.True(t, check.ActualValue.Equal(mustDecimal(t, "1100")))
	require.True(t, check.DifferenceValue.Equal(mustDecimal(t, "100")))
	require.NotNil(t, check.DifferencePercent)
	require.True(t, check.DifferencePercent.Equal(mustDecimal(t, "10")), "difference percent %s", check.DifferencePercent)
}

func TestRunAllChecksToleranceBoundary(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()

	// A difference exactly at the tolerance passes; one cent above breaches.
	statement := seedBalancedStatement(t, ctx, "fy24", 2024)
	extra := newAccount(t, ctx, "A2-fy24", "Rounding", models.AccountTypeAsset, "")
	addBalance(t, ctx, statement.ID, extra.ID, 1, "0.01")
	newBalanceSheetRule(t, ctx, "BS-1", models.SeverityError, "0.01")

	run, err := models.RunAllChecks(ctx, statement.ID)
	require.NoError(t, err)
	require.Equal(t, 1, run.PassedCount)

	addBalance(t, ctx, statement.ID, extra.ID, 1, "0.01")
	run, err = models.RunAllChecks(ctx, statement.ID)
	require.NoError(t, err)
	require.Equal(t, 1, run.FailedCount)
}

func TestRunAllChecksWarningSeverity(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()

	statement := seedBalancedStatement(t, ctx, "fy24", 2024)
	extra := newAccount(t, ctx, "A2-fy24", "More assets", models.AccountTypeAsset, "")
	addBalance(t, ctx, statement.ID, extra.ID, 1, "50")
	newBalanceSheetRule(t, ctx, "BS-1", models.SeverityWarning, "0.01")

	run, err := models.RunAllChecks(ctx, statement.ID)
	require.NoError(t, err)
	require.Equal(t, 0, run.FailedCount)
	require.Equal(t, 1, run.WarningCount)
}

func TestRunAllChecksUnknownCategorySkipped(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()

	statement := seedBalancedStatement(t, ctx, "fy24", 2024)
	_, err := models.CreateRule(ctx, &models.NewPlausibilityRule{
		Code:     "DISC-1",
		Name:     "Anhangangaben",
		Category: models.CategoryDisclosure,
	})
	require.NoError(t, err)

	run, err := models.RunAllChecks(ctx, statement.ID)
	require.NoError(t, err)
	require.Equal(t, 1, run.SkippedCount)

	checks, err := models.GetCheckResults(ctx, statement.ID, models.CheckStatusSkipped)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	require.Contains(t, checks[0].Message, "no evaluator registered")
}

func TestRunAllChecksCategoryFilter(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()

	statement := seedBalancedStatement(t, ctx, "fy24", 2024)
	newBalanceSheetRule(t, ctx, "BS-1", models.SeverityError, "0.01")
	_, err := models.CreateRule(ctx, &models.NewPlausibilityRule{
		Code:     "IC-1",
		Name:     "Konzerninterne Salden",
		Category: models.CategoryIntercompanyBalances,
	})
	require.NoError(t, err)

	run, err := models.RunAllChecks(ctx, statement.ID, models.CategoryBalanceSheetEquation)
	require.NoError(t, err)
	require.Equal(t, 1, run.TotalRules)
	require.Equal(t, string(models.CategoryBalanceSheetEquation), run.CategoriesFiltered)
}

func TestIntercompanyChecks(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()

	statement := seedBalancedStatement(t, ctx, "fy24", 2024)
	db := currentDB(t)
	// receivables 500 vs payables 300: § 303 mismatch of 200
	require.NoError(t, db.Create(&models.IntercompanyTransaction{
		StatementId: statement.ID, FromCompanyId: 1, ToCompanyId: 2,
		Amount: mustDecimal(t, "500"), TransactionType: models.IntercompanyTypeReceivable,
	}).Error)
	require.NoError(t, db.Create(&models.IntercompanyTransaction{
		StatementId: statement.ID, FromCompanyId: 2, ToCompanyId: 1,
		Amount: mustDecimal(t, "300"), TransactionType: models.IntercompanyTypePayable,
	}).Error)

	_, err := models.CreateRule(ctx, &models.NewPlausibilityRule{
		Code:     "IC-1",
		Name:     "Konzerninterne Salden",
		Category: models.CategoryIntercompanyBalances,
	})
	require.NoError(t, err)

	run, err := models.RunAllChecks(ctx, statement.ID)
	require.NoError(t, err)
	require.Equal(t, 1, run.FailedCount)

	checks, err := models.GetCheckResults(ctx, statement.ID, models.CheckStatusFailed)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	require.True(t, checks[0].DifferenceValue.Equal(mustDecimal(t, "-200")))
}

func TestAcknowledgeAndWaiveCheck(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()

	statement := seedBalancedStatement(t, ctx, "fy24", 2024)
	extra := newAccount(t, ctx, "A2-fy24", "More assets", models.AccountTypeAsset, "")
	addBalance(t, ctx, statement.ID, extra.ID, 1, "100")
	newBalanceSheetRule(t, ctx, "BS-1", models.SeverityError, "0.01")

	_, err := models.RunAllChecks(ctx, statement.ID)
	require.NoError(t, err)
	checks, err := models.GetCheckResults(ctx, statement.ID, models.CheckStatusFailed)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	failed := checks[0]

	_, err = models.WaiveCheck(ctx, failed.ID, "")
	require.Error(t, err, "waiving without a reason must fail")

	acked, err := models.AcknowledgeCheck(ctx, failed.ID, "known difference, correction booked in January")
	require.NoError(t, err)
	require.Equal(t, models.CheckStatusAcknowledged, acked.Status)
	require.Equal(t, "tester", acked.AcknowledgedBy)

	// acknowledged checks are terminal for the review workflow
	_, err = models.WaiveCheck(ctx, failed.ID, "some reason")
	require.Error(t, err)
}

func TestGetCheckSummary(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()

	statement := seedBalancedStatement(t, ctx, "fy24", 2024)
	extra := newAccount(t, ctx, "A2-fy24", "More assets", models.AccountTypeAsset, "")
	addBalance(t, ctx, statement.ID, extra.ID, 1, "100")
	newBalanceSheetRule(t, ctx, "BS-1", models.SeverityError, "0.01")
	_, err := models.CreateRule(ctx, &models.NewPlausibilityRule{
		Code:     "DISC-1",
		Name:     "Anhangangaben",
		Category: models.CategoryDisclosure,
	})
	require.NoError(t, err)

	_, err = models.RunAllChecks(ctx, statement.ID)
	require.NoError(t, err)

	summary, err := models.GetCheckSummary(ctx, statement.ID)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Total)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 1, summary.Skipped)
	require.Len(t, summary.ByCategory, 2)
}
