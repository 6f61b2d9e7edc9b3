package models_test

import (
	"context"
	"testing"
	"time"

	"github.com/Attendry/Konzern-sub004/models"
	"github.com/stretchr/testify/require"
)

func newOpenException(t *testing.T, ctx context.Context, statementId int, title string) *models.ExceptionReport {
	t.Helper()
	exception, err := models.CreateException(ctx, &models.NewExceptionReport{
		StatementId:  statementId,
		Title:        title,
		ImpactAmount: mustDecimal(t, "100"),
	})
	require.NoError(t, err)
	return exception
}

func TestCreateExceptionDefaults(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()
	statement := newStatement(t, ctx, "fy24", 2024)

	exception := newOpenException(t, ctx, statement.ID, "Differenz Schuldenkonsolidierung")
	require.Equal(t, models.ExceptionStatusOpen, exception.Status)
	require.Equal(t, models.PriorityMedium, exception.Priority)
	require.Equal(t, models.SourceTypeManual, exception.SourceType)
	require.Equal(t, "tester", exception.CreatedBy)

	actions, err := exception.Actions()
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, "created", actions[0].Action)
}

func TestExceptionLifecycle(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()
	statement := newStatement(t, ctx, "fy24", 2024)
	exception := newOpenException(t, ctx, statement.ID, "IC-Differenz")

	assigned, err := models.AssignException(ctx, exception.ID, "m.schmidt")
	require.NoError(t, err)
	require.Equal(t, models.ExceptionStatusInReview, assigned.Status)
	require.Equal(t, "m.schmidt", assigned.AssignedTo)
	require.NotNil(t, assigned.AssignedAt)

	resolved, err := models.ResolveException(ctx, exception.ID, "Korrekturbuchung KB-17 erfasst", models.ResolutionCorrection)
	require.NoError(t, err)
	require.Equal(t, models.ExceptionStatusResolved, resolved.Status)
	require.Equal(t, models.ResolutionCorrection, resolved.ResolutionType)
	require.Equal(t, "tester", resolved.ResolvedBy)

	closed, err := models.CloseException(ctx, exception.ID)
	require.NoError(t, err)
	require.Equal(t, models.ExceptionStatusClosed, closed.Status)

	actions, err := closed.Actions()
	require.NoError(t, err)
	require.Len(t, actions, 4) // created, assigned, resolved, closed
	require.Equal(t, models.ExceptionStatusResolved, actions[3].OldStatus)
	require.Equal(t, models.ExceptionStatusClosed, actions[3].NewStatus)
}

func TestCloseExceptionGuard(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()
	statement := newStatement(t, ctx, "fy24", 2024)
	exception := newOpenException(t, ctx, statement.ID, "Offene Differenz")

	_, err := models.CloseException(ctx, exception.ID)
	require.Error(t, err, "closing an open exception must be rejected")
	require.Contains(t, err.Error(), "only resolved or waived")

	// the rejected close must not leave a log entry behind
	fresh, err := models.GetException(ctx, exception.ID)
	require.NoError(t, err)
	require.Equal(t, models.ExceptionStatusOpen, fresh.Status)
	actions, err := fresh.Actions()
	require.NoError(t, err)
	require.Len(t, actions, 1)

	waived, err := models.WaiveException(ctx, exception.ID, "below trivial threshold")
	require.NoError(t, err)
	require.Equal(t, models.ResolutionWaiver, waived.ResolutionType)

	closed, err := models.CloseException(ctx, exception.ID)
	require.NoError(t, err)
	require.Equal(t, models.ExceptionStatusClosed, closed.Status)
}

func TestReopenExceptionClearsResolution(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()
	statement := newStatement(t, ctx, "fy24", 2024)
	exception := newOpenException(t, ctx, statement.ID, "Wiedereröffnung")

	_, err := models.ResolveException(ctx, exception.ID, "vermeintlich erledigt", models.ResolutionExplanation)
	require.NoError(t, err)

	reopened, err := models.ReopenException(ctx, exception.ID, "correction was incomplete")
	require.NoError(t, err)
	require.Equal(t, models.ExceptionStatusOpen, reopened.Status)
	require.Empty(t, reopened.Resolution)
	require.Empty(t, reopened.ResolvedBy)
	require.Nil(t, reopened.ResolvedAt)

	actions, err := reopened.Actions()
	require.NoError(t, err)
	require.Len(t, actions, 3) // created, resolved, reopened
	require.Equal(t, "reopened", actions[2].Action)
}

func TestUpdateExceptionPriorityKeepsStatus(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()
	statement := newStatement(t, ctx, "fy24", 2024)
	exception := newOpenException(t, ctx, statement.ID, "Priorisierung")

	updated, err := models.UpdateExceptionPriority(ctx, exception.ID, models.PriorityCritical)
	require.NoError(t, err)
	require.Equal(t, models.PriorityCritical, updated.Priority)
	require.Equal(t, models.ExceptionStatusOpen, updated.Status)

	actions, err := updated.Actions()
	require.NoError(t, err)
	require.Len(t, actions, 2)
	require.Equal(t, "priority_updated", actions[1].Action)
	require.Empty(t, actions[1].OldStatus)

	_, err = models.UpdateExceptionPriority(ctx, exception.ID, "urgent")
	require.Error(t, err)
}

func TestGenerateExceptionsFromChecksDedup(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()

	statement := seedBalancedStatement(t, ctx, "fy24", 2024)
	extra := newAccount(t, ctx, "A2-fy24", "More assets", models.AccountTypeAsset, "")
	addBalance(t, ctx, statement.ID, extra.ID, 1, "100")
	newBalanceSheetRule(t, ctx, "BS-1", models.SeverityError, "0.01")

	_, err := models.RunAllChecks(ctx, statement.ID)
	require.NoError(t, err)

	first, err := models.GenerateExceptionsFromChecks(ctx, statement.ID)
	require.NoError(t, err)
	require.Equal(t, 1, first.Created)
	require.Equal(t, 0, first.AlreadyExists)
	require.Equal(t, models.PriorityHigh, first.Exceptions[0].Priority)
	require.Equal(t, models.SourceTypePlausibilityCheck, first.Exceptions[0].SourceType)

	second, err := models.GenerateExceptionsFromChecks(ctx, statement.ID)
	require.NoError(t, err)
	require.Equal(t, 0, second.Created)
	require.Equal(t, 1, second.AlreadyExists)

	// direct creation also refuses a duplicate
	checks, err := models.GetCheckResults(ctx, statement.ID, models.CheckStatusFailed)
	require.NoError(t, err)
	_, err = models.CreateExceptionFromCheck(ctx, checks[0].ID)
	require.Error(t, err)
}

func TestGenerateExceptionsFromVariances(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()
	current, prior := seedVarianceFixture(t, ctx)

	_, err := models.RunVarianceAnalysis(ctx, current.ID, prior.ID, models.VarianceLevelAccount)
	require.NoError(t, err)

	result, err := models.GenerateExceptionsFromVariances(ctx, current.ID)
	require.NoError(t, err)
	require.Equal(t, 1, result.Created, "only the material unexplained variance becomes an exception")
	require.Equal(t, models.SourceTypeVariance, result.Exceptions[0].SourceType)

	// explained material variances are not picked up again
	material, err := models.GetVarianceAnalyses(ctx, current.ID, true, false)
	require.NoError(t, err)
	_, err = models.ExplainVariance(ctx, material[0].ID, "price increase per contract amendment", "price")
	require.NoError(t, err)

	again, err := models.GenerateExceptionsFromVariances(ctx, current.ID)
	require.NoError(t, err)
	require.Equal(t, 0, again.Created)
}

func TestGetExceptionSummary(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()
	statement := newStatement(t, ctx, "fy24", 2024)

	overdue := time.Now().UTC().Add(-48 * time.Hour)
	_, err := models.CreateException(ctx, &models.NewExceptionReport{
		StatementId:  statement.ID,
		Title:        "Überfällige Differenz",
		Priority:     models.PriorityHigh,
		Category:     string(models.CategoryDebtConsolidation),
		ImpactAmount: mustDecimal(t, "250"),
		DueDate:      &overdue,
	})
	require.NoError(t, err)

	second := newOpenException(t, ctx, statement.ID, "Zweite Differenz")
	_, err = models.AssignException(ctx, second.ID, "m.schmidt")
	require.NoError(t, err)

	third := newOpenException(t, ctx, statement.ID, "Dritte Differenz")
	_, err = models.WaiveException(ctx, third.ID, "immaterial")
	require.NoError(t, err)

	summary, err := models.GetExceptionSummary(ctx, statement.ID)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Total)
	require.Equal(t, 2, summary.Open)
	require.Equal(t, 1, summary.OverdueCount)
	require.True(t, summary.TotalImpact.Equal(mustDecimal(t, "450")))

	// priorities ordered critical, high, medium, low
	require.Equal(t, models.PriorityHigh, summary.ByPriority[0].Priority)
	require.Equal(t, 1, summary.ByPriority[0].Count)
	require.Equal(t, models.PriorityMedium, summary.ByPriority[1].Priority)
	require.Equal(t, 2, summary.ByPriority[1].Count)
}
