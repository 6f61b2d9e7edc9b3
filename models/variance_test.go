package models_test

import (
	"context"
	"testing"

	"github.com/Attendry/Konzern-sub004/models"
	"github.com/stretchr/testify/require"
)

// seedVarianceFixture builds two statements sharing one chart of accounts with
// thresholds planning=100, performance=50, trivial=10.
func seedVarianceFixture(t *testing.T, ctx context.Context) (current, prior *models.FinancialStatement) {
	t.Helper()

	prior = newStatement(t, ctx, "fy23", 2023)
	current = newStatement(t, ctx, "fy24", 2024)

	material := newAccount(t, ctx, "1000", "Umsatzerloese", models.AccountTypeRevenue, "")
	significant := newAccount(t, ctx, "2000", "Materialaufwand", models.AccountTypeExpense, "")
	minor := newAccount(t, ctx, "3000", "Sonstige Aufwendungen", models.AccountTypeExpense, "")
	immaterial := newAccount(t, ctx, "4000", "Zinsen", models.AccountTypeExpense, "")
	removed := newAccount(t, ctx, "5000", "Stillgelegt", models.AccountTypeAsset, "")

	addBalance(t, ctx, prior.ID, material.ID, 1, "1000")
	addBalance(t, ctx, current.ID, material.ID, 1, "1150") // +150 -> material

	addBalance(t, ctx, prior.ID, significant.ID, 1, "500")
	addBalance(t, ctx, current.ID, significant.ID, 1, "575") // +75 -> significant

	addBalance(t, ctx, prior.ID, minor.ID, 1, "200")
	addBalance(t, ctx, current.ID, minor.ID, 1, "220") // +20 -> minor

	addBalance(t, ctx, prior.ID, immaterial.ID, 1, "100")
	addBalance(t, ctx, current.ID, immaterial.ID, 1, "105") // +5 -> immaterial

	addBalance(t, ctx, prior.ID, removed.ID, 1, "80") // gone this year

	_, err := models.SetMaterialityThresholds(ctx, &models.NewMaterialityThresholds{
		StatementId:          current.ID,
		BasisType:            models.MaterialityBasisRevenue,
		BasisAmount:          mustDecimal(t, "10000"),
		PlanningThreshold:    mustDecimal(t, "100"),
		PerformanceThreshold: mustDecimal(t, "50"),
		TrivialThreshold:     mustDecimal(t, "10"),
	})
	require.NoError(t, err)
	return current, prior
}

func TestRunVarianceAnalysisClassification(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()
	current, prior := seedVarianceFixture(t, ctx)

	analyses, err := models.RunVarianceAnalysis(ctx, current.ID, prior.ID, models.VarianceLevelAccount)
	require.NoError(t, err)
	require.Len(t, analyses, 5)

	byKey := map[string]*models.VarianceAnalysis{}
	for _, a := range analyses {
		byKey[a.ComparisonKey] = a
	}

	require.Equal(t, models.SignificanceMaterial, byKey["1_1000"].Significance)
	require.True(t, *byKey["1_1000"].IsMaterial)
	require.True(t, byKey["1_1000"].AbsoluteVariance.Equal(mustDecimal(t, "150")))
	require.True(t, byKey["1_1000"].PercentageVariance.Equal(mustDecimal(t, "15")))

	require.Equal(t, models.SignificanceSignificant, byKey["1_2000"].Significance)
	require.Equal(t, models.SignificanceMinor, byKey["1_3000"].Significance)
	require.Equal(t, models.SignificanceImmaterial, byKey["1_4000"].Significance)

	// account only present in the prior period still shows up
	removed := byKey["1_5000"]
	require.NotNil(t, removed)
	require.True(t, removed.CurrentValue.IsZero())
	require.True(t, removed.AbsoluteVariance.Equal(mustDecimal(t, "-80")))
}

func TestRunVarianceAnalysisPriorZeroPercentage(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()

	prior := newStatement(t, ctx, "fy23", 2023)
	current := newStatement(t, ctx, "fy24", 2024)
	account := newAccount(t, ctx, "1000", "Neu", models.AccountTypeRevenue, "")
	addBalance(t, ctx, current.ID, account.ID, 1, "300")

	analyses, err := models.RunVarianceAnalysis(ctx, current.ID, prior.ID, models.VarianceLevelAccount)
	require.NoError(t, err)
	require.Len(t, analyses, 1)
	// prior value zero: percentage is pinned to 100
	require.True(t, analyses[0].PercentageVariance.Equal(mustDecimal(t, "100")))
}

func TestRunVarianceAnalysisIsIdempotent(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()
	current, prior := seedVarianceFixture(t, ctx)

	first, err := models.RunVarianceAnalysis(ctx, current.ID, prior.ID, models.VarianceLevelAccount)
	require.NoError(t, err)
	second, err := models.RunVarianceAnalysis(ctx, current.ID, prior.ID, models.VarianceLevelAccount)
	require.NoError(t, err)
	require.Equal(t, len(first), len(second))

	stored, err := models.GetVarianceAnalyses(ctx, current.ID, false, false)
	require.NoError(t, err)
	require.Len(t, stored, len(first), "rerunning must replace, not append")
}

func TestRunVarianceAnalysisMissingThresholdsFailOpen(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()

	prior := newStatement(t, ctx, "fy23", 2023)
	current := newStatement(t, ctx, "fy24", 2024)
	account := newAccount(t, ctx, "1000", "Umsatzerloese", models.AccountTypeRevenue, "")
	addBalance(t, ctx, prior.ID, account.ID, 1, "1000")
	addBalance(t, ctx, current.ID, account.ID, 1, "1001")

	analyses, err := models.RunVarianceAnalysis(ctx, current.ID, prior.ID, models.VarianceLevelAccount)
	require.NoError(t, err)
	require.Len(t, analyses, 1)
	// zero thresholds classify every nonzero variance as material
	require.Equal(t, models.SignificanceMaterial, analyses[0].Significance)
}

func TestVarianceTotalLevel(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()
	current, prior := seedVarianceFixture(t, ctx)

	analyses, err := models.RunVarianceAnalysis(ctx, current.ID, prior.ID, models.VarianceLevelTotal)
	require.NoError(t, err)
	require.Len(t, analyses, 1)
	require.Equal(t, "total", analyses[0].ComparisonKey)
	// 2050 current vs 1880 prior
	require.True(t, analyses[0].AbsoluteVariance.Equal(mustDecimal(t, "170")))
}

func TestExplainAndSummarizeVariances(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()
	current, prior := seedVarianceFixture(t, ctx)

	_, err := models.RunVarianceAnalysis(ctx, current.ID, prior.ID, models.VarianceLevelAccount)
	require.NoError(t, err)

	material, err := models.GetVarianceAnalyses(ctx, current.ID, true, false)
	require.NoError(t, err)
	require.Len(t, material, 1)

	_, err = models.ExplainVariance(ctx, material[0].ID, "", "volume")
	require.Error(t, err, "empty explanation must be rejected")

	explained, err := models.ExplainVariance(ctx, material[0].ID, "new key account won in Q2", "volume")
	require.NoError(t, err)
	require.Equal(t, "tester", explained.ExplainedBy)
	require.NotNil(t, explained.ExplainedAt)

	summary, err := models.GetVarianceSummary(ctx, current.ID)
	require.NoError(t, err)
	require.Equal(t, 5, summary.Total)
	require.Equal(t, 1, summary.Material)
	require.Equal(t, 1, summary.Explained)
	require.Equal(t, 4, summary.Unexplained)
	require.Equal(t, 0, summary.OpenMaterial)
}
