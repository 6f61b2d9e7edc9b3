package models_test

import (
	"testing"

	"github.com/Attendry/Konzern-sub004/models"
	"github.com/stretchr/testify/require"
)

func TestCalculateSuggestedMateriality(t *testing.T) {
	setupTestDB(t)

	suggestion, err := models.CalculateSuggestedMateriality(models.MaterialityBasisTotalAssets, mustDecimal(t, "10000000"))
	require.NoError(t, err)
	// 0.5% of total assets
	require.True(t, suggestion.PlanningThreshold.Equal(mustDecimal(t, "50000")), "planning %s", suggestion.PlanningThreshold)
	// performance 75%, trivial 5% of planning
	require.True(t, suggestion.PerformanceThreshold.Equal(mustDecimal(t, "37500")))
	require.True(t, suggestion.TrivialThreshold.Equal(mustDecimal(t, "2500")))

	suggestion, err = models.CalculateSuggestedMateriality(models.MaterialityBasisRevenue, mustDecimal(t, "10000000"))
	require.NoError(t, err)
	// 1% of revenue
	require.True(t, suggestion.PlanningThreshold.Equal(mustDecimal(t, "100000")))

	_, err = models.CalculateSuggestedMateriality(models.MaterialityBasisRevenue, mustDecimal(t, "0"))
	require.Error(t, err)
	_, err = models.CalculateSuggestedMateriality("ebitda", mustDecimal(t, "100"))
	require.Error(t, err)
}

func TestSetMaterialityThresholdsUpsert(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()
	statement := newStatement(t, ctx, "fy24", 2024)

	first, err := models.SetMaterialityThresholds(ctx, &models.NewMaterialityThresholds{
		StatementId:       statement.ID,
		BasisType:         models.MaterialityBasisRevenue,
		BasisAmount:       mustDecimal(t, "5000000"),
		PlanningThreshold: mustDecimal(t, "50000"),
	})
	require.NoError(t, err)

	approved, err := models.ApproveMaterialityThresholds(ctx, statement.ID)
	require.NoError(t, err)
	require.Equal(t, "tester", approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)

	_, err = models.ApproveMaterialityThresholds(ctx, statement.ID)
	require.Error(t, err, "approving twice must be rejected")

	// re-setting replaces in place and clears the approval
	second, err := models.SetMaterialityThresholds(ctx, &models.NewMaterialityThresholds{
		StatementId:       statement.ID,
		BasisType:         models.MaterialityBasisTotalAssets,
		BasisAmount:       mustDecimal(t, "8000000"),
		PlanningThreshold: mustDecimal(t, "40000"),
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Nil(t, second.ApprovedAt)
	require.Empty(t, second.ApprovedBy)

	stored, err := models.GetMaterialityThresholds(ctx, statement.ID)
	require.NoError(t, err)
	require.Equal(t, models.MaterialityBasisTotalAssets, stored.BasisType)
}

func TestSetMaterialityThresholdsUnknownStatement(t *testing.T) {
	setupTestDB(t)
	ctx := testContext()

	_, err := models.SetMaterialityThresholds(ctx, &models.NewMaterialityThresholds{
		StatementId: 999,
		BasisType:   models.MaterialityBasisRevenue,
		BasisAmount: mustDecimal(t, "100"),
	})
	require.Error(t, err)
}
