package workflow

import (
	"context"
	"fmt"

	"github.com/Attendry/Konzern-sub004/config"
	"github.com/Attendry/Konzern-sub004/models"
	"github.com/sirupsen/logrus"
)

// ControlCycleInput drives one full control cycle for a statement.
// PriorStatementId 0 skips the variance analysis.
type ControlCycleInput struct {
	StatementId      int
	PriorStatementId int
	VarianceLevel    models.VarianceLevel
	Categories       []models.RuleCategory
}

type ControlCycleResult struct {
	CheckRun           *models.CheckRun         `json:"check_run"`
	VarianceCount      int                      `json:"variance_count"`
	CheckExceptions    *models.GenerationResult `json:"check_exceptions"`
	VarianceExceptions *models.GenerationResult `json:"variance_exceptions"`
	Summary            *models.CheckSummary     `json:"summary"`
}

// RunControlCycle runs checks, variance analysis and exception generation for
// one statement in order. Concurrent cycles for the same statement are
// serialized with a MySQL advisory lock.
func RunControlCycle(ctx context.Context, input *ControlCycleInput) (*ControlCycleResult, error) {

	db := config.GetDB()
	logger := config.GetLogger()

	if err := AcquireStatementControlLock(db, input.StatementId); err != nil {
		return nil, err
	}
	defer ReleaseStatementControlLock(db, input.StatementId)

	result := &ControlCycleResult{}

	run, err := models.RunAllChecks(ctx, input.StatementId, input.Categories...)
	if err != nil {
		return nil, fmt.Errorf("run checks: %w", err)
	}
	result.CheckRun = run

	if input.PriorStatementId > 0 {
		level := input.VarianceLevel
		if level == "" {
			level = models.VarianceLevelAccount
		}
		analyses, err := models.RunVarianceAnalysis(ctx, input.StatementId, input.PriorStatementId, level)
		if err != nil {
			return nil, fmt.Errorf("run variance analysis: %w", err)
		}
		result.VarianceCount = len(analyses)
	}

	checkExceptions, err := models.GenerateExceptionsFromChecks(ctx, input.StatementId)
	if err != nil {
		return nil, fmt.Errorf("generate exceptions from checks: %w", err)
	}
	result.CheckExceptions = checkExceptions

	if input.PriorStatementId > 0 {
		varianceExceptions, err := models.GenerateExceptionsFromVariances(ctx, input.StatementId)
		if err != nil {
			return nil, fmt.Errorf("generate exceptions from variances: %w", err)
		}
		result.VarianceExceptions = varianceExceptions
	}

	summary, err := models.GetCheckSummary(ctx, input.StatementId)
	if err != nil {
		return nil, fmt.Errorf("summarize checks: %w", err)
	}
	result.Summary = summary

	logger.WithFields(logrus.Fields{
		"field":        "ControlCycle",
		"statement_id": input.StatementId,
		"prior_id":     input.PriorStatementId,
		"run_id":       run.ID,
		"failed":       run.FailedCount,
		"warning":      run.WarningCount,
		"variances":    result.VarianceCount,
	}).Info("control cycle completed")

	return result, nil
}
