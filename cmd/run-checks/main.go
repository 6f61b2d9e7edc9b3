// run-checks executes a full control cycle for one statement from the command
// line: plausibility checks, optional variance analysis against a prior
// statement, and exception generation.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//     go run ./cmd/run-checks -statement 12 [-prior 7] [-level account] [-export controls.xlsx]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/Attendry/Konzern-sub004/config"
	"github.com/Attendry/Konzern-sub004/models"
	"github.com/Attendry/Konzern-sub004/models/reports"
	"github.com/Attendry/Konzern-sub004/utils"
	"github.com/Attendry/Konzern-sub004/workflow"
	"github.com/google/uuid"
)

func main() {
	statementId := flag.Int("statement", 0, "statement id to check (required)")
	priorId := flag.Int("prior", 0, "prior statement id for variance analysis (optional)")
	level := flag.String("level", "account", "variance level: total, company or account")
	exportPath := flag.String("export", "", "write a controls workbook to this path (optional)")
	flag.Parse()

	if *statementId <= 0 {
		fmt.Fprintln(os.Stderr, "-statement is required")
		flag.Usage()
		os.Exit(2)
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	models.SetAuditRecorder(models.GormAuditRecorder{})

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, "cli")
	ctx = utils.SetUserNameInContext(ctx, "CLI")
	ctx = utils.SetCorrelationIdInContext(ctx, uuid.NewString())

	result, err := workflow.RunControlCycle(ctx, &workflow.ControlCycleInput{
		StatementId:      *statementId,
		PriorStatementId: *priorId,
		VarianceLevel:    models.VarianceLevel(*level),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "control cycle failed: %v\n", err)
		os.Exit(1)
	}

	run := result.CheckRun
	fmt.Printf("check run %d: %d rules, %d passed, %d failed, %d warning, %d skipped\n",
		run.ID, run.TotalRules, run.PassedCount, run.FailedCount, run.WarningCount, run.SkippedCount)
	if *priorId > 0 {
		fmt.Printf("variance rows: %d\n", result.VarianceCount)
	}
	if result.CheckExceptions != nil {
		fmt.Printf("exceptions from checks: %d created, %d existing\n",
			result.CheckExceptions.Created, result.CheckExceptions.AlreadyExists)
	}
	if result.VarianceExceptions != nil {
		fmt.Printf("exceptions from variances: %d created, %d existing\n",
			result.VarianceExceptions.Created, result.VarianceExceptions.AlreadyExists)
	}

	if *exportPath != "" {
		f, err := os.Create(*exportPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create %s: %v\n", *exportPath, err)
			os.Exit(1)
		}
		defer f.Close()
		if err := reports.ExportControlsReport(ctx, *statementId, f); err != nil {
			fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("workbook written to %s\n", *exportPath)
	}
}
