package reports_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Attendry/Konzern-sub004/config"
	"github.com/Attendry/Konzern-sub004/models"
	"github.com/Attendry/Konzern-sub004/models/reports"
	"github.com/Attendry/Konzern-sub004/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupExportFixture(t *testing.T) (context.Context, int) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	config.SetDB(db)
	models.MigrateTable()
	t.Cleanup(func() { config.SetDB(nil) })

	ctx := utils.SetUserIdInContext(context.Background(), "tester")

	statement, err := models.CreateFinancialStatement(ctx, &models.NewFinancialStatement{
		Name:       "Konzernabschluss 2024",
		FiscalYear: 2024,
	})
	require.NoError(t, err)

	asset, err := models.CreateAccount(ctx, &models.NewAccount{
		AccountNumber: "0100", Name: "Anlagevermögen", AccountType: models.AccountTypeAsset,
	})
	require.NoError(t, err)
	_, err = models.CreateAccountBalance(ctx, &models.NewAccountBalance{
		StatementId: statement.ID, AccountId: asset.ID, CompanyId: 1,
		Balance: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	_, err = models.CreateRule(ctx, &models.NewPlausibilityRule{
		Code: "BS-1", Name: "Bilanzgleichung", Category: models.CategoryBalanceSheetEquation,
	})
	require.NoError(t, err)
	_, err = models.RunAllChecks(ctx, statement.ID)
	require.NoError(t, err)

	return ctx, statement.ID
}

func TestBuildControlsWorkbook(t *testing.T) {
	ctx, statementId := setupExportFixture(t)

	f, err := reports.BuildControlsWorkbook(ctx, statementId)
	require.NoError(t, err)
	defer f.Close()

	require.ElementsMatch(t, []string{"Checks", "Variances", "Exceptions"}, f.GetSheetList())

	code, err := f.GetCellValue("Checks", "A2")
	require.NoError(t, err)
	require.Equal(t, "BS-1", code)

	status, err := f.GetCellValue("Checks", "F2")
	require.NoError(t, err)
	require.Equal(t, "failed", status)
}

func TestExportControlsReportEmptyStatement(t *testing.T) {
	ctx, _ := setupExportFixture(t)

	empty, err := models.CreateFinancialStatement(ctx, &models.NewFinancialStatement{
		Name:       "Leerer Abschluss",
		FiscalYear: 2024,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	err = reports.ExportControlsReport(ctx, empty.ID, &buf)
	require.Error(t, err)
	require.Zero(t, buf.Len())
}
