package models_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Attendry/Konzern-sub004/config"
	"github.com/Attendry/Konzern-sub004/models"
	"github.com/Attendry/Konzern-sub004/utils"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB gives each test its own in-memory sqlite database.
// cache=shared keeps the database alive across pooled connections.
func setupTestDB(t *testing.T) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	config.SetDB(db)
	models.MigrateTable()
	models.SetAuditRecorder(models.GormAuditRecorder{})
	t.Cleanup(func() {
		models.SetAuditRecorder(nil)
		config.SetDB(nil)
	})
}

func currentDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := config.GetDB()
	if db == nil {
		t.Fatal("db not initialized")
	}
	return db
}

func testContext() context.Context {
	ctx := utils.SetUserIdInContext(context.Background(), "tester")
	ctx = utils.SetUserNameInContext(ctx, "Tester")
	return utils.SetCorrelationIdInContext(ctx, "test-correlation")
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func newStatement(t *testing.T, ctx context.Context, name string, fiscalYear int) *models.FinancialStatement {
	t.Helper()
	statement, err := models.CreateFinancialStatement(ctx, &models.NewFinancialStatement{
		Name:        name,
		FiscalYear:  fiscalYear,
		PeriodStart: time.Date(fiscalYear, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(fiscalYear, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create statement %q: %v", name, err)
	}
	return statement
}

func newAccount(t *testing.T, ctx context.Context, number, name string, accountType models.AccountType, specialCode string) *models.Account {
	t.Helper()
	account, err := models.CreateAccount(ctx, &models.NewAccount{
		AccountNumber: number,
		Name:          name,
		AccountType:   accountType,
		SpecialCode:   specialCode,
	})
	if err != nil {
		t.Fatalf("create account %q: %v", number, err)
	}
	return account
}

func addBalance(t *testing.T, ctx context.Context, statementId, accountId, companyId int, balance string) {
	t.Helper()
	amount := mustDecimal(t, balance)
	_, err := models.CreateAccountBalance(ctx, &models.NewAccountBalance{
		StatementId: statementId,
		AccountId:   accountId,
		CompanyId:   companyId,
		Balance:     amount,
	})
	if err != nil {
		t.Fatalf("create balance for account %d: %v", accountId, err)
	}
}

// seedBalancedStatement creates a statement whose balance sheet closes exactly:
// assets 1000 = liabilities 400 + equity 500 + net income 100.
func seedBalancedStatement(t *testing.T, ctx context.Context, name string, fiscalYear int) *models.FinancialStatement {
	t.Helper()
	statement := newStatement(t, ctx, name, fiscalYear)
	asset := newAccount(t, ctx, "A-"+name, "Assets", models.AccountTypeAsset, "")
	liability := newAccount(t, ctx, "L-"+name, "Liabilities", models.AccountTypeLiability, "")
	equity := newAccount(t, ctx, "E-"+name, "Equity", models.AccountTypeEquity, "")
	revenue := newAccount(t, ctx, "R-"+name, "Revenue", models.AccountTypeRevenue, "")
	expense := newAccount(t, ctx, "X-"+name, "Expenses", models.AccountTypeExpense, "")

	addBalance(t, ctx, statement.ID, asset.ID, 1, "1000")
	addBalance(t, ctx, statement.ID, liability.ID, 1, "400")
	addBalance(t, ctx, statement.ID, equity.ID, 1, "500")
	addBalance(t, ctx, statement.ID, revenue.ID, 1, "300")
	addBalance(t, ctx, statement.ID, expense.ID, 1, "200")
	return statement
}

func newBalanceSheetRule(t *testing.T, ctx context.Context, code string, severity models.RuleSeverity, tolerance string) *models.PlausibilityRule {
	t.Helper()
	tol := mustDecimal(t, tolerance)
	rule, err := models.CreateRule(ctx, &models.NewPlausibilityRule{
		Code:            code,
		Name:            "Bilanzgleichung",
		Category:        models.CategoryBalanceSheetEquation,
		Severity:        severity,
		ToleranceAmount: &tol,
	})
	if err != nil {
		t.Fatalf("create rule %q: %v", code, err)
	}
	return rule
}
