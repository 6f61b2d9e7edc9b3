package models

import (
	"context"
	"errors"
	"time"

	"github.com/Attendry/Konzern-sub004/config"
	"github.com/Attendry/Konzern-sub004/utils"
	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// Special codes mark accounts the check evaluators need to find without
// guessing from names: GW = goodwill, MI = minority interest.
const (
	AccountCodeGoodwill         = "GW"
	AccountCodeMinorityInterest = "MI"
)

type Account struct {
	ID            int         `gorm:"primary_key" json:"id"`
	AccountNumber string      `gorm:"size:20;not null;uniqueIndex" json:"account_number" binding:"required"`
	Name          string      `gorm:"size:255;not null" json:"name" binding:"required"`
	AccountType   AccountType `gorm:"size:10;not null;index" json:"account_type" binding:"required"`
	SpecialCode   string      `gorm:"size:3;index" json:"special_code"`
	IsActive      *bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAccount struct {
	AccountNumber string      `json:"account_number" binding:"required"`
	Name          string      `json:"name" binding:"required"`
	AccountType   AccountType `json:"account_type" binding:"required"`
	SpecialCode   string      `json:"special_code"`
}

func CreateAccount(ctx context.Context, input *NewAccount) (*Account, error) {

	if err := utils.ValidateUnique[Account](ctx, "account_number", input.AccountNumber, 0); err != nil {
		return nil, err
	}

	account := Account{
		AccountNumber: input.AccountNumber,
		Name:          input.Name,
		AccountType:   input.AccountType,
		SpecialCode:   input.SpecialCode,
		IsActive:      utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// AccountBalance is the imported trial-balance line for one account of one
// company within a statement. Produced by the import pipeline; read-only here.
type AccountBalance struct {
	ID             int             `gorm:"primary_key" json:"id"`
	StatementId    int             `gorm:"not null;index" json:"statement_id"`
	AccountId      int             `gorm:"not null;index" json:"account_id"`
	CompanyId      int             `gorm:"not null;index" json:"company_id"`
	Debit          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"debit"`
	Credit         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"credit"`
	Balance        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	IsIntercompany *bool           `gorm:"not null;default:false" json:"is_intercompany"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type IntercompanyTransactionType string

const (
	IntercompanyTypeReceivable IntercompanyTransactionType = "receivable"
	IntercompanyTypePayable    IntercompanyTransactionType = "payable"
	IntercompanyTypeRevenue    IntercompanyTransactionType = "revenue"
	IntercompanyTypeExpense    IntercompanyTransactionType = "expense"
)

type IntercompanyTransaction struct {
	ID              int                         `gorm:"primary_key" json:"id"`
	StatementId     int                         `gorm:"not null;index" json:"statement_id"`
	FromCompanyId   int                         `gorm:"not null;index" json:"from_company_id"`
	ToCompanyId     int                         `gorm:"not null;index" json:"to_company_id"`
	Amount          decimal.Decimal             `gorm:"type:decimal(20,4);not null" json:"amount"`
	TransactionType IntercompanyTransactionType `gorm:"size:12;not null;index" json:"transaction_type"`
	Description     string                      `gorm:"type:text" json:"description"`
	CreatedAt       time.Time                   `gorm:"autoCreateTime" json:"created_at"`
}

// IntercompanyReconciliation records the agreed/unagreed state of one
// counterparty pair within a statement.
type IntercompanyReconciliation struct {
	ID               int             `gorm:"primary_key" json:"id"`
	StatementId      int             `gorm:"not null;index" json:"statement_id"`
	FromCompanyId    int             `gorm:"not null" json:"from_company_id"`
	ToCompanyId      int             `gorm:"not null" json:"to_company_id"`
	IsReconciled     *bool           `gorm:"not null;default:false" json:"is_reconciled"`
	DifferenceAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"difference_amount"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAccountBalance struct {
	StatementId    int             `json:"statement_id" binding:"required"`
	AccountId      int             `json:"account_id" binding:"required"`
	CompanyId      int             `json:"company_id" binding:"required"`
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`
	Balance        decimal.Decimal `json:"balance"`
	IsIntercompany bool            `json:"is_intercompany"`
}

func CreateAccountBalance(ctx context.Context, input *NewAccountBalance) (*AccountBalance, error) {

	if err := utils.ValidateResourceId[FinancialStatement](ctx, input.StatementId); err != nil {
		return nil, errors.New("statement not found")
	}
	if err := utils.ValidateResourceId[Account](ctx, input.AccountId); err != nil {
		return nil, errors.New("account not found")
	}

	balance := AccountBalance{
		StatementId:    input.StatementId,
		AccountId:      input.AccountId,
		CompanyId:      input.CompanyId,
		Debit:          input.Debit,
		Credit:         input.Credit,
		Balance:        input.Balance,
		IsIntercompany: &input.IsIntercompany,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&balance).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

func GetAccountBalances(ctx context.Context, statementId int) ([]*AccountBalance, error) {
	return utils.FetchStatementModels[AccountBalance](ctx, statementId)
}
