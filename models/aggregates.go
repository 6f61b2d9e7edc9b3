package models

import (
	"context"

	"github.com/Attendry/Konzern-sub004/config"
	"github.com/shopspring/decimal"
)

// BalanceSheetAggregate is one snapshot of the statement's totals.
// Computed once per check run, never per rule.
type BalanceSheetAggregate struct {
	TotalAssets      decimal.Decimal
	TotalLiabilities decimal.Decimal
	TotalEquity      decimal.Decimal
	TotalRevenue     decimal.Decimal
	TotalExpenses    decimal.Decimal
	NetIncome        decimal.Decimal
	// LiabilitiesAndEquity includes the current-year result
	// (Jahresueberschuss) since it sits in P&L accounts until closing.
	LiabilitiesAndEquity decimal.Decimal

	GoodwillBalance         decimal.Decimal
	MinorityInterestBalance decimal.Decimal

	// EquityByCompany feeds the minority interest check.
	EquityByCompany map[int]decimal.Decimal

	AccountCount int
}

// ConsolidationAggregate summarizes intercompany data of a statement.
type ConsolidationAggregate struct {
	ICReceivables decimal.Decimal
	ICPayables    decimal.Decimal
	ICRevenue     decimal.Decimal
	ICExpenses    decimal.Decimal

	UnreconciledPairs      int
	UnreconciledDifference decimal.Decimal

	TransactionCount int
}

// ComputeBalanceSheetAggregate sums all account balances of a statement in a
// single pass. Balances carry the natural sign of their side: assets and
// expenses as positive debit balances, liabilities/equity/revenue as positive
// credit balances.
func ComputeBalanceSheetAggregate(ctx context.Context, statementId int) (*BalanceSheetAggregate, error) {

	db := config.GetDB()

	var balances []*AccountBalance
	if err := db.WithContext(ctx).Where("statement_id = ?", statementId).Find(&balances).Error; err != nil {
		return nil, err
	}

	var accounts []*Account
	if err := db.WithContext(ctx).Find(&accounts).Error; err != nil {
		return nil, err
	}
	accountById := make(map[int]*Account, len(accounts))
	for _, a := range accounts {
		accountById[a.ID] = a
	}

	agg := &BalanceSheetAggregate{
		EquityByCompany: make(map[int]decimal.Decimal),
		AccountCount:    len(balances),
	}

	for _, b := range balances {
		account := accountById[b.AccountId]
		if account == nil {
			continue
		}
		switch account.AccountType {
		case AccountTypeAsset:
			agg.TotalAssets = agg.TotalAssets.Add(b.Balance)
		case AccountTypeLiability:
			agg.TotalLiabilities = agg.TotalLiabilities.Add(b.Balance)
		case AccountTypeEquity:
			agg.TotalEquity = agg.TotalEquity.Add(b.Balance)
			agg.EquityByCompany[b.CompanyId] = agg.EquityByCompany[b.CompanyId].Add(b.Balance)
		case AccountTypeRevenue:
			agg.TotalRevenue = agg.TotalRevenue.Add(b.Balance)
		case AccountTypeExpense:
			agg.TotalExpenses = agg.TotalExpenses.Add(b.Balance)
		}
		switch account.SpecialCode {
		case AccountCodeGoodwill:
			agg.GoodwillBalance = agg.GoodwillBalance.Add(b.Balance)
		case AccountCodeMinorityInterest:
			agg.MinorityInterestBalance = agg.MinorityInterestBalance.Add(b.Balance)
		}
	}

	agg.NetIncome = agg.TotalRevenue.Sub(agg.TotalExpenses)
	agg.LiabilitiesAndEquity = agg.TotalLiabilities.Add(agg.TotalEquity).Add(agg.NetIncome)
	return agg, nil
}

// ComputeConsolidationAggregate sums intercompany transactions and
// reconciliation state of a statement in a single pass.
func ComputeConsolidationAggregate(ctx context.Context, statementId int) (*ConsolidationAggregate, error) {

	db := config.GetDB()

	var transactions []*IntercompanyTransaction
	if err := db.WithContext(ctx).Where("statement_id = ?", statementId).Find(&transactions).Error; err != nil {
		return nil, err
	}

	agg := &ConsolidationAggregate{TransactionCount: len(transactions)}

	for _, tx := range transactions {
		switch tx.TransactionType {
		case IntercompanyTypeReceivable:
			agg.ICReceivables = agg.ICReceivables.Add(tx.Amount)
		case IntercompanyTypePayable:
			agg.ICPayables = agg.ICPayables.Add(tx.Amount)
		case IntercompanyTypeRevenue:
			agg.ICRevenue = agg.ICRevenue.Add(tx.Amount)
		case IntercompanyTypeExpense:
			agg.ICExpenses = agg.ICExpenses.Add(tx.Amount)
		}
	}

	var reconciliations []*IntercompanyReconciliation
	if err := db.WithContext(ctx).Where("statement_id = ?", statementId).Find(&reconciliations).Error; err != nil {
		return nil, err
	}

	for _, rec := range reconciliations {
		if rec.IsReconciled != nil && *rec.IsReconciled {
			continue
		}
		agg.UnreconciledPairs++
		agg.UnreconciledDifference = agg.UnreconciledDifference.Add(rec.DifferenceAmount.Abs())
	}

	return agg, nil
}
