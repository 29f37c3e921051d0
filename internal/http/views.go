package http

import (
	"github.com/shopspring/decimal"

	"piggybank/internal/auth"
	"piggybank/internal/core"
	"piggybank/internal/ledger"
	"piggybank/internal/services"
)

// Quick-add amounts offered on every unfinished goal.
var (
	quickAddSmall = decimal.NewFromInt(5)
	quickAddLarge = decimal.NewFromInt(10)
)

type balanceView struct {
	Balance  decimal.Decimal
	Positive bool
	Message  string
}

type transactionsView struct {
	Transactions []core.Transaction
	Types        []core.TxType
	Categories   []core.Category
}

type goalView struct {
	core.GoalProgress
	CanAddSmall bool
	CanAddLarge bool
}

type goalsView struct {
	Goals         []goalView
	Balance       decimal.Decimal
	QuickAddSmall decimal.Decimal
	QuickAddLarge decimal.Decimal
}

type chartsView struct {
	Chart        Chart
	Totals       core.Totals
	IncomeShare  decimal.Decimal
	ExpenseShare decimal.Decimal
	Categories   []core.CategoryAmount
}

// HasFlow reports whether any money moved at all.
func (c chartsView) HasFlow() bool {
	return c.Totals.Income.IsPositive() || c.Totals.Expense.IsPositive()
}

type pageView struct {
	User         auth.User
	Tab          Tab
	Balance      balanceView
	Transactions transactionsView
	Goals        goalsView
	Charts       chartsView
}

type loginView struct {
	Email    string
	Register bool
	Error    string
}

func newBalanceView(sum core.Summary) balanceView {
	v := balanceView{Balance: sum.Balance, Positive: sum.Balance.IsPositive()}
	if v.Positive {
		v.Message = "Great job saving!"
	} else {
		v.Message = "Start adding some money!"
	}
	return v
}

func newTransactionsView(snap *services.Snapshot) transactionsView {
	return transactionsView{
		Transactions: snap.Transactions,
		Types:        []core.TxType{core.Income, core.Expense},
		Categories:   core.Categories,
	}
}

func newGoalsView(snap *services.Snapshot) goalsView {
	balance := snap.Summary.Balance
	goals := make([]goalView, 0, len(snap.Summary.Goals))
	for _, g := range snap.Summary.Goals {
		goals = append(goals, goalView{
			GoalProgress: g,
			CanAddSmall:  !g.Complete && ledger.CanAfford(balance, quickAddSmall),
			CanAddLarge:  !g.Complete && ledger.CanAfford(balance, quickAddLarge),
		})
	}
	return goalsView{
		Goals:         goals,
		Balance:       balance,
		QuickAddSmall: quickAddSmall,
		QuickAddLarge: quickAddLarge,
	}
}

func newChartsView(snap *services.Snapshot, chart Chart) chartsView {
	return chartsView{
		Chart:        chart,
		Totals:       snap.Summary.Totals,
		IncomeShare:  snap.Summary.IncomeShare,
		ExpenseShare: snap.Summary.ExpenseShare,
		Categories:   snap.Summary.ByCategory,
	}
}
