package core

import "github.com/shopspring/decimal"

// Totals holds the sums of income and expense transactions.
type Totals struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

// Net returns income minus expense.
func (t Totals) Net() decimal.Decimal {
	return t.Income.Sub(t.Expense)
}

// CategoryAmount is the expense sum of one category.
type CategoryAmount struct {
	Category Category        `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	Percent  decimal.Decimal `json:"percent_of_expense"`
}

// GoalProgress is a goal together with its derived progress values.
type GoalProgress struct {
	Goal
	Percent   decimal.Decimal `json:"percent"`
	Remaining decimal.Decimal `json:"remaining"`
	Complete  bool            `json:"complete"`
}

// Summary is everything the UI derives from one ledger snapshot.
type Summary struct {
	Balance      decimal.Decimal  `json:"balance"`
	Totals       Totals           `json:"totals"`
	IncomeShare  decimal.Decimal  `json:"income_share"`
	ExpenseShare decimal.Decimal  `json:"expense_share"`
	ByCategory   []CategoryAmount `json:"by_category"`
	Goals        []GoalProgress   `json:"goals"`
}
