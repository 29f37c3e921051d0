// Package ledger derives balances, totals, category breakdowns and goal
// progress from snapshots of transactions and goals. Every function is pure:
// inputs are never modified and the same input always yields the same output.
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"piggybank/internal/core"
)

var hundred = decimal.NewFromInt(100)

// ComputeBalance returns income minus expense over txs.
func ComputeBalance(txs []core.Transaction) decimal.Decimal {
	balance := decimal.Zero
	for _, t := range txs {
		balance = balance.Add(t.Signed())
	}
	return balance
}

// ComputeTotals sums income and expense separately.
func ComputeTotals(txs []core.Transaction) core.Totals {
	totals := core.Totals{Income: decimal.Zero, Expense: decimal.Zero}
	for _, t := range txs {
		switch t.Type {
		case core.Income:
			totals.Income = totals.Income.Add(t.Amount)
		case core.Expense:
			totals.Expense = totals.Expense.Add(t.Amount)
		}
	}
	return totals
}

// ComputeCategoryBreakdown groups expense transactions by category, ordered
// by descending sum. Categories with equal sums keep the order in which they
// first appear in txs. Income transactions are ignored.
func ComputeCategoryBreakdown(txs []core.Transaction) []core.CategoryAmount {
	index := make(map[core.Category]int)
	out := make([]core.CategoryAmount, 0)
	total := decimal.Zero
	for _, t := range txs {
		if t.Type != core.Expense {
			continue
		}
		total = total.Add(t.Amount)
		i, ok := index[t.Category]
		if !ok {
			i = len(out)
			index[t.Category] = i
			out = append(out, core.CategoryAmount{Category: t.Category, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(t.Amount)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Amount.GreaterThan(out[b].Amount)
	})
	for i := range out {
		out[i].Percent = ComputePercentage(out[i].Amount, total)
	}
	return out
}

// ComputePercentage returns part/whole*100 clamped to [0, 100], or 0 when
// whole is zero.
func ComputePercentage(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	p := part.Div(whole).Mul(hundred)
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}

// ShareOfFlow returns the income and expense shares of total money movement,
// as shown by the income vs expenses chart.
func ShareOfFlow(totals core.Totals) (income, expense decimal.Decimal) {
	flow := totals.Income.Add(totals.Expense)
	return ComputePercentage(totals.Income, flow), ComputePercentage(totals.Expense, flow)
}
