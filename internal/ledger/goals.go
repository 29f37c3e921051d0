package ledger

import (
	"github.com/shopspring/decimal"

	"piggybank/internal/core"
)

// ApplyGoalProgress returns g with amount added to its current amount,
// clamped to the target. Negative amounts count as zero so progress never
// goes backwards. No balance check is performed here; see CheckAffordable.
func ApplyGoalProgress(g core.Goal, amount decimal.Decimal) core.Goal {
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	next := g.CurrentAmount.Add(amount)
	if next.GreaterThan(g.TargetAmount) {
		next = g.TargetAmount
	}
	if next.LessThan(g.CurrentAmount) {
		next = g.CurrentAmount
	}
	g.CurrentAmount = next
	return g
}

// CheckAffordable rejects amounts that are not positive or exceed balance.
func CheckAffordable(balance, amount decimal.Decimal) error {
	if err := core.ValidateAmount(amount); err != nil {
		return err
	}
	if amount.GreaterThan(balance) {
		return core.Invalid("amount", core.ErrNotEnoughMoney)
	}
	return nil
}

// CanAfford reports whether a quick-add of amount fits in balance.
func CanAfford(balance, amount decimal.Decimal) bool {
	return CheckAffordable(balance, amount) == nil
}

// Progress derives percent, remaining and completion for g.
func Progress(g core.Goal) core.GoalProgress {
	remaining := g.TargetAmount.Sub(g.CurrentAmount)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return core.GoalProgress{
		Goal:      g,
		Percent:   ComputePercentage(g.CurrentAmount, g.TargetAmount),
		Remaining: remaining,
		Complete:  g.TargetAmount.IsPositive() && !g.CurrentAmount.LessThan(g.TargetAmount),
	}
}

// Summarize computes every derived value for one snapshot.
func Summarize(txs []core.Transaction, goals []core.Goal) core.Summary {
	totals := ComputeTotals(txs)
	incomeShare, expenseShare := ShareOfFlow(totals)
	progress := make([]core.GoalProgress, 0, len(goals))
	for _, g := range goals {
		progress = append(progress, Progress(g))
	}
	return core.Summary{
		Balance:      ComputeBalance(txs),
		Totals:       totals,
		IncomeShare:  incomeShare,
		ExpenseShare: expenseShare,
		ByCategory:   ComputeCategoryBreakdown(txs),
		Goals:        progress,
	}
}
