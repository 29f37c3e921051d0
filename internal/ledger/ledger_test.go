package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piggybank/internal/core"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "expected %s, got %s", want, got)
}

func tx(typ core.TxType, amount string, cat core.Category) core.Transaction {
	return core.Transaction{Type: typ, Amount: d(amount), Category: cat, Description: "x"}
}

func TestComputeBalance(t *testing.T) {
	tests := []struct {
		name string
		txs  []core.Transaction
		want string
	}{
		{"empty", nil, "0"},
		{"income only", []core.Transaction{tx(core.Income, "10", core.Allowance)}, "10"},
		{"mixed", []core.Transaction{
			tx(core.Income, "100", core.Allowance),
			tx(core.Expense, "30", core.Toys),
			tx(core.Expense, "20", core.Candy),
		}, "50"},
		{"negative", []core.Transaction{tx(core.Expense, "4.25", core.Candy)}, "-4.25"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDec(t, tt.want, ComputeBalance(tt.txs))
		})
	}
}

func TestBalanceEqualsIncomeMinusExpense(t *testing.T) {
	txs := []core.Transaction{
		tx(core.Income, "12.10", core.Chores),
		tx(core.Expense, "0.35", core.Candy),
		tx(core.Income, "7.05", core.Gift),
		tx(core.Expense, "9.99", core.Games),
	}
	totals := ComputeTotals(txs)
	assert.True(t, ComputeBalance(txs).Equal(totals.Net()))

	reversed := make([]core.Transaction, len(txs))
	for i := range txs {
		reversed[len(txs)-1-i] = txs[i]
	}
	assert.True(t, ComputeBalance(reversed).Equal(ComputeBalance(txs)), "order must not matter")
}

func TestComputeTotalsEmpty(t *testing.T) {
	totals := ComputeTotals(nil)
	assertDec(t, "0", totals.Income)
	assertDec(t, "0", totals.Expense)
}

func TestComputeCategoryBreakdown(t *testing.T) {
	txs := []core.Transaction{
		tx(core.Income, "100", core.Allowance),
		tx(core.Expense, "20", core.Candy),
		tx(core.Expense, "30", core.Toys),
	}
	got := ComputeCategoryBreakdown(txs)
	require.Len(t, got, 2)
	assert.Equal(t, core.Toys, got[0].Category)
	assertDec(t, "30", got[0].Amount)
	assertDec(t, "60", got[0].Percent)
	assert.Equal(t, core.Candy, got[1].Category)
	assertDec(t, "20", got[1].Amount)
	assertDec(t, "40", got[1].Percent)
}

func TestComputeCategoryBreakdownMergesRepeatedCategory(t *testing.T) {
	txs := []core.Transaction{
		tx(core.Expense, "20", core.Toys),
		tx(core.Expense, "20", core.Candy),
		tx(core.Expense, "10", core.Toys),
	}
	got := ComputeCategoryBreakdown(txs)
	require.Len(t, got, 2)
	assert.Equal(t, core.Toys, got[0].Category)
	assertDec(t, "30", got[0].Amount)
	assertDec(t, "60", got[0].Percent)
	assert.Equal(t, core.Candy, got[1].Category)
	assertDec(t, "20", got[1].Amount)
	assertDec(t, "40", got[1].Percent)
}

func TestComputationsAreRepeatable(t *testing.T) {
	txs := []core.Transaction{
		tx(core.Income, "50", core.Allowance),
		tx(core.Expense, "12.34", core.Candy),
		tx(core.Income, "0.01", core.Gift),
	}
	snapshot := append([]core.Transaction(nil), txs...)

	firstBalance, secondBalance := ComputeBalance(txs), ComputeBalance(txs)
	assertDec(t, "37.67", firstBalance)
	assert.True(t, firstBalance.Equal(secondBalance))

	firstTotals, secondTotals := ComputeTotals(txs), ComputeTotals(txs)
	assertDec(t, "50.01", firstTotals.Income)
	assertDec(t, "12.34", firstTotals.Expense)
	assert.True(t, firstTotals.Income.Equal(secondTotals.Income))
	assert.True(t, firstTotals.Expense.Equal(secondTotals.Expense))

	assert.Equal(t, snapshot, txs, "inputs must not be modified")
}

func TestComputeCategoryBreakdownGroupsAndTies(t *testing.T) {
	txs := []core.Transaction{
		tx(core.Expense, "5", core.Books),
		tx(core.Expense, "2", core.Candy),
		tx(core.Expense, "3", core.Candy),
		tx(core.Expense, "1", core.Games),
	}
	got := ComputeCategoryBreakdown(txs)
	require.Len(t, got, 3)
	// Books and Candy both sum to 5: first appearance wins.
	assert.Equal(t, []core.Category{core.Books, core.Candy, core.Games},
		[]core.Category{got[0].Category, got[1].Category, got[2].Category})
	assertDec(t, "5", got[1].Amount)

	again := ComputeCategoryBreakdown(txs)
	assert.Equal(t, got, again, "breakdown must be deterministic")
}

func TestComputeCategoryBreakdownEmpty(t *testing.T) {
	assert.Empty(t, ComputeCategoryBreakdown(nil))
	assert.Empty(t, ComputeCategoryBreakdown([]core.Transaction{tx(core.Income, "3", core.Gift)}))
}

func TestComputePercentage(t *testing.T) {
	tests := []struct {
		part, whole, want string
	}{
		{"5", "0", "0"},
		{"0", "0", "0"},
		{"25", "100", "25"},
		{"1", "3", "33.33"},
		{"150", "100", "100"},
		{"-5", "100", "0"},
	}
	for _, tt := range tests {
		assertDec(t, tt.want, ComputePercentage(d(tt.part), d(tt.whole)).Round(2))
	}
}

func TestShareOfFlow(t *testing.T) {
	in, out := ShareOfFlow(core.Totals{Income: d("75"), Expense: d("25")})
	assertDec(t, "75", in)
	assertDec(t, "25", out)

	in, out = ShareOfFlow(core.Totals{Income: decimal.Zero, Expense: decimal.Zero})
	assertDec(t, "0", in)
	assertDec(t, "0", out)
}

func TestApplyGoalProgress(t *testing.T) {
	goal := core.Goal{ID: "g", Name: "Bike", TargetAmount: d("100"), CurrentAmount: d("90")}

	got := ApplyGoalProgress(goal, d("20"))
	assertDec(t, "100", got.CurrentAmount)
	assertDec(t, "90", goal.CurrentAmount) // input untouched

	got = ApplyGoalProgress(got, d("5"))
	assertDec(t, "100", got.CurrentAmount) // idempotent at target

	got = ApplyGoalProgress(goal, d("-50"))
	assertDec(t, "90", got.CurrentAmount)

	got = ApplyGoalProgress(goal, decimal.Zero)
	assertDec(t, "90", got.CurrentAmount)
}

func TestApplyGoalProgressMonotonicAndBounded(t *testing.T) {
	goal := core.Goal{Name: "Lego", TargetAmount: d("42.50"), CurrentAmount: decimal.Zero}
	for _, step := range []string{"0", "3.10", "10", "0.01", "100", "7"} {
		next := ApplyGoalProgress(goal, d(step))
		assert.False(t, next.CurrentAmount.LessThan(goal.CurrentAmount))
		assert.False(t, next.CurrentAmount.GreaterThan(next.TargetAmount))
		assert.NoError(t, next.Validate())
		goal = next
	}
	assertDec(t, "42.50", goal.CurrentAmount)
}

func TestCheckAffordable(t *testing.T) {
	assert.NoError(t, CheckAffordable(d("30"), d("30")))
	err := CheckAffordable(d("30"), d("50"))
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
	assert.True(t, errors.Is(err, core.ErrNotEnoughMoney))
	assert.True(t, errors.Is(CheckAffordable(d("30"), d("0")), core.ErrInvalidAmount))

	assert.True(t, CanAfford(d("10"), d("10")))
	assert.False(t, CanAfford(d("9.99"), d("10")))
}

func TestProgress(t *testing.T) {
	p := Progress(core.Goal{TargetAmount: d("80"), CurrentAmount: d("20")})
	assertDec(t, "25", p.Percent)
	assertDec(t, "60", p.Remaining)
	assert.False(t, p.Complete)

	p = Progress(core.Goal{TargetAmount: d("80"), CurrentAmount: d("80")})
	assertDec(t, "100", p.Percent)
	assertDec(t, "0", p.Remaining)
	assert.True(t, p.Complete)
}

func TestSummarize(t *testing.T) {
	txs := []core.Transaction{
		tx(core.Income, "100", core.Allowance),
		tx(core.Expense, "30", core.Toys),
		tx(core.Expense, "20", core.Candy),
	}
	goals := []core.Goal{{ID: "g1", Name: "Bike", TargetAmount: d("100"), CurrentAmount: d("50")}}
	s := Summarize(txs, goals)
	assertDec(t, "50", s.Balance)
	assertDec(t, "100", s.Totals.Income)
	assertDec(t, "50", s.Totals.Expense)
	assertDec(t, "66.67", s.IncomeShare.Round(2))
	require.Len(t, s.ByCategory, 2)
	require.Len(t, s.Goals, 1)
	assertDec(t, "50", s.Goals[0].Percent)

	empty := Summarize(nil, nil)
	assertDec(t, "0", empty.Balance)
	assert.Empty(t, empty.ByCategory)
	assert.Empty(t, empty.Goals)
}
