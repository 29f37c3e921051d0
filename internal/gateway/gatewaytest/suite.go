// Package gatewaytest holds behavior checks shared by every gateway.Gateway
// implementation.
package gatewaytest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piggybank/internal/core"
	"piggybank/internal/gateway"
)

// Run exercises gw against the gateway contract. newGateway must return an
// empty store for every call.
func Run(t *testing.T, newGateway func(t *testing.T) gateway.Gateway) {
	t.Run("transactions newest first", func(t *testing.T) {
		gw := newGateway(t)
		ctx := context.Background()
		first := insertTx(t, gw, "alice", core.Income, "10", core.Allowance, "first")
		time.Sleep(5 * time.Millisecond)
		second := insertTx(t, gw, "alice", core.Expense, "3", core.Candy, "second")

		txs, err := gw.ListTransactions(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, txs, 2)
		assert.Equal(t, second.ID, txs[0].ID)
		assert.Equal(t, first.ID, txs[1].ID)
		assert.True(t, txs[1].Amount.Equal(decimal.NewFromInt(10)))
		assert.Equal(t, core.Allowance, txs[1].Category)
		assert.Equal(t, "first", txs[1].Description)
		assert.False(t, txs[0].Date.IsZero())
	})

	t.Run("users are isolated", func(t *testing.T) {
		gw := newGateway(t)
		ctx := context.Background()
		insertTx(t, gw, "alice", core.Income, "10", core.Gift, "mine")
		_, err := gw.InsertGoal(ctx, "alice", "Bike", decimal.NewFromInt(50))
		require.NoError(t, err)

		txs, err := gw.ListTransactions(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, txs)
		goals, err := gw.ListGoals(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, goals)
	})

	t.Run("no user yields empty lists and rejects mutations", func(t *testing.T) {
		gw := newGateway(t)
		ctx := context.Background()
		txs, err := gw.ListTransactions(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, txs)
		goals, err := gw.ListGoals(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, goals)

		_, err = gw.InsertTransaction(ctx, "", core.NewTransaction{
			Type: core.Income, Amount: decimal.NewFromInt(1), Category: core.Gift, Description: "x",
		})
		assert.True(t, errors.Is(err, core.ErrUnauthenticated))
		_, err = gw.InsertGoal(ctx, "", "Bike", decimal.NewFromInt(5))
		assert.True(t, errors.Is(err, core.ErrUnauthenticated))
	})

	t.Run("delete transaction", func(t *testing.T) {
		gw := newGateway(t)
		ctx := context.Background()
		tx := insertTx(t, gw, "alice", core.Income, "10", core.Chores, "raking")

		require.NoError(t, gw.DeleteTransaction(ctx, "alice", tx.ID))
		txs, err := gw.ListTransactions(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, txs)

		err = gw.DeleteTransaction(ctx, "alice", tx.ID)
		assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)
	})

	t.Run("delete of another user's transaction is not found", func(t *testing.T) {
		gw := newGateway(t)
		tx := insertTx(t, gw, "alice", core.Income, "10", core.Chores, "raking")
		err := gw.DeleteTransaction(context.Background(), "bob", tx.ID)
		assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)
	})

	t.Run("goals in insertion order with zero progress", func(t *testing.T) {
		gw := newGateway(t)
		ctx := context.Background()
		a, err := gw.InsertGoal(ctx, "alice", "Bike", decimal.RequireFromString("120.50"))
		require.NoError(t, err)
		b, err := gw.InsertGoal(ctx, "alice", "Game", decimal.NewFromInt(40))
		require.NoError(t, err)
		assert.True(t, a.CurrentAmount.IsZero())

		goals, err := gw.ListGoals(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, goals, 2)
		assert.Equal(t, a.ID, goals[0].ID)
		assert.Equal(t, b.ID, goals[1].ID)
		assert.Equal(t, "Bike", goals[0].Name)
		assert.True(t, goals[0].TargetAmount.Equal(decimal.RequireFromString("120.5")))
	})

	t.Run("update goal current amount", func(t *testing.T) {
		gw := newGateway(t)
		ctx := context.Background()
		g, err := gw.InsertGoal(ctx, "alice", "Bike", decimal.NewFromInt(100))
		require.NoError(t, err)

		require.NoError(t, gw.UpdateGoalCurrentAmount(ctx, "alice", g.ID, decimal.RequireFromString("42.10")))
		goals, err := gw.ListGoals(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, goals, 1)
		assert.True(t, goals[0].CurrentAmount.Equal(decimal.RequireFromString("42.1")), "got %s", goals[0].CurrentAmount)

		err = gw.UpdateGoalCurrentAmount(ctx, "alice", "missing", decimal.NewFromInt(1))
		assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)
	})

	t.Run("delete goal", func(t *testing.T) {
		gw := newGateway(t)
		ctx := context.Background()
		g, err := gw.InsertGoal(ctx, "alice", "Bike", decimal.NewFromInt(100))
		require.NoError(t, err)
		require.NoError(t, gw.DeleteGoal(ctx, "alice", g.ID))
		goals, err := gw.ListGoals(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, goals)
		assert.True(t, errors.Is(gw.DeleteGoal(ctx, "alice", g.ID), core.ErrNotFound))
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, newGateway(t).Ping(context.Background()))
	})

	t.Run("accounts", func(t *testing.T) {
		accounts, ok := newGateway(t).(gateway.AccountStore)
		require.True(t, ok, "gateway must store accounts")
		ctx := context.Background()

		_, err := accounts.GetAccount(ctx, "kid@example.com")
		assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)

		require.NoError(t, accounts.CreateAccount(ctx, gateway.Account{
			UserID: "kid-id", Email: "kid@example.com", PasswordHash: "hash-1",
		}))
		got, err := accounts.GetAccount(ctx, "kid@example.com")
		require.NoError(t, err)
		assert.Equal(t, "kid-id", got.UserID)
		assert.Equal(t, "hash-1", got.PasswordHash)
		assert.False(t, got.CreatedAt.IsZero())

		err = accounts.CreateAccount(ctx, gateway.Account{
			UserID: "kid-id", Email: "kid@example.com", PasswordHash: "hash-2",
		})
		assert.True(t, errors.Is(err, core.ErrAccountExists), "got %v", err)
		got, err = accounts.GetAccount(ctx, "kid@example.com")
		require.NoError(t, err)
		assert.Equal(t, "hash-1", got.PasswordHash, "existing credentials must not be replaced")

		assert.True(t, errors.Is(accounts.CreateAccount(ctx, gateway.Account{Email: "x@example.com"}), core.ErrUnauthenticated))
	})
}

func insertTx(t *testing.T, gw gateway.Gateway, user string, typ core.TxType, amount string, cat core.Category, desc string) core.Transaction {
	t.Helper()
	tx, err := gw.InsertTransaction(context.Background(), user, core.NewTransaction{
		Type:        typ,
		Amount:      decimal.RequireFromString(amount),
		Category:    cat,
		Description: desc,
	})
	require.NoError(t, err)
	require.NotEmpty(t, tx.ID)
	return tx
}
