package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piggybank/internal/core"
	"piggybank/internal/gateway/memory"
	applog "piggybank/internal/log"
)

func TestSeedThenSummary(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	logger := applog.New(applog.Config{Handler: slog.NewTextHandler(io.Discard, nil)})

	fx := memory.DemoFixture(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	txs, goals, err := seedLedger(ctx, store, "kid", fx)
	require.NoError(t, err)
	assert.Equal(t, len(fx.Transactions), txs)
	assert.Equal(t, len(fx.Goals), goals)

	stored, err := store.ListGoals(ctx, "kid")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.True(t, stored[0].CurrentAmount.Equal(decimal.NewFromInt(15)))

	var buf bytes.Buffer
	require.NoError(t, writeSummary(ctx, &buf, store, "kid", logger))

	var got struct {
		UserID           string          `json:"user_id"`
		Balance          decimal.Decimal `json:"balance"`
		TransactionCount int             `json:"transaction_count"`
		GoalCount        int             `json:"goal_count"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "kid", got.UserID)
	// 10 + 25 + 5 - 2.50 - 12 - 6.99
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("18.51")), "balance = %s", got.Balance)
	assert.Equal(t, 6, got.TransactionCount)
	assert.Equal(t, 2, got.GoalCount)
}

func TestSeedRejectsInvalidFixture(t *testing.T) {
	store := memory.New()
	fx := memory.Fixture{Transactions: []core.Transaction{
		{Type: core.Income, Amount: decimal.Zero, Category: core.Gift, Description: "nothing"},
	}}
	_, _, err := seedLedger(context.Background(), store, "kid", fx)
	assert.True(t, core.IsValidation(err))

	_, _, err = seedLedger(context.Background(), store, "", memory.Fixture{})
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}
