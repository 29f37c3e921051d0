package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"piggybank/internal/core"
	"piggybank/internal/gateway"
	"piggybank/internal/gateway/gatewaytest"
	"piggybank/internal/ledger"
)

func TestMemoryGatewayContract(t *testing.T) {
	gatewaytest.Run(t, func(t *testing.T) gateway.Gateway { return New() })
}

func TestEqualDatesListLatestInsertFirst(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New().WithClock(func() time.Time { return fixed })
	ctx := context.Background()
	for _, desc := range []string{"a", "b", "c"} {
		if _, err := s.InsertTransaction(ctx, "u", core.NewTransaction{
			Type: core.Income, Amount: decimal.NewFromInt(1), Category: core.Gift, Description: desc,
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	txs, _ := s.ListTransactions(ctx, "u")
	if len(txs) != 3 || txs[0].Description != "c" || txs[2].Description != "a" {
		t.Fatalf("unexpected order: %+v", txs)
	}
}

func TestInsertTransactionRejectsInvalid(t *testing.T) {
	s := New()
	_, err := s.InsertTransaction(context.Background(), "u", core.NewTransaction{
		Type: core.Expense, Amount: decimal.Zero, Category: core.Candy, Description: "gum",
	})
	if !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	txs, _ := s.ListTransactions(context.Background(), "u")
	if len(txs) != 0 {
		t.Fatalf("nothing should be stored, got %d", len(txs))
	}
}

func TestUpdateGoalAboveTargetRejected(t *testing.T) {
	s := New()
	ctx := context.Background()
	g, _ := s.InsertGoal(ctx, "u", "Kite", decimal.NewFromInt(10))
	if err := s.UpdateGoalCurrentAmount(ctx, "u", g.ID, decimal.NewFromInt(11)); !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewFromFileFallsBackToDemo(t *testing.T) {
	s, err := NewFromFile(filepath.Join(t.TempDir(), "missing.json"), "demo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	txs, _ := s.ListTransactions(context.Background(), "demo")
	goals, _ := s.ListGoals(context.Background(), "demo")
	if len(txs) == 0 || len(goals) == 0 {
		t.Fatalf("expected demo data, got %d txs %d goals", len(txs), len(goals))
	}
	if ledger.ComputeBalance(txs).IsNegative() {
		t.Fatalf("demo balance should not be negative")
	}
}

func TestNewFromFileSeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	body := `{
  "transactions": [
    {"date": "2025-01-02T10:00:00Z", "type": "Income", "amount": "20", "category": "Gift", "description": "from aunt"},
    {"date": "2025-01-03T10:00:00Z", "type": "Expense", "amount": "4.5", "category": "Candy", "description": "lollipops"}
  ],
  "goals": [{"name": "Skates", "target_amount": "60", "current_amount": "5"}]
}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	s, err := NewFromFile(path, "kid")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	txs, _ := s.ListTransactions(context.Background(), "kid")
	if len(txs) != 2 || txs[0].Description != "lollipops" {
		t.Fatalf("unexpected transactions: %+v", txs)
	}
	if got := ledger.ComputeBalance(txs); !got.Equal(decimal.RequireFromString("15.5")) {
		t.Fatalf("expected balance 15.5, got %s", got)
	}
}

func TestNewFromFileRejectsInvalidSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	body := `{"transactions": [{"type": "Income", "amount": "0", "category": "Gift", "description": "x"}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := NewFromFile(path, "kid"); err == nil {
		t.Fatalf("expected error for invalid seed")
	}
}
