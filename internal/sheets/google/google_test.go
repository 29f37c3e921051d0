package google

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"piggybank/internal/core"
	"piggybank/internal/export"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), Config{SpreadsheetID: "sheet"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "sheet", CredentialsFile: "/does/not/exist.json"})
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestWriteWithoutService(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	err := c.Write(context.Background(), export.NewDocument("alice", nil, nil, time.Now()))
	if err == nil {
		t.Fatal("expected error without service")
	}
}

func TestTabName(t *testing.T) {
	tests := []struct {
		prefix, user, want string
	}{
		{"Piggy Bank", "alice", "Piggy Bank alice"},
		{"Piggy Bank", "a/b:c'd", "Piggy Bank a_b_c_d"},
		{"", "bob", "bob"},
	}
	for _, tt := range tests {
		if got := tabName(tt.prefix, tt.user); got != tt.want {
			t.Errorf("tabName(%q, %q) = %q, want %q", tt.prefix, tt.user, got, tt.want)
		}
	}

	long := tabName("Piggy Bank", strings.Repeat("x", 200))
	if len([]rune(long)) != maxTabName {
		t.Errorf("expected tab name truncated to %d, got %d", maxTabName, len([]rune(long)))
	}
}

func TestRows(t *testing.T) {
	now := time.Date(2025, 7, 4, 9, 30, 0, 0, time.UTC)
	doc := export.NewDocument("alice",
		[]core.Transaction{
			{ID: "1", Date: now, Type: core.Expense, Amount: decimal.RequireFromString("3"), Category: core.Candy, Description: "Lollipop"},
			{ID: "2", Date: now.Add(-24 * time.Hour), Type: core.Income, Amount: decimal.RequireFromString("10"), Category: core.Chores, Description: "Dishes"},
		},
		[]core.Goal{{ID: "g", Name: "Kite", TargetAmount: decimal.RequireFromString("30"), CurrentAmount: decimal.RequireFromString("10")}},
		now)

	got := rows(doc)

	if got[1][1] != "7.00" {
		t.Errorf("expected balance 7.00, got %v", got[1][1])
	}
	if got[5][0] != "Date" {
		t.Fatalf("expected transaction header at row 6, got %v", got[5])
	}
	if got[6][4] != "-3.00" || got[7][4] != "10.00" {
		t.Errorf("expected signed amounts, got %v and %v", got[6][4], got[7][4])
	}
	last := got[len(got)-1]
	if last[0] != "Kite" || last[3] != "33" {
		t.Errorf("unexpected goal row: %v", last)
	}
}
