package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piggybank/internal/core"
)

func sampleDocument(user string) *Document {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	txs := []core.Transaction{
		{ID: "t2", Date: now, Type: core.Expense, Amount: decimal.RequireFromString("4.50"), Category: core.Candy, Description: "Gummies"},
		{ID: "t1", Date: now.Add(-time.Hour), Type: core.Income, Amount: decimal.RequireFromString("10"), Category: core.Allowance, Description: "Weekly"},
	}
	goals := []core.Goal{
		{ID: "g1", Name: "Bike", TargetAmount: decimal.RequireFromString("100"), CurrentAmount: decimal.RequireFromString("25")},
	}
	return NewDocument(user, txs, goals, now)
}

func TestNewDocumentSummarizes(t *testing.T) {
	doc := sampleDocument("alice")
	assert.True(t, doc.Summary.Balance.Equal(decimal.RequireFromString("5.5")))
	require.Len(t, doc.Summary.Goals, 1)
	assert.True(t, doc.Summary.Goals[0].Percent.Equal(decimal.NewFromInt(25)))

	empty := NewDocument("bob", nil, nil, time.Now())
	assert.NotNil(t, empty.Transactions)
	assert.NotNil(t, empty.Goals)
}

func TestJSONFileWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "ledger.json")
	sink := NewJSONFile(path)

	require.NoError(t, sink.Write(context.Background(), sampleDocument("alice")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Document
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "alice", got.UserID)
	assert.Len(t, got.Transactions, 2)
	assert.Equal(t, "Bike", got.Goals[0].Name)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file should be renamed away")
}

func TestJSONDirWritesPerUser(t *testing.T) {
	dir := t.TempDir()
	sink := NewJSONDir(dir)

	require.NoError(t, sink.Write(context.Background(), sampleDocument("alice")))
	require.NoError(t, sink.Write(context.Background(), sampleDocument("../bob")))

	assert.FileExists(t, filepath.Join(dir, "alice.json"))
	assert.Equal(t, filepath.Join(dir, ".._bob.json"), sink.Path("../bob"))
	assert.FileExists(t, sink.Path("../bob"))
}

func TestJSONFileHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewJSONDir(t.TempDir()).Write(ctx, sampleDocument("alice"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParse(t *testing.T) {
	tests := []struct {
		out      string
		wantName string
		wantErr  bool
	}{
		{"jsonfile:/tmp/out.json", "jsonfile", false},
		{"jsondir:/tmp/exports", "jsonfile", false},
		{"es8:http://localhost:9200", "es8", false},
		{"jsonfile:", "", true},
		{"out.json", "", true},
		{"s3:bucket", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.out, func(t *testing.T) {
			sink, err := Parse(tt.out)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, sink.Name())
		})
	}
}

func TestElasticsearchIntegration(t *testing.T) {
	url := os.Getenv("PIGGYBANK_TEST_ELASTICSEARCH_URL")
	if url == "" {
		t.Skip("PIGGYBANK_TEST_ELASTICSEARCH_URL not set")
	}
	sink, err := NewElasticsearchV8("piggybank-test", url)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, sink.Write(ctx, sampleDocument("alice")))
	// A second write replaces the first.
	require.NoError(t, sink.Write(ctx, sampleDocument("alice")))
}
