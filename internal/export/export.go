// Package export mirrors a user's ledger to external sinks.
package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"piggybank/internal/core"
	"piggybank/internal/ledger"
)

// Document is the full exported state of one user.
type Document struct {
	UserID       string             `json:"user_id"`
	ExportedAt   time.Time          `json:"exported_at"`
	Summary      core.Summary       `json:"summary"`
	Transactions []core.Transaction `json:"transactions"`
	Goals        []core.Goal        `json:"goals"`
}

// NewDocument builds a Document from one ledger snapshot.
func NewDocument(userID string, txs []core.Transaction, goals []core.Goal, now time.Time) *Document {
	if txs == nil {
		txs = []core.Transaction{}
	}
	if goals == nil {
		goals = []core.Goal{}
	}
	return &Document{
		UserID:       userID,
		ExportedAt:   now.UTC(),
		Summary:      ledger.Summarize(txs, goals),
		Transactions: txs,
		Goals:        goals,
	}
}

// Sink receives complete user documents. Writes replace whatever the sink
// held for that user before.
type Sink interface {
	Name() string
	Write(ctx context.Context, doc *Document) error
}

// Parse builds a sink from an "<kind>:<target>" spec, for example
// jsonfile:/tmp/out.json or es8:http://localhost:9200.
func Parse(out string) (Sink, error) {
	bits := strings.SplitN(out, ":", 2)
	if len(bits) != 2 || bits[1] == "" {
		return nil, fmt.Errorf("invalid out %q, expected [jsonfile:/path/to/file.json] or [es8:http://elasticsearch:9200]", out)
	}
	switch bits[0] {
	case "es8":
		es, err := NewElasticsearchV8(DefaultIndex, bits[1])
		if err != nil {
			return nil, err
		}
		return es, nil
	case "jsonfile":
		return NewJSONFile(bits[1]), nil
	case "jsondir":
		return NewJSONDir(bits[1]), nil
	default:
		return nil, fmt.Errorf("unknown sink kind %q", bits[0])
	}
}
