package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"piggybank/internal/core"
)

const (
	DefaultIndex = "piggybank"
	esFlush      = 2048
)

// record is one indexed document. Transactions and goals share the index
// and are told apart by Kind.
type record struct {
	Kind      string    `json:"kind"`
	UserID    string    `json:"user_id"`
	ExportAt  time.Time `json:"exported_at"`
	*core.Transaction
	Goal *core.Goal `json:"goal,omitempty"`
}

// ElasticsearchV8 indexes every transaction and goal of a user as its own
// document. Before indexing, the user's previous documents are removed so
// deletions propagate.
type ElasticsearchV8 struct {
	es    *elasticsearch.Client
	index string
}

func NewElasticsearchV8(index string, urls ...string) (*ElasticsearchV8, error) {
	if index == "" {
		index = DefaultIndex
	}
	retryBackoff := backoff.NewExponentialBackOff()

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: urls,

		// Retry on 429 TooManyRequests statuses
		RetryOnStatus: []int{502, 503, 504, 429},

		RetryBackoff: func(i int) time.Duration {
			if i == 1 {
				retryBackoff.Reset()
			}
			return retryBackoff.NextBackOff()
		},

		MaxRetries: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return &ElasticsearchV8{es: es, index: index}, nil
}

func (e *ElasticsearchV8) Name() string { return "es8" }

func (e *ElasticsearchV8) ensureIndex(ctx context.Context) {
	res, err := e.es.Indices.Create(e.index, e.es.Indices.Create.WithContext(ctx))
	if err != nil {
		slog.DebugContext(ctx, "Attempted to create index", "index", e.index, "error", err)
		return
	}
	defer res.Body.Close()
}

func (e *ElasticsearchV8) deleteUser(ctx context.Context, userID string) error {
	query, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"term": map[string]any{"user_id": userID},
		},
	})
	if err != nil {
		return err
	}
	res, err := e.es.DeleteByQuery(
		[]string{e.index},
		bytes.NewReader(query),
		e.es.DeleteByQuery.WithContext(ctx),
		e.es.DeleteByQuery.WithConflicts("proceed"),
		e.es.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("delete previous documents: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete previous documents: %s", res.String())
	}
	return nil
}

func (e *ElasticsearchV8) Write(ctx context.Context, doc *Document) error {
	e.ensureIndex(ctx)
	if err := e.deleteUser(ctx, doc.UserID); err != nil {
		return err
	}

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:         e.index,
		FlushBytes:    esFlush,
		Client:        e.es,
		NumWorkers:    4,
		FlushInterval: 10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("bulk indexer: %w", err)
	}

	var failed atomic.Int64
	add := func(id string, rec record) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: id,
			Body:       bytes.NewReader(data),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				failed.Add(1)
				if err != nil {
					slog.ErrorContext(ctx, "Failed to index document", "id", item.DocumentID, "error", err)
				} else {
					slog.ErrorContext(ctx, "Failed to index document", "id", item.DocumentID,
						"type", res.Error.Type, "reason", res.Error.Reason)
				}
			},
		})
	}

	for i := range doc.Transactions {
		t := doc.Transactions[i]
		if err := add(docID(doc.UserID, "tx", t.ID), record{Kind: "transaction", UserID: doc.UserID, ExportAt: doc.ExportedAt, Transaction: &t}); err != nil {
			bi.Close(ctx)
			return fmt.Errorf("add transaction %s: %w", t.ID, err)
		}
	}
	for i := range doc.Goals {
		g := doc.Goals[i]
		if err := add(docID(doc.UserID, "goal", g.ID), record{Kind: "goal", UserID: doc.UserID, ExportAt: doc.ExportedAt, Goal: &g}); err != nil {
			bi.Close(ctx)
			return fmt.Errorf("add goal %s: %w", g.ID, err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return fmt.Errorf("flush bulk indexer: %w", err)
	}

	stats := bi.Stats()
	if stats.NumFailed > 0 || failed.Load() > 0 {
		return fmt.Errorf("failed indexing %d docs", stats.NumFailed)
	}
	slog.DebugContext(ctx, "Indexed ledger documents",
		"user_id", doc.UserID, "index", e.index, "count", stats.NumFlushed)
	return nil
}

func docID(userID, kind, id string) string {
	return strings.Join([]string{userID, kind, id}, ":")
}
