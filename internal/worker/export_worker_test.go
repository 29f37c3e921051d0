package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piggybank/internal/amqp"
	"piggybank/internal/config"
	"piggybank/internal/core"
	"piggybank/internal/export"
	"piggybank/internal/gateway/memory"
)

type recordingSink struct {
	mu   sync.Mutex
	name string
	err  error
	docs map[string]*export.Document
}

func newRecordingSink(name string) *recordingSink {
	return &recordingSink{name: name, docs: make(map[string]*export.Document)}
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(_ context.Context, doc *export.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.docs[doc.UserID] = doc
	return nil
}

func (s *recordingSink) doc(user string) (*export.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[user]
	return d, ok
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

func seededStore(t *testing.T, users ...string) *memory.Store {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	for _, u := range users {
		_, err := store.InsertTransaction(ctx, u, core.NewTransaction{
			Type: core.Income, Amount: decimal.NewFromInt(20), Category: core.Allowance, Description: "Weekly",
		})
		require.NoError(t, err)
		_, err = store.InsertGoal(ctx, u, "Bike", decimal.NewFromInt(100))
		require.NoError(t, err)
	}
	return store
}

func TestHandleEventExportsUser(t *testing.T) {
	store := seededStore(t, "alice", "bob")
	sink := newRecordingSink("rec")
	w := NewExportWorker(store, store, []export.Sink{sink}, Config{})

	err := w.HandleEvent(context.Background(), amqp.NewLedgerEvent(amqp.TransactionCreated, "alice", "t1"))
	require.NoError(t, err)

	doc, ok := sink.doc("alice")
	require.True(t, ok)
	assert.Len(t, doc.Transactions, 1)
	assert.Len(t, doc.Goals, 1)
	assert.True(t, doc.Summary.Balance.Equal(decimal.NewFromInt(20)))
	_, ok = sink.doc("bob")
	assert.False(t, ok, "only the event's user is exported")
}

func TestExportUserContinuesPastFailingSink(t *testing.T) {
	store := seededStore(t, "alice")
	broken := newRecordingSink("broken")
	broken.err = errors.New("quota exceeded")
	good := newRecordingSink("good")
	w := NewExportWorker(store, nil, []export.Sink{broken, good}, Config{})

	err := w.ExportUser(context.Background(), "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: quota exceeded")
	_, ok := good.doc("alice")
	assert.True(t, ok)
}

func TestExportUserRequiresUser(t *testing.T) {
	w := NewExportWorker(memory.New(), nil, nil, Config{})
	assert.ErrorIs(t, w.ExportUser(context.Background(), ""), core.ErrUnauthenticated)
}

func TestExportAll(t *testing.T) {
	store := seededStore(t, "alice", "bob", "carol")
	sink := newRecordingSink("rec")
	w := NewExportWorker(store, store, []export.Sink{sink}, Config{BatchSize: 2})

	n, err := w.ExportAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, sink.count())
}

func TestExportAllWithoutLister(t *testing.T) {
	w := NewExportWorker(memory.New(), nil, nil, Config{})
	n, err := w.ExportAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStartStop(t *testing.T) {
	store := seededStore(t, "alice")
	sink := newRecordingSink("rec")
	w := NewExportWorker(store, store, []export.Sink{sink}, Config{Interval: time.Hour})
	ctx := context.Background()

	require.NoError(t, w.Start(ctx))
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start(ctx), "second start must fail")

	// The startup pass exports every user.
	assert.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, w.Stop(stopCtx))
	assert.False(t, w.IsRunning())
	assert.NoError(t, w.Stop(stopCtx), "stop is idempotent")
}

func TestBuildSinks(t *testing.T) {
	cfg := &config.Config{ExportDir: t.TempDir(), ElasticsearchURL: "http://localhost:9200", ElasticsearchIndex: "piggybank"}
	sinks, err := BuildSinks(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, sinks, 2)
	assert.Equal(t, "es8", sinks[0].Name())
	assert.Equal(t, "jsonfile", sinks[1].Name())

	none, err := BuildSinks(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.Empty(t, none)
}
