package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"piggybank/internal/amqp"
	"piggybank/internal/core"
	"piggybank/internal/export"
	"piggybank/internal/gateway"
	applog "piggybank/internal/log"
)

// Source is what the worker reads ledgers from.
type Source interface {
	gateway.TransactionStore
	gateway.GoalStore
}

// Config holds configuration for the export worker
type Config struct {
	// Interval is how often every user is re-exported (default: 5m)
	Interval time.Duration

	// BatchSize bounds how many users are exported concurrently (default: 10)
	BatchSize int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Minute,
		BatchSize: 10,
	}
}

// ExportWorker mirrors user ledgers to the configured sinks, on change
// events and periodically for every known user.
type ExportWorker struct {
	source Source
	users  gateway.UserLister
	sinks  []export.Sink
	config Config
	now    func() time.Time

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewExportWorker creates a worker. users may be nil, in which case only
// event-driven exports run.
func NewExportWorker(source Source, users gateway.UserLister, sinks []export.Sink, config Config) *ExportWorker {
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	return &ExportWorker{
		source: source,
		users:  users,
		sinks:  sinks,
		config: config,
		now:    time.Now,
	}
}

// HandleEvent exports the user named by a ledger event. A returned error
// makes the consumer requeue the delivery.
func (w *ExportWorker) HandleEvent(ctx context.Context, event *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		applog.FieldEventKind, event.Kind,
		applog.FieldUserID, event.UserID,
		applog.FieldEntityID, event.EntityID)
	return w.ExportUser(ctx, event.UserID)
}

// ExportUser loads userID's ledger and writes it to every sink. Sinks are
// independent: one failing does not stop the others.
func (w *ExportWorker) ExportUser(ctx context.Context, userID string) error {
	if userID == "" {
		return core.ErrUnauthenticated
	}
	doc, err := w.load(ctx, userID)
	if err != nil {
		return err
	}

	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Write(ctx, doc); err != nil {
			slog.ErrorContext(ctx, "Failed to export ledger",
				applog.FieldSink, sink.Name(),
				applog.FieldUserID, userID,
				applog.FieldError, err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		slog.DebugContext(ctx, "Exported ledger",
			applog.FieldSink, sink.Name(),
			applog.FieldUserID, userID,
			"transactions", len(doc.Transactions),
			"goals", len(doc.Goals))
	}
	return errors.Join(errs...)
}

func (w *ExportWorker) load(ctx context.Context, userID string) (*export.Document, error) {
	var (
		txs   []core.Transaction
		goals []core.Goal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = w.source.ListTransactions(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		goals, err = w.source.ListGoals(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, core.WrapGateway("load ledger for export", err)
	}
	return export.NewDocument(userID, txs, goals, w.now()), nil
}

// ExportAll re-exports every user the source knows about. It returns the
// number of users exported successfully.
func (w *ExportWorker) ExportAll(ctx context.Context) (int, error) {
	if w.users == nil {
		return 0, nil
	}
	users, err := w.users.ListUsers(ctx)
	if err != nil {
		return 0, core.WrapGateway("list users", err)
	}
	if len(users) == 0 {
		return 0, nil
	}

	var ok atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.BatchSize)
	for _, u := range users {
		g.Go(func() error {
			if err := w.ExportUser(gctx, u); err != nil {
				// Keep going; the next cycle retries.
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	done := int(ok.Load())
	if done < len(users) {
		slog.WarnContext(ctx, "Full export finished with failures",
			"users", len(users), "exported", done)
	} else {
		slog.InfoContext(ctx, "Full export finished", "users", len(users))
	}
	return done, nil
}

// Start begins the periodic export loop. Returns an error if already running.
func (w *ExportWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("export worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.runLoop(ctx)

	slog.InfoContext(ctx, "Export worker started",
		"interval", w.config.Interval,
		"batch_size", w.config.BatchSize,
		"sinks", len(w.sinks))

	return nil
}

// Stop gracefully stops the loop and waits for the current pass to finish.
func (w *ExportWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Export worker stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Export worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	return nil
}

// IsRunning returns whether the periodic loop is active
func (w *ExportWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *ExportWorker) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	// Export immediately on startup to recover from missed events
	w.exportAllLogged(ctx)

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.exportAllLogged(ctx)
		}
	}
}

func (w *ExportWorker) exportAllLogged(ctx context.Context) {
	if _, err := w.ExportAll(ctx); err != nil {
		slog.ErrorContext(ctx, "Periodic export failed", applog.FieldError, err)
	}
}
