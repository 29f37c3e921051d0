package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"piggybank/internal/amqp"
	"piggybank/internal/cache"
	"piggybank/internal/core"
	"piggybank/internal/gateway"
	"piggybank/internal/ledger"
	applog "piggybank/internal/log"
)

// Publisher sends ledger change events. *amqp.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, event *amqp.LedgerEvent) error
}

// Snapshot is one consistent view of a user's ledger.
type Snapshot struct {
	Transactions []core.Transaction
	Goals        []core.Goal
	Summary      core.Summary
	FetchedAt    time.Time
}

// Options tunes a LedgerService. Zero values pick defaults.
type Options struct {
	GatewayTimeout time.Duration
	CacheSize      int
	CacheTTL       time.Duration
	Logger         *applog.Logger
}

// LedgerService orchestrates ledger operations across the gateway, the
// snapshot cache and the event publisher.
type LedgerService struct {
	gw        gateway.Gateway
	publisher Publisher
	snapshots *cache.SnapshotCache[*Snapshot]
	timeout   time.Duration
	logger    *applog.Logger
	events    *applog.StructuredLogger
}

func NewLedgerService(gw gateway.Gateway, publisher Publisher, opts Options) *LedgerService {
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 7 * time.Second
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	logger := opts.Logger.WithComponent(applog.ComponentLedger)
	return &LedgerService{
		gw:        gw,
		publisher: publisher,
		snapshots: cache.NewSnapshotCache[*Snapshot](opts.CacheSize, opts.CacheTTL),
		timeout:   opts.GatewayTimeout,
		logger:    logger,
		events:    applog.NewStructuredLogger(logger),
	}
}

// Cache exposes the snapshot cache so a cache.Manager can clean it.
func (s *LedgerService) Cache() cache.Cleaner {
	return s.snapshots
}

// Snapshot returns the user's transactions, goals and derived summary.
// Both lists are fetched concurrently. A result whose fetch was overtaken by
// a mutation is returned to the caller but never cached.
func (s *LedgerService) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	if userID == "" {
		return emptySnapshot(), nil
	}
	if snap, ok := s.snapshots.Get(userID); ok {
		return snap.clone(), nil
	}

	gen := s.snapshots.Begin(userID)
	snap, err := s.load(ctx, userID)
	if err != nil {
		s.snapshots.Abandon(userID)
		return nil, err
	}
	if !s.snapshots.Store(userID, gen, snap) {
		s.logger.DebugContext(ctx, "Discarded superseded snapshot", applog.FieldUserID, userID)
	}
	return snap.clone(), nil
}

// Refresh drops any cached snapshot and reloads it.
func (s *LedgerService) Refresh(ctx context.Context, userID string) (*Snapshot, error) {
	s.snapshots.Invalidate(userID)
	return s.Snapshot(ctx, userID)
}

func (s *LedgerService) load(ctx context.Context, userID string) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		txs   []core.Transaction
		goals []core.Goal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = s.gw.ListTransactions(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		goals, err = s.gw.ListGoals(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		err = core.WrapGateway("load snapshot", err)
		s.fail(ctx, "Failed to load ledger snapshot", err, applog.OpList, userID)
		return nil, err
	}

	if txs == nil {
		txs = []core.Transaction{}
	}
	if goals == nil {
		goals = []core.Goal{}
	}
	return &Snapshot{
		Transactions: txs,
		Goals:        goals,
		Summary:      ledger.Summarize(txs, goals),
		FetchedAt:    time.Now(),
	}, nil
}

// AddTransaction validates and stores a new transaction.
func (s *LedgerService) AddTransaction(ctx context.Context, userID string, n core.NewTransaction) (core.Transaction, error) {
	if err := gateway.RequireUser(userID); err != nil {
		return core.Transaction{}, err
	}
	desc, err := core.ValidateText("description", n.Description)
	if err != nil {
		return core.Transaction{}, err
	}
	n.Description = desc
	n.Amount = n.Amount.Round(2)
	if err := n.Validate(); err != nil {
		return core.Transaction{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.gw.InsertTransaction(ctx, userID, n)
	if err != nil {
		err = core.WrapGateway("insert transaction", err)
		s.fail(ctx, "Failed to add transaction", err, applog.OpCreate, userID)
		return core.Transaction{}, err
	}
	s.changed(ctx, amqp.TransactionCreated, applog.OpCreate, userID, tx.ID)
	return tx, nil
}

// DeleteTransaction removes one transaction by id.
func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, id string) error {
	if err := gateway.RequireUser(userID); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.gw.DeleteTransaction(ctx, userID, id); err != nil {
		err = core.WrapGateway("delete transaction", err)
		if errors.Is(err, core.ErrNotFound) {
			// The view is stale; make the next render refetch.
			s.snapshots.Invalidate(userID)
			return err
		}
		s.fail(ctx, "Failed to delete transaction", err, applog.OpDelete, userID)
		return err
	}
	s.changed(ctx, amqp.TransactionDeleted, applog.OpDelete, userID, id)
	return nil
}

// AddGoal creates a goal with a current amount of zero.
func (s *LedgerService) AddGoal(ctx context.Context, userID, name string, target decimal.Decimal) (core.Goal, error) {
	if err := gateway.RequireUser(userID); err != nil {
		return core.Goal{}, err
	}
	name, err := core.ValidateText("name", name)
	if err != nil {
		return core.Goal{}, err
	}
	target = target.Round(2)
	if err := core.ValidateAmount(target); err != nil {
		return core.Goal{}, core.Invalid("target_amount", core.ErrInvalidAmount)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	g, err := s.gw.InsertGoal(ctx, userID, name, target)
	if err != nil {
		err = core.WrapGateway("insert goal", err)
		s.fail(ctx, "Failed to add goal", err, applog.OpCreate, userID)
		return core.Goal{}, err
	}
	s.changed(ctx, amqp.GoalCreated, applog.OpCreate, userID, g.ID)
	return g, nil
}

// ApplyGoalProgress moves amount into goal id. The amount must be positive
// and no larger than the current balance; the goal is clamped at its target.
func (s *LedgerService) ApplyGoalProgress(ctx context.Context, userID, id string, amount decimal.Decimal) (core.Goal, error) {
	if err := gateway.RequireUser(userID); err != nil {
		return core.Goal{}, err
	}
	amount = amount.Round(2)
	if err := core.ValidateAmount(amount); err != nil {
		return core.Goal{}, err
	}

	// The balance check always runs against fresh data.
	snap, err := s.Refresh(ctx, userID)
	if err != nil {
		return core.Goal{}, err
	}
	goal, ok := findGoal(snap.Goals, id)
	if !ok {
		return core.Goal{}, &core.NotFoundError{Entity: "goal", ID: id}
	}
	if err := ledger.CheckAffordable(snap.Summary.Balance, amount); err != nil {
		return core.Goal{}, err
	}

	updated := ledger.ApplyGoalProgress(goal, amount)
	if updated.CurrentAmount.Equal(goal.CurrentAmount) {
		return updated, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.gw.UpdateGoalCurrentAmount(ctx, userID, id, updated.CurrentAmount); err != nil {
		err = core.WrapGateway("update goal", err)
		if errors.Is(err, core.ErrNotFound) {
			s.snapshots.Invalidate(userID)
			return core.Goal{}, err
		}
		s.fail(ctx, "Failed to apply goal progress", err, applog.OpProgress, userID)
		return core.Goal{}, err
	}
	s.changed(ctx, amqp.GoalProgressed, applog.OpProgress, userID, id)
	return updated, nil
}

// DeleteGoal removes one goal by id.
func (s *LedgerService) DeleteGoal(ctx context.Context, userID, id string) error {
	if err := gateway.RequireUser(userID); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.gw.DeleteGoal(ctx, userID, id); err != nil {
		err = core.WrapGateway("delete goal", err)
		if errors.Is(err, core.ErrNotFound) {
			s.snapshots.Invalidate(userID)
			return err
		}
		s.fail(ctx, "Failed to delete goal", err, applog.OpDelete, userID)
		return err
	}
	s.changed(ctx, amqp.GoalDeleted, applog.OpDelete, userID, id)
	return nil
}

// Ready reports whether the gateway is reachable.
func (s *LedgerService) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.gw.Ping(ctx); err != nil {
		return core.WrapGateway("ping", err)
	}
	return nil
}

// changed runs after every successful mutation.
func (s *LedgerService) changed(ctx context.Context, kind amqp.EventKind, op, userID, entityID string) {
	s.snapshots.Invalidate(userID)
	s.events.LogLedgerChange(ctx, op, userID, entityID)
	s.publish(ctx, amqp.NewLedgerEvent(kind, userID, entityID))
}

func (s *LedgerService) publish(ctx context.Context, event *amqp.LedgerEvent) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not configured, skipping ledger event",
			applog.FieldEventKind, event.Kind)
		return
	}
	// The mutation is already stored; a publish failure only delays export.
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ledger event",
			applog.FieldEventKind, event.Kind,
			applog.FieldUserID, event.UserID,
			applog.FieldError, err)
	}
}

// fail logs err and reports gateway failures to Sentry.
func (s *LedgerService) fail(ctx context.Context, msg string, err error, op, userID string) {
	fields := applog.NewFields().WithUser(userID)
	fields[applog.FieldErrorType] = applog.ErrorTypeGateway
	s.events.LogError(ctx, msg, err, applog.ComponentLedger, op, fields)

	if !core.IsGateway(err) {
		return
	}
	capture := func(hub *sentry.Hub) {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("ledger.operation", op)
			scope.SetUser(sentry.User{ID: userID})
			hub.CaptureException(err)
		})
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		capture(hub)
	} else {
		capture(sentry.CurrentHub())
	}
}

// Close closes the gateway and, when it has one, the publisher.
func (s *LedgerService) Close() error {
	var errs []error
	if s.gw != nil {
		if err := s.gw.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gateway: %w", err))
		}
	}
	if c, ok := s.publisher.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if len(errs) > 0 {
		slog.Error("Failed to close ledger service cleanly", "errors", errs)
		return fmt.Errorf("close ledger service: %w", errors.Join(errs...))
	}
	return nil
}

func findGoal(goals []core.Goal, id string) (core.Goal, bool) {
	for _, g := range goals {
		if g.ID == id {
			return g, true
		}
	}
	return core.Goal{}, false
}

func emptySnapshot() *Snapshot {
	txs := []core.Transaction{}
	goals := []core.Goal{}
	return &Snapshot{
		Transactions: txs,
		Goals:        goals,
		Summary:      ledger.Summarize(txs, goals),
		FetchedAt:    time.Now(),
	}
}

// clone copies the slices so callers can never mutate a cached snapshot.
func (s *Snapshot) clone() *Snapshot {
	out := *s
	out.Transactions = cloneSlice(s.Transactions)
	out.Goals = cloneSlice(s.Goals)
	out.Summary.ByCategory = cloneSlice(s.Summary.ByCategory)
	out.Summary.Goals = cloneSlice(s.Summary.Goals)
	return &out
}

func cloneSlice[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}
