package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"piggybank/internal/core"
	"piggybank/internal/gateway"
)

// Repository implements gateway.Gateway on PostgreSQL.
type Repository struct {
	db *DB
}

var (
	_ gateway.Gateway      = (*Repository)(nil)
	_ gateway.UserLister   = (*Repository)(nil)
	_ gateway.AccountStore = (*Repository)(nil)
)

// Open connects to connString and migrates the schema.
func Open(ctx context.Context, connString string) (*Repository, error) {
	db, err := NewDB(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	out := []core.Transaction{}
	if userID == "" {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, date, type, amount, category, description
		FROM transactions
		WHERE user_id = $1
		ORDER BY date DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t core.Transaction
		if err := rows.Scan(&t.ID, &t.Date, &t.Type, &t.Amount, &t.Category, &t.Description); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Date = t.Date.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) InsertTransaction(ctx context.Context, userID string, n core.NewTransaction) (core.Transaction, error) {
	if err := gateway.RequireUser(userID); err != nil {
		return core.Transaction{}, err
	}
	if err := n.Validate(); err != nil {
		return core.Transaction{}, err
	}
	t := core.Transaction{
		Type:        n.Type,
		Amount:      n.Amount,
		Category:    n.Category,
		Description: strings.TrimSpace(n.Description),
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO transactions (user_id, type, amount, category, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, date`,
		userID, string(t.Type), t.Amount.String(), string(t.Category), t.Description,
	).Scan(&t.ID, &t.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("failed to insert transaction: %w", err)
	}
	t.Date = t.Date.UTC()
	return t, nil
}

func (r *Repository) DeleteTransaction(ctx context.Context, userID, id string) error {
	if err := gateway.RequireUser(userID); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return &core.NotFoundError{Entity: "transaction", ID: id}
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return requireAffected(res, "transaction", id)
}

func (r *Repository) ListGoals(ctx context.Context, userID string) ([]core.Goal, error) {
	out := []core.Goal{}
	if userID == "" {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, target_amount, current_amount
		FROM goals
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var g core.Goal
		if err := rows.Scan(&g.ID, &g.Name, &g.TargetAmount, &g.CurrentAmount); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *Repository) InsertGoal(ctx context.Context, userID, name string, target decimal.Decimal) (core.Goal, error) {
	if err := gateway.RequireUser(userID); err != nil {
		return core.Goal{}, err
	}
	g := core.Goal{Name: strings.TrimSpace(name), TargetAmount: target, CurrentAmount: decimal.Zero}
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO goals (user_id, name, target_amount)
		VALUES ($1, $2, $3)
		RETURNING id`,
		userID, g.Name, g.TargetAmount.String(),
	).Scan(&g.ID)
	if err != nil {
		return core.Goal{}, fmt.Errorf("failed to insert goal: %w", err)
	}
	return g, nil
}

func (r *Repository) UpdateGoalCurrentAmount(ctx context.Context, userID, id string, amount decimal.Decimal) error {
	if err := gateway.RequireUser(userID); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return &core.NotFoundError{Entity: "goal", ID: id}
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	g := core.Goal{ID: id}
	err = tx.QueryRowContext(ctx, `
		SELECT name, target_amount FROM goals
		WHERE id = $1 AND user_id = $2
		FOR UPDATE`, id, userID).Scan(&g.Name, &g.TargetAmount)
	if errors.Is(err, sql.ErrNoRows) {
		return &core.NotFoundError{Entity: "goal", ID: id}
	}
	if err != nil {
		return fmt.Errorf("failed to load goal: %w", err)
	}
	g.CurrentAmount = amount
	if err := g.Validate(); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE goals SET current_amount = $1, updated_at = now()
		WHERE id = $2 AND user_id = $3`, amount.String(), id, userID); err != nil {
		return fmt.Errorf("failed to update goal: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit goal update: %w", err)
	}
	return nil
}

func (r *Repository) DeleteGoal(ctx context.Context, userID, id string) error {
	if err := gateway.RequireUser(userID); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return &core.NotFoundError{Entity: "goal", ID: id}
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM goals WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete goal: %w", err)
	}
	return requireAffected(res, "goal", id)
}

// ListUsers returns every user id that owns at least one record.
func (r *Repository) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM transactions
		UNION
		SELECT user_id FROM goals
		ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()
	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *Repository) GetAccount(ctx context.Context, email string) (gateway.Account, error) {
	a := gateway.Account{Email: email}
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, password_hash, created_at
		FROM accounts
		WHERE email = $1`, email).Scan(&a.UserID, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return gateway.Account{}, &core.NotFoundError{Entity: "account", ID: email}
	}
	if err != nil {
		return gateway.Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (r *Repository) CreateAccount(ctx context.Context, a gateway.Account) error {
	if err := gateway.RequireUser(a.UserID); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (email, user_id, password_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`,
		a.Email, a.UserID, a.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	} else if n == 0 {
		return core.ErrAccountExists
	}
	return nil
}

func requireAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return &core.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}
