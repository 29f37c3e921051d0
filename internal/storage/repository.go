package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"piggybank/internal/core"
	"piggybank/internal/gateway"

	_ "modernc.org/sqlite"
)

// dateLayout has a fixed width so that dates sort lexically.
const dateLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ gateway.Gateway      = (*SQLiteRepository)(nil)
	_ gateway.UserLister   = (*SQLiteRepository)(nil)
	_ gateway.AccountStore = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	out := []core.Transaction{}
	if userID == "" {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, date, type, amount, category, description
		FROM transactions
		WHERE user_id = ?
		ORDER BY date DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t    core.Transaction
			date string
		)
		if err := rows.Scan(&t.ID, &date, &t.Type, &t.Amount, &t.Category, &t.Description); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if t.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("parse transaction date %q: %w", date, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, userID string, n core.NewTransaction) (core.Transaction, error) {
	if err := gateway.RequireUser(userID); err != nil {
		return core.Transaction{}, err
	}
	if err := n.Validate(); err != nil {
		return core.Transaction{}, err
	}
	t := core.Transaction{
		ID:          uuid.NewString(),
		Date:        r.now().UTC(),
		Type:        n.Type,
		Amount:      n.Amount,
		Category:    n.Category,
		Description: strings.TrimSpace(n.Description),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, date, type, amount, category, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, userID, t.Date.Format(dateLayout), string(t.Type), t.Amount.String(), string(t.Category), t.Description)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"type", t.Type,
		"amount", t.Amount.String(),
		"category", t.Category)

	return t, nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	if err := gateway.RequireUser(userID); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return requireAffected(res, "transaction", id)
}

func (r *SQLiteRepository) ListGoals(ctx context.Context, userID string) ([]core.Goal, error) {
	out := []core.Goal{}
	if userID == "" {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, target_amount, current_amount
		FROM goals
		WHERE user_id = ?
		ORDER BY rowid ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var g core.Goal
		if err := rows.Scan(&g.ID, &g.Name, &g.TargetAmount, &g.CurrentAmount); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) InsertGoal(ctx context.Context, userID, name string, target decimal.Decimal) (core.Goal, error) {
	if err := gateway.RequireUser(userID); err != nil {
		return core.Goal{}, err
	}
	g := core.Goal{ID: uuid.NewString(), Name: strings.TrimSpace(name), TargetAmount: target, CurrentAmount: decimal.Zero}
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO goals (id, user_id, name, target_amount, current_amount)
		VALUES (?, ?, ?, ?, ?)`,
		g.ID, userID, g.Name, g.TargetAmount.String(), g.CurrentAmount.String())
	if err != nil {
		return core.Goal{}, fmt.Errorf("insert goal: %w", err)
	}
	return g, nil
}

func (r *SQLiteRepository) UpdateGoalCurrentAmount(ctx context.Context, userID, id string, amount decimal.Decimal) error {
	if err := gateway.RequireUser(userID); err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin goal update: %w", err)
	}
	defer tx.Rollback()

	g := core.Goal{ID: id}
	err = tx.QueryRowContext(ctx, `SELECT name, target_amount FROM goals WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&g.Name, &g.TargetAmount)
	if errors.Is(err, sql.ErrNoRows) {
		return &core.NotFoundError{Entity: "goal", ID: id}
	}
	if err != nil {
		return fmt.Errorf("load goal: %w", err)
	}
	g.CurrentAmount = amount
	if err := g.Validate(); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE goals SET current_amount = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		amount.String(), r.now().UTC().Format(dateLayout), id, userID); err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit goal update: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteGoal(ctx context.Context, userID, id string) error {
	if err := gateway.RequireUser(userID); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM goals WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return requireAffected(res, "goal", id)
}

// ListUsers returns every user id that owns at least one record.
func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM transactions
		UNION
		SELECT user_id FROM goals
		ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, email string) (gateway.Account, error) {
	a := gateway.Account{Email: email}
	var created string
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, password_hash, created_at
		FROM accounts
		WHERE email = ?`, email).Scan(&a.UserID, &a.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return gateway.Account{}, &core.NotFoundError{Entity: "account", ID: email}
	}
	if err != nil {
		return gateway.Account{}, fmt.Errorf("get account: %w", err)
	}
	if a.CreatedAt, err = time.Parse(dateLayout, created); err != nil {
		return gateway.Account{}, fmt.Errorf("parse account created_at: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a gateway.Account) error {
	if err := gateway.RequireUser(a.UserID); err != nil {
		return err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (email, user_id, password_hash, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		a.Email, a.UserID, a.PasswordHash, a.CreatedAt.UTC().Format(dateLayout))
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return core.ErrAccountExists
	}
	return nil
}

func requireAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return &core.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}
