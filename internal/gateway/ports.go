// Package gateway defines the persistence port for ledger data.
//
// Every operation is keyed by the authenticated user id. List operations
// called without a user return empty collections; mutations return
// core.ErrUnauthenticated.
package gateway

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"piggybank/internal/core"
)

type (
	TransactionStore interface {
		// ListTransactions returns the user's transactions, newest first.
		ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error)
		// InsertTransaction stores n, assigning ID and Date.
		InsertTransaction(ctx context.Context, userID string, n core.NewTransaction) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, userID, id string) error
	}

	GoalStore interface {
		// ListGoals returns the user's goals in insertion order.
		ListGoals(ctx context.Context, userID string) ([]core.Goal, error)
		// InsertGoal stores a goal with a current amount of zero.
		InsertGoal(ctx context.Context, userID, name string, target decimal.Decimal) (core.Goal, error)
		UpdateGoalCurrentAmount(ctx context.Context, userID, id string, amount decimal.Decimal) error
		DeleteGoal(ctx context.Context, userID, id string) error
	}

	// Gateway is the full persistence port.
	Gateway interface {
		TransactionStore
		GoalStore
		Ping(ctx context.Context) error
		Close() error
	}
)

// UserLister is implemented by gateways that can enumerate their users.
type UserLister interface {
	ListUsers(ctx context.Context) ([]string, error)
}

// Account is a sign-in identity. Email is normalized; PasswordHash is a
// bcrypt hash.
type Account struct {
	UserID       string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// AccountStore keeps sign-in credentials beside the ledger.
type AccountStore interface {
	// GetAccount returns the account for email, or core.ErrNotFound.
	GetAccount(ctx context.Context, email string) (Account, error)
	// CreateAccount stores a; it returns core.ErrAccountExists when the
	// email is taken.
	CreateAccount(ctx context.Context, a Account) error
}

// RequireUser rejects mutations without an authenticated user.
func RequireUser(userID string) error {
	if userID == "" {
		return core.ErrUnauthenticated
	}
	return nil
}

// SortNewestFirst orders txs by date, newest first. Entries with equal
// dates keep their relative order.
func SortNewestFirst(txs []core.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date.After(txs[j].Date)
	})
}
