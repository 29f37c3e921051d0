package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"piggybank/internal/core"
	"piggybank/internal/gateway"
)

// Store is an in-memory gateway. It backs the demo mode and tests.
type Store struct {
	mu       sync.Mutex
	books    map[string]*book
	accounts map[string]gateway.Account // by email
	now      func() time.Time
}

type book struct {
	txs   []core.Transaction // insertion order
	goals []core.Goal        // insertion order
}

var (
	_ gateway.Gateway      = (*Store)(nil)
	_ gateway.UserLister   = (*Store)(nil)
	_ gateway.AccountStore = (*Store)(nil)
)

func New() *Store {
	return &Store{
		books:    make(map[string]*book),
		accounts: make(map[string]gateway.Account),
		now:      time.Now,
	}
}

// WithClock replaces the time source used to date new transactions.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Fixture is the seed format accepted by NewFromFile.
type Fixture struct {
	Transactions []core.Transaction `json:"transactions"`
	Goals        []core.Goal        `json:"goals"`
}

// NewFromFile seeds userID's book from a JSON fixture at path. A missing or
// empty path falls back to DemoFixture.
func NewFromFile(path, userID string) (*Store, error) {
	s := New()
	fx := DemoFixture(time.Now())
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read fixture: %w", err)
		}
		if err == nil {
			fx = Fixture{}
			if err := json.Unmarshal(data, &fx); err != nil {
				return nil, fmt.Errorf("decode fixture %s: %w", path, err)
			}
		}
	}
	if err := s.Seed(userID, fx); err != nil {
		return nil, err
	}
	return s, nil
}

// Seed loads fx into userID's book. Records without ids get fresh ones.
func (s *Store) Seed(userID string, fx Fixture) error {
	if err := gateway.RequireUser(userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bookLocked(userID)
	for _, t := range fx.Transactions {
		if err := (core.NewTransaction{Type: t.Type, Amount: t.Amount, Category: t.Category, Description: t.Description}).Validate(); err != nil {
			return fmt.Errorf("seed transaction %q: %w", t.Description, err)
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.Date.IsZero() {
			t.Date = s.now().UTC()
		}
		b.txs = append(b.txs, t)
	}
	for _, g := range fx.Goals {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("seed goal %q: %w", g.Name, err)
		}
		if g.ID == "" {
			g.ID = uuid.NewString()
		}
		b.goals = append(b.goals, g)
	}
	return nil
}

// DemoFixture is the sample data shown in demo mode.
func DemoFixture(now time.Time) Fixture {
	day := func(n int) time.Time { return now.UTC().AddDate(0, 0, -n) }
	amt := decimal.RequireFromString
	return Fixture{
		Transactions: []core.Transaction{
			{Date: day(6), Type: core.Income, Amount: amt("10"), Category: core.Allowance, Description: "Weekly allowance"},
			{Date: day(5), Type: core.Income, Amount: amt("25"), Category: core.Birthday, Description: "Birthday card from Grandma"},
			{Date: day(4), Type: core.Expense, Amount: amt("2.50"), Category: core.Candy, Description: "Chocolate bar"},
			{Date: day(3), Type: core.Income, Amount: amt("5"), Category: core.Chores, Description: "Washed the car"},
			{Date: day(2), Type: core.Expense, Amount: amt("12"), Category: core.Toys, Description: "Toy dinosaur"},
			{Date: day(1), Type: core.Expense, Amount: amt("6.99"), Category: core.Books, Description: "Comic book"},
		},
		Goals: []core.Goal{
			{Name: "New bike", TargetAmount: amt("120"), CurrentAmount: amt("15")},
			{Name: "Video game", TargetAmount: amt("40"), CurrentAmount: decimal.Zero},
		},
	}
}

func (s *Store) bookLocked(userID string) *book {
	b, ok := s.books[userID]
	if !ok {
		b = &book{}
		s.books[userID] = b
	}
	return b
}

func (s *Store) ListTransactions(_ context.Context, userID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[userID]
	if !ok || userID == "" {
		return []core.Transaction{}, nil
	}
	// Reverse first so equal dates list the latest insert first.
	out := make([]core.Transaction, 0, len(b.txs))
	for i := len(b.txs) - 1; i >= 0; i-- {
		out = append(out, b.txs[i])
	}
	gateway.SortNewestFirst(out)
	return out, nil
}

func (s *Store) InsertTransaction(_ context.Context, userID string, n core.NewTransaction) (core.Transaction, error) {
	if err := gateway.RequireUser(userID); err != nil {
		return core.Transaction{}, err
	}
	if err := n.Validate(); err != nil {
		return core.Transaction{}, err
	}
	t := core.Transaction{
		ID:          uuid.NewString(),
		Date:        s.now().UTC(),
		Type:        n.Type,
		Amount:      n.Amount,
		Category:    n.Category,
		Description: strings.TrimSpace(n.Description),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bookLocked(userID)
	b.txs = append(b.txs, t)
	return t, nil
}

func (s *Store) DeleteTransaction(_ context.Context, userID, id string) error {
	if err := gateway.RequireUser(userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.books[userID]; ok {
		for i, t := range b.txs {
			if t.ID == id {
				b.txs = append(b.txs[:i], b.txs[i+1:]...)
				return nil
			}
		}
	}
	return &core.NotFoundError{Entity: "transaction", ID: id}
}

func (s *Store) ListGoals(_ context.Context, userID string) ([]core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[userID]
	if !ok || userID == "" {
		return []core.Goal{}, nil
	}
	return append([]core.Goal(nil), b.goals...), nil
}

func (s *Store) InsertGoal(_ context.Context, userID, name string, target decimal.Decimal) (core.Goal, error) {
	if err := gateway.RequireUser(userID); err != nil {
		return core.Goal{}, err
	}
	g := core.Goal{ID: uuid.NewString(), Name: strings.TrimSpace(name), TargetAmount: target, CurrentAmount: decimal.Zero}
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bookLocked(userID)
	b.goals = append(b.goals, g)
	return g, nil
}

func (s *Store) UpdateGoalCurrentAmount(_ context.Context, userID, id string, amount decimal.Decimal) error {
	if err := gateway.RequireUser(userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.books[userID]; ok {
		for i := range b.goals {
			if b.goals[i].ID != id {
				continue
			}
			next := b.goals[i]
			next.CurrentAmount = amount
			if err := next.Validate(); err != nil {
				return err
			}
			b.goals[i] = next
			return nil
		}
	}
	return &core.NotFoundError{Entity: "goal", ID: id}
}

func (s *Store) DeleteGoal(_ context.Context, userID, id string) error {
	if err := gateway.RequireUser(userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.books[userID]; ok {
		for i, g := range b.goals {
			if g.ID == id {
				b.goals = append(b.goals[:i], b.goals[i+1:]...)
				return nil
			}
		}
	}
	return &core.NotFoundError{Entity: "goal", ID: id}
}

// ListUsers returns every user id that owns at least one record.
func (s *Store) ListUsers(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.books))
	for id, b := range s.books {
		if len(b.txs) > 0 || len(b.goals) > 0 {
			users = append(users, id)
		}
	}
	sort.Strings(users)
	return users, nil
}

func (s *Store) GetAccount(_ context.Context, email string) (gateway.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[email]
	if !ok {
		return gateway.Account{}, &core.NotFoundError{Entity: "account", ID: email}
	}
	return a, nil
}

func (s *Store) CreateAccount(_ context.Context, a gateway.Account) error {
	if err := gateway.RequireUser(a.UserID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.Email]; ok {
		return core.ErrAccountExists
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	s.accounts[a.Email] = a
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
