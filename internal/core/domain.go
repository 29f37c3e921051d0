package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TxType = "Income"
	Expense TxType = "Expense"
)

const (
	Allowance Category = "Allowance"
	Chores    Category = "Chores"
	Gift      Category = "Gift"
	Birthday  Category = "Birthday"
	Toys      Category = "Toys"
	Games     Category = "Games"
	Books     Category = "Books"
	Candy     Category = "Candy"
	Savings   Category = "Savings"
	Other     Category = "Other"
)

// MaxTextLength bounds descriptions and goal names.
const MaxTextLength = 200

type (
	TxType   string
	Category string

	// Transaction is a single money movement in the ledger. Transactions are
	// immutable once stored: they are created and deleted, never updated.
	Transaction struct {
		ID          string          `json:"id"`
		Date        time.Time       `json:"date"`
		Type        TxType          `json:"type"`
		Amount      decimal.Decimal `json:"amount"`
		Category    Category        `json:"category"`
		Description string          `json:"description"`
	}

	// NewTransaction carries the caller-provided fields of a transaction.
	// The store assigns ID and Date.
	NewTransaction struct {
		Type        TxType
		Amount      decimal.Decimal
		Category    Category
		Description string
	}

	// Goal is a savings target. CurrentAmount only grows and never exceeds
	// TargetAmount.
	Goal struct {
		ID            string          `json:"id"`
		Name          string          `json:"name"`
		TargetAmount  decimal.Decimal `json:"target_amount"`
		CurrentAmount decimal.Decimal `json:"current_amount"`
	}
)

// Categories lists every category in display order.
var Categories = []Category{
	Allowance, Chores, Gift, Birthday, Toys, Games, Books, Candy, Savings, Other,
}

func (t TxType) IsValid() bool {
	return t == Income || t == Expense
}

// ParseTxType accepts "income" and "expense" in any letter case.
func ParseTxType(s string) (TxType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income":
		return Income, nil
	case "expense":
		return Expense, nil
	}
	return "", Invalid("type", ErrInvalidType)
}

func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory matches s against the known categories ignoring case.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", Invalid("category", ErrInvalidCategory)
}

func (n NewTransaction) Validate() error {
	if !n.Type.IsValid() {
		return Invalid("type", ErrInvalidType)
	}
	if err := ValidateAmount(n.Amount); err != nil {
		return err
	}
	if !n.Category.IsValid() {
		return Invalid("category", ErrInvalidCategory)
	}
	if _, err := ValidateText("description", n.Description); err != nil {
		return err
	}
	return nil
}

// Signed returns the amount with the sign of its effect on the balance.
func (t Transaction) Signed() decimal.Decimal {
	if t.Type == Expense {
		return t.Amount.Neg()
	}
	return t.Amount
}

func (g Goal) Validate() error {
	if _, err := ValidateText("name", g.Name); err != nil {
		return err
	}
	if err := ValidateAmount(g.TargetAmount); err != nil {
		return Invalid("target_amount", ErrInvalidAmount)
	}
	if g.CurrentAmount.IsNegative() || g.CurrentAmount.GreaterThan(g.TargetAmount) {
		return Invalid("current_amount", ErrCurrentOutOfRange)
	}
	return nil
}

// ValidateText trims s and rejects empty or overlong values.
func ValidateText(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		if field == "name" {
			return "", Invalid(field, ErrEmptyName)
		}
		return "", Invalid(field, ErrEmptyDescription)
	}
	if len(s) > MaxTextLength {
		return "", Invalid(field, ErrTextTooLong)
	}
	return s, nil
}
