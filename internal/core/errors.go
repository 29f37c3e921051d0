package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthenticated   = errors.New("not authenticated")
	ErrInvalidAmount     = errors.New("amount must be a number greater than zero")
	ErrInvalidType       = errors.New("type must be Income or Expense")
	ErrInvalidCategory   = errors.New("unknown category")
	ErrEmptyDescription  = errors.New("description cannot be empty")
	ErrEmptyName         = errors.New("name cannot be empty")
	ErrTextTooLong       = errors.New("text too long (max 200 characters)")
	ErrCurrentOutOfRange = errors.New("current amount must be between zero and the target")
	ErrNotEnoughMoney    = errors.New("not enough money")
	ErrAccountExists     = errors.New("an account with this email already exists")
)

// ValidationError reports rejected input. Nothing was mutated.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid wraps err as a ValidationError for field.
func Invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// NotFoundError reports a mutation that targeted a missing record.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// GatewayError reports a persistence failure. The operation was not applied.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// WrapGateway classifies err as a GatewayError unless it already carries
// a more specific classification.
func WrapGateway(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	var ge *GatewayError
	if errors.As(err, &ve) || errors.As(err, &ge) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthenticated) {
		return err
	}
	return &GatewayError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsGateway(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}
