package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// EventKind names a ledger mutation.
type EventKind string

const (
	TransactionCreated EventKind = "transaction.created"
	TransactionDeleted EventKind = "transaction.deleted"
	GoalCreated        EventKind = "goal.created"
	GoalProgressed     EventKind = "goal.progressed"
	GoalDeleted        EventKind = "goal.deleted"
)

func (k EventKind) IsValid() bool {
	switch k {
	case TransactionCreated, TransactionDeleted, GoalCreated, GoalProgressed, GoalDeleted:
		return true
	}
	return false
}

// LedgerEvent is a lightweight change notification. It carries ids only;
// consumers reload the user's data from the store.
type LedgerEvent struct {
	Kind      EventKind `json:"kind"`
	UserID    string    `json:"user_id"`
	EntityID  string    `json:"entity_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event stamped with the current time.
func NewLedgerEvent(kind EventKind, userID, entityID string) *LedgerEvent {
	return &LedgerEvent{
		Kind:      kind,
		UserID:    userID,
		EntityID:  entityID,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and validates an event.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if !e.Kind.IsValid() {
		return nil, errors.New("unknown event kind: " + string(e.Kind))
	}
	if e.UserID == "" {
		return nil, errors.New("event without user id")
	}
	return &e, nil
}
