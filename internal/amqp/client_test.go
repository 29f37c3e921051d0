package amqp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

func TestReconnectBackOff(t *testing.T) {
	b := newReconnectBackOff()
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // capped
		30 * time.Second,
	}
	for i, w := range want {
		if got := b.NextBackOff(); got != w {
			t.Errorf("attempt %d: expected %v, got %v", i, w, got)
		}
	}

	b.Reset()
	if got := b.NextBackOff(); got != time.Second {
		t.Errorf("after reset expected 1s, got %v", got)
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"connection closed", errors.New("connection closed"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"closed network", errors.New("use of closed network connection"), true},
		{"amqp closed", amqp091.ErrClosed, true},
		{"wrapped amqp closed", errors.Join(errors.New("publish"), amqp091.ErrClosed), true},
		{"other error", errors.New("invalid argument"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestCircuitBreaker(t *testing.T) {
	client := &Client{}

	if client.isCircuitOpen() {
		t.Fatal("circuit should start closed")
	}

	for i := 0; i < maxFailures-1; i++ {
		client.recordFailure()
	}
	if client.isCircuitOpen() {
		t.Fatal("circuit should stay closed below the failure threshold")
	}

	client.recordFailure()
	if !client.isCircuitOpen() {
		t.Fatal("circuit should open after max failures")
	}

	// Simulate the open timeout elapsing.
	client.mu.Lock()
	client.lastFailure = time.Now().Add(-openTimeout - time.Second)
	client.mu.Unlock()
	if client.isCircuitOpen() {
		t.Fatal("circuit should allow a probe after the timeout")
	}
	if client.state != StateHalfOpen {
		t.Fatalf("expected half-open state, got %d", client.state)
	}

	// A failed probe reopens immediately.
	client.recordFailure()
	if !client.isCircuitOpen() {
		t.Fatal("failed probe should reopen the circuit")
	}

	client.recordSuccess()
	if client.isCircuitOpen() || client.failureCount != 0 {
		t.Fatal("success should close the circuit and reset failures")
	}
}

func TestPublishRespectsContextCancellation(t *testing.T) {
	client := &Client{exchangeName: "x", queueName: "q"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.Publish(ctx, NewLedgerEvent(TransactionCreated, "u1", "t1"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPublishFailsFastWhenCircuitOpen(t *testing.T) {
	client := &Client{exchangeName: "x", queueName: "q", state: StateOpen, lastFailure: time.Now()}
	err := client.Publish(context.Background(), NewLedgerEvent(GoalCreated, "u1", "g1"))
	if err == nil {
		t.Fatal("expected error while circuit is open")
	}
	if client.conn != nil {
		t.Fatal("publish must not dial while circuit is open")
	}
}

func TestLedgerEventJSON(t *testing.T) {
	ev := NewLedgerEvent(GoalProgressed, "user-1", "goal-1")
	data, err := ev.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := LedgerEventFromJSON(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Kind != GoalProgressed || got.UserID != "user-1" || got.EntityID != "goal-1" {
		t.Fatalf("unexpected event: %+v", got)
	}

	bad := []string{
		`{"kind":"expense.created","user_id":"u"}`,
		`{"kind":"goal.created"}`,
		`not json`,
	}
	for _, b := range bad {
		if _, err := LedgerEventFromJSON([]byte(b)); err == nil {
			t.Errorf("expected error for %s", b)
		}
	}
}
