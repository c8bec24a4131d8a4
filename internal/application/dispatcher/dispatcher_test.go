package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nlebrun/docuflow/internal/domain/event"
)

// mockLogger implements Logger for testing
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func testEvent(t event.Type) *event.Event {
	return event.NewEvent(t, 1, 1, 1, nil)
}

func TestDispatch_RunsHandlersInOrder(t *testing.T) {
	d := NewDispatcher()
	var order []string

	d.SubscribeNamed(event.TypeStageEntered, "first", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "first")
		return nil
	})
	d.SubscribeNamed(event.TypeStageEntered, "second", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "second")
		return nil
	})

	if err := d.Dispatch(context.Background(), testEvent(event.TypeStageEntered)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("handlers ran out of order: %v", order)
	}
}

func TestDispatch_OnlyMatchingType(t *testing.T) {
	d := NewDispatcher()
	called := false

	d.Subscribe(event.TypeStageRejected, func(ctx context.Context, evt *event.Event) error {
		called = true
		return nil
	})

	if err := d.Dispatch(context.Background(), testEvent(event.TypeStageApproved)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if called {
		t.Error("handler for another event type was invoked")
	}
}

func TestDispatch_ReturnsHandlerError(t *testing.T) {
	d := NewDispatcher()
	handlerErr := errors.New("boom")

	d.SubscribeNamed(event.TypeWorkflowCompleted, "failing", func(ctx context.Context, evt *event.Event) error {
		return handlerErr
	})

	err := d.Dispatch(context.Background(), testEvent(event.TypeWorkflowCompleted))
	if !errors.Is(err, handlerErr) {
		t.Errorf("Dispatch() error = %v, want wrapped %v", err, handlerErr)
	}
}

func TestDispatch_RecoversPanic(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))

	d.SubscribeNamed(event.TypeStageEntered, "panicking", func(ctx context.Context, evt *event.Event) error {
		panic("handler exploded")
	})

	err := d.Dispatch(context.Background(), testEvent(event.TypeStageEntered))
	if err == nil {
		t.Fatal("expected error from panicking handler")
	}
	if logger.ErrorCount() == 0 {
		t.Error("expected panic to be logged")
	}
}

func TestDispatchAsync_WaitsOnClose(t *testing.T) {
	d := NewDispatcher()
	var count atomic.Int32

	d.Subscribe(event.TypeStageOverdue, func(ctx context.Context, evt *event.Event) error {
		time.Sleep(10 * time.Millisecond)
		count.Add(1)
		return nil
	})

	d.DispatchAsync(context.Background(), testEvent(event.TypeStageOverdue))
	d.DispatchAsync(context.Background(), testEvent(event.TypeStageOverdue))

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if count.Load() != 2 {
		t.Errorf("async handlers completed = %d, want 2", count.Load())
	}
}

func TestDispatch_AfterCloseFails(t *testing.T) {
	d := NewDispatcher()
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := d.Dispatch(context.Background(), testEvent(event.TypeStageEntered)); err == nil {
		t.Error("expected error dispatching on closed dispatcher")
	}
	if err := d.Close(); err == nil {
		t.Error("expected error closing twice")
	}
}
