package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitAndWaitDeliversToMatchingHandler(t *testing.T) {
	b := New(nil)
	var received Event
	b.On("pipeline.stage_completed", "recorder", func(_ context.Context, evt Event) error {
		received = evt
		return nil
	})

	evt := NewEvent("pipeline.stage_completed", "case_1", map[string]any{"stage": "assertion_fuse"})
	b.EmitAndWait(context.Background(), evt)

	assert.Equal(t, evt.SourceEventUID, received.SourceEventUID)
	assert.Equal(t, "case_1", received.CaseUID)
}

func TestEmitAndWaitIgnoresNonMatchingHandler(t *testing.T) {
	b := New(nil)
	called := false
	b.On("case.created", "recorder", func(_ context.Context, evt Event) error {
		called = true
		return nil
	})

	b.EmitAndWait(context.Background(), NewEvent("pipeline.stage_completed", "case_1", nil))
	assert.False(t, called)
}

func TestWildcardHandlerMatchesEveryType(t *testing.T) {
	b := New(nil)
	count := 0
	b.On(Wildcard, "catch_all", func(_ context.Context, evt Event) error {
		count++
		return nil
	})

	b.EmitAndWait(context.Background(), NewEvent("case.created", "case_1", nil))
	b.EmitAndWait(context.Background(), NewEvent("pipeline.stage_completed", "case_1", nil))
	assert.Equal(t, 2, count)
}

func TestHandlersFireInRegistrationOrderPerType(t *testing.T) {
	b := New(nil)
	var order []string
	var mu sync.Mutex
	record := func(name string) Handler {
		return func(_ context.Context, evt Event) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}
	b.On("case.created", "first", record("first"))
	b.On("case.created", "second", record("second"))
	b.On("case.created", "third", record("third"))

	b.EmitAndWait(context.Background(), NewEvent("case.created", "case_1", nil))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestHandlerErrorDoesNotBlockSubsequentHandlers(t *testing.T) {
	b := New(nil)
	secondCalled := false
	b.On("case.created", "failing", func(_ context.Context, evt Event) error {
		return errors.New("boom")
	})
	b.On("case.created", "second", func(_ context.Context, evt Event) error {
		secondCalled = true
		return nil
	})

	b.EmitAndWait(context.Background(), NewEvent("case.created", "case_1", nil))
	assert.True(t, secondCalled)
}

func TestHandlerPanicDoesNotPropagate(t *testing.T) {
	b := New(nil)
	secondCalled := false
	b.On("case.created", "panicking", func(_ context.Context, evt Event) error {
		panic("unexpected")
	})
	b.On("case.created", "second", func(_ context.Context, evt Event) error {
		secondCalled = true
		return nil
	})

	require.NotPanics(t, func() {
		b.EmitAndWait(context.Background(), NewEvent("case.created", "case_1", nil))
	})
	assert.True(t, secondCalled)
}

func TestEmitIsAsyncAndDrainWaitsForCompletion(t *testing.T) {
	b := New(nil)
	done := make(chan struct{})
	b.On("case.created", "slow", func(_ context.Context, evt Event) error {
		close(done)
		return nil
	})

	b.Emit(context.Background(), NewEvent("case.created", "case_1", nil))
	b.Drain()

	select {
	case <-done:
	default:
		t.Fatal("expected handler to have completed after Drain")
	}
}

func TestNewEventGeneratesSourceEventUIDWhenBlank(t *testing.T) {
	evt := NewEvent("case.created", "case_1", nil)
	assert.NotEmpty(t, evt.SourceEventUID)
}

func TestEmitAndWaitFillsBlankSourceEventUID(t *testing.T) {
	b := New(nil)
	var received Event
	b.On("case.created", "recorder", func(_ context.Context, evt Event) error {
		received = evt
		return nil
	})
	b.EmitAndWait(context.Background(), Event{Type: "case.created"})
	assert.NotEmpty(t, received.SourceEventUID)
}
