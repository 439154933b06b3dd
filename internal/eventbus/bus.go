// Package eventbus implements the platform's in-process publish/subscribe
// primitive used to fan pipeline, investigation, and case-lifecycle events
// out to interested subscribers without coupling producers to consumers.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// Wildcard matches every event type.
const Wildcard = "*"

// Event is an immutable value dispatched through the Bus. SourceEventUID is
// mandatory; NewEvent always mints a fresh one. Consumers
// that need at-most-once handling dedupe on this id themselves, since the
// Bus makes no delivery-order guarantee across event types and may be
// wired to redeliver on reconnect in a future transport.
type Event struct {
	Type           string
	SourceEventUID string
	CaseUID        string
	Payload        any
	OccurredAt     time.Time
}

// NewEvent constructs an Event with a freshly generated SourceEventUID.
func NewEvent(eventType, caseUID string, payload any) Event {
	return Event{
		Type:           eventType,
		SourceEventUID: model.NewID("evl"),
		CaseUID:        caseUID,
		Payload:        payload,
		OccurredAt:     time.Now().UTC(),
	}
}

// Handler processes one Event. A returned error is logged, never
// propagated to the emitter.
type Handler func(ctx context.Context, evt Event) error

type registration struct {
	pattern string
	handler Handler
	name    string
	seq     int
}

// Bus is an in-process publish/subscribe dispatcher. Zero value is not
// usable; construct with New.
type Bus struct {
	mu     sync.RWMutex
	regs   []registration
	nextSeq int

	wg     sync.WaitGroup
	logger *slog.Logger
}

// New constructs an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// On registers handler for eventType, or for every event type when
// eventType is Wildcard. name is used only for log attribution when the
// handler errors or panics. Handlers for the same eventType fire in
// registration order (FIFO per type); a wildcard handler registered
// between two type-specific ones keeps its own relative position among
// all handlers matching a given event.
func (b *Bus) On(eventType string, name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.regs = append(b.regs, registration{pattern: eventType, handler: handler, name: name, seq: b.nextSeq})
	b.nextSeq++
}

func (b *Bus) matching(evt Event) []registration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]registration, 0, len(b.regs))
	for _, r := range b.regs {
		if r.pattern == Wildcard || r.pattern == evt.Type {
			out = append(out, r)
		}
	}
	return out
}

// Emit dispatches evt fire-and-forget: matching handlers run on a
// dedicated goroutine, in FIFO registration order, and a panicking or
// erroring handler is caught, logged, and does not block or fail its
// neighbors. Emit returns immediately; use Drain to wait for in-flight
// handlers (e.g. during graceful shutdown).
func (b *Bus) Emit(ctx context.Context, evt Event) {
	if evt.SourceEventUID == "" {
		evt.SourceEventUID = model.NewID("evl")
	}
	matches := b.matching(evt)
	if len(matches) == 0 {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.dispatch(ctx, evt, matches)
	}()
}

// EmitAndWait dispatches evt and blocks until every matching handler has
// run, for use in tests that need deterministic ordering.
func (b *Bus) EmitAndWait(ctx context.Context, evt Event) {
	if evt.SourceEventUID == "" {
		evt.SourceEventUID = model.NewID("evl")
	}
	b.dispatch(ctx, evt, b.matching(evt))
}

// Drain blocks until all in-flight Emit calls have completed their
// handlers. Used during graceful shutdown so no handler is left running
// against a torn-down dependency.
func (b *Bus) Drain() {
	b.wg.Wait()
}

func (b *Bus) dispatch(ctx context.Context, evt Event, matches []registration) {
	for _, r := range matches {
		b.runOne(ctx, evt, r)
	}
}

func (b *Bus) runOne(ctx context.Context, evt Event, r registration) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("eventbus handler panicked",
				"handler", r.name, "event_type", evt.Type, "source_event_uid", evt.SourceEventUID,
				"panic", fmt.Sprintf("%v", rec))
		}
	}()
	if err := r.handler(ctx, evt); err != nil {
		b.logger.Error("eventbus handler error",
			"handler", r.name, "event_type", evt.Type, "source_event_uid", evt.SourceEventUID,
			"error", err)
	}
}
