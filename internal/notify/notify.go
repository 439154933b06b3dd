// Package notify implements the per-user notification channel: a registry
// of live sinks operators' clients attach to, fed by pipeline, investigation,
// and crawler completions so a UI can show progress without polling.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// Kind enumerates the notification kinds the rest of the platform emits.
type Kind string

const (
	KindAlert            Kind = "alert"
	KindCrawlerDone      Kind = "crawler_done"
	KindCronResult       Kind = "cron_result"
	KindPipelineProgress Kind = "pipeline_progress"
	KindCollectionDone   Kind = "collection_done"
)

// Sink receives one notification for a single user. A Sink wraps a live
// transport (WebSocket connection, SSE stream); a failing Sink is assumed
// dead and deregistered rather than retried.
type Sink interface {
	Send(ctx context.Context, kind Kind, payload any) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, kind Kind, payload any) error

func (f SinkFunc) Send(ctx context.Context, kind Kind, payload any) error { return f(ctx, kind, payload) }

// Ledger records delivery attempts for audit/replay. Satisfied by a thin
// wrapper over the Evidence Model Store's push_log table.
type Ledger interface {
	CreatePushLog(ctx context.Context, log model.PushLog) error
}

// NoopLedger discards every delivery record. The default when no Ledger is
// wired, so Hub remains usable without a database in tests.
type NoopLedger struct{}

func (NoopLedger) CreatePushLog(context.Context, model.PushLog) error { return nil }

// Hub is the per-user channel abstraction: register/unregister sinks,
// notify one user, or broadcast to everyone currently registered.
type Hub struct {
	mu     sync.RWMutex
	sinks  map[string][]registeredSink
	ledger Ledger
	logger *slog.Logger
}

type registeredSink struct {
	id   string
	sink Sink
}

// New constructs a Hub. ledger defaults to NoopLedger, logger to
// slog.Default, when nil.
func New(ledger Ledger, logger *slog.Logger) *Hub {
	if ledger == nil {
		ledger = NoopLedger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{sinks: map[string][]registeredSink{}, ledger: ledger, logger: logger}
}

// Register attaches sink under userID, returning an id Unregister can use
// to remove this exact sink later (a user may have more than one live
// connection, e.g. two open browser tabs).
func (h *Hub) Register(userID string, sink Sink) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := model.NewID("snk")
	h.sinks[userID] = append(h.sinks[userID], registeredSink{id: id, sink: sink})
	return id
}

// Unregister removes one previously registered sink by its Register id.
// A no-op if the sink was already removed (e.g. by a prior send failure).
func (h *Hub) Unregister(userID, sinkID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(userID, sinkID)
}

func (h *Hub) removeLocked(userID, sinkID string) {
	sinks := h.sinks[userID]
	for i, rs := range sinks {
		if rs.id == sinkID {
			h.sinks[userID] = append(sinks[:i], sinks[i+1:]...)
			break
		}
	}
	if len(h.sinks[userID]) == 0 {
		delete(h.sinks, userID)
	}
}

// Notify delivers a notification to every sink currently registered for
// userID. A sink whose Send fails is deregistered so a dead connection
// does not keep absorbing delivery attempts; failure of one sink does not
// prevent delivery to the user's other live sinks.
func (h *Hub) Notify(ctx context.Context, userID string, kind Kind, payload any) {
	h.mu.RLock()
	sinks := append([]registeredSink(nil), h.sinks[userID]...)
	h.mu.RUnlock()

	delivered := false
	for _, rs := range sinks {
		err := rs.sink.Send(ctx, kind, payload)
		h.logDelivery(ctx, userID, kind, payload, err)
		if err != nil {
			h.logger.Warn("notify: sink failed, deregistering", "user_id", userID, "sink_id", rs.id, "kind", kind, "error", err)
			h.mu.Lock()
			h.removeLocked(userID, rs.id)
			h.mu.Unlock()
			continue
		}
		delivered = true
	}
	if !delivered && len(sinks) == 0 {
		h.logDelivery(ctx, userID, kind, payload, fmt.Errorf("notify: no sink registered for user"))
	}
}

// Broadcast delivers a notification to every user with at least one
// registered sink.
func (h *Hub) Broadcast(ctx context.Context, kind Kind, payload any) {
	h.mu.RLock()
	userIDs := make([]string, 0, len(h.sinks))
	for userID := range h.sinks {
		userIDs = append(userIDs, userID)
	}
	h.mu.RUnlock()

	for _, userID := range userIDs {
		h.Notify(ctx, userID, kind, payload)
	}
}

// RegisteredUsers reports how many distinct users currently have at least
// one live sink, for health/metrics reporting.
func (h *Hub) RegisteredUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sinks)
}

func (h *Hub) logDelivery(ctx context.Context, userID string, kind Kind, payload any, sendErr error) {
	log := model.PushLog{
		UID:       model.NewID(model.KindPushLog),
		UserID:    userID,
		Kind:      string(kind),
		Payload:   payload,
		Delivered: sendErr == nil,
		CreatedAt: time.Now().UTC(),
	}
	if sendErr != nil {
		log.Error = sendErr.Error()
	}
	if err := h.ledger.CreatePushLog(ctx, log); err != nil {
		h.logger.Error("notify: write push log", "user_id", userID, "error", err)
	}
}
