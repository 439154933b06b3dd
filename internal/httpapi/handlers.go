package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/evidentia-ai/evidentia/internal/auditledger"
	"github.com/evidentia-ai/evidentia/internal/auth"
	"github.com/evidentia-ai/evidentia/internal/broker"
	"github.com/evidentia-ai/evidentia/internal/eventbus"
	"github.com/evidentia-ai/evidentia/internal/hypothesis"
	"github.com/evidentia-ai/evidentia/internal/httpapi/problem"
	"github.com/evidentia-ai/evidentia/internal/model"
	"github.com/evidentia-ai/evidentia/internal/notify"
	"github.com/evidentia-ai/evidentia/internal/pipeline"
	"github.com/evidentia-ai/evidentia/internal/policy"
	"github.com/evidentia-ai/evidentia/internal/storage"
)

// Handlers holds every dependency the HTTP surface needs. Handler methods
// are grouped across cases.go, tools.go, pipelines.go, chat.go, quality.go,
// reads.go and ws.go; this file defines the struct, constructor, the small
// response helpers shared by all of them, and the /health and /config
// handlers.
type Handlers struct {
	db         *storage.DB
	ledger     *auditledger.Ledger
	broker     *broker.Broker
	policy     *policy.Engine
	jwtMgr     *auth.JWTManager
	runner     *pipeline.Runner
	tracker    *pipeline.PipelineTracker
	hypothesis *hypothesis.Engine
	notify     *notify.Hub
	events     *eventbus.Bus
	logger     *slog.Logger

	version             string
	maxRequestBodyBytes int64
	startedAt           time.Time
}

// HandlersDeps is the constructor argument bundle for NewHandlers.
type HandlersDeps struct {
	DB                  *storage.DB
	Ledger              *auditledger.Ledger
	Broker              *broker.Broker
	Policy              *policy.Engine
	JWTMgr              *auth.JWTManager
	Runner              *pipeline.Runner
	Tracker             *pipeline.PipelineTracker
	Hypothesis          *hypothesis.Engine
	Notify              *notify.Hub
	Events              *eventbus.Bus
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers builds a Handlers from its dependency bundle.
func NewHandlers(d HandlersDeps) *Handlers {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		db:                  d.DB,
		ledger:              d.Ledger,
		broker:              d.Broker,
		policy:              d.Policy,
		jwtMgr:              d.JWTMgr,
		runner:              d.Runner,
		tracker:             d.Tracker,
		hypothesis:          d.Hypothesis,
		notify:              d.Notify,
		events:              d.Events,
		logger:              logger,
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		startedAt:           time.Now().UTC(),
	}
}

// writeJSON writes a successful JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeProblem translates a storage/domain error into a Problem Details
// response, defaulting to the fallback code and title for anything not
// already classified.
func writeProblem(w http.ResponseWriter, r *http.Request, err error, fallback model.ErrorCode, title string) {
	if perr, ok := err.(*problem.Error); ok {
		problem.WriteJSON(w, perr.Details)
		return
	}
	switch {
	case err == storage.ErrNotFound || err == pgx.ErrNoRows:
		problem.WriteJSON(w, problem.New(model.ErrNotFound, "not found", err.Error(), r.URL.Path))
	case err == storage.ErrIntegrityConflict:
		problem.WriteJSON(w, problem.New(model.ErrIntegrityConflict, "conflict", err.Error(), r.URL.Path))
	default:
		problem.WriteJSON(w, problem.New(fallback, title, err.Error(), r.URL.Path))
	}
}

// actorFromContext returns the authenticated actor's ID, or "" if the
// request reached this handler unauthenticated (only /health and /config
// permit that).
func actorFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.ActorID
	}
	return ""
}

func parseLimitOffset(r *http.Request) (limit, offset int) {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	return limit, offset
}

// HandleHealth reports basic liveness, unauthenticated.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"uptime_sec": int(time.Since(h.startedAt).Seconds()),
		"version":    h.version,
	})
}

// HandleConfig reports the subset of runtime configuration that is safe to
// expose publicly (no secrets, no connection strings), unauthenticated.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	devMode, warning := h.policy.DevModeWarning()
	writeJSON(w, http.StatusOK, map[string]any{
		"version":         h.version,
		"dev_mode":        devMode,
		"dev_mode_notice": warning,
	})
}
