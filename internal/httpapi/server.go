package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/evidentia-ai/evidentia/internal/auditledger"
	"github.com/evidentia-ai/evidentia/internal/auth"
	"github.com/evidentia-ai/evidentia/internal/broker"
	"github.com/evidentia-ai/evidentia/internal/eventbus"
	"github.com/evidentia-ai/evidentia/internal/hypothesis"
	"github.com/evidentia-ai/evidentia/internal/model"
	"github.com/evidentia-ai/evidentia/internal/notify"
	"github.com/evidentia-ai/evidentia/internal/pipeline"
	"github.com/evidentia-ai/evidentia/internal/policy"
	"github.com/evidentia-ai/evidentia/internal/ratelimit"
	"github.com/evidentia-ai/evidentia/internal/storage"
)

// Server is the Evidentia HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler, for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration needed to build a
// Server. RateLimiter may be nil to disable rate limiting (e.g. in tests or
// when no Redis backend is configured).
type ServerConfig struct {
	DB         *storage.DB
	Ledger     *auditledger.Ledger
	Broker     *broker.Broker
	Policy     *policy.Engine
	JWTMgr     *auth.JWTManager
	Runner     *pipeline.Runner
	Tracker    *pipeline.PipelineTracker
	Hypothesis *hypothesis.Engine
	Notify     *notify.Hub
	Events     *eventbus.Bus
	Logger     *slog.Logger

	RateLimiter *ratelimit.Limiter

	// MCPServer mounts the Model Context Protocol surface at /mcp. Nil
	// disables it.
	MCPServer *mcpserver.MCPServer

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	CORSAllowedOrigins  []string
}

// New builds a Server with every route from spec §6 wired against the
// middleware chain: request ID -> security headers -> CORS -> tracing ->
// logging -> baggage -> auth -> recovery -> rate limit -> handler.
func New(cfg ServerConfig) *Server {
	if cfg.MaxRequestBodyBytes <= 0 {
		cfg.MaxRequestBodyBytes = 2 << 20 // 2 MiB
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		Ledger:              cfg.Ledger,
		Broker:              cfg.Broker,
		Policy:              cfg.Policy,
		JWTMgr:              cfg.JWTMgr,
		Runner:              cfg.Runner,
		Tracker:             cfg.Tracker,
		Hypothesis:          cfg.Hypothesis,
		Notify:              cfg.Notify,
		Events:              cfg.Events,
		Logger:              logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	mux := http.NewServeMux()

	// Unauthenticated.
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /config", h.HandleConfig)

	analyst := requireRole(model.RoleAnalyst)
	reader := requireRole(model.RoleReader)

	// Cases.
	mux.Handle("POST /cases", analyst(http.HandlerFunc(h.HandleCreateCase)))
	mux.Handle("GET /cases/{uid}", reader(http.HandlerFunc(h.HandleGetCase)))
	mux.Handle("GET /cases/{uid}/artifacts", reader(http.HandlerFunc(h.HandleListCaseArtifacts)))
	mux.Handle("POST /cases/{uid}/fixtures/import", analyst(http.HandlerFunc(h.HandleImportFixture)))

	// Case-scoped tool broker.
	mux.Handle("POST /cases/{uid}/tools/archive_url", analyst(http.HandlerFunc(h.HandleCaseArchiveURL)))

	// Pipeline orchestration.
	mux.Handle("POST /cases/{uid}/pipelines/full_analysis", analyst(http.HandlerFunc(h.HandleRunFullAnalysis)))
	mux.Handle("POST /cases/{uid}/pipelines/run_stage", analyst(http.HandlerFunc(h.HandleRunStage)))
	mux.Handle("GET /cases/{uid}/pipelines/{run_id}", reader(http.HandlerFunc(h.HandleGetPipelineRun)))
	mux.Handle("POST /cases/{uid}/analysis/multi_perspective", analyst(http.HandlerFunc(h.HandleMultiPerspective)))
	mux.Handle("POST /cases/{uid}/analysis/chat", reader(http.HandlerFunc(h.HandleChat)))
	mux.Handle("POST /cases/{uid}/quality/score_judgment", analyst(http.HandlerFunc(h.HandleScoreJudgment)))

	// Read projections.
	mux.Handle("GET /artifacts/versions/{uid}", reader(http.HandlerFunc(h.HandleGetArtifactVersion)))
	mux.Handle("GET /evidence/{uid}", reader(http.HandlerFunc(h.HandleGetEvidence)))
	mux.Handle("GET /source_claims/{uid}", reader(http.HandlerFunc(h.HandleGetSourceClaim)))
	mux.Handle("GET /assertions/{uid}", reader(http.HandlerFunc(h.HandleGetAssertion)))
	mux.Handle("GET /judgments/{uid}", reader(http.HandlerFunc(h.HandleGetJudgment)))
	mux.Handle("GET /tool_traces/{uid}", reader(http.HandlerFunc(h.HandleGetToolTrace)))

	// Internal tool broker HTTP surface.
	mux.Handle("POST /tools/meta_search", analyst(http.HandlerFunc(h.HandleToolMetaSearch)))
	mux.Handle("POST /tools/archive_url", analyst(http.HandlerFunc(h.HandleToolArchiveURL)))
	mux.Handle("POST /tools/doc_parse", analyst(http.HandlerFunc(h.HandleToolDocParse)))

	// WebSocket: chat + notify frames.
	mux.Handle("GET /ws", reader(http.HandlerFunc(h.HandleWebSocket)))

	// MCP StreamableHTTP transport (auth required, reader+).
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", reader(mcpHTTP))
	}

	// Middleware chain (outermost executes first), matching the order the
	// ambient stack's teacher middleware uses.
	var handler http.Handler = mux
	if cfg.RateLimiter != nil {
		handler = rateLimitMiddleware(cfg.RateLimiter, ratelimit.Rule{Prefix: "http", Limit: 120, Window: time.Minute}, handler)
	}
	handler = recoveryMiddleware(logger, handler)
	handler = authMiddleware(cfg.JWTMgr, cfg.DB, handler)
	handler = baggageMiddleware(handler)
	handler = loggingMiddleware(logger, handler)
	handler = tracingMiddleware(handler)
	handler = corsMiddleware(cfg.CORSAllowedOrigins, handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  2 * readTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   logger,
	}
}

// Handlers returns the underlying Handlers, e.g. for wiring background
// jobs that need direct access to the same dependencies.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests; blocks until Shutdown or a fatal
// listener error.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
