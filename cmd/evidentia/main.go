package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/evidentia-ai/evidentia/internal/auditledger"
	"github.com/evidentia-ai/evidentia/internal/auth"
	"github.com/evidentia-ai/evidentia/internal/broker"
	"github.com/evidentia-ai/evidentia/internal/config"
	"github.com/evidentia-ai/evidentia/internal/eventbus"
	"github.com/evidentia-ai/evidentia/internal/httpapi"
	"github.com/evidentia-ai/evidentia/internal/hypothesis"
	"github.com/evidentia-ai/evidentia/internal/ingestion"
	"github.com/evidentia-ai/evidentia/internal/mcp"
	"github.com/evidentia-ai/evidentia/internal/notify"
	"github.com/evidentia-ai/evidentia/internal/pipeline"
	"github.com/evidentia-ai/evidentia/internal/policy"
	"github.com/evidentia-ai/evidentia/internal/ratelimit"
	"github.com/evidentia-ai/evidentia/internal/storage"
	"github.com/evidentia-ai/evidentia/internal/telemetry"
	"github.com/evidentia-ai/evidentia/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := parseLogLevel(os.Getenv("EVIDENTIA_LOG_LEVEL"))
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("evidentia starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := storage.New(ctx, cfg.DatabaseURL, cfg.NotifyURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close(ctx)

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	var schemaOK bool
	if err := db.Pool().QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'cases')`,
	).Scan(&schemaOK); err != nil {
		return fmt.Errorf("schema verification: %w", err)
	}
	if !schemaOK {
		return fmt.Errorf("critical table 'cases' does not exist after migration")
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	ledger, err := auditledger.New(db.Pool(), cfg.AuditJSONLDir, logger)
	if err != nil {
		return fmt.Errorf("auditledger: %w", err)
	}

	// Redis backs both the Policy Engine's per-(tool,host) sliding window
	// and the HTTP API's per-actor rate limit. A blank EVIDENTIA_REDIS_URL
	// disables both: ratelimit.New(nil, ...) and policy.NewEngine(..., nil)
	// both degrade to allow-all rather than failing startup, so a
	// single-node deployment without Redis still runs.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: parse url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer func() { _ = redisClient.Close() }()
		logger.Info("redis: connected", "addr", opts.Addr)
	} else {
		logger.Info("redis: disabled (no EVIDENTIA_REDIS_URL); rate limiting is allow-all")
	}

	limiter := ratelimit.New(redisClient, logger, false)
	policyEngine := policy.NewEngine(cfg.ToolAllowlist, time.Duration(cfg.ToolMinIntervalMS)*time.Millisecond, limiter)
	if devMode, warning := policyEngine.DevModeWarning(); devMode {
		logger.Warn(warning)
	}

	toolBroker := wireBroker(cfg, ledger, policyEngine, logger)

	hypoGenerator := wireHypothesisGenerator(cfg, logger)
	hypoEngine := hypothesis.NewEngine(hypoGenerator)

	registry := pipeline.NewRegistry(
		pipeline.AssertionFuseStage{},
		pipeline.HypothesisAnalyzeStage{Engine: hypoEngine},
		pipeline.HypothesisMultiPerspectiveStage{Engine: hypoEngine},
		pipeline.AdversarialEvaluateStage{},
		pipeline.NarrativeBuildStage{},
		pipeline.KGBuildStage{},
		pipeline.ForecastGenerateStage{Store: db},
		pipeline.QualityScoreStage{},
		pipeline.ReportGenerateStage{},
		pipeline.OSINTCollectStage{},
	)
	tracker := pipeline.NewPipelineTracker()
	runner := pipeline.NewRunner(registry, tracker, db, logger)

	notifyHub := notify.New(db, logger)
	events := eventbus.New(logger)

	mcpSrv := mcp.New(toolBroker, logger, version)

	srv := httpapi.New(httpapi.ServerConfig{
		DB:                 db,
		Ledger:             ledger,
		Broker:             toolBroker,
		Policy:             policyEngine,
		JWTMgr:             jwtMgr,
		Runner:             runner,
		Tracker:            tracker,
		Hypothesis:         hypoEngine,
		Notify:             notifyHub,
		Events:             events,
		Logger:             logger,
		RateLimiter:        limiter,
		MCPServer:          mcpSrv.MCPServer(),
		Port:               cfg.Port,
		ReadTimeout:        cfg.ReadTimeout,
		WriteTimeout:       cfg.WriteTimeout,
		Version:            version,
		CORSAllowedOrigins: envCORSOrigins(),
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("evidentia shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	httpCancel()

	slog.Info("evidentia stopped")
	return nil
}

// wireBroker constructs the Tool Broker and attaches whichever backends the
// environment configures. Each backend is independently optional: the
// broker's own nil-checks turn a missing one into a model_unavailable-style
// error at call time rather than a panic, so a deployment with no search
// key still serves archive_url and doc_parse.
func wireBroker(cfg config.Config, ledger *auditledger.Ledger, policyEngine *policy.Engine, logger *slog.Logger) *broker.Broker {
	b := broker.New(ledger, policyEngine, cfg.FetchTimeout, cfg.LLMTimeout, logger)
	b = b.WithFetcher(broker.NewHTTPFetcher(cfg.FetchTimeout))
	b = b.WithParser(docParserAdapter{})

	if apiKey := os.Getenv("EVIDENTIA_SEARCH_API_KEY"); apiKey != "" {
		if search, err := broker.NewHTTPSearchProvider(os.Getenv("EVIDENTIA_SEARCH_BASE_URL"), apiKey); err != nil {
			logger.Warn("search provider init failed", "error", err)
		} else {
			b = b.WithSearch(search)
			logger.Info("tool broker: meta_search enabled")
		}
	} else {
		logger.Info("tool broker: meta_search disabled (no EVIDENTIA_SEARCH_API_KEY)")
	}

	if apiKey := os.Getenv("EVIDENTIA_EMBEDDING_API_KEY"); apiKey != "" {
		model := envOr("EVIDENTIA_EMBEDDING_MODEL", "text-embedding-3-small")
		if embedder, err := ingestion.NewHTTPEmbeddingProvider(os.Getenv("EVIDENTIA_EMBEDDING_BASE_URL"), apiKey, model, 0); err != nil {
			logger.Warn("embedding provider init failed", "error", err)
		} else {
			b = b.WithEmbedder(embedder)
			logger.Info("tool broker: embed enabled", "model", model)
		}
	} else {
		logger.Info("tool broker: embed disabled (no EVIDENTIA_EMBEDDING_API_KEY)")
	}

	if apiKey := os.Getenv("EVIDENTIA_GENERATION_API_KEY"); apiKey != "" {
		model := envOr("EVIDENTIA_GENERATION_MODEL", cfg.DefaultModelID)
		if generator, err := broker.NewHTTPStructuredGenerator(os.Getenv("EVIDENTIA_GENERATION_BASE_URL"), apiKey, model); err != nil {
			logger.Warn("generator init failed", "error", err)
		} else {
			b = b.WithGenerator(generator)
			logger.Info("tool broker: generate_structured enabled", "model", model)
		}
	} else {
		logger.Info("tool broker: generate_structured disabled (no EVIDENTIA_GENERATION_API_KEY)")
	}

	return b
}

// wireHypothesisGenerator mirrors wireBroker's generator wiring for the
// Hypothesis Engine's own LLM call, which proposes candidate hypotheses
// from a case's assertions rather than answering an arbitrary chat
// question. A nil Generator makes Engine.Generate fall back to its
// deterministic archetypes, so this is safe to leave unconfigured.
func wireHypothesisGenerator(cfg config.Config, logger *slog.Logger) hypothesis.Generator {
	apiKey := os.Getenv("EVIDENTIA_GENERATION_API_KEY")
	if apiKey == "" {
		return nil
	}
	model := envOr("EVIDENTIA_GENERATION_MODEL", cfg.DefaultModelID)
	gen, err := hypothesis.NewHTTPGenerator(os.Getenv("EVIDENTIA_GENERATION_BASE_URL"), apiKey, model)
	if err != nil {
		logger.Warn("hypothesis generator init failed", "error", err)
		return nil
	}
	return gen
}

// docParserAdapter adapts ingestion.ParserFor's MIME-type dispatch to the
// broker.DocParser contract, which additionally carries the MIME type on
// every call instead of baking it into the Parser value up front.
type docParserAdapter struct{}

func (docParserAdapter) Parse(content []byte, mimeType string) (string, string) {
	return ingestion.ParserFor(mimeType).Parse(content)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envCORSOrigins reads an optional comma-separated allowlist. An empty
// result means the CORS middleware reflects no origin, the conservative
// default for a deployment that hasn't explicitly opted a browser UI in.
func envCORSOrigins() []string {
	raw := os.Getenv("EVIDENTIA_CORS_ALLOWED_ORIGINS")
	if raw == "" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func parseLogLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
