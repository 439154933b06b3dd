package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/evidentia-ai/evidentia/internal/auth"
	"github.com/evidentia-ai/evidentia/internal/httpapi/problem"
	"github.com/evidentia-ai/evidentia/internal/model"
	"github.com/evidentia-ai/evidentia/internal/ratelimit"
	"github.com/evidentia-ai/evidentia/internal/storage"
)

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return v
	}
	return ""
}

type claimsContextKey struct{}

// ClaimsFromContext extracts the authenticated actor's Claims, if any.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	if v, ok := ctx.Value(claimsContextKey{}).(*auth.Claims); ok {
		return v
	}
	return nil
}

func withClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, c)
}

// requestIDMiddleware assigns a unique request ID to each request.
// Client-supplied IDs are accepted if they are reasonable length (<=128
// chars) and contain only printable ASCII, otherwise a fresh UUID is used.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if !isValidRequestID(reqID) {
			reqID = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), contextKeyRequestID, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isValidRequestID(id string) bool {
	if len(id) == 0 || len(id) > 128 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// loggingMiddleware logs each request with structured fields.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", RequestIDFromContext(r.Context()),
		}
		if tid := traceIDFromContext(r.Context()); tid != "" {
			attrs = append(attrs, "trace_id", tid)
		}
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			attrs = append(attrs, "actor_id", claims.ActorID)
		}

		level := slog.LevelInfo
		if wrapped.statusCode >= 500 {
			level = slog.LevelError
		} else if wrapped.statusCode >= 400 {
			level = slog.LevelWarn
		}
		logger.Log(r.Context(), level, "http request", attrs...)
	})
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher so the WebSocket upgrade and any future
// SSE endpoints work through the middleware chain.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter, letting http.Hijacker and
// http.ResponseController reach through the wrapper (needed by the
// WebSocket upgrade, which hijacks the connection).
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

var (
	tracer           = otel.Tracer("evidentia/http")
	httpMeter        = otel.GetMeterProvider().Meter("evidentia/http")
	httpRequestCount otelmetric.Int64Counter
	httpDuration     otelmetric.Float64Histogram
)

func init() {
	var err error
	httpRequestCount, err = httpMeter.Int64Counter("http.server.request_count")
	if err != nil {
		httpRequestCount, _ = httpMeter.Int64Counter("http.server.request_count.fallback")
	}
	httpDuration, err = httpMeter.Float64Histogram("http.server.duration", otelmetric.WithUnit("ms"))
	if err != nil {
		httpDuration, _ = httpMeter.Float64Histogram("http.server.duration.fallback", otelmetric.WithUnit("ms"))
	}
}

// routePattern extracts the registered mux pattern for metrics/spans,
// bounding cardinality instead of using the raw resolved path.
func routePattern(r *http.Request) string {
	if pat := r.Pattern; pat != "" {
		return pat
	}
	parts := strings.SplitN(r.URL.Path, "/", 4)
	if len(parts) >= 3 {
		return r.Method + " /" + parts[1] + "/" + parts[2]
	}
	return r.Method + " " + r.URL.Path
}

// tracingMiddleware creates an OTEL span per request and records request
// count/duration metrics using the mux route pattern as the label.
func tracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "http.request",
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.url", r.URL.Path),
				attribute.String("http.request_id", RequestIDFromContext(r.Context())),
			),
		)
		defer span.End()

		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(w.Header()))

		start := time.Now()

		sw, ok := w.(*statusWriter)
		if !ok {
			sw = &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		}
		next.ServeHTTP(sw, r.WithContext(ctx))

		pattern := routePattern(r)
		span.SetName(pattern)

		duration := time.Since(start)
		span.SetAttributes(attribute.Int("http.status_code", sw.statusCode))

		attrs := []attribute.KeyValue{
			attribute.String("http.method", r.Method),
			attribute.String("http.route", pattern),
			attribute.String("http.status_code", strconv.Itoa(sw.statusCode)),
		}
		if claims := ClaimsFromContext(ctx); claims != nil {
			span.SetAttributes(
				attribute.String("evidentia.actor_id", claims.ActorID),
				attribute.String("evidentia.role", string(claims.Role)),
			)
			attrs = append(attrs, attribute.String("evidentia.actor_id", claims.ActorID))
		}

		httpRequestCount.Add(ctx, 1, otelmetric.WithAttributes(attrs...))
		httpDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(attrs...))
	})
}

func traceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// baggageMiddleware promotes the evidentia.case_uid OTEL baggage member (if
// present) to a span attribute, letting a calling service correlate its own
// trace with the case an API call operated on.
func baggageMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bag := baggage.FromContext(r.Context())
		if member := bag.Member("evidentia.case_uid"); member.Value() != "" {
			span := trace.SpanFromContext(r.Context())
			span.SetAttributes(attribute.String("evidentia.case_uid", member.Value()))
		}
		next.ServeHTTP(w, r)
	})
}

// noAuthPaths are exact paths that skip authentication entirely; every
// other path is authenticated by authMiddleware.
var noAuthPaths = map[string]bool{
	"/health": true,
	"/config": true,
}

// authMiddleware validates a Bearer JWT or an ApiKey credential and
// populates the request context with Claims. Every path is authenticated
// except the exact paths in noAuthPaths.
//
// Supported schemes:
//   - Bearer <jwt>            — Ed25519-signed token issued by auth.JWTManager
//   - ApiKey <actor_id>:<key> — bcrypt-verified API key, for machine clients
func authMiddleware(jwtMgr *auth.JWTManager, db *storage.DB, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if noAuthPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			problem.WriteJSON(w, problem.New(model.ErrUnauthorized, "unauthorized", "missing authorization header", r.URL.Path))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 {
			problem.WriteJSON(w, problem.New(model.ErrUnauthorized, "unauthorized", "invalid authorization format", r.URL.Path))
			return
		}
		scheme, credential := parts[0], parts[1]

		var claims *auth.Claims
		switch {
		case strings.EqualFold(scheme, "Bearer"):
			var err error
			claims, err = jwtMgr.ValidateToken(credential)
			if err != nil {
				problem.WriteJSON(w, problem.New(model.ErrUnauthorized, "unauthorized", "invalid or expired token", r.URL.Path))
				return
			}
		case strings.EqualFold(scheme, "ApiKey"):
			var err error
			claims, err = verifyAPIKeyCredential(r.Context(), db, credential)
			if err != nil {
				problem.WriteJSON(w, problem.New(model.ErrUnauthorized, "unauthorized", "invalid api key", r.URL.Path))
				return
			}
		default:
			problem.WriteJSON(w, problem.New(model.ErrUnauthorized, "unauthorized", "unsupported authorization scheme (use Bearer or ApiKey)", r.URL.Path))
			return
		}

		ctx := withClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// verifyAPIKeyCredential authenticates "ApiKey actor_id:secret" credentials
// against the Actor's stored bcrypt hash, synthesizing Claims equivalent to
// what a JWT would carry.
func verifyAPIKeyCredential(ctx context.Context, db *storage.DB, credential string) (*auth.Claims, error) {
	colonIdx := strings.IndexByte(credential, ':')
	if colonIdx < 1 || colonIdx == len(credential)-1 {
		auth.DummyVerify()
		return nil, fmt.Errorf("httpapi: invalid api key format")
	}
	actorID := credential[:colonIdx]
	rawKey := credential[colonIdx+1:]

	actor, err := db.GetActorByActorID(ctx, actorID)
	if err != nil || actor.APIKeyHash == "" {
		auth.DummyVerify()
		return nil, fmt.Errorf("httpapi: invalid credentials")
	}

	if !auth.VerifyAPIKey(rawKey, actor.APIKeyHash) {
		return nil, fmt.Errorf("httpapi: invalid credentials")
	}

	return &auth.Claims{ActorID: actor.ActorID, Role: actor.Role}, nil
}

// requireRole returns middleware enforcing a minimum role level against the
// authenticated Claims.
func requireRole(minRole model.ActorRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				problem.WriteJSON(w, problem.New(model.ErrUnauthorized, "unauthorized", "no claims in context", r.URL.Path))
				return
			}
			if !model.RoleAtLeast(claims.Role, minRole) {
				problem.WriteJSON(w, problem.New(model.ErrPolicyDenied, "forbidden", "insufficient permissions", r.URL.Path))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware enforces a per-actor request budget. Unauthenticated
// requests (the narrow noAuthPaths set) key on remote IP instead.
func rateLimitMiddleware(limiter *ratelimit.Limiter, rule ratelimit.Rule, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			key = claims.ActorID
		}

		result := limiter.Allow(r.Context(), rule, key)
		headers := result.FormatHeaders()
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		if !result.Allowed {
			w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(result.ResetAt).Seconds()), 10))
			problem.WriteJSON(w, problem.New(model.ErrRateLimited, "rate limited", "request rate limit exceeded", r.URL.Path))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	return r.RemoteAddr
}

// recoveryMiddleware catches panics in downstream handlers, logs the stack
// trace, and returns a Problem Details 500 instead of crashing the server.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
				)
				problem.WriteJSON(w, problem.New(model.ErrInternal, "internal server error", "", r.URL.Path))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware handles CORS preflight and reflects allowed origins. A
// single "*" entry permits any origin.
func corsMiddleware(allowedOrigins []string, next http.Handler) http.Handler {
	originSet := make(map[string]bool, len(allowedOrigins))
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			break
		}
		originSet[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || originSet[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// securityHeadersMiddleware adds standard security response headers.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// decodeJSON decodes a JSON request body into target, rejecting unknown
// fields and bounding the body size.
func decodeJSON(r *http.Request, target any, maxBytes int64) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}
