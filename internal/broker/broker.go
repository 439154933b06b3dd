// Package broker implements the Tool Broker: the single choke-point for
// outbound effects (search, fetch, parse, embed, generate). Every operation
// opens an Action, evaluates policy, calls the external service under a
// deadline, and writes a ToolTrace recording the request/response shape,
// status, duration, and the authorizing policy decision — whether or not
// the call was ultimately admitted.
package broker

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/evidentia-ai/evidentia/internal/httpapi/problem"
	"github.com/evidentia-ai/evidentia/internal/model"
	"github.com/evidentia-ai/evidentia/internal/telemetry"
)

// ActionRecorder is the subset of auditledger.Ledger the broker needs to
// record Actions and ToolTraces.
type ActionRecorder interface {
	RecordAction(ctx context.Context, a model.Action) error
	RecordToolTrace(ctx context.Context, t model.ToolTrace) error
}

// PolicyEvaluator is the subset of policy.Engine the broker needs to gate
// outbound calls.
type PolicyEvaluator interface {
	EvaluateOutboundURL(ctx context.Context, toolName, rawURL string) model.PolicyDecision
}

// Broker wires the Policy Engine and audit ledger around the concrete tool
// implementations (search, fetch, parse, embed, generate).
type Broker struct {
	ledger ActionRecorder
	policy PolicyEvaluator
	logger *slog.Logger

	fetchTimeout time.Duration
	llmTimeout   time.Duration

	search    SearchProvider
	fetcher   Fetcher
	parser    DocParser
	embedder  Embedder
	generator Generator

	archiveGroup singleflight.Group
}

// New constructs a Broker. Any of search/fetcher/parser/embedder/generator
// may be nil; the corresponding operation then returns an error rather than
// panicking (ErrNoSearchProvider, ErrNoParser, ErrNoEmbedder or
// ErrNoGenerator, which the HTTP layer reports as model_unavailable; a nil
// fetcher gives a plain error recorded as gateway_error), so a deployment
// can run with a partial tool surface (e.g. no configured search provider)
// without disabling the rest.
func New(ledger ActionRecorder, policyEngine PolicyEvaluator, fetchTimeout, llmTimeout time.Duration, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		ledger:       ledger,
		policy:       policyEngine,
		logger:       logger,
		fetchTimeout: fetchTimeout,
		llmTimeout:   llmTimeout,
	}
}

// WithSearch installs the meta_search backend.
func (b *Broker) WithSearch(p SearchProvider) *Broker { b.search = p; return b }

// WithFetcher installs the archive_url backend.
func (b *Broker) WithFetcher(f Fetcher) *Broker { b.fetcher = f; return b }

// WithParser installs the doc_parse backend.
func (b *Broker) WithParser(p DocParser) *Broker { b.parser = p; return b }

// WithEmbedder installs the embed backend.
func (b *Broker) WithEmbedder(e Embedder) *Broker { b.embedder = e; return b }

// WithGenerator installs the generate_structured backend.
func (b *Broker) WithGenerator(g Generator) *Broker { b.generator = g; return b }

// callCtx is the shared bookkeeping for one Tool Broker operation: the
// Action it opens and the monotonic clock it measures duration against.
type callCtx struct {
	action    model.Action
	startedAt time.Time
}

func (b *Broker) newCall(ctx context.Context, caseUID, actorID, toolName string, rationale string, inputs map[string]any) callCtx {
	traceID, spanID := telemetry.TraceSpanIDs(ctx)
	return callCtx{
		action: model.Action{
			UID:        model.NewID(model.KindAction),
			CaseUID:    caseUID,
			ActionType: "tool." + toolName,
			ActorID:    actorID,
			Rationale:  rationale,
			Inputs:     inputs,
			Outputs:    map[string]any{},
			TraceID:    traceID,
			SpanID:     spanID,
			CreatedAt:  time.Now().UTC(),
		},
		startedAt: time.Now(),
	}
}

// finish records the Action, attaches the given policy decision, and
// writes the ToolTrace. When decision.Allowed is false, status is
// ToolStatusDenied and a problem.Error carrying the decision's error code is
// returned; a non-nil callErr gives status error with error_code
// gateway_error and is returned as is.
func (b *Broker) finish(ctx context.Context, call callCtx, toolName string, decision model.PolicyDecision, response map[string]any, callErr error) error {
	duration := time.Since(call.startedAt)

	status := model.ToolStatusOK
	var traceErr string
	switch {
	case !decision.Allowed:
		status = model.ToolStatusDenied
		call.action.Outputs["error_code"] = decision.ErrorCode
	case callErr != nil:
		status = model.ToolStatusError
		traceErr = callErr.Error()
		call.action.Outputs["error_code"] = string(model.ErrGatewayError)
	}

	if err := b.ledger.RecordAction(ctx, call.action); err != nil {
		b.logger.Error("broker: record action failed", "action_uid", call.action.UID, "error", err)
		return err
	}

	trace := model.ToolTrace{
		UID:        model.NewID(model.KindToolTrace),
		ActionUID:  call.action.UID,
		ToolName:   toolName,
		Request:    call.action.Inputs,
		Response:   response,
		Status:     status,
		DurationMS: duration.Milliseconds(),
		Error:      traceErr,
		Policy:     decision,
		CreatedAt:  time.Now().UTC(),
	}
	if err := b.ledger.RecordToolTrace(ctx, trace); err != nil {
		b.logger.Error("broker: record tool trace failed", "trace_uid", trace.UID, "error", err)
		return err
	}

	if !decision.Allowed {
		return problem.Wrap(model.ErrorCode(decision.ErrorCode), decision.Reason)
	}
	if callErr != nil {
		return callErr
	}
	return nil
}

func allowedDecision() model.PolicyDecision {
	return model.PolicyDecision{Allowed: true, Reason: "allowed"}
}
