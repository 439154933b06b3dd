// Package hypothesis implements the Hypothesis Engine: generating
// candidate hypotheses from fused Assertions, analyzing each one against
// the evidence it cites (Analysis of Competing Hypotheses style), fanning
// generation out across adversarial personas, and scoring the
// meta-cognitive quality of a resulting Judgment.
package hypothesis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// GenerateRequest carries the context a structured LLM call needs to
// propose hypotheses grounded in a case's fused Assertions.
type GenerateRequest struct {
	CaseUID      string
	Assertions   []model.Assertion
	SourceClaims []model.SourceClaim
	Context      string
}

// GeneratedHypothesis is the shape a Generator must return per candidate;
// the Engine mints identifiers and timestamps itself so Generator
// implementations stay free of model-package bookkeeping.
type GeneratedHypothesis struct {
	Label     string   `json:"label"`
	Statement string   `json:"statement"`
	Rationale string   `json:"rationale,omitempty"`
	CitesUIDs []string `json:"cites_assertion_uids,omitempty"`
}

// Generator proposes hypotheses via a structured LLM call (the Tool
// Broker's generate_structured operation in production). It may return an
// empty slice or an error; Engine.Generate always falls back to the
// deterministic archetypes rather than propagating either.
type Generator interface {
	GenerateHypotheses(ctx context.Context, req GenerateRequest) ([]GeneratedHypothesis, error)
}

// NoopGenerator always returns no hypotheses, forcing Engine.Generate onto
// the deterministic fallback. Useful as the default when no LLM backend is
// wired, and in tests that want to exercise fallback behavior.
type NoopGenerator struct{}

func (NoopGenerator) GenerateHypotheses(context.Context, GenerateRequest) ([]GeneratedHypothesis, error) {
	return nil, nil
}

const (
	archetypeContinuation = "continuation_of_status_quo"
	archetypeEscalation   = "escalation"
	archetypeDeescalation = "de_escalation"
)

// fallbackHypotheses builds the deterministic three-hypothesis set used
// whenever a structured generation call returns nothing usable. The
// archetypes are generic enough to apply to any case: the pipeline would
// rather ship an under-specific hypothesis set than ship none at all, since
// a downstream stage requires at least one Hypothesis to analyze.
func fallbackHypotheses(caseUID string, assertionUIDs []string) []model.Hypothesis {
	specs := []struct {
		archetype string
		label     string
		statement string
	}{
		{archetypeContinuation, "Continuation of status quo", "The situation continues along its current trajectory without a material change in direction."},
		{archetypeEscalation, "Escalation", "The situation intensifies beyond its current state, driven by the same factors observed so far."},
		{archetypeDeescalation, "De-escalation", "The situation recedes or resolves, with the observed drivers weakening or being addressed."},
	}
	out := make([]model.Hypothesis, 0, len(specs))
	for _, s := range specs {
		h := model.NewHypothesis(caseUID, s.label, s.statement, len(specs))
		h.SupportingAssertionUIDs = append([]string{}, assertionUIDs...)
		out = append(out, h)
	}
	return out
}

// Engine is the Hypothesis Engine. It holds no state across calls beyond
// its Generator dependency; every operation is a pure function of its
// arguments plus whatever the Generator returns.
type Engine struct {
	generator Generator
}

// NewEngine constructs an Engine. A nil generator is replaced with
// NoopGenerator so Generate always has deterministic fallback behavior
// even when no LLM backend has been wired yet.
func NewEngine(generator Generator) *Engine {
	if generator == nil {
		generator = NoopGenerator{}
	}
	return &Engine{generator: generator}
}

// GenerateResult reports whether the deterministic fallback fired, so
// callers can stamp outputs.fallback=true on the Action they record.
type GenerateResult struct {
	Hypotheses []model.Hypothesis
	Fallback   bool
}

// Generate produces hypotheses for a case. If the Generator returns an
// empty list or an error, it never returns zero hypotheses: the
// deterministic continuation/escalation/de-escalation archetypes are
// emitted instead, and Fallback is set so the caller's Action records
// outputs.fallback=true.
func (e *Engine) Generate(ctx context.Context, req GenerateRequest) GenerateResult {
	assertionUIDs := make([]string, len(req.Assertions))
	for i, a := range req.Assertions {
		assertionUIDs[i] = a.UID
	}

	generated, err := e.generator.GenerateHypotheses(ctx, req)
	if err != nil || len(generated) == 0 {
		return GenerateResult{Hypotheses: fallbackHypotheses(req.CaseUID, assertionUIDs), Fallback: true}
	}

	hyps := make([]model.Hypothesis, 0, len(generated))
	for _, g := range generated {
		h := model.NewHypothesis(req.CaseUID, g.Label, g.Statement, len(generated))
		if len(g.CitesUIDs) > 0 {
			h.SupportingAssertionUIDs = g.CitesUIDs
		} else {
			h.SupportingAssertionUIDs = append([]string{}, assertionUIDs...)
		}
		hyps = append(hyps, h)
	}
	return GenerateResult{Hypotheses: hyps, Fallback: false}
}

// marshalContext renders a GenerateRequest's evidentiary context as a
// compact JSON blob, convenient for embedding in an LLM prompt without
// pulling in a templating dependency.
func marshalContext(req GenerateRequest) (string, error) {
	payload := struct {
		Context      string             `json:"context,omitempty"`
		Assertions   []model.Assertion  `json:"assertions"`
		SourceClaims []model.SourceClaim `json:"source_claims"`
	}{
		Context:      req.Context,
		Assertions:   req.Assertions,
		SourceClaims: req.SourceClaims,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("hypothesis: marshal generate context: %w", err)
	}
	return string(b), nil
}
