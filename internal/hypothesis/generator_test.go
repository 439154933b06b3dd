package hypothesis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentia-ai/evidentia/internal/model"
)

type stubGenerator struct {
	hyps []GeneratedHypothesis
	err  error
}

func (s stubGenerator) GenerateHypotheses(context.Context, GenerateRequest) ([]GeneratedHypothesis, error) {
	return s.hyps, s.err
}

func TestGenerateFallsBackOnEmptyGeneratorResult(t *testing.T) {
	e := NewEngine(stubGenerator{})
	result := e.Generate(context.Background(), GenerateRequest{CaseUID: "case_1"})

	assert.True(t, result.Fallback)
	require.Len(t, result.Hypotheses, 3)
	labels := map[string]bool{}
	for _, h := range result.Hypotheses {
		labels[h.Label] = true
		require.NotNil(t, h.PriorProbability)
		assert.InDelta(t, 1.0/3.0, *h.PriorProbability, 1e-9)
	}
	assert.True(t, labels["Continuation of status quo"])
	assert.True(t, labels["Escalation"])
	assert.True(t, labels["De-escalation"])
}

func TestGenerateFallsBackOnGeneratorError(t *testing.T) {
	e := NewEngine(stubGenerator{err: errors.New("llm unavailable")})
	result := e.Generate(context.Background(), GenerateRequest{CaseUID: "case_1"})

	assert.True(t, result.Fallback)
	assert.Len(t, result.Hypotheses, 3)
}

func TestGenerateNeverReturnsZeroHypotheses(t *testing.T) {
	e := NewEngine(NoopGenerator{})
	result := e.Generate(context.Background(), GenerateRequest{CaseUID: "case_1"})
	assert.NotEmpty(t, result.Hypotheses)
}

func TestGenerateUsesGeneratorOutputWhenPresent(t *testing.T) {
	e := NewEngine(stubGenerator{hyps: []GeneratedHypothesis{
		{Label: "A takeover bid", Statement: "Company A acquires Company B."},
		{Label: "Regulatory block", Statement: "Regulators block the merger."},
	}})
	req := GenerateRequest{
		CaseUID:    "case_1",
		Assertions: []model.Assertion{{UID: "a_1"}},
	}
	result := e.Generate(context.Background(), req)

	assert.False(t, result.Fallback)
	require.Len(t, result.Hypotheses, 2)
	assert.Equal(t, "A takeover bid", result.Hypotheses[0].Label)
	assert.Equal(t, []string{"a_1"}, result.Hypotheses[0].SupportingAssertionUIDs)
}

func TestNewEngineDefaultsNilGeneratorToNoop(t *testing.T) {
	e := NewEngine(nil)
	result := e.Generate(context.Background(), GenerateRequest{CaseUID: "case_1"})
	assert.True(t, result.Fallback)
}
