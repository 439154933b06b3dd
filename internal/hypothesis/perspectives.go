package hypothesis

import (
	"context"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// Persona names the analytical stance used to bias a generation pass in
// MultiPerspective. The default three cover the spread the spec calls for:
// a skeptic who favors the null/continuation hypothesis, an analyst who
// weights escalation risk, and one who actively looks for an alternative
// framing the other two would not produce.
const (
	PersonaSkeptical    = "skeptical_analyst"
	PersonaEscalation   = "escalation_focused"
	PersonaAlternative  = "alternative_framing"
)

// DefaultPersonas is the three-persona set used when MultiPerspective is
// called with personaCount <= 0 or personaCount >= 3.
var DefaultPersonas = []string{PersonaSkeptical, PersonaEscalation, PersonaAlternative}

// MultiPerspectiveResult is the merged output of running Generate once per
// persona.
type MultiPerspectiveResult struct {
	Hypotheses []model.Hypothesis
	Fallback   bool // true if any persona pass fell back to the deterministic archetypes
}

// MultiPerspective runs Generate once per persona (default three; fewer if
// personaCount is smaller and positive) and tags each resulting Hypothesis
// with PersonaMetadata before merging all of them into one set.
func (e *Engine) MultiPerspective(ctx context.Context, req GenerateRequest, personaCount int) MultiPerspectiveResult {
	personas := DefaultPersonas
	if personaCount > 0 && personaCount < len(personas) {
		personas = personas[:personaCount]
	}

	var merged []model.Hypothesis
	anyFallback := false

	for _, persona := range personas {
		personaReq := req
		personaReq.Context = req.Context + "\npersona: " + persona
		result := e.Generate(ctx, personaReq)
		if result.Fallback {
			anyFallback = true
		}
		for i := range result.Hypotheses {
			result.Hypotheses[i].Persona = &model.PersonaMetadata{Persona: persona}
		}
		merged = append(merged, result.Hypotheses...)
	}

	return MultiPerspectiveResult{Hypotheses: merged, Fallback: anyFallback}
}
