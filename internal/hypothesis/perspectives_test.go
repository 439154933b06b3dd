package hypothesis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiPerspectiveDefaultsToThreePersonas(t *testing.T) {
	e := NewEngine(NoopGenerator{})
	result := e.MultiPerspective(context.Background(), GenerateRequest{CaseUID: "case_1"}, 0)

	require.Len(t, result.Hypotheses, 9) // 3 personas x 3 fallback hypotheses each
	assert.True(t, result.Fallback)

	seen := map[string]int{}
	for _, h := range result.Hypotheses {
		require.NotNil(t, h.Persona)
		seen[h.Persona.Persona]++
	}
	assert.Equal(t, 3, len(seen))
	assert.Equal(t, 3, seen[PersonaSkeptical])
	assert.Equal(t, 3, seen[PersonaEscalation])
	assert.Equal(t, 3, seen[PersonaAlternative])
}

func TestMultiPerspectiveRespectsSmallerPersonaCount(t *testing.T) {
	e := NewEngine(NoopGenerator{})
	result := e.MultiPerspective(context.Background(), GenerateRequest{CaseUID: "case_1"}, 1)

	for _, h := range result.Hypotheses {
		require.NotNil(t, h.Persona)
		assert.Equal(t, PersonaSkeptical, h.Persona.Persona)
	}
}

func TestMultiPerspectiveUsesGeneratorOutputPerPersona(t *testing.T) {
	e := NewEngine(stubGenerator{hyps: []GeneratedHypothesis{
		{Label: "candidate", Statement: "a statement"},
	}})
	result := e.MultiPerspective(context.Background(), GenerateRequest{CaseUID: "case_1"}, 2)

	require.Len(t, result.Hypotheses, 2)
	assert.False(t, result.Fallback)
}
