package fusion

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evidentia-ai/evidentia/internal/model"
)

func TestClaimToMassHighCredibility(t *testing.T) {
	m := ClaimToMass(0.8, 0.9)
	require.InDelta(t, 0.72, m.True, 0.01)
	require.InDelta(t, 0.10, m.Uncertain, 0.01)
}

func TestClaimToMassLowCredibility(t *testing.T) {
	m := ClaimToMass(0.8, 0.3)
	require.Greater(t, m.Uncertain, 0.6)
}

func TestCombineTwoAgreeingSources(t *testing.T) {
	m1 := ClaimToMass(0.8, 0.9)
	m2 := ClaimToMass(0.85, 0.85)
	result := CombineMasses([]Mass{m1, m2})
	require.Greater(t, result.Confidence, 0.9)
}

func TestCombineTwoConflictingSources(t *testing.T) {
	m1 := ClaimToMass(0.9, 0.8)
	m2 := ClaimToMass(0.1, 0.8)
	result := CombineMasses([]Mass{m1, m2})
	require.Greater(t, result.ConflictDegree, 0.3)
}

func TestCombineHighVsLowCredibility(t *testing.T) {
	reuters := ClaimToMass(0.8, 0.9)
	blog := ClaimToMass(0.2, 0.3)
	result := CombineMasses([]Mass{reuters, blog})
	require.Greater(t, result.Confidence, 0.6)
}

func TestCombineSingleSource(t *testing.T) {
	m := ClaimToMass(0.8, 0.9)
	result := CombineMasses([]Mass{m})
	require.InDelta(t, 0.8, result.Confidence, 0.1)
}

func TestCombineManyWeakSources(t *testing.T) {
	masses := make([]Mass, 5)
	for i := range masses {
		masses[i] = ClaimToMass(0.7, 0.4)
	}
	result := CombineMasses(masses)
	require.Greater(t, result.Confidence, 0.7)
}

func TestCombineMassesAssociative(t *testing.T) {
	masses := []Mass{
		ClaimToMass(0.8, 0.9),
		ClaimToMass(0.3, 0.5),
		ClaimToMass(0.6, 0.7),
	}
	require.Less(t, AssociativityDelta(masses), 1e-9)
}

func TestCombineMassesEmpty(t *testing.T) {
	result := CombineMasses(nil)
	require.Equal(t, 0, result.SourceCount)
}

func TestBayesUpdateSupportIncreasesPosterior(t *testing.T) {
	prior := 0.5
	result := ApplyAssessment(prior, model.RelationSupport, 1.0)
	require.Greater(t, result.Posterior, prior)
	require.InDelta(t, 0.95, result.Likelihood, 1e-9)
}

func TestBayesUpdateContradictDecreasesPosterior(t *testing.T) {
	prior := 0.5
	result := ApplyAssessment(prior, model.RelationContradict, 1.0)
	require.Less(t, result.Posterior, prior)
	require.InDelta(t, 0.05, result.Likelihood, 1e-9)
}

func TestBayesUpdateIrrelevantLeavesPosteriorUnchanged(t *testing.T) {
	prior := 0.5
	result := ApplyAssessment(prior, model.RelationIrrelevant, 1.0)
	require.InDelta(t, prior, result.Posterior, 1e-9)
}

func TestBayesUpdateClampsAwayFromBoundaries(t *testing.T) {
	prior := clampCeil
	for i := 0; i < 20; i++ {
		prior = BayesUpdate(prior, supportMax)
	}
	require.Less(t, prior, 1.0)
	require.GreaterOrEqual(t, prior, clampFloor)
}

func TestSequentialUpdateThreadsPosteriors(t *testing.T) {
	assessments := []model.EvidenceAssessment{
		{Relation: model.RelationSupport, Strength: 0.8},
		{Relation: model.RelationSupport, Strength: 0.6},
	}
	final, trail := SequentialUpdate(EqualPriors(3), assessments)
	require.Len(t, trail, 2)
	require.Greater(t, final, trail[0].Posterior)
}

func TestEqualPriors(t *testing.T) {
	require.InDelta(t, 1.0/3.0, EqualPriors(3), 1e-9)
	require.Equal(t, 0.0, EqualPriors(0))
}
