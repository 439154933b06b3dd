package hypothesis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evidentia-ai/evidentia/internal/model"
)

func TestAnalyzeNoAssessmentsOrAssertions(t *testing.T) {
	result := Analyze("hypothesis text", nil, nil)
	assert.Equal(t, 1.0, result.CoverageScore)
	assert.Equal(t, 0.5, result.InitialConfidence)
	assert.Empty(t, result.GapList)
	assert.Empty(t, result.Assessments)
}

func TestAnalyzeSupportingAssessmentRaisesConfidence(t *testing.T) {
	result := Analyze("hypothesis text", nil, []Assess{
		{EvidenceUID: "ev_1", Relation: model.RelationSupport, Strength: 0.9},
	})
	assert.Greater(t, result.InitialConfidence, 0.5)
	assert.Len(t, result.Assessments, 1)
	assert.Equal(t, model.RelationSupport, result.Assessments[0].Relation)
}

func TestAnalyzeContradictingAssessmentLowersConfidence(t *testing.T) {
	result := Analyze("hypothesis text", nil, []Assess{
		{EvidenceUID: "ev_1", Relation: model.RelationContradict, Strength: 0.9},
	})
	assert.Less(t, result.InitialConfidence, 0.5)
}

func TestAnalyzeTracksGapsForUncoveredAssertions(t *testing.T) {
	assertions := []model.Assertion{
		{UID: "a_1", SourceClaimUIDs: []string{"sc_covered"}, Confidence: 0.8},
		{UID: "a_2", SourceClaimUIDs: []string{"sc_missing"}, Confidence: 0.4},
	}
	assessments := []Assess{
		{EvidenceUID: "sc_covered", Relation: model.RelationSupport, Strength: 0.7},
	}
	result := Analyze("hypothesis text", assertions, assessments)

	assert.Equal(t, 0.5, result.CoverageScore)
	assert.Len(t, result.GapList, 1)
	assert.Contains(t, result.GapList[0].Description, "a_2")
}

func TestAnalyzeFullCoverageWhenAllAssertionsAssessed(t *testing.T) {
	assertions := []model.Assertion{
		{UID: "a_1", SourceClaimUIDs: []string{"sc_1"}, Confidence: 0.8},
	}
	assessments := []Assess{
		{EvidenceUID: "sc_1", Relation: model.RelationSupport, Strength: 0.7},
	}
	result := Analyze("hypothesis text", assertions, assessments)
	assert.Equal(t, 1.0, result.CoverageScore)
	assert.Empty(t, result.GapList)
}
