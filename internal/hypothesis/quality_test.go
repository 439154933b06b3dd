package hypothesis

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/evidentia-ai/evidentia/internal/model"
)

func TestScoreQualityZeroInput(t *testing.T) {
	report := ScoreQuality(JudgmentInput{})
	assert.Equal(t, 0.0, report.Dimensions.EvidenceCoverage)
	assert.Equal(t, 0.0, report.Dimensions.SourceDiversity)
	assert.Equal(t, 0.0, report.Dimensions.ConfidenceCalibration)
	assert.Equal(t, 0.0, report.Dimensions.NarrativeCoherence)
	assert.Equal(t, 0.0, report.OverallScore)
	assert.NotEmpty(t, report.TraceID)
}

func TestScoreQualityFullyGroundedHighScore(t *testing.T) {
	now := time.Now().UTC()
	input := JudgmentInput{
		Judgment: model.Judgment{
			UID:       "j_1",
			Body:      strings.Repeat("x", 500),
			CreatedAt: now,
		},
		Assertions: []model.Assertion{
			{UID: "a_1", SourceClaimUIDs: []string{"sc_1"}, Confidence: 0.8},
			{UID: "a_2", SourceClaimUIDs: []string{"sc_2"}, Confidence: 0.7},
		},
		SourceClaims: []model.SourceClaim{
			{UID: "sc_1", ChunkUID: "chunk_1"},
			{UID: "sc_2", ChunkUID: "chunk_2"},
			{UID: "sc_3", ChunkUID: "chunk_3"},
			{UID: "sc_4", ChunkUID: "chunk_4"},
			{UID: "sc_5", ChunkUID: "chunk_5"},
		},
		Narratives: []model.Narrative{{UID: "nar_1"}},
	}

	report := ScoreQuality(input)
	assert.Equal(t, 1.0, report.Dimensions.EvidenceCoverage)
	assert.Equal(t, 1.0, report.Dimensions.SourceDiversity)
	assert.InDelta(t, 1.0, report.Dimensions.ConfidenceCalibration, 0.001)
	assert.Equal(t, 1.0, report.Dimensions.NarrativeCoherence)
	assert.InDelta(t, 1.0, report.OverallScore, 0.001)
	assert.Empty(t, report.Notes)
}

func TestScoreQualityUngroundedAssertionsLowerCoverage(t *testing.T) {
	input := JudgmentInput{
		Judgment: model.Judgment{UID: "j_1"},
		Assertions: []model.Assertion{
			{UID: "a_1", SourceClaimUIDs: nil, Confidence: 0.5},
			{UID: "a_2", SourceClaimUIDs: []string{"sc_1"}, Confidence: 0.5},
		},
	}
	report := ScoreQuality(input)
	assert.Equal(t, 0.5, report.Dimensions.EvidenceCoverage)
	assert.Contains(t, strings.Join(report.Notes, " "), "grounded evidence")
}

func TestScoreQualityExtremeConfidencePenalized(t *testing.T) {
	input := JudgmentInput{
		Judgment: model.Judgment{UID: "j_1"},
		Assertions: []model.Assertion{
			{UID: "a_1", SourceClaimUIDs: []string{"sc_1"}, Confidence: 1.0},
			{UID: "a_2", SourceClaimUIDs: []string{"sc_2"}, Confidence: 0.0},
		},
	}
	report := ScoreQuality(input)
	assert.InDelta(t, 0.1, report.Dimensions.ConfidenceCalibration, 0.001)
}

func TestScoreQualitySourceDiversityCountsDistinctChunks(t *testing.T) {
	claims := make([]model.SourceClaim, 10)
	for i := range claims {
		claims[i] = model.SourceClaim{UID: "sc", ChunkUID: "chunk_shared"}
	}
	input := JudgmentInput{SourceClaims: claims}
	report := ScoreQuality(input)
	assert.InDelta(t, 1.0/5.0, report.Dimensions.SourceDiversity, 0.001)
}
