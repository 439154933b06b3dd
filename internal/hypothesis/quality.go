package hypothesis

import (
	"strings"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// JudgmentInput bundles everything ScoreQuality needs to assess a Judgment
// without re-querying the Evidence Model Store itself; callers assemble it
// from whatever they already loaded to render the judgment.
type JudgmentInput struct {
	Judgment     model.Judgment
	Assertions   []model.Assertion
	SourceClaims []model.SourceClaim
	Narratives   []model.Narrative
	Hypothesis   *model.Hypothesis
}

// ScoreQuality computes a meta-cognitive QualityReportV1 for a Judgment.
// Each dimension is scored independently in [0,1] from factors intrinsic to
// the cited evidence graph, then combined into an overall weighted score.
// The weighting mirrors a graded rubric rather than a strict average: a
// judgment can be usable with one weak dimension, but not with several.
func ScoreQuality(input JudgmentInput) model.QualityReportV1 {
	var notes []string

	coverage := scoreEvidenceCoverage(input)
	diversity := scoreSourceDiversity(input)
	calibration := scoreConfidenceCalibration(input)
	coherence := scoreNarrativeCoherence(input)

	if coverage <= 0.5 {
		notes = append(notes, "at most half of cited assertions have grounded evidence")
	}
	if diversity < 0.3 {
		notes = append(notes, "evidence draws from very few distinct sources")
	}
	if calibration < 0.5 {
		notes = append(notes, "assertion confidence values cluster near 0 or 1, suggesting miscalibration")
	}
	if coherence < 0.3 {
		notes = append(notes, "no narrative ties the cited evidence into a coherent account")
	}

	overall := 0.35*coverage + 0.20*diversity + 0.25*calibration + 0.20*coherence

	return model.QualityReportV1{
		TraceID:     model.NewID("trace"),
		JudgmentUID: input.Judgment.UID,
		Dimensions: model.QualityDimensions{
			EvidenceCoverage:      coverage,
			SourceDiversity:       diversity,
			ConfidenceCalibration: calibration,
			NarrativeCoherence:    coherence,
		},
		OverallScore: overall,
		Notes:        notes,
		CreatedAt:    input.Judgment.CreatedAt,
	}
}

// scoreEvidenceCoverage is the fraction of the Judgment's cited Assertions
// that themselves cite at least one SourceClaim (i.e. are grounded, not
// bare LLM assertions).
func scoreEvidenceCoverage(input JudgmentInput) float64 {
	if len(input.Assertions) == 0 {
		return 0
	}
	grounded := 0
	for _, a := range input.Assertions {
		if len(a.SourceClaimUIDs) > 0 {
			grounded++
		}
	}
	return float64(grounded) / float64(len(input.Assertions))
}

// scoreSourceDiversity rewards evidence drawn from multiple distinct
// Chunks, since many assertions citing the same handful of chunks is
// weaker corroboration than independently-sourced claims. Saturates at 1
// once five or more distinct chunks are represented.
func scoreSourceDiversity(input JudgmentInput) float64 {
	if len(input.SourceClaims) == 0 {
		return 0
	}
	distinct := make(map[string]bool)
	for _, sc := range input.SourceClaims {
		distinct[sc.ChunkUID] = true
	}
	const saturationPoint = 5.0
	score := float64(len(distinct)) / saturationPoint
	if score > 1 {
		score = 1
	}
	return score
}

// scoreConfidenceCalibration penalizes assertion confidences sitting
// exactly at the extremes (0 or 1), which more often indicate an unset
// default or an unwarranted LLM self-report than genuine certainty.
func scoreConfidenceCalibration(input JudgmentInput) float64 {
	if len(input.Assertions) == 0 {
		return 0
	}
	var total float64
	for _, a := range input.Assertions {
		switch {
		case a.Confidence > 0.05 && a.Confidence < 0.95:
			total += 1.0
		case a.Confidence > 0 && a.Confidence < 1:
			total += 0.6
		default:
			total += 0.1
		}
	}
	return total / float64(len(input.Assertions))
}

// scoreNarrativeCoherence rewards a substantive Judgment body (more for a
// longer body) and adds a fixed 0.4 when the case has at least one
// Narrative. Whether the cited Assertions fall within a narrative's time
// window is not checked.
func scoreNarrativeCoherence(input JudgmentInput) float64 {
	var score float64

	bodyLen := len(strings.TrimSpace(input.Judgment.Body))
	switch {
	case bodyLen > 400:
		score += 0.6
	case bodyLen > 150:
		score += 0.4
	case bodyLen > 0:
		score += 0.15
	}

	if len(input.Narratives) > 0 {
		score += 0.4
	}

	if score > 1 {
		score = 1
	}
	return score
}
