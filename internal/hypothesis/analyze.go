package hypothesis

import (
	"github.com/evidentia-ai/evidentia/internal/fusion"
	"github.com/evidentia-ai/evidentia/internal/model"
)

// Assess is one caller-supplied judgment of how a piece of evidence bears
// on the hypothesis under analysis; Analyze turns a slice of these into an
// AchResult via the Bayesian fusion core.
type Assess struct {
	EvidenceUID string
	Relation    model.AssessmentRelation
	Strength    float64
}

// Analyze runs an Analysis-of-Competing-Hypotheses style pass: each
// assessment updates a running posterior via fusion.SequentialUpdate,
// coverage is the fraction of cited assertions actually backed by at least
// one assessment, and any assertion with no corresponding assessment is
// recorded as a gap.
func Analyze(hypothesisText string, assertions []model.Assertion, assessments []Assess) model.AchResult {
	const prior = 0.5

	modelAssessments := make([]model.EvidenceAssessment, len(assessments))
	for i, a := range assessments {
		modelAssessments[i] = model.EvidenceAssessment{
			EvidenceUID: a.EvidenceUID,
			Relation:    a.Relation,
			Strength:    fusion.Clamp01(a.Strength),
		}
	}

	posterior, updates := fusion.SequentialUpdate(prior, modelAssessments)

	perEvidence := make([]model.PerEvidenceAssessment, len(assessments))
	for i, a := range assessments {
		likelihood := 0.5
		if i < len(updates) {
			likelihood = updates[i].Likelihood
		}
		perEvidence[i] = model.PerEvidenceAssessment{
			EvidenceUID: a.EvidenceUID,
			Relation:    a.Relation,
			Strength:    fusion.Clamp01(a.Strength),
			Likelihood:  likelihood,
		}
	}

	assessedAssertions := make(map[string]bool, len(assessments))
	for _, a := range assessments {
		assessedAssertions[a.EvidenceUID] = true
	}

	var gaps []model.GapListEntry
	coveredCount := 0
	for _, a := range assertions {
		covered := false
		for _, uid := range a.SourceClaimUIDs {
			if assessedAssertions[uid] {
				covered = true
				break
			}
		}
		if covered {
			coveredCount++
		} else {
			gaps = append(gaps, model.GapListEntry{
				Description: "assertion " + a.UID + " has no corresponding evidence assessment",
				Priority:    1.0 - a.Confidence,
			})
		}
	}

	coverage := 1.0
	if len(assertions) > 0 {
		coverage = float64(coveredCount) / float64(len(assertions))
	}

	return model.AchResult{
		HypothesisText:    hypothesisText,
		Assessments:       perEvidence,
		CoverageScore:     coverage,
		InitialConfidence: posterior,
		GapList:           gaps,
	}
}
