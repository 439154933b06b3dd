// Package fusion implements the two probabilistic evidence-combination
// engines used by hypothesis scoring: a Bayesian analysis-of-competing-
// hypotheses (ACH) update, and a Dempster-Shafer belief combination used
// when evidence sources carry independent credibility weights.
package fusion

import (
	"math"

	"github.com/evidentia-ai/evidentia/internal/model"
)

const (
	clampFloor = 1e-6
	clampCeil  = 1 - 1e-6
)

// likelihoodSupportMin/Max and likelihoodContradictMin/Max define the
// linear maps from an EvidenceAssessment's Strength to a likelihood used
// in the Bayesian update. Support evidence maps strength [0,1] to
// likelihood [0.55, 0.95]; contradicting evidence maps strength [0,1] to
// likelihood [0.45, 0.05] (inverted: stronger contradiction means the
// evidence is less likely to be observed if the hypothesis is true).
const (
	supportMin    = 0.55
	supportMax    = 0.95
	contradictMin = 0.45
	contradictMax = 0.05
)

// Clamp01 restricts x to [clampFloor, clampCeil], keeping probabilities
// strictly inside the open interval so repeated updates never saturate to
// exactly 0 or 1.
func Clamp01(x float64) float64 {
	if x < clampFloor {
		return clampFloor
	}
	if x > clampCeil {
		return clampCeil
	}
	return x
}

// LikelihoodFromAssessment maps an EvidenceAssessment's relation and
// strength to a likelihood P(E|H) in the open interval (0,1).
func LikelihoodFromAssessment(relation model.AssessmentRelation, strength float64) float64 {
	s := strength
	if s < 0 {
		s = 0
	}
	if s > 1 {
		s = 1
	}
	switch relation {
	case model.RelationSupport:
		return supportMin + s*(supportMax-supportMin)
	case model.RelationContradict:
		return contradictMin + s*(contradictMax-contradictMin)
	default: // irrelevant
		return 0.50
	}
}

// BayesUpdate applies one evidence observation to a prior probability
// using the odds-form Bayesian update:
//
//	posterior = prior*L / (prior*L + (1-prior)*(1-L))
//
// where L is the likelihood of observing the evidence given the
// hypothesis is true. The result is clamped away from the [0,1]
// boundaries so subsequent updates remain well-defined.
func BayesUpdate(prior, likelihood float64) float64 {
	p := Clamp01(prior)
	l := likelihood
	numerator := p * l
	denominator := numerator + (1-p)*(1-l)
	if denominator == 0 {
		return p
	}
	return Clamp01(numerator / denominator)
}

// UpdateResult is one entry in a hypothesis's Bayesian update trail,
// mirroring model.ProbabilityUpdate.
type UpdateResult struct {
	Prior           float64
	Posterior       float64
	Likelihood      float64
	LikelihoodRatio float64
}

// ApplyAssessment computes the posterior for a hypothesis given one
// EvidenceAssessment, returning the full update trail entry.
func ApplyAssessment(prior float64, relation model.AssessmentRelation, strength float64) UpdateResult {
	l := LikelihoodFromAssessment(relation, strength)
	posterior := BayesUpdate(prior, l)

	var ratio float64
	if l < 1 {
		ratio = l / (1 - l)
	} else {
		ratio = math.Inf(1)
	}

	return UpdateResult{
		Prior:           prior,
		Posterior:       posterior,
		Likelihood:      l,
		LikelihoodRatio: ratio,
	}
}

// SequentialUpdate folds a sequence of assessments into a single posterior,
// starting from the given prior and threading each step's posterior into
// the next step's prior. It returns the final posterior and the full
// per-step trail for persistence as ProbabilityUpdate rows.
func SequentialUpdate(prior float64, assessments []model.EvidenceAssessment) (float64, []UpdateResult) {
	trail := make([]UpdateResult, 0, len(assessments))
	current := prior
	for _, a := range assessments {
		step := ApplyAssessment(current, a.Relation, a.Strength)
		trail = append(trail, step)
		current = step.Posterior
	}
	return current, trail
}

// EqualPriors returns 1/N for a competing-hypothesis set of size n,
// defined as 0 for n<=0.
func EqualPriors(n int) float64 {
	if n <= 0 {
		return 0
	}
	return 1.0 / float64(n)
}
