package model

import "time"

// AssessmentRelation enumerates how a piece of Evidence relates to a
// Hypothesis.
type AssessmentRelation string

const (
	RelationSupport    AssessmentRelation = "support"
	RelationContradict AssessmentRelation = "contradict"
	RelationIrrelevant AssessmentRelation = "irrelevant"
)

// EvidenceAssessment is a per (hypothesis, evidence) judgment feeding the
// Bayesian fusion update. Unique per (HypothesisUID, EvidenceUID).
type EvidenceAssessment struct {
	UID           string             `json:"uid"`
	CaseUID       string             `json:"case_uid"`
	HypothesisUID string             `json:"hypothesis_uid"`
	EvidenceUID   string             `json:"evidence_uid"`
	Relation      AssessmentRelation `json:"relation"`
	Strength      float64            `json:"strength"` // clamped to [0,1]
	Likelihood    float64            `json:"likelihood"` // derived, in (0,1)
	AssessedBy    string             `json:"assessed_by"`
	CreatedAt     time.Time          `json:"created_at"`
}

// ProbabilityUpdate is an append-only audit row capturing one Bayesian
// fusion step.
type ProbabilityUpdate struct {
	UID             string    `json:"uid"`
	HypothesisUID   string    `json:"hypothesis_uid"`
	EvidenceUID     string    `json:"evidence_uid"`
	Prior           float64   `json:"prior"`
	Posterior       float64   `json:"posterior"`
	Likelihood      float64   `json:"likelihood"`
	LikelihoodRatio *float64  `json:"likelihood_ratio,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
