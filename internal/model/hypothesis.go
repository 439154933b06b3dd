package model

import (
	"fmt"
	"time"
)

// GapListEntry describes a known missing piece of evidence for a Hypothesis.
type GapListEntry struct {
	Description string  `json:"description"`
	Priority    float64 `json:"priority"` // lower = more urgent, matches Investigation Loop's gap_priority_threshold
}

// AdversarialResult records the outcome of adversarially stress-testing a
// Hypothesis (the Hypothesis Engine's analyze/adversarial_evaluate stage).
type AdversarialResult struct {
	Attacked      bool     `json:"attacked"`
	SurvivedCount int      `json:"survived_count"`
	FailedCount   int      `json:"failed_count"`
	Objections    []string `json:"objections,omitempty"`
}

// PersonaMetadata tags a Hypothesis with the multi-perspective persona that
// generated it.
type PersonaMetadata struct {
	Persona string `json:"persona"` // "skeptical_analyst", "escalation_focused", "alternative_framing"
}

// Hypothesis is a labeled proposition evaluated against Assertions.
// Invariant: an assertion may appear in at most one of {supporting,
// contradicting} for a given hypothesis.
type Hypothesis struct {
	UID                        string             `json:"uid"`
	CaseUID                    string             `json:"case_uid"`
	Label                      string             `json:"label"`
	Statement                  string             `json:"statement"`
	SupportingAssertionUIDs    []string           `json:"supporting_assertion_uids"`
	ContradictingAssertionUIDs []string           `json:"contradicting_assertion_uids"`
	CoverageScore              float64            `json:"coverage_score"`
	Confidence                 float64            `json:"confidence"`
	GapList                    []GapListEntry     `json:"gap_list,omitempty"`
	PriorProbability           *float64           `json:"prior_probability,omitempty"`
	PosteriorProbability       *float64           `json:"posterior_probability,omitempty"`
	AdversarialResult          *AdversarialResult `json:"adversarial_result,omitempty"`
	Persona                    *PersonaMetadata   `json:"persona,omitempty"`
	CreatedAt                  time.Time          `json:"created_at"`
	UpdatedAt                  time.Time          `json:"updated_at"`
}

// Validate enforces the disjointness invariant between supporting and
// contradicting assertion sets.
func (h Hypothesis) Validate() error {
	seen := make(map[string]bool, len(h.SupportingAssertionUIDs))
	for _, uid := range h.SupportingAssertionUIDs {
		seen[uid] = true
	}
	for _, uid := range h.ContradictingAssertionUIDs {
		if seen[uid] {
			return fmt.Errorf("hypothesis %s: assertion %s appears in both supporting and contradicting sets", h.UID, uid)
		}
	}
	return nil
}

// NewHypothesis constructs a Hypothesis with a fresh identifier and
// prior_probability = 1/N per the Bayesian fusion initialization rule.
func NewHypothesis(caseUID, label, statement string, setSize int) Hypothesis {
	now := time.Now().UTC()
	h := Hypothesis{
		UID:       NewID(KindHypothesis),
		CaseUID:   caseUID,
		Label:     label,
		Statement: statement,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if setSize > 0 {
		prior := 1.0 / float64(setSize)
		h.PriorProbability = &prior
	}
	return h
}
