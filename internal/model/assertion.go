package model

import (
	"fmt"
	"time"
)

// AssertionKind tags the structured shape of Assertion.Value.
type AssertionKind string

const (
	AssertionFactual    AssertionKind = "factual"
	AssertionRelational AssertionKind = "relational"
	AssertionTemporal   AssertionKind = "temporal"
)

// Assertion is a kind-tagged structured value derived from one or more
// SourceClaims, with a confidence score reflecting fusion output.
// Invariant: SourceClaimUIDs is non-empty.
type Assertion struct {
	UID             string         `json:"uid"`
	CaseUID         string         `json:"case_uid"`
	Kind            AssertionKind  `json:"kind"`
	Value           map[string]any `json:"value"`
	Confidence      float64        `json:"confidence"`
	SourceClaimUIDs []string       `json:"source_claim_uids"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Validate enforces the Assertion invariants from the data model.
func (a Assertion) Validate() error {
	if len(a.SourceClaimUIDs) == 0 {
		return fmt.Errorf("assertion %s: source_claim_uids must be non-empty", a.UID)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("assertion %s: confidence %v out of [0,1]", a.UID, a.Confidence)
	}
	return nil
}

// NewAssertion constructs an Assertion. Confidence should come from the
// Fusion Core, not an ad-hoc LLM self-report.
func NewAssertion(caseUID string, kind AssertionKind, value map[string]any, confidence float64, sourceClaimUIDs []string) Assertion {
	now := time.Now().UTC()
	return Assertion{
		UID:             NewID(KindAssertion),
		CaseUID:         caseUID,
		Kind:            kind,
		Value:           value,
		Confidence:      confidence,
		SourceClaimUIDs: sourceClaimUIDs,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
