package model

import "time"

// Narrative is a themed grouping of SourceClaims spanning a time window.
type Narrative struct {
	UID             string    `json:"uid"`
	CaseUID         string    `json:"case_uid"`
	Theme           string    `json:"theme"`
	Summary         string    `json:"summary"`
	SourceClaimUIDs []string  `json:"source_claim_uids"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	CreatedAt       time.Time `json:"created_at"`
}

// Judgment is a titled answer citing Assertions — the unit exported as "the
// result" of a case's analysis.
type Judgment struct {
	UID           string    `json:"uid"`
	CaseUID       string    `json:"case_uid"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	AssertionUIDs []string  `json:"assertion_uids"`
	HypothesisUID string    `json:"hypothesis_uid,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
