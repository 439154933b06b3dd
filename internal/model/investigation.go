package model

import "time"

// InvestigationStatus tracks the lifecycle of an autonomous gap-filling loop.
type InvestigationStatus string

const (
	InvestigationRunning   InvestigationStatus = "running"
	InvestigationCompleted InvestigationStatus = "completed"
	InvestigationCancelled InvestigationStatus = "cancelled"
	InvestigationFailed    InvestigationStatus = "failed"
)

// InvestigationConfig bounds an autonomous investigation round.
type InvestigationConfig struct {
	MaxRounds             int           `json:"max_rounds"`
	GapPriorityThreshold  float64       `json:"gap_priority_threshold"`
	MinEvidencePerRound   int           `json:"min_evidence_per_round"`
	RoundTimeout          time.Duration `json:"round_timeout"`
}

// RoundSummary is one entry in an Investigation's rounds[] log.
type RoundSummary struct {
	RoundNum        int       `json:"round_num"`
	GapsTargeted    int       `json:"gaps_targeted"`
	EvidenceFound   int       `json:"evidence_found"`
	HypothesesAfter int       `json:"hypotheses_after"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
}

// Investigation records an autonomous hypothesis-driven gap-filling loop.
type Investigation struct {
	UID          string               `json:"uid"`
	CaseUID      string               `json:"case_uid"`
	TriggerEvent string               `json:"trigger_event"`
	Config       InvestigationConfig  `json:"config"`
	Rounds       []RoundSummary       `json:"rounds"`
	Status       InvestigationStatus  `json:"status"`
	GapResolved  bool                 `json:"gap_resolved"`
	CancelledBy  string               `json:"cancelled_by,omitempty"`
	StartedAt    time.Time            `json:"started_at"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
	CancelledAt  *time.Time           `json:"cancelled_at,omitempty"`
}
