package model

import "time"

// Case is a named investigation and the ownership root for every other
// entity in the system. Deleting a Case cascades to all entities keyed by
// its CaseUID.
type Case struct {
	UID       string         `json:"uid"`
	Title     string         `json:"title"`
	ActorID   string         `json:"actor_id,omitempty"`
	Rationale string         `json:"rationale,omitempty"`
	Status    CaseStatus     `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CaseStatus tracks the lifecycle of an investigation.
type CaseStatus string

const (
	CaseStatusOpen     CaseStatus = "open"
	CaseStatusArchived CaseStatus = "archived"
)

// NewCase constructs a Case with generated identifiers and timestamps.
func NewCase(title, actorID, rationale string) Case {
	now := time.Now().UTC()
	return Case{
		UID:       NewID(KindCase),
		Title:     title,
		ActorID:   actorID,
		Rationale: rationale,
		Status:    CaseStatusOpen,
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
