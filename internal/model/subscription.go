package model

import "time"

// Subscription is a user-scoped interest rule matched against incoming
// events (GDELT feeds, crawler completions, etc.).
type Subscription struct {
	UID       string         `json:"uid"`
	UserID    string         `json:"user_id"`
	CaseUID   string         `json:"case_uid,omitempty"`
	MatchRule map[string]any `json:"match_rule"`
	CreatedAt time.Time      `json:"created_at"`
}

// EventLog is a canonicalized incoming event, deduped by SourceEventUID.
type EventLog struct {
	UID            string         `json:"uid"`
	SourceEventUID string         `json:"source_event_uid"`
	EventType      string         `json:"event_type"`
	Payload        map[string]any `json:"payload"`
	OccurredAt     time.Time      `json:"occurred_at"`
	CreatedAt      time.Time      `json:"created_at"`
}

// PushLog audits one delivery attempt of a notification to a user sink.
type PushLog struct {
	UID        string    `json:"uid"`
	UserID     string    `json:"user_id"`
	Kind       string    `json:"kind"`
	Payload    any       `json:"payload"`
	Delivered  bool      `json:"delivered"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
