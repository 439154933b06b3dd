package model

import "time"

// Action is the audit spine: every state-changing operation writes one,
// append-only, never mutated after insert.
type Action struct {
	UID        string         `json:"uid"`
	CaseUID    string         `json:"case_uid"`
	ActionType string         `json:"action_type"` // e.g. "tool.archive_url", "case.create"
	ActorID    string         `json:"actor_id"`
	Rationale  string         `json:"rationale,omitempty"`
	Inputs     map[string]any `json:"inputs,omitempty"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	TraceID    string         `json:"trace_id"`
	SpanID     string         `json:"span_id"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ToolTraceStatus enumerates the outcome of one tool invocation.
type ToolTraceStatus string

const (
	ToolStatusOK      ToolTraceStatus = "ok"
	ToolStatusDenied  ToolTraceStatus = "denied"
	ToolStatusError   ToolTraceStatus = "error"
	ToolStatusUnknown ToolTraceStatus = "unknown"
)

// PolicyDecision is the authorizing (or rejecting) decision recorded inside
// a ToolTrace, regardless of whether it resulted in admission.
type PolicyDecision struct {
	Allowed        bool           `json:"allowed"`
	ErrorCode      string         `json:"error_code,omitempty"`
	Reason         string         `json:"reason"`
	Domain         string         `json:"domain,omitempty"`
	RobotsMetadata RobotsMetadata `json:"robots_metadata"`
}

// RobotsMetadata records whether robots.txt/ToS fidelity was consulted, even
// when it was not, so later fidelity upgrades are observable in the audit
// trail.
type RobotsMetadata struct {
	Checked bool   `json:"checked"`
	Allowed *bool  `json:"allowed,omitempty"`
	Reason  string `json:"reason"`
}

// ToolTrace is one record per tool invocation, bound to the Action that
// authorized it.
type ToolTrace struct {
	UID        string          `json:"uid"`
	ActionUID  string          `json:"action_uid"`
	ToolName   string          `json:"tool_name"`
	Request    map[string]any  `json:"request"`
	Response   map[string]any  `json:"response,omitempty"`
	Status     ToolTraceStatus `json:"status"`
	DurationMS int64           `json:"duration_ms"`
	Error      string          `json:"error,omitempty"`
	Policy     PolicyDecision  `json:"policy"`
	CreatedAt  time.Time       `json:"created_at"`
}
