// Package problem implements the RFC 9457 Problem Details error envelope
// used at every API boundary: the HTTP surface, the Tool Broker, and the
// WebSocket chat.error frame.
package problem

import (
	"encoding/json"
	"net/http"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// Details is the RFC 9457 Problem Details shape.
type Details struct {
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Status     int            `json:"status"`
	Detail     string         `json:"detail,omitempty"`
	Instance   string         `json:"instance,omitempty"`
	ErrorCode  model.ErrorCode `json:"error_code"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// typeBase is prefixed to error codes to form a (non-dereferenced) type URI.
const typeBase = "https://evidentia.dev/problems/"

// New builds a Details envelope for the given error code and human-readable
// detail message.
func New(code model.ErrorCode, title, detail, instance string) Details {
	ext := map[string]any{}
	if code.Retryable() {
		ext["retryable"] = true
	}
	return Details{
		Type:       typeBase + string(code),
		Title:      title,
		Status:     code.HTTPStatus(),
		Detail:     detail,
		Instance:   instance,
		ErrorCode:  code,
		Extensions: ext,
	}
}

// WriteJSON writes the Problem Details envelope as the HTTP response body
// with the appropriate status code and content type.
func WriteJSON(w http.ResponseWriter, d Details) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d)
}

// Error is a typed error carrying a Problem Details payload. ToolBroker and
// Policy Engine operations return *Error so callers can both treat it as a
// normal Go error and recover the structured fields for an HTTP response.
type Error struct {
	Details Details
}

func (e *Error) Error() string {
	if e.Details.Detail != "" {
		return e.Details.Detail
	}
	return e.Details.Title
}

// Code returns the underlying ErrorCode.
func (e *Error) Code() model.ErrorCode { return e.Details.ErrorCode }

// Wrap constructs an *Error from an error code and detail message.
func Wrap(code model.ErrorCode, detail string) *Error {
	return &Error{Details: New(code, string(code), detail, "")}
}
