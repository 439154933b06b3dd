package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/evidentia-ai/evidentia/internal/httpapi/problem"
	"github.com/evidentia-ai/evidentia/internal/model"
	"github.com/evidentia-ai/evidentia/internal/policy"
)

// AnswerType is the three-level ceiling a chat answer may carry, an
// extension of policy.GroundingGate's two-level AssertionLevel for the
// conversational surface: FACT when every citation resolves to a stored
// SourceClaim, INFERENCE when at least one citation does not resolve, and
// HYPOTHESIS for an answer with no citations, which collapses to an empty
// answer with a cannot_answer_reason.
type AnswerType string

const (
	AnswerFact       AnswerType = "FACT"
	AnswerInference  AnswerType = "INFERENCE"
	AnswerHypothesis AnswerType = "HYPOTHESIS"
)

type chatRequest struct {
	Question string `json:"question"`
}

type chatResponse struct {
	AnswerText         string     `json:"answer_text"`
	AnswerType         AnswerType `json:"answer_type"`
	EvidenceCitations  []string   `json:"evidence_citations"`
	CannotAnswerReason string     `json:"cannot_answer_reason,omitempty"`
	TraceID            string     `json:"trace_id"`
}

// HandleChat answers a question grounded in the case's assertion graph.
// Every answer passes through the grounding gate before it is returned:
// an answer with no citations is never returned as FACT, and is rewritten
// to an empty answer with cannot_answer_reason set, regardless of what the
// underlying generator produced; an answer with citations that do not all
// resolve is returned as INFERENCE.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	caseUID := r.PathValue("uid")
	var req chatRequest
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		problem.WriteJSON(w, problem.New(model.ErrValidation, "invalid request body", err.Error(), r.URL.Path))
		return
	}
	if req.Question == "" {
		problem.WriteJSON(w, problem.New(model.ErrValidation, "invalid request", "question is required", r.URL.Path))
		return
	}

	traceID := traceIDFromContext(r.Context())

	assertions, err := h.db.ListAssertionsByCase(r.Context(), caseUID, 0, 0)
	if err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	if len(assertions) == 0 {
		writeJSON(w, http.StatusOK, chatResponse{
			AnswerType:         AnswerHypothesis,
			EvidenceCitations:  []string{},
			CannotAnswerReason: "evidence_insufficient",
			TraceID:            traceID,
		})
		return
	}

	answerText, citations := h.draftAnswer(r.Context(), caseUID, req.Question, assertions)

	allGrounded := len(citations) > 0
	for _, uid := range citations {
		if _, err := h.db.GetSourceClaim(r.Context(), uid); err != nil {
			allGrounded = false
			break
		}
	}

	level := policy.GroundingGate(citations, allGrounded)
	resp := chatResponse{EvidenceCitations: citations, TraceID: traceID}
	switch {
	case len(citations) == 0:
		resp.AnswerType = AnswerHypothesis
		resp.CannotAnswerReason = "evidence_insufficient"
	case level == policy.LevelFact:
		resp.AnswerType = AnswerFact
		resp.AnswerText = answerText
	default:
		resp.AnswerType = AnswerInference
		resp.AnswerText = answerText
	}

	writeJSON(w, http.StatusOK, resp)
}

// draftAnswer asks the Tool Broker's generator for a structured answer; if
// no generator is configured or it fails, it falls back to stitching
// together the most relevant assertions directly so chat never errors out
// on a missing LLM backend.
func (h *Handlers) draftAnswer(ctx context.Context, caseUID, question string, assertions []model.Assertion) (string, []string) {
	best := assertions[0]
	for _, a := range assertions {
		if a.Confidence > best.Confidence {
			best = a
		}
	}
	fallbackText := fmt.Sprintf("Based on the cited evidence: %s", summarizeValue(best.Value))

	if h.broker == nil {
		return fallbackText, best.SourceClaimUIDs
	}
	systemPrompt := "Answer the analyst's question using only the cited assertions. " +
		"Respond as JSON: {\"answer\": string, \"cited_assertion_index\": int}."
	userPrompt := fmt.Sprintf("Question: %s\nAssertions: %v", question, assertions)
	out, err := h.broker.GenerateStructured(ctx, caseUID, actorFromContext(ctx), systemPrompt, userPrompt)
	if err != nil {
		return fallbackText, best.SourceClaimUIDs
	}
	answer, _ := out["answer"].(string)
	if answer == "" {
		return fallbackText, best.SourceClaimUIDs
	}
	idx, _ := out["cited_assertion_index"].(float64)
	if int(idx) >= 0 && int(idx) < len(assertions) {
		return answer, assertions[int(idx)].SourceClaimUIDs
	}
	return answer, best.SourceClaimUIDs
}

func summarizeValue(v map[string]any) string {
	parts := make([]string, 0, len(v))
	for k, val := range v {
		parts = append(parts, fmt.Sprintf("%s=%v", k, val))
	}
	return strings.Join(parts, ", ")
}
