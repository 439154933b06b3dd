package httpapi

import (
	"net/http"
	"time"

	"github.com/evidentia-ai/evidentia/internal/httpapi/problem"
	"github.com/evidentia-ai/evidentia/internal/hypothesis"
	"github.com/evidentia-ai/evidentia/internal/model"
	"github.com/evidentia-ai/evidentia/internal/storage"
)

type scoreJudgmentRequest struct {
	Title         string   `json:"title"`
	Body          string   `json:"body"`
	AssertionUIDs []string `json:"assertion_uids"`
	HypothesisUID string   `json:"hypothesis_uid"`
}

// HandleScoreJudgment persists a Judgment and computes its QualityReportV1
// (spec's meta-cognitive quality dimensions) from the evidence graph the
// Judgment actually cites.
func (h *Handlers) HandleScoreJudgment(w http.ResponseWriter, r *http.Request) {
	caseUID := r.PathValue("uid")
	var req scoreJudgmentRequest
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		problem.WriteJSON(w, problem.New(model.ErrValidation, "invalid request body", err.Error(), r.URL.Path))
		return
	}
	if req.Title == "" || len(req.AssertionUIDs) == 0 {
		problem.WriteJSON(w, problem.New(model.ErrValidation, "invalid request", "title and assertion_uids are required", r.URL.Path))
		return
	}

	assertions, err := h.db.GetAssertionsByUIDs(r.Context(), req.AssertionUIDs)
	if err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	sourceClaims, err := h.db.ListSourceClaimsByCase(r.Context(), caseUID, 0, 0)
	if err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	narratives, err := h.db.ListNarrativesByCase(r.Context(), caseUID)
	if err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}

	var hyp *model.Hypothesis
	if req.HypothesisUID != "" {
		all, err := h.db.ListHypothesesByCase(r.Context(), caseUID)
		if err != nil {
			writeProblem(w, r, err, model.ErrInternal, "internal server error")
			return
		}
		for i := range all {
			if all[i].UID == req.HypothesisUID {
				hyp = &all[i]
				break
			}
		}
	}

	judgment := model.Judgment{
		UID:           model.NewID(model.KindJudgment),
		CaseUID:       caseUID,
		Title:         req.Title,
		Body:          req.Body,
		AssertionUIDs: req.AssertionUIDs,
		HypothesisUID: req.HypothesisUID,
		CreatedAt:     time.Now().UTC(),
	}

	tx, err := h.db.Begin(r.Context())
	if err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	defer tx.Rollback(r.Context())
	if err := storage.CreateJudgmentTx(r.Context(), tx, judgment); err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}

	report := hypothesis.ScoreQuality(hypothesis.JudgmentInput{
		Judgment:     judgment,
		Assertions:   assertions,
		SourceClaims: sourceClaims,
		Narratives:   narratives,
		Hypothesis:   hyp,
	})
	report.JudgmentUID = judgment.UID
	report.TraceID = traceIDFromContext(r.Context())

	writeJSON(w, http.StatusOK, map[string]any{
		"judgment": judgment,
		"quality":  report,
	})
}
