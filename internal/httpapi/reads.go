package httpapi

import (
	"net/http"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// HandleGetArtifactVersion returns a single ArtifactVersion by UID.
func (h *Handlers) HandleGetArtifactVersion(w http.ResponseWriter, r *http.Request) {
	av, err := h.db.GetArtifactVersion(r.Context(), r.PathValue("uid"))
	if err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, av)
}

// HandleGetEvidence returns a single Evidence record by UID.
func (h *Handlers) HandleGetEvidence(w http.ResponseWriter, r *http.Request) {
	ev, err := h.db.GetEvidence(r.Context(), r.PathValue("uid"))
	if err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// HandleGetSourceClaim returns a single SourceClaim by UID.
func (h *Handlers) HandleGetSourceClaim(w http.ResponseWriter, r *http.Request) {
	sc, err := h.db.GetSourceClaim(r.Context(), r.PathValue("uid"))
	if err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// HandleGetAssertion returns a single Assertion by UID.
func (h *Handlers) HandleGetAssertion(w http.ResponseWriter, r *http.Request) {
	a, err := h.db.GetAssertion(r.Context(), r.PathValue("uid"))
	if err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandleGetJudgment returns a single Judgment by UID.
func (h *Handlers) HandleGetJudgment(w http.ResponseWriter, r *http.Request) {
	j, err := h.db.GetJudgment(r.Context(), r.PathValue("uid"))
	if err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// HandleGetToolTrace returns a single ToolTrace by UID.
func (h *Handlers) HandleGetToolTrace(w http.ResponseWriter, r *http.Request) {
	t, err := h.db.GetToolTrace(r.Context(), r.PathValue("uid"))
	if err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, t)
}
