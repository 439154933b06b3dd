package httpapi

import (
	"net/http"
	"time"

	"github.com/evidentia-ai/evidentia/internal/auditledger"
	"github.com/evidentia-ai/evidentia/internal/httpapi/problem"
	"github.com/evidentia-ai/evidentia/internal/model"
	"github.com/evidentia-ai/evidentia/internal/storage"
)

type createCaseRequest struct {
	Title     string `json:"title"`
	Rationale string `json:"rationale"`
}

// HandleCreateCase creates a Case and its founding Action atomically.
func (h *Handlers) HandleCreateCase(w http.ResponseWriter, r *http.Request) {
	var req createCaseRequest
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		problem.WriteJSON(w, problem.New(model.ErrValidation, "invalid request body", err.Error(), r.URL.Path))
		return
	}
	if req.Title == "" {
		problem.WriteJSON(w, problem.New(model.ErrValidation, "invalid request", "title is required", r.URL.Path))
		return
	}

	actorID := actorFromContext(r.Context())
	c := model.NewCase(req.Title, actorID, req.Rationale)

	tx, err := h.db.Begin(r.Context())
	if err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	defer tx.Rollback(r.Context())

	if err := storage.CreateCaseTx(r.Context(), tx, c); err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	action := model.Action{
		UID:        model.NewID(model.KindAction),
		CaseUID:    c.UID,
		ActionType: "case.create",
		ActorID:    actorID,
		Rationale:  req.Rationale,
		Inputs:     map[string]any{"title": req.Title},
		TraceID:    traceIDFromContext(r.Context()),
		CreatedAt:  time.Now().UTC(),
	}
	if err := auditledger.RecordActionTx(r.Context(), tx, action); err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

// HandleGetCase returns a single Case by UID.
func (h *Handlers) HandleGetCase(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	c, err := h.db.GetCase(r.Context(), uid)
	if err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleListCaseArtifacts lists the ArtifactVersions retrieved for a case.
func (h *Handlers) HandleListCaseArtifacts(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	limit, offset := parseLimitOffset(r)
	versions, err := h.db.ListArtifactVersionsByCase(r.Context(), uid, limit, offset)
	if err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"artifact_versions": versions})
}

// fixtureImportRequest carries pre-computed entities for offline/test
// seeding of a case, bypassing the Tool Broker entirely. Every entity must
// already satisfy its model-level invariants (Validate()); the handler
// enforces the grounding invariant (assertions cite existing source
// claims) but does not re-derive anything from raw documents.
type fixtureImportRequest struct {
	ArtifactIdentities []model.ArtifactIdentity `json:"artifact_identities"`
	ArtifactVersions   []model.ArtifactVersion  `json:"artifact_versions"`
	Evidence           []model.Evidence         `json:"evidence"`
	SourceClaims       []model.SourceClaim      `json:"source_claims"`
	Assertions         []model.Assertion        `json:"assertions"`
}

// HandleImportFixture bulk-loads a fixture bundle into a case, recording
// one Action for the whole import. Artifact versions, source claims,
// assertions and the Action are written in one transaction; artifact
// identities and evidence rows are written outside it and are kept if a
// later write fails.
func (h *Handlers) HandleImportFixture(w http.ResponseWriter, r *http.Request) {
	caseUID := r.PathValue("uid")
	var req fixtureImportRequest
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		problem.WriteJSON(w, problem.New(model.ErrValidation, "invalid request body", err.Error(), r.URL.Path))
		return
	}
	for _, a := range req.Assertions {
		if err := a.Validate(); err != nil {
			problem.WriteJSON(w, problem.New(model.ErrValidation, "invalid assertion", err.Error(), r.URL.Path))
			return
		}
	}

	known := make(map[string]bool, len(req.SourceClaims))
	for _, sc := range req.SourceClaims {
		known[sc.UID] = true
	}
	for _, a := range req.Assertions {
		for _, uid := range a.SourceClaimUIDs {
			if known[uid] {
				continue
			}
			if _, err := h.db.GetSourceClaim(r.Context(), uid); err != nil {
				writeProblem(w, r, err, model.ErrInternal, "internal server error")
				return
			}
		}
	}

	tx, err := h.db.Begin(r.Context())
	if err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	defer tx.Rollback(r.Context())

	for _, ai := range req.ArtifactIdentities {
		if _, err := h.db.UpsertArtifactIdentity(r.Context(), ai); err != nil {
			writeProblem(w, r, err, model.ErrInternal, "internal server error")
			return
		}
	}
	for _, av := range req.ArtifactVersions {
		if err := storage.CreateArtifactVersionTx(r.Context(), tx, av); err != nil {
			writeProblem(w, r, err, model.ErrInternal, "internal server error")
			return
		}
	}
	for _, ev := range req.Evidence {
		if err := h.db.CreateEvidence(r.Context(), ev); err != nil {
			writeProblem(w, r, err, model.ErrInternal, "internal server error")
			return
		}
	}
	for _, sc := range req.SourceClaims {
		if err := storage.CreateSourceClaimTx(r.Context(), tx, sc); err != nil {
			writeProblem(w, r, err, model.ErrInternal, "internal server error")
			return
		}
	}
	for _, a := range req.Assertions {
		if err := storage.CreateAssertionTx(r.Context(), tx, a); err != nil {
			writeProblem(w, r, err, model.ErrInternal, "internal server error")
			return
		}
	}

	action := model.Action{
		UID:        model.NewID(model.KindAction),
		CaseUID:    caseUID,
		ActionType: "case.fixtures_import",
		ActorID:    actorFromContext(r.Context()),
		Inputs: map[string]any{
			"artifact_versions": len(req.ArtifactVersions),
			"evidence":          len(req.Evidence),
			"source_claims":     len(req.SourceClaims),
			"assertions":        len(req.Assertions),
		},
		TraceID:   traceIDFromContext(r.Context()),
		CreatedAt: time.Now().UTC(),
	}
	if err := auditledger.RecordActionTx(r.Context(), tx, action); err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"case_uid":          caseUID,
		"artifact_versions": len(req.ArtifactVersions),
		"evidence":          len(req.Evidence),
		"source_claims":     len(req.SourceClaims),
		"assertions":        len(req.Assertions),
	})
}
