package httpapi

import (
	"context"
	"net/http"

	"github.com/evidentia-ai/evidentia/internal/hypothesis"
	"github.com/evidentia-ai/evidentia/internal/httpapi/problem"
	"github.com/evidentia-ai/evidentia/internal/model"
	"github.com/evidentia-ai/evidentia/internal/notify"
	"github.com/evidentia-ai/evidentia/internal/pipeline"
)

// loadStageContext assembles the StageContext a pipeline run starts from:
// every assertion, source claim and hypothesis already on record for the
// case. Stages append to these slices in place as they run.
func (h *Handlers) loadStageContext(ctx context.Context, caseUID string) (pipeline.StageContext, error) {
	assertions, err := h.db.ListAssertionsByCase(ctx, caseUID, 0, 0)
	if err != nil {
		return pipeline.StageContext{}, err
	}
	sourceClaims, err := h.db.ListSourceClaimsByCase(ctx, caseUID, 0, 0)
	if err != nil {
		return pipeline.StageContext{}, err
	}
	evidence, err := h.db.ListEvidenceByCase(ctx, caseUID, 0, 0)
	if err != nil {
		return pipeline.StageContext{}, err
	}
	hypotheses, err := h.db.ListHypothesesByCase(ctx, caseUID)
	if err != nil {
		return pipeline.StageContext{}, err
	}
	return pipeline.StageContext{
		CaseUID:      caseUID,
		Assertions:   assertions,
		SourceClaims: sourceClaims,
		Evidence:     evidence,
		Hypotheses:   hypotheses,
		Config:       map[string]any{},
	}, nil
}

type runPipelineRequest struct {
	Playbook string `json:"playbook"` // "default" | "multi_perspective" | "osint"
}

func playbookByName(name string) pipeline.Playbook {
	switch name {
	case "multi_perspective":
		return pipeline.MultiPerspectivePlaybook()
	case "osint":
		return pipeline.OSINTPlaybook()
	default:
		return pipeline.DefaultPlaybook()
	}
}

// HandleRunFullAnalysis starts a pipeline run in the background and
// returns its run_id immediately; progress is polled via
// GET /cases/{uid}/pipelines/{run_id} or pushed over the notify.* WebSocket
// frames once NarrativeBuildStage and later stages complete.
func (h *Handlers) HandleRunFullAnalysis(w http.ResponseWriter, r *http.Request) {
	caseUID := r.PathValue("uid")
	var req runPipelineRequest
	_ = decodeJSON(r, &req, h.maxRequestBodyBytes)

	sc, err := h.loadStageContext(r.Context(), caseUID)
	if err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	pb := playbookByName(req.Playbook)
	runID := model.NewID(model.KindRun)

	runCtx := context.WithoutCancel(r.Context())
	go func() {
		result := h.runner.Run(runCtx, runID, caseUID, pb, sc)
		if h.notify != nil {
			h.notify.Broadcast(runCtx, notify.KindPipelineProgress, map[string]any{
				"run_id":   result.RunID,
				"case_uid": caseUID,
				"status":   result.Status,
			})
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":   runID,
		"case_uid": caseUID,
		"playbook": pb.Name,
		"status":   "running",
	})
}

type runStageRequest struct {
	Stage  string         `json:"stage"`
	Config map[string]any `json:"config"`
}

// HandleRunStage runs a single named stage synchronously, for interactive
// re-runs (e.g. re-scoring quality after a human edits a Judgment) where
// waiting for the result is the point.
func (h *Handlers) HandleRunStage(w http.ResponseWriter, r *http.Request) {
	caseUID := r.PathValue("uid")
	var req runStageRequest
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		problem.WriteJSON(w, problem.New(model.ErrValidation, "invalid request body", err.Error(), r.URL.Path))
		return
	}
	if req.Stage == "" {
		problem.WriteJSON(w, problem.New(model.ErrValidation, "invalid request", "stage is required", r.URL.Path))
		return
	}

	sc, err := h.loadStageContext(r.Context(), caseUID)
	if err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	sc.Config = req.Config
	if sc.Config == nil {
		sc.Config = map[string]any{}
	}

	pb := pipeline.Playbook{Name: "single_stage", Stages: []pipeline.StageSpec{{Name: req.Stage, Config: req.Config}}}
	runID := model.NewID(model.KindRun)
	result := h.runner.Run(r.Context(), runID, caseUID, pb, sc)

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  result.RunID,
		"status":  result.Status,
		"results": result.Results,
	})
}

// HandleGetPipelineRun reports the live progress of a background run.
func (h *Handlers) HandleGetPipelineRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	state, ok := h.tracker.Get(runID)
	if !ok {
		problem.WriteJSON(w, problem.New(model.ErrNotFound, "run not found", "no such pipeline run", r.URL.Path))
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type multiPerspectiveRequest struct {
	PersonaCount int    `json:"persona_count"`
	Context      string `json:"context"`
}

// HandleMultiPerspective runs a synchronous multi-persona hypothesis
// generation pass without the rest of the pipeline, for callers that only
// want fresh candidate hypotheses (e.g. a chat turn asking "what else
// could explain this").
func (h *Handlers) HandleMultiPerspective(w http.ResponseWriter, r *http.Request) {
	caseUID := r.PathValue("uid")
	var req multiPerspectiveRequest
	_ = decodeJSON(r, &req, h.maxRequestBodyBytes)

	assertions, err := h.db.ListAssertionsByCase(r.Context(), caseUID, 0, 0)
	if err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}
	sourceClaims, err := h.db.ListSourceClaimsByCase(r.Context(), caseUID, 0, 0)
	if err != nil {
		writeProblem(w, r, err, model.ErrInternal, "internal server error")
		return
	}

	result := h.hypothesis.MultiPerspective(r.Context(), hypothesis.GenerateRequest{
		CaseUID:      caseUID,
		Assertions:   assertions,
		SourceClaims: sourceClaims,
		Context:      req.Context,
	}, req.PersonaCount)

	for _, hyp := range result.Hypotheses {
		if err := h.db.CreateHypothesis(r.Context(), hyp); err != nil {
			writeProblem(w, r, err, model.ErrInternal, "internal server error")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"hypotheses": result.Hypotheses,
		"fallback":   result.Fallback,
	})
}
