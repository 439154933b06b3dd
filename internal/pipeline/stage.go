package pipeline

import (
	"context"
	"time"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// ProgressFunc reports incremental progress from within a long-running
// stage (e.g. per-item progress during a multi-source fan-out).
type ProgressFunc func(message string, pct float64)

// StageContext is mutated in place as stages run in sequence; each stage
// reads what earlier stages accumulated and appends its own output.
type StageContext struct {
	Ctx          context.Context
	CaseUID      string
	SourceClaims []model.SourceClaim
	Evidence     []model.Evidence
	Assertions   []model.Assertion
	Hypotheses   []model.Hypothesis
	Narratives   []model.Narrative
	Forecasts    []model.Forecast
	Judgment     *model.Judgment
	Quality      *model.QualityReportV1

	// Config holds per-stage overrides merged from the Playbook's
	// StageSpec.Config for the stage currently executing.
	Config map[string]any

	Progress ProgressFunc
}

// StageStatus is a Stage's terminal outcome.
type StageStatus string

const (
	StageSuccess StageStatus = "success"
	StageSkipped StageStatus = "skipped"
	StageError   StageStatus = "error"
)

// StageResult reports one stage's outcome to the Runner, which uses it to
// decide whether to checkpoint and continue or halt the run.
type StageResult struct {
	Stage      string         `json:"stage"`
	Status     StageStatus    `json:"status"`
	DurationMS int64          `json:"duration_ms"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Stage is one unit of pipeline work. ShouldSkip lets a stage
// deterministically short-circuit (e.g. quality_score with no Judgment
// yet) without the Runner needing stage-specific knowledge.
type Stage interface {
	Name() string
	ShouldSkip(sc *StageContext) (reason string, skip bool)
	Run(sc *StageContext) (StageResult, error)
}

// runStage executes a Stage, honoring ShouldSkip and timing the run,
// translating a returned error into a StageError result rather than
// requiring every Stage implementation to do so itself.
func runStage(st Stage, sc *StageContext) StageResult {
	if reason, skip := st.ShouldSkip(sc); skip {
		return StageResult{Stage: st.Name(), Status: StageSkipped, Output: map[string]any{"reason": reason}}
	}

	start := time.Now()
	result, err := st.Run(sc)
	result.DurationMS = time.Since(start).Milliseconds()
	result.Stage = st.Name()
	if err != nil {
		result.Status = StageError
		result.Error = err.Error()
		return result
	}
	if result.Status == "" {
		result.Status = StageSuccess
	}
	return result
}
