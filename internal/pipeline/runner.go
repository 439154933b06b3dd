package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// CheckpointStore persists and retrieves pipeline Checkpoints. Satisfied by
// *storage.DB.
type CheckpointStore interface {
	CreateCheckpoint(ctx context.Context, cp model.Checkpoint) error
	GetLatestCheckpoint(ctx context.Context, threadID string) (model.Checkpoint, error)
}

// Registry maps stage names to their implementations. A Playbook naming a
// stage absent from the Registry is a configuration error caught at Run
// time, not at Playbook-construction time, since Playbooks are meant to be
// portable data independent of any one Runner's wiring.
type Registry map[string]Stage

// NewRegistry builds a Registry from a list of Stages, keyed by their
// Name().
func NewRegistry(stages ...Stage) Registry {
	r := make(Registry, len(stages))
	for _, s := range stages {
		r[s.Name()] = s
	}
	return r
}

// Runner executes Playbooks against a Registry of Stage implementations,
// reporting progress through a PipelineTracker and checkpointing state
// after every successful stage.
type Runner struct {
	registry    Registry
	tracker     *PipelineTracker
	checkpoints CheckpointStore
	logger      *slog.Logger
}

// NewRunner constructs a Runner. checkpoints may be nil to run without
// durable checkpointing (e.g. in tests); Resume then always starts from
// the beginning of the Playbook.
func NewRunner(registry Registry, tracker *PipelineTracker, checkpoints CheckpointStore, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{registry: registry, tracker: tracker, checkpoints: checkpoints, logger: logger}
}

// snapshot is the JSON-serializable subset of StageContext written into a
// Checkpoint's StateJSON.
type snapshot struct {
	SourceClaims []model.SourceClaim    `json:"source_claims"`
	Evidence     []model.Evidence       `json:"evidence"`
	Assertions   []model.Assertion      `json:"assertions"`
	Hypotheses   []model.Hypothesis     `json:"hypotheses"`
	Narratives   []model.Narrative      `json:"narratives"`
	Forecasts    []model.Forecast       `json:"forecasts"`
	Judgment     *model.Judgment        `json:"judgment,omitempty"`
	Quality      *model.QualityReportV1 `json:"quality,omitempty"`
}

func toSnapshot(sc *StageContext) snapshot {
	return snapshot{
		SourceClaims: sc.SourceClaims,
		Evidence:     sc.Evidence,
		Assertions:   sc.Assertions,
		Hypotheses:   sc.Hypotheses,
		Narratives:   sc.Narratives,
		Forecasts:    sc.Forecasts,
		Judgment:     sc.Judgment,
		Quality:      sc.Quality,
	}
}

func (s snapshot) applyTo(sc *StageContext) {
	sc.SourceClaims = s.SourceClaims
	sc.Evidence = s.Evidence
	sc.Assertions = s.Assertions
	sc.Hypotheses = s.Hypotheses
	sc.Narratives = s.Narratives
	sc.Forecasts = s.Forecasts
	sc.Judgment = s.Judgment
	sc.Quality = s.Quality
}

func snapshotToStateJSON(sc *StageContext) (map[string]any, error) {
	b, err := json.Marshal(toSnapshot(sc))
	if err != nil {
		return nil, fmt.Errorf("pipeline: marshal snapshot: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("pipeline: round-trip snapshot: %w", err)
	}
	return out, nil
}

func stateJSONToSnapshot(stateJSON map[string]any) (snapshot, error) {
	b, err := json.Marshal(stateJSON)
	if err != nil {
		return snapshot{}, fmt.Errorf("pipeline: marshal state_json: %w", err)
	}
	var s snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return snapshot{}, fmt.Errorf("pipeline: unmarshal snapshot: %w", err)
	}
	return s, nil
}

// RunResult is what Run returns once a Playbook has finished, halted on
// error, or been cancelled.
type RunResult struct {
	RunID   string
	Status  RunStatus
	Results []StageResult
}

// Run executes pb's stages in order against an initial StageContext,
// updating the Tracker's RunState as it goes and writing a Checkpoint
// after each successful (non-skipped or skipped) stage. A stage returning
// status=error halts the run; earlier checkpoints remain, so a later
// Resume call replays from the last successful stage rather than from the
// beginning.
func (r *Runner) Run(ctx context.Context, runID, caseUID string, pb Playbook, sc StageContext) RunResult {
	sc.Ctx = ctx
	r.tracker.Start(runID, caseUID, pb.Name, len(pb.Stages))
	r.tracker.Update(runID, func(s *RunState) { s.Status = RunRunning })

	var results []StageResult
	var parentCheckpointID string

	for i, spec := range pb.Stages {
		select {
		case <-ctx.Done():
			r.tracker.Update(runID, func(s *RunState) {
				s.Status = RunFailed
				s.Message = "cancelled"
			})
			return RunResult{RunID: runID, Status: RunFailed, Results: results}
		default:
		}

		stage, ok := r.registry[spec.Name]
		if !ok {
			r.tracker.Update(runID, func(s *RunState) {
				s.Status = RunFailed
				s.Message = fmt.Sprintf("no stage registered for %q", spec.Name)
			})
			return RunResult{RunID: runID, Status: RunFailed, Results: results}
		}

		sc.Config = spec.Config
		r.tracker.Update(runID, func(s *RunState) { s.CurrentStage = spec.Name })

		result := runStage(stage, &sc)
		results = append(results, result)

		if result.Status == StageError {
			r.tracker.Update(runID, func(s *RunState) {
				s.Status = RunFailed
				s.Message = result.Error
			})
			return RunResult{RunID: runID, Status: RunFailed, Results: results}
		}

		if r.checkpoints != nil {
			stateJSON, err := snapshotToStateJSON(&sc)
			if err != nil {
				r.logger.Error("pipeline: failed to snapshot stage context", "run_id", runID, "stage", spec.Name, "error", err)
			} else {
				cp := model.NewCheckpoint(runID, spec.Name, stateJSON, parentCheckpointID)
				if err := r.checkpoints.CreateCheckpoint(ctx, cp); err != nil {
					r.logger.Error("pipeline: failed to write checkpoint", "run_id", runID, "stage", spec.Name, "error", err)
				} else {
					parentCheckpointID = cp.UID
				}
			}
		}

		completed := i + 1
		r.tracker.Update(runID, func(s *RunState) {
			s.StagesCompleted = completed
			s.ProgressPct = float64(completed) / float64(len(pb.Stages)) * 100
		})
	}

	now := time.Now().UTC()
	r.tracker.Update(runID, func(s *RunState) {
		s.Status = RunSucceeded
		s.CompletedAt = &now
	})
	return RunResult{RunID: runID, Status: RunSucceeded, Results: results}
}

// Resume loads the latest Checkpoint for runID and replays the stages of
// pb that come after the checkpointed step, starting the StageContext from
// the checkpoint's snapshot rather than from scratch. If no checkpoint
// exists yet, Resume runs the full Playbook from the beginning.
func (r *Runner) Resume(ctx context.Context, runID, caseUID string, pb Playbook) (RunResult, error) {
	if r.checkpoints == nil {
		return r.Run(ctx, runID, caseUID, pb, StageContext{CaseUID: caseUID}), nil
	}

	cp, err := r.checkpoints.GetLatestCheckpoint(ctx, runID)
	if err != nil {
		return r.Run(ctx, runID, caseUID, pb, StageContext{CaseUID: caseUID}), nil
	}

	snap, err := stateJSONToSnapshot(cp.StateJSON)
	if err != nil {
		return RunResult{}, fmt.Errorf("pipeline: resume %s: %w", runID, err)
	}

	sc := StageContext{CaseUID: caseUID}
	snap.applyTo(&sc)

	resumeIdx := 0
	for i, spec := range pb.Stages {
		if spec.Name == cp.Step {
			resumeIdx = i + 1
			break
		}
	}

	remaining := Playbook{Name: pb.Name, Stages: pb.Stages[resumeIdx:]}
	return r.Run(ctx, runID, caseUID, remaining, sc), nil
}
