package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evidentia-ai/evidentia/internal/model"
)

type memCheckpointStore struct {
	mu    sync.Mutex
	byRun map[string][]model.Checkpoint
}

func newMemCheckpointStore() *memCheckpointStore {
	return &memCheckpointStore{byRun: map[string][]model.Checkpoint{}}
}

func (m *memCheckpointStore) CreateCheckpoint(_ context.Context, cp model.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byRun[cp.ThreadID] = append(m.byRun[cp.ThreadID], cp)
	return nil
}

func (m *memCheckpointStore) GetLatestCheckpoint(_ context.Context, threadID string) (model.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cps := m.byRun[threadID]
	if len(cps) == 0 {
		return model.Checkpoint{}, errNotFoundStub
	}
	return cps[len(cps)-1], nil
}

type stubErr string

func (e stubErr) Error() string { return string(e) }

const errNotFoundStub = stubErr("not found")

// countingStage appends its name to a shared log every time it runs, so
// tests can assert which stages actually executed across Run/Resume calls.
type countingStage struct {
	name string
	log  *[]string
	fail bool
}

func (c countingStage) Name() string { return c.name }
func (c countingStage) ShouldSkip(*StageContext) (string, bool) { return "", false }
func (c countingStage) Run(sc *StageContext) (StageResult, error) {
	*c.log = append(*c.log, c.name)
	if c.fail {
		return StageResult{}, stubErr("stage failed")
	}
	return StageResult{}, nil
}

func testPlaybook(names ...string) Playbook {
	return Playbook{Name: "test", Stages: specs(names...)}
}

func TestRunExecutesAllStagesInOrder(t *testing.T) {
	var log []string
	registry := NewRegistry(
		countingStage{name: "a", log: &log},
		countingStage{name: "b", log: &log},
		countingStage{name: "c", log: &log},
	)
	runner := NewRunner(registry, NewPipelineTracker(), nil, nil)

	result := runner.Run(context.Background(), "run-1", "case-1", testPlaybook("a", "b", "c"), StageContext{CaseUID: "case-1"})

	require.Equal(t, RunSucceeded, result.Status)
	require.Equal(t, []string{"a", "b", "c"}, log)
	require.Len(t, result.Results, 3)
}

func TestRunHaltsOnStageError(t *testing.T) {
	var log []string
	registry := NewRegistry(
		countingStage{name: "a", log: &log},
		countingStage{name: "b", log: &log, fail: true},
		countingStage{name: "c", log: &log},
	)
	runner := NewRunner(registry, NewPipelineTracker(), nil, nil)

	result := runner.Run(context.Background(), "run-1", "case-1", testPlaybook("a", "b", "c"), StageContext{CaseUID: "case-1"})

	require.Equal(t, RunFailed, result.Status)
	require.Equal(t, []string{"a", "b"}, log)
}

func TestRunUnknownStageFailsImmediately(t *testing.T) {
	registry := NewRegistry()
	runner := NewRunner(registry, NewPipelineTracker(), nil, nil)

	result := runner.Run(context.Background(), "run-1", "case-1", testPlaybook("ghost"), StageContext{CaseUID: "case-1"})

	require.Equal(t, RunFailed, result.Status)
}

func TestRunWritesCheckpointsAfterEachStage(t *testing.T) {
	var log []string
	registry := NewRegistry(
		countingStage{name: "a", log: &log},
		countingStage{name: "b", log: &log},
	)
	store := newMemCheckpointStore()
	runner := NewRunner(registry, NewPipelineTracker(), store, nil)

	runner.Run(context.Background(), "run-1", "case-1", testPlaybook("a", "b"), StageContext{CaseUID: "case-1"})

	cps := store.byRun["run-1"]
	require.Len(t, cps, 2)
	require.Equal(t, "a", cps[0].Step)
	require.Equal(t, "b", cps[1].Step)
	require.Equal(t, cps[0].UID, cps[1].ParentCheckpointID)
}

func TestResumeReplaysOnlyStagesAfterLastCheckpoint(t *testing.T) {
	var log []string
	registry := NewRegistry(
		countingStage{name: "a", log: &log},
		countingStage{name: "b", log: &log, fail: true},
	)
	store := newMemCheckpointStore()
	runner := NewRunner(registry, NewPipelineTracker(), store, nil)

	pb := testPlaybook("a", "b")
	first := runner.Run(context.Background(), "run-1", "case-1", pb, StageContext{CaseUID: "case-1"})
	require.Equal(t, RunFailed, first.Status)
	require.Equal(t, []string{"a", "b"}, log)

	// Fix stage b and resume: only "b" should run again, not "a".
	log = nil
	registry["b"] = countingStage{name: "b", log: &log}
	runner = NewRunner(registry, NewPipelineTracker(), store, nil)

	second, err := runner.Resume(context.Background(), "run-1", "case-1", pb)
	require.NoError(t, err)
	require.Equal(t, RunSucceeded, second.Status)
	require.Equal(t, []string{"b"}, log)
}

func TestResumeWithNoCheckpointsRunsFromStart(t *testing.T) {
	var log []string
	registry := NewRegistry(
		countingStage{name: "a", log: &log},
		countingStage{name: "b", log: &log},
	)
	store := newMemCheckpointStore()
	runner := NewRunner(registry, NewPipelineTracker(), store, nil)

	result, err := runner.Resume(context.Background(), "run-1", "case-1", testPlaybook("a", "b"))
	require.NoError(t, err)
	require.Equal(t, RunSucceeded, result.Status)
	require.Equal(t, []string{"a", "b"}, log)
}

func TestRunRespectsContextCancellation(t *testing.T) {
	var log []string
	registry := NewRegistry(countingStage{name: "a", log: &log})
	runner := NewRunner(registry, NewPipelineTracker(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := runner.Run(ctx, "run-1", "case-1", testPlaybook("a"), StageContext{CaseUID: "case-1"})
	require.Equal(t, RunFailed, result.Status)
	require.Empty(t, log)
}
