package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeStage struct {
	name       string
	skip       bool
	skipReason string
	result     StageResult
	err        error
}

func (f fakeStage) Name() string { return f.name }
func (f fakeStage) ShouldSkip(*StageContext) (string, bool) {
	return f.skipReason, f.skip
}
func (f fakeStage) Run(*StageContext) (StageResult, error) {
	return f.result, f.err
}

func TestRunStageSuccessDefaultsStatus(t *testing.T) {
	st := fakeStage{name: "x", result: StageResult{}}
	result := runStage(st, &StageContext{})
	require.Equal(t, StageSuccess, result.Status)
	require.Equal(t, "x", result.Stage)
}

func TestRunStageSkipped(t *testing.T) {
	st := fakeStage{name: "x", skip: true, skipReason: "nothing to do"}
	result := runStage(st, &StageContext{})
	require.Equal(t, StageSkipped, result.Status)
	require.Equal(t, "nothing to do", result.Output["reason"])
}

func TestRunStageErrorTranslatesToErrorStatus(t *testing.T) {
	st := fakeStage{name: "x", err: errors.New("boom")}
	result := runStage(st, &StageContext{})
	require.Equal(t, StageError, result.Status)
	require.Equal(t, "boom", result.Error)
}
