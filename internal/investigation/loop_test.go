package investigation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evidentia-ai/evidentia/internal/hypothesis"
	"github.com/evidentia-ai/evidentia/internal/model"
)

type stubObserver struct {
	claims []model.SourceClaim
	err    error
}

func (s stubObserver) ObserveClaims(context.Context, string, string) ([]model.SourceClaim, error) {
	return s.claims, s.err
}

// fillingDispatcher always succeeds, handing back a CrawlResult the
// matching ingester turns into one new claim per call, so a test run
// eventually drives the gap list to empty.
type fillingDispatcher struct{ calls int }

func (f *fillingDispatcher) DispatchCrawlTask(context.Context, string, model.GapListEntry) (CrawlResult, error) {
	f.calls++
	return CrawlResult{Kind: "text", MimeType: "text/plain", Content: []byte("new evidence")}, nil
}

type appendingIngester struct{ calls int }

func (a *appendingIngester) IngestCrawlResult(_ context.Context, caseUID string, result CrawlResult) ([]model.SourceClaim, error) {
	a.calls++
	return []model.SourceClaim{{
		UID:       model.NewID(model.KindSourceClaim),
		CaseUID:   caseUID,
		Quote:     string(result.Content),
		Modality:  model.ModalityText,
		CreatedAt: time.Now().UTC(),
	}}, nil
}

type failingDispatcher struct{}

func (failingDispatcher) DispatchCrawlTask(context.Context, string, model.GapListEntry) (CrawlResult, error) {
	return CrawlResult{}, errors.New("network down")
}

// partialGenerator cites only the first assertion it is offered, leaving
// every other assertion uncovered and therefore a gap, so tests can
// exercise gap-fill behavior without depending on the deterministic
// fallback's all-covering archetypes.
type partialGenerator struct{}

func (partialGenerator) GenerateHypotheses(_ context.Context, req hypothesis.GenerateRequest) ([]hypothesis.GeneratedHypothesis, error) {
	var cites []string
	if len(req.Assertions) > 0 {
		cites = []string{req.Assertions[0].UID}
	}
	return []hypothesis.GeneratedHypothesis{{
		Label:     "partial",
		Statement: "a hypothesis citing only partial evidence",
		CitesUIDs: cites,
	}}, nil
}

func twoClaims(caseUID string) []model.SourceClaim {
	return []model.SourceClaim{
		{UID: model.NewID(model.KindSourceClaim), CaseUID: caseUID, Quote: "first", Modality: model.ModalityText, CreatedAt: time.Now().UTC()},
		{UID: model.NewID(model.KindSourceClaim), CaseUID: caseUID, Quote: "second", Modality: model.ModalityText, CreatedAt: time.Now().UTC()},
	}
}

func TestRunWithNoDispatcherCompletesAfterOneRound(t *testing.T) {
	loop := NewLoop(hypothesis.NewEngine(nil), stubObserver{}, nil, nil, nil)
	cfg := model.InvestigationConfig{MaxRounds: 5, GapPriorityThreshold: 1.0}

	inv := loop.Run(context.Background(), "case-1", "trigger", cfg, nil)

	require.Equal(t, model.InvestigationCompleted, inv.Status)
	require.Len(t, inv.Rounds, 1)
}

func TestRunRespectsMaxRounds(t *testing.T) {
	claims := twoClaims("case-1")
	loop := NewLoop(hypothesis.NewEngine(partialGenerator{}), stubObserver{claims: claims}, &failingDispatcher{}, &appendingIngester{}, nil)
	cfg := model.InvestigationConfig{MaxRounds: 3, GapPriorityThreshold: 1.0}

	inv := loop.Run(context.Background(), "case-1", "trigger", cfg, nil)

	require.Equal(t, model.InvestigationCompleted, inv.Status)
	require.Len(t, inv.Rounds, 3)
	require.False(t, inv.GapResolved)
}

func TestRunGapFillDispatchesAndIngestsNewClaims(t *testing.T) {
	claims := twoClaims("case-1")
	dispatcher := &fillingDispatcher{}
	ingester := &appendingIngester{}
	loop := NewLoop(hypothesis.NewEngine(partialGenerator{}), stubObserver{claims: claims}, dispatcher, ingester, nil)
	cfg := model.InvestigationConfig{MaxRounds: 4, GapPriorityThreshold: 1.0}

	inv := loop.Run(context.Background(), "case-1", "trigger", cfg, nil)

	require.NotEmpty(t, inv.Rounds)
	require.Positive(t, inv.Rounds[0].GapsTargeted)
	require.Positive(t, inv.Rounds[0].EvidenceFound)
	require.Positive(t, dispatcher.calls)
	require.Positive(t, ingester.calls)
}

func TestRunRespectsCancelSignal(t *testing.T) {
	loop := NewLoop(hypothesis.NewEngine(nil), stubObserver{}, &fillingDispatcher{}, &appendingIngester{}, nil)
	cfg := model.InvestigationConfig{MaxRounds: 100, GapPriorityThreshold: 1.0}

	cancel := &CancelSignal{}
	cancel.Cancel("alice")

	inv := loop.Run(context.Background(), "case-1", "trigger", cfg, cancel)

	require.Equal(t, model.InvestigationCancelled, inv.Status)
	require.Equal(t, "alice", inv.CancelledBy)
	require.NotNil(t, inv.CancelledAt)
}

func TestCancelSignalFirstCallWins(t *testing.T) {
	var c CancelSignal
	c.Cancel("alice")
	c.Cancel("bob")

	by, cancelled := c.Requested()
	require.True(t, cancelled)
	require.Equal(t, "alice", by)
}

func TestCancelSignalNotRequestedInitially(t *testing.T) {
	var c CancelSignal
	_, cancelled := c.Requested()
	require.False(t, cancelled)
}

func TestObserveErrorDoesNotFailTheRun(t *testing.T) {
	loop := NewLoop(hypothesis.NewEngine(nil), stubObserver{err: errors.New("db down")}, nil, nil, nil)
	cfg := model.InvestigationConfig{MaxRounds: 1, GapPriorityThreshold: 1.0}

	inv := loop.Run(context.Background(), "case-1", "trigger", cfg, nil)
	require.Equal(t, model.InvestigationCompleted, inv.Status)
}

func TestMergeGapsDeduplicatesByDescriptionKeepingLowestPriority(t *testing.T) {
	hyps := []model.Hypothesis{
		{GapList: []model.GapListEntry{{Description: "missing X", Priority: 0.8}}},
		{GapList: []model.GapListEntry{{Description: "missing X", Priority: 0.2}, {Description: "missing Y", Priority: 0.5}}},
	}
	merged := mergeGaps(hyps)
	require.Len(t, merged, 2)
	require.Equal(t, "missing X", merged[0].Description)
	require.Equal(t, 0.2, merged[0].Priority)
}
