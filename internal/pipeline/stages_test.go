package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evidentia-ai/evidentia/internal/hypothesis"
	"github.com/evidentia-ai/evidentia/internal/model"
)

func assertionWith(caseUID string, kind model.AssertionKind, value map[string]any, confidence float64, sourceClaimUIDs ...string) model.Assertion {
	return model.NewAssertion(caseUID, kind, value, confidence, sourceClaimUIDs)
}

func TestAssertionFuseStageMergesIdenticalClaims(t *testing.T) {
	value := map[string]any{"subject": "x"}
	a1 := assertionWith("case-1", model.AssertionFactual, value, 0.8, "sc-1")
	a2 := assertionWith("case-1", model.AssertionFactual, value, 0.7, "sc-2")
	distinct := assertionWith("case-1", model.AssertionFactual, map[string]any{"subject": "y"}, 0.5, "sc-3")

	sc := &StageContext{Assertions: []model.Assertion{a1, a2, distinct}}
	result, err := AssertionFuseStage{}.Run(sc)
	require.NoError(t, err)
	require.Len(t, sc.Assertions, 2)
	require.Equal(t, 1, result.Output["merged_away"])

	var fused model.Assertion
	for _, a := range sc.Assertions {
		if a.UID == a1.UID {
			fused = a
		}
	}
	require.ElementsMatch(t, []string{"sc-1", "sc-2"}, fused.SourceClaimUIDs)
	require.Greater(t, fused.Confidence, 0.0)
}

func TestAssertionFuseStageSkipsWhenEmpty(t *testing.T) {
	reason, skip := AssertionFuseStage{}.ShouldSkip(&StageContext{})
	require.True(t, skip)
	require.NotEmpty(t, reason)
}

func TestHypothesisAnalyzeStageGeneratesAndAnalyzes(t *testing.T) {
	a := assertionWith("case-1", model.AssertionFactual, map[string]any{"x": 1}, 0.9, "sc-1")
	sc := &StageContext{CaseUID: "case-1", Ctx: context.Background(), Assertions: []model.Assertion{a}}

	stage := HypothesisAnalyzeStage{Engine: hypothesis.NewEngine(nil)}
	result, err := stage.Run(sc)
	require.NoError(t, err)
	require.Equal(t, 3, result.Output["hypothesis_count"])
	require.Len(t, sc.Hypotheses, 3)
	for _, h := range sc.Hypotheses {
		require.NotNil(t, h.PosteriorProbability)
	}
}

func TestHypothesisMultiPerspectiveStageTagsPersonas(t *testing.T) {
	a := assertionWith("case-1", model.AssertionFactual, map[string]any{"x": 1}, 0.9, "sc-1")
	sc := &StageContext{CaseUID: "case-1", Ctx: context.Background(), Assertions: []model.Assertion{a}}

	stage := HypothesisMultiPerspectiveStage{Engine: hypothesis.NewEngine(nil)}
	_, err := stage.Run(sc)
	require.NoError(t, err)
	require.Len(t, sc.Hypotheses, 9) // 3 personas x 3 fallback archetypes
	for _, h := range sc.Hypotheses {
		require.NotNil(t, h.Persona)
	}
}

func TestAdversarialEvaluateStageCountsHighPriorityGaps(t *testing.T) {
	h := model.NewHypothesis("case-1", "label", "statement", 1)
	h.GapList = []model.GapListEntry{
		{Description: "big gap", Priority: 0.9},
		{Description: "small gap", Priority: 0.1},
	}
	sc := &StageContext{Hypotheses: []model.Hypothesis{h}}

	_, err := AdversarialEvaluateStage{}.Run(sc)
	require.NoError(t, err)
	require.True(t, sc.Hypotheses[0].AdversarialResult.Attacked)
	require.Equal(t, 1, sc.Hypotheses[0].AdversarialResult.FailedCount)
	require.Equal(t, 1, sc.Hypotheses[0].AdversarialResult.SurvivedCount)
}

func TestNarrativeBuildStageSpansClaimWindow(t *testing.T) {
	early := time.Now().Add(-time.Hour).UTC()
	late := time.Now().UTC()
	claims := []model.SourceClaim{
		{UID: "sc-1", Quote: "first", CreatedAt: early},
		{UID: "sc-2", Quote: "second", CreatedAt: late},
	}
	sc := &StageContext{CaseUID: "case-1", SourceClaims: claims}

	_, err := NarrativeBuildStage{}.Run(sc)
	require.NoError(t, err)
	require.Len(t, sc.Narratives, 1)
	require.Equal(t, early, sc.Narratives[0].WindowStart)
	require.Equal(t, late, sc.Narratives[0].WindowEnd)
	require.Contains(t, sc.Narratives[0].Summary, "first")
	require.Contains(t, sc.Narratives[0].Summary, "second")
}

type recordingGraphStore struct {
	nodes []GraphNode
	edges []GraphEdge
}

func (r *recordingGraphStore) UpsertNode(n GraphNode) error {
	r.nodes = append(r.nodes, n)
	return nil
}
func (r *recordingGraphStore) UpsertEdge(e GraphEdge) error {
	r.edges = append(r.edges, e)
	return nil
}

func TestKGBuildStageProjectsNodesAndEdges(t *testing.T) {
	a := assertionWith("case-1", model.AssertionFactual, map[string]any{"x": 1}, 0.9, "sc-1")
	h := model.NewHypothesis("case-1", "label", "statement", 1)
	h.SupportingAssertionUIDs = []string{a.UID}

	store := &recordingGraphStore{}
	sc := &StageContext{Assertions: []model.Assertion{a}, Hypotheses: []model.Hypothesis{h}}

	_, err := KGBuildStage{Store: store}.Run(sc)
	require.NoError(t, err)
	require.Len(t, store.nodes, 2)
	require.Len(t, store.edges, 1)
	require.Equal(t, "supports", store.edges[0].Kind)
}

func TestKGBuildStageDefaultsToNoopStore(t *testing.T) {
	a := assertionWith("case-1", model.AssertionFactual, map[string]any{"x": 1}, 0.9, "sc-1")
	sc := &StageContext{Assertions: []model.Assertion{a}}
	result, err := KGBuildStage{}.Run(sc)
	require.NoError(t, err)
	require.Equal(t, 1, result.Output["nodes"])
}

func TestForecastGenerateStageProducesOnePerHypothesis(t *testing.T) {
	posterior := 0.75
	h := model.NewHypothesis("case-1", "label", "statement", 1)
	h.PosteriorProbability = &posterior
	sc := &StageContext{CaseUID: "case-1", Ctx: context.Background(), Hypotheses: []model.Hypothesis{h}}

	result, err := ForecastGenerateStage{}.Run(sc)
	require.NoError(t, err)
	require.Equal(t, 1, result.Output["forecast_count"])
	require.Len(t, sc.Forecasts, 1)
	require.Equal(t, 0.75, sc.Forecasts[0].Probability)
	require.Equal(t, defaultForecastHorizonDays, sc.Forecasts[0].HorizonDays)
}

func TestQualityScoreStageSkipsWithoutJudgment(t *testing.T) {
	reason, skip := QualityScoreStage{}.ShouldSkip(&StageContext{})
	require.True(t, skip)
	require.NotEmpty(t, reason)
}

func TestQualityScoreStageScoresTopHypothesis(t *testing.T) {
	a := assertionWith("case-1", model.AssertionFactual, map[string]any{"x": 1}, 0.8, "sc-1")
	judgment := &model.Judgment{UID: "j-1", Body: "a reasonably long judgment body describing the outcome in detail for scoring purposes and then some more words to pad it out past the threshold that the coherence scorer checks for."}
	sc := &StageContext{Assertions: []model.Assertion{a}, Judgment: judgment}

	result, err := QualityScoreStage{}.Run(sc)
	require.NoError(t, err)
	require.NotNil(t, sc.Quality)
	require.Equal(t, sc.Quality.OverallScore, result.Output["overall_score"])
}

func TestReportGenerateStagePicksHighestConfidenceHypothesis(t *testing.T) {
	low := model.NewHypothesis("case-1", "low", "low statement", 2)
	low.Confidence = 0.2
	high := model.NewHypothesis("case-1", "high", "high statement", 2)
	high.Confidence = 0.9
	high.SupportingAssertionUIDs = []string{"a-1"}

	sc := &StageContext{CaseUID: "case-1", Hypotheses: []model.Hypothesis{low, high}}
	_, err := ReportGenerateStage{}.Run(sc)
	require.NoError(t, err)
	require.NotNil(t, sc.Judgment)
	require.Equal(t, high.UID, sc.Judgment.HypothesisUID)
	require.Equal(t, []string{"a-1"}, sc.Judgment.AssertionUIDs)
}

func TestOSINTCollectStageNeverSkips(t *testing.T) {
	_, skip := OSINTCollectStage{}.ShouldSkip(&StageContext{})
	require.False(t, skip)
}
