package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/evidentia-ai/evidentia/internal/fusion"
	"github.com/evidentia-ai/evidentia/internal/hypothesis"
	"github.com/evidentia-ai/evidentia/internal/model"
)

// assertionFuseCredibility is the baseline source credibility assumed for
// every Assertion entering the fuse stage. Assertions do not yet carry a
// per-source credibility of their own, so every mass uses the same
// constant rather than inventing a second confidence dial.
const assertionFuseCredibility = 0.85

// AssertionFuseStage merges Assertions that make the same kind-tagged
// claim (identical Kind and Value) but were derived from different
// SourceClaims, combining their confidences via Dempster-Shafer rather
// than simply averaging, so agreeing independent sources raise confidence
// and conflicting ones are reflected in a lower one.
type AssertionFuseStage struct{}

func (AssertionFuseStage) Name() string { return StageAssertionFuse }

func (AssertionFuseStage) ShouldSkip(sc *StageContext) (string, bool) {
	if len(sc.Assertions) == 0 {
		return "no assertions to fuse", true
	}
	return "", false
}

func fuseKey(a model.Assertion) string {
	v, _ := json.Marshal(a.Value)
	return string(a.Kind) + "|" + string(v)
}

func (AssertionFuseStage) Run(sc *StageContext) (StageResult, error) {
	groups := map[string][]model.Assertion{}
	order := []string{}
	for _, a := range sc.Assertions {
		k := fuseKey(a)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], a)
	}

	fused := make([]model.Assertion, 0, len(order))
	mergedCount := 0
	for _, k := range order {
		members := groups[k]
		if len(members) == 1 {
			fused = append(fused, members[0])
			continue
		}

		masses := make([]fusion.Mass, len(members))
		claimSet := map[string]bool{}
		earliest := members[0]
		for i, m := range members {
			masses[i] = fusion.ClaimToMass(m.Confidence, assertionFuseCredibility)
			for _, uid := range m.SourceClaimUIDs {
				claimSet[uid] = true
			}
			if m.CreatedAt.Before(earliest.CreatedAt) {
				earliest = m
			}
		}
		combined := fusion.CombineMasses(masses)

		claimUIDs := make([]string, 0, len(claimSet))
		for uid := range claimSet {
			claimUIDs = append(claimUIDs, uid)
		}
		sort.Strings(claimUIDs)

		merged := earliest
		merged.Confidence = combined.Confidence
		merged.SourceClaimUIDs = claimUIDs
		merged.UpdatedAt = time.Now().UTC()
		fused = append(fused, merged)
		mergedCount += len(members) - 1
	}

	sc.Assertions = fused
	return StageResult{Output: map[string]any{
		"fused_count": len(fused),
		"merged_away": mergedCount,
	}}, nil
}

// HypothesisAnalyzeStage generates candidate hypotheses (if none are
// already present in the StageContext) via the Hypothesis Engine, then
// runs Analysis of Competing Hypotheses for each one against the case's
// Assertions.
type HypothesisAnalyzeStage struct {
	Engine *hypothesis.Engine
}

func (HypothesisAnalyzeStage) Name() string { return StageHypothesisAnalyze }

func (s HypothesisAnalyzeStage) ShouldSkip(sc *StageContext) (string, bool) {
	if len(sc.Assertions) == 0 {
		return "no assertions to analyze hypotheses against", true
	}
	return "", false
}

// assertionsToAssesses heuristically derives per-hypothesis evidence
// assessments from a hypothesis's supporting/contradicting assertion
// sets: an assertion cited as support is treated as supporting evidence
// at strength equal to its own confidence, the same for contradicting,
// and every other assertion in the case is treated as irrelevant so
// Analyze's coverage accounting sees the full assertion set.
func assertionsToAssesses(h model.Hypothesis, assertions []model.Assertion) []hypothesis.Assess {
	supporting := map[string]bool{}
	for _, uid := range h.SupportingAssertionUIDs {
		supporting[uid] = true
	}
	contradicting := map[string]bool{}
	for _, uid := range h.ContradictingAssertionUIDs {
		contradicting[uid] = true
	}

	out := make([]hypothesis.Assess, 0, len(assertions))
	for _, a := range assertions {
		relation := model.RelationIrrelevant
		switch {
		case supporting[a.UID]:
			relation = model.RelationSupport
		case contradicting[a.UID]:
			relation = model.RelationContradict
		}
		for _, evidenceUID := range a.SourceClaimUIDs {
			out = append(out, hypothesis.Assess{
				EvidenceUID: evidenceUID,
				Relation:    relation,
				Strength:    a.Confidence,
			})
		}
	}
	return out
}

func (s HypothesisAnalyzeStage) Run(sc *StageContext) (StageResult, error) {
	engine := s.Engine
	if engine == nil {
		engine = hypothesis.NewEngine(nil)
	}

	fellBack := false
	if len(sc.Hypotheses) == 0 {
		result := engine.Generate(sc.Ctx, hypothesis.GenerateRequest{
			CaseUID:      sc.CaseUID,
			Assertions:   sc.Assertions,
			SourceClaims: sc.SourceClaims,
		})
		sc.Hypotheses = result.Hypotheses
		fellBack = result.Fallback
	}

	for i := range sc.Hypotheses {
		h := &sc.Hypotheses[i]
		assesses := assertionsToAssesses(*h, sc.Assertions)
		ach := hypothesis.Analyze(h.Statement, sc.Assertions, assesses)
		h.CoverageScore = ach.CoverageScore
		h.Confidence = ach.InitialConfidence
		h.GapList = ach.GapList
		posterior := ach.InitialConfidence
		h.PosteriorProbability = &posterior
		h.UpdatedAt = time.Now().UTC()
	}

	return StageResult{Output: map[string]any{
		"hypothesis_count": len(sc.Hypotheses),
		"fallback":          fellBack,
	}}, nil
}

// HypothesisMultiPerspectiveStage replaces HypothesisAnalyzeStage in
// MultiPerspectivePlaybook, fanning generation across personas before
// running the same per-hypothesis analysis.
type HypothesisMultiPerspectiveStage struct {
	Engine       *hypothesis.Engine
	PersonaCount int
}

func (HypothesisMultiPerspectiveStage) Name() string { return StageHypothesisMultiPerspective }

func (s HypothesisMultiPerspectiveStage) ShouldSkip(sc *StageContext) (string, bool) {
	if len(sc.Assertions) == 0 {
		return "no assertions to analyze hypotheses against", true
	}
	return "", false
}

func (s HypothesisMultiPerspectiveStage) Run(sc *StageContext) (StageResult, error) {
	engine := s.Engine
	if engine == nil {
		engine = hypothesis.NewEngine(nil)
	}

	result := engine.MultiPerspective(sc.Ctx, hypothesis.GenerateRequest{
		CaseUID:      sc.CaseUID,
		Assertions:   sc.Assertions,
		SourceClaims: sc.SourceClaims,
	}, s.PersonaCount)
	sc.Hypotheses = result.Hypotheses

	for i := range sc.Hypotheses {
		h := &sc.Hypotheses[i]
		assesses := assertionsToAssesses(*h, sc.Assertions)
		ach := hypothesis.Analyze(h.Statement, sc.Assertions, assesses)
		h.CoverageScore = ach.CoverageScore
		h.Confidence = ach.InitialConfidence
		h.GapList = ach.GapList
		posterior := ach.InitialConfidence
		h.PosteriorProbability = &posterior
		h.UpdatedAt = time.Now().UTC()
	}

	return StageResult{Output: map[string]any{
		"hypothesis_count": len(sc.Hypotheses),
		"fallback":          result.Fallback,
	}}, nil
}

// adversarialGapThreshold is the GapListEntry.Priority above which a gap
// counts as a successful attack on a hypothesis rather than a survivable
// weak spot.
const adversarialGapThreshold = 0.5

// AdversarialEvaluateStage stress-tests each hypothesis using its own gap
// list from the analyze stage: a high-priority gap (an uncovered
// assertion whose confidence was low, so 1-confidence is high) counts as
// an objection the hypothesis did not survive.
type AdversarialEvaluateStage struct{}

func (AdversarialEvaluateStage) Name() string { return StageAdversarialEvaluate }

func (AdversarialEvaluateStage) ShouldSkip(sc *StageContext) (string, bool) {
	if len(sc.Hypotheses) == 0 {
		return "no hypotheses to evaluate", true
	}
	return "", false
}

func (AdversarialEvaluateStage) Run(sc *StageContext) (StageResult, error) {
	totalObjections := 0
	for i := range sc.Hypotheses {
		h := &sc.Hypotheses[i]
		var objections []string
		failed := 0
		for _, gap := range h.GapList {
			if gap.Priority >= adversarialGapThreshold {
				objections = append(objections, gap.Description)
				failed++
			}
		}
		survived := len(h.GapList) - failed
		if survived < 0 {
			survived = 0
		}
		h.AdversarialResult = &model.AdversarialResult{
			Attacked:      len(h.GapList) > 0,
			SurvivedCount: survived,
			FailedCount:   failed,
			Objections:    objections,
		}
		totalObjections += failed
	}

	return StageResult{Output: map[string]any{
		"objections_raised": totalObjections,
	}}, nil
}

// NarrativeBuildStage groups a case's SourceClaims into at least one
// Narrative spanning their full time window. A richer narrative builder
// (clustering by theme) belongs to a future iteration; this satisfies the
// spec's minimum of one Narrative per case whenever SourceClaims exist.
type NarrativeBuildStage struct{}

func (NarrativeBuildStage) Name() string { return StageNarrativeBuild }

func (NarrativeBuildStage) ShouldSkip(sc *StageContext) (string, bool) {
	if len(sc.SourceClaims) == 0 {
		return "no source claims to narrate", true
	}
	return "", false
}

func (NarrativeBuildStage) Run(sc *StageContext) (StageResult, error) {
	uids := make([]string, 0, len(sc.SourceClaims))
	quotes := make([]string, 0, len(sc.SourceClaims))
	windowStart := sc.SourceClaims[0].CreatedAt
	windowEnd := sc.SourceClaims[0].CreatedAt
	for _, claim := range sc.SourceClaims {
		uids = append(uids, claim.UID)
		quotes = append(quotes, claim.Quote)
		if claim.CreatedAt.Before(windowStart) {
			windowStart = claim.CreatedAt
		}
		if claim.CreatedAt.After(windowEnd) {
			windowEnd = claim.CreatedAt
		}
	}

	narrative := model.Narrative{
		UID:             model.NewID(model.KindNarrative),
		CaseUID:         sc.CaseUID,
		Theme:           "case summary",
		Summary:         strings.Join(quotes, " "),
		SourceClaimUIDs: uids,
		WindowStart:     windowStart,
		WindowEnd:       windowEnd,
		CreatedAt:       time.Now().UTC(),
	}
	sc.Narratives = append(sc.Narratives, narrative)

	return StageResult{Output: map[string]any{
		"narrative_uid":      narrative.UID,
		"source_claim_count": len(uids),
	}}, nil
}

// GraphNode and GraphEdge are the lightweight knowledge-graph primitives
// the kg_build stage emits; a real graph database is one candidate
// backend behind the GraphStore interface, which is why these carry
// generic string node/edge kinds rather than being specific to a single
// storage engine's schema.
type GraphNode struct {
	UID  string
	Kind string
}

type GraphEdge struct {
	FromUID string
	ToUID   string
	Kind    string
}

// GraphStore persists a knowledge-graph projection of a case's
// assertions and hypotheses. NoopGraphStore is the default when no graph
// backend has been wired.
type GraphStore interface {
	UpsertNode(node GraphNode) error
	UpsertEdge(edge GraphEdge) error
}

// NoopGraphStore discards every node and edge. It exists so KGBuildStage
// can run (and be tested) identically whether or not a graph database is
// configured.
type NoopGraphStore struct{}

func (NoopGraphStore) UpsertNode(GraphNode) error { return nil }
func (NoopGraphStore) UpsertEdge(GraphEdge) error { return nil }

// KGBuildStage projects assertions and hypotheses into a knowledge graph:
// one node per assertion and hypothesis, and a supports/contradicts edge
// from each hypothesis to the assertions it cites.
type KGBuildStage struct {
	Store GraphStore
}

func (KGBuildStage) Name() string { return StageKGBuild }

func (KGBuildStage) ShouldSkip(sc *StageContext) (string, bool) {
	if len(sc.Assertions) == 0 && len(sc.Hypotheses) == 0 {
		return "nothing to project into the graph", true
	}
	return "", false
}

func (s KGBuildStage) Run(sc *StageContext) (StageResult, error) {
	store := s.Store
	if store == nil {
		store = NoopGraphStore{}
	}

	nodeCount, edgeCount := 0, 0
	for _, a := range sc.Assertions {
		if err := store.UpsertNode(GraphNode{UID: a.UID, Kind: "assertion"}); err != nil {
			return StageResult{}, fmt.Errorf("kg_build: upsert assertion node: %w", err)
		}
		nodeCount++
	}
	for _, h := range sc.Hypotheses {
		if err := store.UpsertNode(GraphNode{UID: h.UID, Kind: "hypothesis"}); err != nil {
			return StageResult{}, fmt.Errorf("kg_build: upsert hypothesis node: %w", err)
		}
		nodeCount++

		for _, uid := range h.SupportingAssertionUIDs {
			if err := store.UpsertEdge(GraphEdge{FromUID: h.UID, ToUID: uid, Kind: "supports"}); err != nil {
				return StageResult{}, fmt.Errorf("kg_build: upsert supports edge: %w", err)
			}
			edgeCount++
		}
		for _, uid := range h.ContradictingAssertionUIDs {
			if err := store.UpsertEdge(GraphEdge{FromUID: h.UID, ToUID: uid, Kind: "contradicts"}); err != nil {
				return StageResult{}, fmt.Errorf("kg_build: upsert contradicts edge: %w", err)
			}
			edgeCount++
		}
	}

	return StageResult{Output: map[string]any{
		"nodes": nodeCount,
		"edges": edgeCount,
	}}, nil
}

// ForecastStore persists Forecasts produced by forecast_generate. Satisfied
// by *storage.DB.
type ForecastStore interface {
	CreateForecast(ctx context.Context, f model.Forecast) error
}

// defaultForecastHorizonDays is how far out a forecast looks when the
// stage config does not specify horizon_days.
const defaultForecastHorizonDays = 30

// ForecastGenerateStage turns each hypothesis's posterior probability into
// a Forecast statement. Store is optional; when set, each Forecast is
// persisted immediately rather than left for a later stage to write.
type ForecastGenerateStage struct {
	Store ForecastStore
}

func (ForecastGenerateStage) Name() string { return StageForecastGenerate }

func (ForecastGenerateStage) ShouldSkip(sc *StageContext) (string, bool) {
	if len(sc.Hypotheses) == 0 {
		return "no hypotheses to forecast from", true
	}
	return "", false
}

func (s ForecastGenerateStage) Run(sc *StageContext) (StageResult, error) {
	horizonDays := defaultForecastHorizonDays
	if v, ok := sc.Config["horizon_days"].(int); ok && v > 0 {
		horizonDays = v
	}

	forecasts := make([]model.Forecast, 0, len(sc.Hypotheses))
	for _, h := range sc.Hypotheses {
		probability := h.Confidence
		if h.PosteriorProbability != nil {
			probability = *h.PosteriorProbability
		}
		statement := fmt.Sprintf("%s (%s)", h.Statement, h.Label)
		f := model.NewForecast(sc.CaseUID, h.UID, statement, probability, horizonDays)
		if s.Store != nil {
			if err := s.Store.CreateForecast(sc.Ctx, f); err != nil {
				return StageResult{}, fmt.Errorf("forecast_generate: persist forecast: %w", err)
			}
		}
		forecasts = append(forecasts, f)
	}
	sc.Forecasts = append(sc.Forecasts, forecasts...)

	return StageResult{Output: map[string]any{
		"forecast_count": len(forecasts),
	}}, nil
}

// QualityScoreStage scores the case's current best Judgment, if one has
// already been produced by an earlier report_generate pass (e.g. a
// re-score after new evidence arrives); otherwise it is skipped, since
// scoreQuality is meaningless without a Judgment to score.
type QualityScoreStage struct{}

func (QualityScoreStage) Name() string { return StageQualityScore }

func (QualityScoreStage) ShouldSkip(sc *StageContext) (string, bool) {
	if sc.Judgment == nil {
		return "no judgment to score yet", true
	}
	return "", false
}

func (QualityScoreStage) Run(sc *StageContext) (StageResult, error) {
	var topHypothesis *model.Hypothesis
	for i := range sc.Hypotheses {
		h := &sc.Hypotheses[i]
		if topHypothesis == nil || h.Confidence > topHypothesis.Confidence {
			topHypothesis = h
		}
	}

	report := hypothesis.ScoreQuality(hypothesis.JudgmentInput{
		Judgment:     *sc.Judgment,
		Assertions:   sc.Assertions,
		SourceClaims: sc.SourceClaims,
		Narratives:   sc.Narratives,
		Hypothesis:   topHypothesis,
	})
	sc.Quality = &report

	return StageResult{Output: map[string]any{
		"overall_score": report.OverallScore,
		"trace_id":      report.TraceID,
	}}, nil
}

// ReportGenerateStage renders a final Judgment from the hypothesis with
// the highest posterior confidence, citing every assertion that
// supports it.
type ReportGenerateStage struct{}

func (ReportGenerateStage) Name() string { return StageReportGenerate }

func (ReportGenerateStage) ShouldSkip(sc *StageContext) (string, bool) {
	if len(sc.Hypotheses) == 0 {
		return "no hypotheses to report on", true
	}
	return "", false
}

func (ReportGenerateStage) Run(sc *StageContext) (StageResult, error) {
	top := sc.Hypotheses[0]
	for _, h := range sc.Hypotheses[1:] {
		if h.Confidence > top.Confidence {
			top = h
		}
	}

	var body strings.Builder
	body.WriteString(top.Statement)
	if len(top.GapList) > 0 {
		body.WriteString(fmt.Sprintf(" (%d open evidence gap(s) remain.)", len(top.GapList)))
	}
	for _, n := range sc.Narratives {
		body.WriteString(" ")
		body.WriteString(n.Summary)
	}

	judgment := model.Judgment{
		UID:           model.NewID(model.KindJudgment),
		CaseUID:       sc.CaseUID,
		Title:         top.Label,
		Body:          body.String(),
		AssertionUIDs: append([]string{}, top.SupportingAssertionUIDs...),
		HypothesisUID: top.UID,
		CreatedAt:     time.Now().UTC(),
	}
	sc.Judgment = &judgment

	return StageResult{Output: map[string]any{
		"judgment_uid":   judgment.UID,
		"hypothesis_uid": top.UID,
		"confidence":     top.Confidence,
	}}, nil
}

// OSINTCollectStage is a placeholder collection stage for OSINTPlaybook:
// it reports how many seed queries its config carried without dispatching
// them, since the Tool Broker's meta_search/archive_url operations are
// wired by the HTTP layer, not by the pipeline package itself.
type OSINTCollectStage struct{}

func (OSINTCollectStage) Name() string { return StageOSINTCollect }

func (OSINTCollectStage) ShouldSkip(sc *StageContext) (string, bool) {
	return "", false
}

func (OSINTCollectStage) Run(sc *StageContext) (StageResult, error) {
	seeds, _ := sc.Config["seed_queries"].([]string)
	return StageResult{Output: map[string]any{
		"seed_queries_pending": len(seeds),
	}}, nil
}
