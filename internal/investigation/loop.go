package investigation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/evidentia-ai/evidentia/internal/hypothesis"
	"github.com/evidentia-ai/evidentia/internal/model"
)

// Observer collects existing SourceClaims matching a trigger event, the
// loop's "observe" phase. Satisfied by a thin wrapper over the Evidence
// Model Store's claim-search query in production.
type Observer interface {
	ObserveClaims(ctx context.Context, caseUID, triggerEvent string) ([]model.SourceClaim, error)
}

// CrawlResult is raw material a CrawlerDispatcher retrieved for one gap,
// ready to hand to an Ingester.
type CrawlResult struct {
	Kind     string
	MimeType string
	Content  []byte
	License  string
}

// CrawlerDispatcher sends one gap to the Tool Broker as a crawl task and
// returns what it found. A gap that times out or errors is treated as
// unresolved for this round rather than failing the whole run.
type CrawlerDispatcher interface {
	DispatchCrawlTask(ctx context.Context, caseUID string, gap model.GapListEntry) (CrawlResult, error)
}

// Ingester turns a CrawlResult into SourceClaims, the loop's path back
// into the evidence graph after a successful gap-fill. Satisfied by
// internal/ingestion.Pipeline via a thin adapter.
type Ingester interface {
	IngestCrawlResult(ctx context.Context, caseUID string, result CrawlResult) ([]model.SourceClaim, error)
}

// Loop runs the Investigation Loop for a single case. It holds no
// per-run state itself; Run returns a fresh model.Investigation each
// call.
type Loop struct {
	engine     *hypothesis.Engine
	observer   Observer
	dispatcher CrawlerDispatcher
	ingester   Ingester
	logger     *slog.Logger
}

// NewLoop constructs a Loop. engine defaults to a NoopGenerator-backed
// Engine (deterministic fallback hypotheses) if nil.
func NewLoop(engine *hypothesis.Engine, observer Observer, dispatcher CrawlerDispatcher, ingester Ingester, logger *slog.Logger) *Loop {
	if engine == nil {
		engine = hypothesis.NewEngine(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{engine: engine, observer: observer, dispatcher: dispatcher, ingester: ingester, logger: logger}
}

func claimsToAssertions(caseUID string, claims []model.SourceClaim) []model.Assertion {
	out := make([]model.Assertion, 0, len(claims))
	for _, c := range claims {
		out = append(out, model.NewAssertion(
			caseUID,
			model.AssertionFactual,
			map[string]any{"quote": c.Quote},
			0.6,
			[]string{c.UID},
		))
	}
	return out
}

// mergeGaps unions the gap lists of every hypothesis from an orient pass,
// deduplicating by description and keeping the lowest (most urgent)
// priority seen for a repeated description, then sorts ascending so the
// most urgent gap is gap-filled first.
func mergeGaps(hyps []model.Hypothesis) []model.GapListEntry {
	byDescription := map[string]model.GapListEntry{}
	for _, h := range hyps {
		for _, g := range h.GapList {
			existing, ok := byDescription[g.Description]
			if !ok || g.Priority < existing.Priority {
				byDescription[g.Description] = g
			}
		}
	}
	out := make([]model.GapListEntry, 0, len(byDescription))
	for _, g := range byDescription {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// assessCitedOnly builds an assessment only for the assertions a
// hypothesis actually cites (supporting or contradicting), leaving every
// other assertion unassessed so Analyze reports it as a gap. Unlike the
// pipeline's assertion-analyze stage, the Investigation Loop wants real
// gaps to drive its gap-fill phase, not a trivially full coverage score.
func assessCitedOnly(h model.Hypothesis, assertions []model.Assertion) []hypothesis.Assess {
	supporting := map[string]bool{}
	for _, uid := range h.SupportingAssertionUIDs {
		supporting[uid] = true
	}
	contradicting := map[string]bool{}
	for _, uid := range h.ContradictingAssertionUIDs {
		contradicting[uid] = true
	}

	var out []hypothesis.Assess
	for _, a := range assertions {
		relation := model.RelationSupport
		cited := supporting[a.UID]
		if contradicting[a.UID] {
			relation = model.RelationContradict
			cited = true
		}
		if !cited {
			continue
		}
		for _, evidenceUID := range a.SourceClaimUIDs {
			out = append(out, hypothesis.Assess{EvidenceUID: evidenceUID, Relation: relation, Strength: a.Confidence})
		}
	}
	return out
}

// orient runs the Hypothesis Engine against claims observed so far and
// returns the candidate hypotheses plus their merged, deduplicated gap
// list.
func (l *Loop) orient(ctx context.Context, caseUID string, claims []model.SourceClaim) ([]model.Hypothesis, []model.GapListEntry) {
	assertions := claimsToAssertions(caseUID, claims)
	result := l.engine.Generate(ctx, hypothesis.GenerateRequest{CaseUID: caseUID, Assertions: assertions, SourceClaims: claims})

	hyps := result.Hypotheses
	for i := range hyps {
		assesses := assessCitedOnly(hyps[i], assertions)
		ach := hypothesis.Analyze(hyps[i].Statement, assertions, assesses)
		hyps[i].GapList = ach.GapList
		hyps[i].CoverageScore = ach.CoverageScore
		hyps[i].Confidence = ach.InitialConfidence
	}

	return hyps, mergeGaps(hyps)
}

// Run executes the Observe/Orient/Gap-fill/Terminate cycle until the gap
// list empties, max_rounds is exhausted, or cancel is signalled.
// cancel may be nil, in which case the run can only terminate by gap
// exhaustion or round budget.
func (l *Loop) Run(ctx context.Context, caseUID, triggerEvent string, cfg model.InvestigationConfig, cancel *CancelSignal) model.Investigation {
	inv := model.Investigation{
		UID:          model.NewID(model.KindInvestigation),
		CaseUID:      caseUID,
		TriggerEvent: triggerEvent,
		Config:       cfg,
		Status:       model.InvestigationRunning,
		StartedAt:    time.Now().UTC(),
	}

	var roundsCompleted, evidenceFound atomic.Int64

	claims, err := l.safeObserve(ctx, caseUID, triggerEvent)
	if err != nil {
		l.logger.Error("investigation: observe failed", "case_uid", caseUID, "error", err)
	}

	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 1
	}

	for round := 1; round <= maxRounds; round++ {
		if by, cancelled := cancelRequested(cancel); cancelled {
			inv.Status = model.InvestigationCancelled
			inv.CancelledBy = by
			now := time.Now().UTC()
			inv.CancelledAt = &now
			return inv
		}

		roundStart := time.Now().UTC()
		hyps, gaps := l.orient(ctx, caseUID, claims)

		targeted := 0
		foundThisRound := 0
		if len(gaps) > 0 && l.dispatcher != nil && l.ingester != nil {
			roundCtx := ctx
			var cancelRound context.CancelFunc
			if cfg.RoundTimeout > 0 {
				roundCtx, cancelRound = context.WithTimeout(ctx, cfg.RoundTimeout)
			}

			for _, gap := range gaps {
				if gap.Priority > cfg.GapPriorityThreshold {
					continue
				}
				targeted++

				result, dispatchErr := l.dispatcher.DispatchCrawlTask(roundCtx, caseUID, gap)
				if dispatchErr != nil {
					l.logger.Warn("investigation: crawl task failed", "case_uid", caseUID, "gap", gap.Description, "error", dispatchErr)
					continue
				}

				newClaims, ingestErr := l.ingester.IngestCrawlResult(roundCtx, caseUID, result)
				if ingestErr != nil {
					l.logger.Warn("investigation: ingest failed", "case_uid", caseUID, "gap", gap.Description, "error", ingestErr)
					continue
				}
				claims = append(claims, newClaims...)
				foundThisRound += len(newClaims)
			}

			if cancelRound != nil {
				cancelRound()
			}
		}

		roundsCompleted.Add(1)
		evidenceFound.Add(int64(foundThisRound))

		inv.Rounds = append(inv.Rounds, model.RoundSummary{
			RoundNum:        round,
			GapsTargeted:    targeted,
			EvidenceFound:   foundThisRound,
			HypothesesAfter: len(hyps),
			StartedAt:       roundStart,
			CompletedAt:     time.Now().UTC(),
		})

		// Re-orient against whatever new claims this round's gap-fill
		// ingested, so termination reflects the post-ingest gap list
		// rather than the one that triggered this round's dispatch.
		_, remainingGaps := l.orient(ctx, caseUID, claims)
		if len(remainingGaps) == 0 {
			inv.GapResolved = true
			inv.Status = model.InvestigationCompleted
			now := time.Now().UTC()
			inv.CompletedAt = &now
			return inv
		}
		if targeted == 0 && foundThisRound == 0 {
			// Nothing actionable this round (no dispatcher/ingester
			// wired, or every actionable gap sat above the priority
			// threshold): further rounds would repeat identically.
			inv.Status = model.InvestigationCompleted
			now := time.Now().UTC()
			inv.CompletedAt = &now
			return inv
		}
	}

	inv.Status = model.InvestigationCompleted
	now := time.Now().UTC()
	inv.CompletedAt = &now
	l.logger.Info("investigation: max_rounds exhausted", "case_uid", caseUID, "rounds_completed", roundsCompleted.Load(), "evidence_found", evidenceFound.Load())
	return inv
}

func cancelRequested(cancel *CancelSignal) (string, bool) {
	if cancel == nil {
		return "", false
	}
	return cancel.Requested()
}

func (l *Loop) safeObserve(ctx context.Context, caseUID, triggerEvent string) ([]model.SourceClaim, error) {
	if l.observer == nil {
		return nil, nil
	}
	claims, err := l.observer.ObserveClaims(ctx, caseUID, triggerEvent)
	if err != nil {
		return nil, fmt.Errorf("investigation: observe: %w", err)
	}
	return claims, nil
}
