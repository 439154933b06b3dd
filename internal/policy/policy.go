// Package policy implements the Policy Engine: the gate that Tool Broker
// calls aimed at a URL (archive_url, and doc_parse when given a source
// URL) pass through; meta_search, embed and generate_structured calls are
// not evaluated here. It checks the domain allowlist, a per-(tool,domain)
// minimum interval and a broader per-tool Redis-backed request budget, and
// provides the grounding gate that keeps ungrounded claims below FACT.
package policy

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/evidentia-ai/evidentia/internal/model"
	"github.com/evidentia-ai/evidentia/internal/ratelimit"
)

// Engine evaluates outbound tool calls against the allowlist, interval
// gate, and request budget.
type Engine struct {
	allowDomains map[string]struct{} // empty => allow-all (development mode)
	minInterval  time.Duration
	limiter      *ratelimit.Limiter
	budgetRule   ratelimit.Rule

	mu       sync.Mutex
	lastCall map[string]time.Time // key: "tool_name:domain", monotonic timestamps
}

// NewEngine constructs a Policy Engine. An empty allowDomains list puts the
// engine into development mode: every domain is permitted and callers
// should log a loud warning about it once at startup.
func NewEngine(allowDomains []string, minInterval time.Duration, limiter *ratelimit.Limiter) *Engine {
	set := make(map[string]struct{}, len(allowDomains))
	for _, d := range allowDomains {
		set[strings.ToLower(d)] = struct{}{}
	}
	return &Engine{
		allowDomains: set,
		minInterval:  minInterval,
		limiter:      limiter,
		budgetRule:   ratelimit.Rule{Prefix: "tool_budget", Limit: 60, Window: time.Minute},
		lastCall:     make(map[string]time.Time),
	}
}

// Decision mirrors model.PolicyDecision with the evaluation clock attached.
type Decision = model.PolicyDecision

func robotsMetadata() model.RobotsMetadata {
	// Robots/ToS compliance checking is out of scope for this deployment;
	// the decision is still recorded so the audit trail shows it was
	// considered and skipped, not silently ignored.
	return model.RobotsMetadata{
		Checked: false,
		Allowed: nil,
		Reason:  "robots_check_not_configured",
	}
}

func (e *Engine) DevModeWarning() (bool, string) {
	if len(e.allowDomains) == 0 {
		return true, "policy: tool allowlist is empty, permitting outbound calls to all domains (development mode)"
	}
	return false, ""
}

// EvaluateOutboundURL decides whether toolName may fetch url right now. It
// checks, in order: URL has a hostname, the domain is allowlisted (or the
// allowlist is empty), the per-(tool,domain) minimum interval has elapsed,
// and the per-tool Redis request budget has headroom. The call is recorded
// for the interval gate as soon as the interval check passes, before the
// budget check, so a call the budget then denies is recorded as well.
func (e *Engine) EvaluateOutboundURL(ctx context.Context, toolName, rawURL string) Decision {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return Decision{
			Allowed:        false,
			ErrorCode:      string(model.ErrInvalidURL),
			Reason:         "missing_hostname",
			Domain:         "",
			RobotsMetadata: robotsMetadata(),
		}
	}
	domain := strings.ToLower(parsed.Hostname())

	if len(e.allowDomains) > 0 {
		if _, ok := e.allowDomains[domain]; !ok {
			return Decision{
				Allowed:        false,
				ErrorCode:      string(model.ErrPolicyDenied),
				Reason:         "domain_not_allowed",
				Domain:         domain,
				RobotsMetadata: robotsMetadata(),
			}
		}
	}

	key := toolName + ":" + domain

	if e.minInterval > 0 {
		e.mu.Lock()
		last, seen := e.lastCall[key]
		now := time.Now()
		elapsed := now.Sub(last)
		if seen && elapsed < e.minInterval {
			e.mu.Unlock()
			return Decision{
				Allowed:        false,
				ErrorCode:      string(model.ErrRateLimited),
				Reason:         "min_interval_not_elapsed",
				Domain:         domain,
				RobotsMetadata: robotsMetadata(),
			}
		}
		e.lastCall[key] = now
		e.mu.Unlock()
	}

	if e.limiter != nil {
		res := e.limiter.Allow(ctx, e.budgetRule, toolName)
		if !res.Allowed {
			return Decision{
				Allowed:        false,
				ErrorCode:      string(model.ErrRateLimited),
				Reason:         "tool_budget_exhausted",
				Domain:         domain,
				RobotsMetadata: robotsMetadata(),
			}
		}
	}

	return Decision{
		Allowed:        true,
		ErrorCode:      "",
		Reason:         "allowed",
		Domain:         domain,
		RobotsMetadata: robotsMetadata(),
	}
}

// AssertionLevel is the ceiling a generated claim may carry, set by the
// grounding gate.
type AssertionLevel string

const (
	LevelFact       AssertionLevel = "fact"
	LevelHypothesis AssertionLevel = "hypothesis"
)

// GroundingGate caps the assertion level a generated claim may be recorded
// at. A claim is only eligible for FACT when every one of its cited
// SourceClaim UIDs resolves to a quote that is a verbatim substring of its
// parent chunk text (checked by the caller via model.SourceClaim.IsGrounded
// before this gate runs). With zero citations, or any citation not yet
// confirmed grounded, the claim is capped at HYPOTHESIS.
func GroundingGate(citedSourceClaimUIDs []string, allGrounded bool) AssertionLevel {
	if len(citedSourceClaimUIDs) == 0 {
		return LevelHypothesis
	}
	if !allGrounded {
		return LevelHypothesis
	}
	return LevelFact
}

// BudgetTracker enforces a per-case ceiling on cumulative LLM token and
// cost spend across a pipeline run. It is intentionally process-local: a
// restart resets the budget rather than risk under-counting against a
// stale distributed total.
type BudgetTracker struct {
	maxTokens    int64
	maxCostCents int64

	mu          sync.Mutex
	spentTokens map[string]int64 // case_uid -> tokens
	spentCents  map[string]int64 // case_uid -> cost cents
}

// NewBudgetTracker constructs a tracker with the given per-case ceilings.
// A zero ceiling disables that dimension's check.
func NewBudgetTracker(maxTokens, maxCostCents int64) *BudgetTracker {
	return &BudgetTracker{
		maxTokens:    maxTokens,
		maxCostCents: maxCostCents,
		spentTokens:  make(map[string]int64),
		spentCents:   make(map[string]int64),
	}
}

// CheckAndReserve reports whether caseUID has headroom for an additional
// spend of tokens/costCents, and if so, reserves it atomically.
func (b *BudgetTracker) CheckAndReserve(caseUID string, tokens, costCents int64) (ok bool, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxTokens > 0 && b.spentTokens[caseUID]+tokens > b.maxTokens {
		return false, "token_budget_exceeded"
	}
	if b.maxCostCents > 0 && b.spentCents[caseUID]+costCents > b.maxCostCents {
		return false, "cost_budget_exceeded"
	}
	b.spentTokens[caseUID] += tokens
	b.spentCents[caseUID] += costCents
	return true, ""
}

// Spent returns the cumulative tokens and cost cents reserved for caseUID.
func (b *BudgetTracker) Spent(caseUID string) (tokens, costCents int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spentTokens[caseUID], b.spentCents[caseUID]
}
