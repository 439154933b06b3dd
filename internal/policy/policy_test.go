package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvaluateOutboundURLEmptyAllowlistIsDevMode(t *testing.T) {
	e := NewEngine(nil, 0, nil)
	isDev, _ := e.DevModeWarning()
	require.True(t, isDev)

	d := e.EvaluateOutboundURL(context.Background(), "archive_url", "https://example.com/a")
	require.True(t, d.Allowed)
	require.Equal(t, "example.com", d.Domain)
}

func TestEvaluateOutboundURLDeniesNonAllowlistedDomain(t *testing.T) {
	e := NewEngine([]string{"allowed.example.com"}, 0, nil)

	d := e.EvaluateOutboundURL(context.Background(), "archive_url", "https://blocked.example.com/a")
	require.False(t, d.Allowed)
	require.Equal(t, "policy_denied", d.ErrorCode)
	require.Equal(t, "domain_not_allowed", d.Reason)
}

func TestEvaluateOutboundURLAllowsAllowlistedDomain(t *testing.T) {
	e := NewEngine([]string{"Allowed.Example.com"}, 0, nil)

	d := e.EvaluateOutboundURL(context.Background(), "archive_url", "https://allowed.example.com/a")
	require.True(t, d.Allowed)
}

func TestEvaluateOutboundURLMissingHostname(t *testing.T) {
	e := NewEngine(nil, 0, nil)

	d := e.EvaluateOutboundURL(context.Background(), "archive_url", "not-a-url")
	require.False(t, d.Allowed)
	require.Equal(t, "invalid_url", d.ErrorCode)
	require.Equal(t, "missing_hostname", d.Reason)
}

func TestEvaluateOutboundURLEnforcesMinInterval(t *testing.T) {
	e := NewEngine(nil, 50*time.Millisecond, nil)

	first := e.EvaluateOutboundURL(context.Background(), "meta_search", "https://example.com/a")
	require.True(t, first.Allowed)

	second := e.EvaluateOutboundURL(context.Background(), "meta_search", "https://example.com/b")
	require.False(t, second.Allowed)
	require.Equal(t, "rate_limited", second.ErrorCode)
	require.Equal(t, "min_interval_not_elapsed", second.Reason)

	time.Sleep(60 * time.Millisecond)
	third := e.EvaluateOutboundURL(context.Background(), "meta_search", "https://example.com/c")
	require.True(t, third.Allowed)
}

func TestEvaluateOutboundURLIntervalIsPerToolAndDomain(t *testing.T) {
	e := NewEngine(nil, time.Hour, nil)

	require.True(t, e.EvaluateOutboundURL(context.Background(), "meta_search", "https://a.example.com").Allowed)
	require.True(t, e.EvaluateOutboundURL(context.Background(), "doc_parse", "https://a.example.com").Allowed)
	require.True(t, e.EvaluateOutboundURL(context.Background(), "meta_search", "https://b.example.com").Allowed)
	require.False(t, e.EvaluateOutboundURL(context.Background(), "meta_search", "https://a.example.com").Allowed)
}

func TestGroundingGate(t *testing.T) {
	require.Equal(t, LevelHypothesis, GroundingGate(nil, true))
	require.Equal(t, LevelHypothesis, GroundingGate([]string{"sc_1"}, false))
	require.Equal(t, LevelFact, GroundingGate([]string{"sc_1"}, true))
}

func TestBudgetTrackerEnforcesCeiling(t *testing.T) {
	b := NewBudgetTracker(100, 0)

	ok, _ := b.CheckAndReserve("case_1", 60, 0)
	require.True(t, ok)

	ok, reason := b.CheckAndReserve("case_1", 60, 0)
	require.False(t, ok)
	require.Equal(t, "token_budget_exceeded", reason)

	tokens, _ := b.Spent("case_1")
	require.Equal(t, int64(60), tokens)
}

func TestBudgetTrackerZeroCeilingDisablesCheck(t *testing.T) {
	b := NewBudgetTracker(0, 0)
	ok, _ := b.CheckAndReserve("case_1", 1_000_000, 1_000_000)
	require.True(t, ok)
}
