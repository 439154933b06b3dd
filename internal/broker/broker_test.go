package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentia-ai/evidentia/internal/model"
)

type recordingLedger struct {
	mu      sync.Mutex
	actions []model.Action
	traces  []model.ToolTrace
}

func (l *recordingLedger) RecordAction(_ context.Context, a model.Action) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions = append(l.actions, a)
	return nil
}

func (l *recordingLedger) RecordToolTrace(_ context.Context, t model.ToolTrace) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.traces = append(l.traces, t)
	return nil
}

func (l *recordingLedger) lastTrace() model.ToolTrace {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.traces[len(l.traces)-1]
}

type stubPolicy struct {
	decision model.PolicyDecision
}

func (p stubPolicy) EvaluateOutboundURL(context.Context, string, string) model.PolicyDecision {
	return p.decision
}

type stubSearch struct {
	results []SearchResult
	err     error
}

func (s stubSearch) Search(context.Context, string, int) ([]SearchResult, error) {
	return s.results, s.err
}

type stubFetcher struct {
	result FetchResult
	err    error
	calls  int32
	mu     sync.Mutex
}

func (f *stubFetcher) Fetch(context.Context, string) (FetchResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.result, f.err
}

type stubParser struct {
	text     string
	parseErr string
}

func (p stubParser) Parse([]byte, string) (string, string) { return p.text, p.parseErr }

type stubEmbedder struct {
	vecs []pgvector.Vector
	err  error
}

func (e stubEmbedder) EmbedBatch(context.Context, []string) ([]pgvector.Vector, error) {
	return e.vecs, e.err
}

type stubGenerator struct {
	payload map[string]any
	err     error
}

func (g stubGenerator) GenerateStructured(context.Context, string, string) (map[string]any, error) {
	return g.payload, g.err
}

func newTestBroker(ledger *recordingLedger, allowed bool) *Broker {
	return New(ledger, stubPolicy{decision: model.PolicyDecision{
		Allowed: allowed,
		Reason:  "allowed",
	}}, time.Second, time.Second, nil)
}

func TestMetaSearchRecordsActionAndTrace(t *testing.T) {
	ledger := &recordingLedger{}
	b := newTestBroker(ledger, true).WithSearch(stubSearch{results: []SearchResult{{Title: "a", URL: "https://a.example"}}})

	results, err := b.MetaSearch(context.Background(), "case_1", "actor_1", "query", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	trace := ledger.lastTrace()
	assert.Equal(t, "meta_search", trace.ToolName)
	assert.Equal(t, model.ToolStatusOK, trace.Status)
	require.Len(t, ledger.actions, 1)
	assert.Equal(t, "tool.meta_search", ledger.actions[0].ActionType)
}

func TestMetaSearchWithoutProviderReturnsError(t *testing.T) {
	ledger := &recordingLedger{}
	b := newTestBroker(ledger, true)

	_, err := b.MetaSearch(context.Background(), "case_1", "actor_1", "query", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSearchProvider)

	trace := ledger.lastTrace()
	assert.Equal(t, model.ToolStatusError, trace.Status)
}

func TestArchiveURLDeniedByPolicy(t *testing.T) {
	ledger := &recordingLedger{}
	policy := stubPolicy{decision: model.PolicyDecision{Allowed: false, ErrorCode: "policy_denied", Reason: "domain_not_allowed"}}
	b := New(ledger, policy, time.Second, time.Second, nil).WithFetcher(&stubFetcher{})

	_, err := b.ArchiveURL(context.Background(), "case_1", "actor_1", "https://denied.example")
	require.Error(t, err)

	trace := ledger.lastTrace()
	assert.Equal(t, model.ToolStatusDenied, trace.Status)
	assert.False(t, trace.Policy.Allowed)
}

func TestArchiveURLDedupesConcurrentCalls(t *testing.T) {
	ledger := &recordingLedger{}
	fetcher := &stubFetcher{result: FetchResult{Content: []byte("hello"), MimeType: "text/plain"}}
	b := newTestBroker(ledger, true).WithFetcher(fetcher)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.ArchiveURL(context.Background(), "case_1", "actor_1", "https://shared.example")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	fetcher.mu.Lock()
	calls := fetcher.calls
	fetcher.mu.Unlock()
	assert.Less(t, int(calls), 5, "singleflight should collapse at least some concurrent fetches")
}

func TestDocParseReturnsTextAndRecordsTrace(t *testing.T) {
	ledger := &recordingLedger{}
	b := newTestBroker(ledger, true).WithParser(stubParser{text: "hello world"})

	text, parseErr, err := b.DocParse(context.Background(), "case_1", "actor_1", "av_1", "", "text/plain", []byte("hello world"))
	require.NoError(t, err)
	assert.Empty(t, parseErr)
	assert.Equal(t, "hello world", text)
}

func TestDocParseWithoutParserReturnsError(t *testing.T) {
	ledger := &recordingLedger{}
	b := newTestBroker(ledger, true)

	_, _, err := b.DocParse(context.Background(), "case_1", "actor_1", "av_1", "", "text/plain", []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoParser)
}

func TestEmbedReturnsVectors(t *testing.T) {
	ledger := &recordingLedger{}
	vec := pgvector.NewVector([]float32{0.1, 0.2})
	b := newTestBroker(ledger, true).WithEmbedder(stubEmbedder{vecs: []pgvector.Vector{vec}})

	vecs, err := b.Embed(context.Background(), "case_1", "actor_1", []string{"hello"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
}

func TestEmbedPropagatesProviderError(t *testing.T) {
	ledger := &recordingLedger{}
	b := newTestBroker(ledger, true).WithEmbedder(stubEmbedder{err: errors.New("embedding endpoint down")})

	_, err := b.Embed(context.Background(), "case_1", "actor_1", []string{"hello"})
	require.Error(t, err)

	trace := ledger.lastTrace()
	assert.Equal(t, model.ToolStatusError, trace.Status)
}

func TestGenerateStructuredReturnsPayload(t *testing.T) {
	ledger := &recordingLedger{}
	b := newTestBroker(ledger, true).WithGenerator(stubGenerator{payload: map[string]any{"answer": "42"}})

	payload, err := b.GenerateStructured(context.Background(), "case_1", "actor_1", "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "42", payload["answer"])
}

func TestGenerateStructuredTimesOutUnderShortDeadline(t *testing.T) {
	ledger := &recordingLedger{}
	b := New(ledger, stubPolicy{decision: model.PolicyDecision{Allowed: true}}, time.Second, time.Nanosecond, nil).
		WithGenerator(blockingGenerator{})

	_, err := b.GenerateStructured(context.Background(), "case_1", "actor_1", "system", "user")
	require.Error(t, err)
}

type blockingGenerator struct{}

func (blockingGenerator) GenerateStructured(ctx context.Context, _, _ string) (map[string]any, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
