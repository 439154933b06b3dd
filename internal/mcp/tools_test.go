package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentia-ai/evidentia/internal/broker"
	"github.com/evidentia-ai/evidentia/internal/model"
)

type stubLedger struct{}

func (stubLedger) RecordAction(context.Context, model.Action) error       { return nil }
func (stubLedger) RecordToolTrace(context.Context, model.ToolTrace) error { return nil }

type stubPolicy struct{ allowed bool }

func (p stubPolicy) EvaluateOutboundURL(context.Context, string, string) model.PolicyDecision {
	if p.allowed {
		return model.PolicyDecision{Allowed: true, Reason: "allowed"}
	}
	return model.PolicyDecision{Allowed: false, ErrorCode: "policy_denied", Reason: "domain_not_allowed"}
}

type stubSearch struct{}

func (stubSearch) Search(context.Context, string, int) ([]broker.SearchResult, error) {
	return []broker.SearchResult{{Title: "t", URL: "https://a.example", Snippet: "s"}}, nil
}

type stubGenerator struct{}

func (stubGenerator) GenerateStructured(context.Context, string, string) (map[string]any, error) {
	return map[string]any{"answer": "42"}, nil
}

func newTestServer() *Server {
	b := broker.New(stubLedger{}, stubPolicy{allowed: true}, time.Second, time.Second, nil).
		WithSearch(stubSearch{}).
		WithGenerator(stubGenerator{})
	return New(b, nil, "test")
}

func callRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcplib.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestNewRegistersWithoutPanicking(t *testing.T) {
	s := newTestServer()
	require.NotNil(t, s.MCPServer())
}

func TestHandleMetaSearchReturnsResults(t *testing.T) {
	s := newTestServer()
	result, err := s.handleMetaSearch(context.Background(), callRequest("evidentia_meta_search", map[string]any{
		"case_uid": "case_1", "actor_id": "actor_1", "query": "evidence",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	var parsed struct {
		Results []broker.SearchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &parsed))
	assert.Len(t, parsed.Results, 1)
}

func TestHandleMetaSearchRequiresQuery(t *testing.T) {
	s := newTestServer()
	result, err := s.handleMetaSearch(context.Background(), callRequest("evidentia_meta_search", map[string]any{
		"case_uid": "case_1", "actor_id": "actor_1",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleArchiveURLDeniedSurfacesProblemDetail(t *testing.T) {
	b := broker.New(stubLedger{}, stubPolicy{allowed: false}, time.Second, time.Second, nil)
	s := New(b, nil, "test")

	result, err := s.handleArchiveURL(context.Background(), callRequest("evidentia_archive_url", map[string]any{
		"case_uid": "case_1", "actor_id": "actor_1", "url": "https://denied.example",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "policy_denied")
}

func TestHandleArchiveURLRequiresURL(t *testing.T) {
	s := newTestServer()
	result, err := s.handleArchiveURL(context.Background(), callRequest("evidentia_archive_url", map[string]any{
		"case_uid": "case_1", "actor_id": "actor_1",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleDocParseWithoutParserReturnsError(t *testing.T) {
	s := newTestServer()
	result, err := s.handleDocParse(context.Background(), callRequest("evidentia_doc_parse", map[string]any{
		"case_uid": "case_1", "actor_id": "actor_1", "mime_type": "text/plain", "content": "hello",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleEmbedRejectsMalformedTexts(t *testing.T) {
	s := newTestServer()
	result, err := s.handleEmbed(context.Background(), callRequest("evidentia_embed", map[string]any{
		"case_uid": "case_1", "actor_id": "actor_1", "texts": "not-json",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleGenerateStructuredReturnsPayload(t *testing.T) {
	s := newTestServer()
	result, err := s.handleGenerateStructured(context.Background(), callRequest("evidentia_generate_structured", map[string]any{
		"case_uid": "case_1", "actor_id": "actor_1", "system_prompt": "sys", "user_prompt": "usr",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &parsed))
	assert.Equal(t, "42", parsed["answer"])
}

func TestHandleGenerateStructuredRequiresPrompts(t *testing.T) {
	s := newTestServer()
	result, err := s.handleGenerateStructured(context.Background(), callRequest("evidentia_generate_structured", map[string]any{
		"case_uid": "case_1", "actor_id": "actor_1", "system_prompt": "sys",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
