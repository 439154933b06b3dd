package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/evidentia-ai/evidentia/internal/httpapi/problem"
)

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func toolErrorResult(prefix string, err error) *mcplib.CallToolResult {
	var perr *problem.Error
	if errors.As(err, &perr) {
		return errorResult(fmt.Sprintf("%s: %s (%s)", prefix, perr.Error(), perr.Code()))
	}
	return errorResult(fmt.Sprintf("%s: %v", prefix, err))
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("marshal result: %v", err))
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("evidentia_meta_search",
			mcplib.WithDescription(`Search an external index for candidate sources. Returns title/url/snippet
hits. Use archive_url afterward to fetch and ingest any hit worth citing.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("case_uid", mcplib.Description("The case this search is being performed for"), mcplib.Required()),
			mcplib.WithString("actor_id", mcplib.Description("Authenticated actor performing the search"), mcplib.Required()),
			mcplib.WithString("query", mcplib.Description("Search query text"), mcplib.Required()),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return"), mcplib.Min(1), mcplib.Max(50), mcplib.DefaultNumber(10)),
		),
		s.handleMetaSearch,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("evidentia_archive_url",
			mcplib.WithDescription(`Fetch a URL's bytes through the policy-gated Tool Broker. Denied if the
host is not on the configured allowlist, or rate-limited if called again
for the same host before the configured minimum interval elapses.`),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("case_uid", mcplib.Description("The case this fetch is being performed for"), mcplib.Required()),
			mcplib.WithString("actor_id", mcplib.Description("Authenticated actor performing the fetch"), mcplib.Required()),
			mcplib.WithString("url", mcplib.Description("URL to fetch"), mcplib.Required()),
		),
		s.handleArchiveURL,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("evidentia_doc_parse",
			mcplib.WithDescription(`Extract normalized plain text from raw document bytes given a MIME type.
Parser errors degrade to an empty string with a parse_error field rather
than failing outright.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithString("case_uid", mcplib.Description("The case this parse is being performed for"), mcplib.Required()),
			mcplib.WithString("actor_id", mcplib.Description("Authenticated actor performing the parse"), mcplib.Required()),
			mcplib.WithString("artifact_version_uid", mcplib.Description("The ArtifactVersion this content belongs to, if already ingested")),
			mcplib.WithString("mime_type", mcplib.Description("MIME type of content, e.g. text/html, text/plain"), mcplib.Required()),
			mcplib.WithString("content", mcplib.Description("Raw document content as text"), mcplib.Required()),
		),
		s.handleDocParse,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("evidentia_embed",
			mcplib.WithDescription(`Embed a batch of texts into vectors using the configured embedding model.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithString("case_uid", mcplib.Description("The case this embedding is being performed for"), mcplib.Required()),
			mcplib.WithString("actor_id", mcplib.Description("Authenticated actor performing the embed"), mcplib.Required()),
			mcplib.WithString("texts", mcplib.Description(`Texts to embed, as a JSON array of strings, e.g. ["first chunk", "second chunk"]`), mcplib.Required()),
		),
		s.handleEmbed,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("evidentia_generate_structured",
			mcplib.WithDescription(`Ask the configured LLM for a structured JSON-object response to a
system/user prompt pair. The call runs under the broker's LLM timeout; no
per-case token/cost budget is checked before it executes.`),
			mcplib.WithString("case_uid", mcplib.Description("The case this generation is being performed for"), mcplib.Required()),
			mcplib.WithString("actor_id", mcplib.Description("Authenticated actor requesting the generation"), mcplib.Required()),
			mcplib.WithString("system_prompt", mcplib.Description("System prompt"), mcplib.Required()),
			mcplib.WithString("user_prompt", mcplib.Description("User prompt"), mcplib.Required()),
		),
		s.handleGenerateStructured,
	)
}

func (s *Server) handleMetaSearch(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	caseUID := request.GetString("case_uid", "")
	actorID := request.GetString("actor_id", "")
	query := request.GetString("query", "")
	if query == "" {
		return errorResult("query is required"), nil
	}
	limit := request.GetInt("limit", 10)

	results, err := s.broker.MetaSearch(ctx, caseUID, actorID, query, limit)
	if err != nil {
		return toolErrorResult("meta_search failed", err), nil
	}
	return jsonResult(map[string]any{"results": results}), nil
}

func (s *Server) handleArchiveURL(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	caseUID := request.GetString("case_uid", "")
	actorID := request.GetString("actor_id", "")
	url := request.GetString("url", "")
	if url == "" {
		return errorResult("url is required"), nil
	}

	result, err := s.broker.ArchiveURL(ctx, caseUID, actorID, url)
	if err != nil {
		return toolErrorResult("archive_url failed", err), nil
	}
	return jsonResult(map[string]any{
		"mime_type": result.MimeType,
		"bytes":     len(result.Content),
	}), nil
}

func (s *Server) handleDocParse(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	caseUID := request.GetString("case_uid", "")
	actorID := request.GetString("actor_id", "")
	artifactVersionUID := request.GetString("artifact_version_uid", "")
	mimeType := request.GetString("mime_type", "")
	content := request.GetString("content", "")
	if mimeType == "" || content == "" {
		return errorResult("mime_type and content are required"), nil
	}

	text, parseErr, err := s.broker.DocParse(ctx, caseUID, actorID, artifactVersionUID, "", mimeType, []byte(content))
	if err != nil {
		return toolErrorResult("doc_parse failed", err), nil
	}
	return jsonResult(map[string]any{"text": text, "parse_error": parseErr}), nil
}

func (s *Server) handleEmbed(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	caseUID := request.GetString("case_uid", "")
	actorID := request.GetString("actor_id", "")

	rawTexts := request.GetString("texts", "")
	var texts []string
	if err := json.Unmarshal([]byte(rawTexts), &texts); err != nil || len(texts) == 0 {
		return errorResult(`texts must be a non-empty JSON array of strings, e.g. ["a", "b"]`), nil
	}

	vecs, err := s.broker.Embed(ctx, caseUID, actorID, texts)
	if err != nil {
		return toolErrorResult("embed failed", err), nil
	}
	return jsonResult(map[string]any{"vector_count": len(vecs)}), nil
}

func (s *Server) handleGenerateStructured(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	caseUID := request.GetString("case_uid", "")
	actorID := request.GetString("actor_id", "")
	systemPrompt := request.GetString("system_prompt", "")
	userPrompt := request.GetString("user_prompt", "")
	if systemPrompt == "" || userPrompt == "" {
		return errorResult("system_prompt and user_prompt are required"), nil
	}

	payload, err := s.broker.GenerateStructured(ctx, caseUID, actorID, systemPrompt, userPrompt)
	if err != nil {
		return toolErrorResult("generate_structured failed", err), nil
	}
	return jsonResult(payload), nil
}
