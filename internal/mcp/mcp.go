// Package mcp implements the Model Context Protocol server for Evidentia.
//
// The MCP server exposes the Tool Broker's operations (meta_search,
// archive_url, doc_parse, embed, generate_structured) as MCP tools, so an
// MCP-capable agent drives the same policy-gated, audited surface as the
// HTTP API under POST /tools/*.
package mcp

import (
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/evidentia-ai/evidentia/internal/broker"
)

const serverInstructions = `You have access to Evidentia's Tool Broker: meta_search, archive_url,
doc_parse, embed, and generate_structured. archive_url calls, and doc_parse
calls given a source URL, are policy-checked (domain allowlist, per-host
rate limit); meta_search, embed and generate_structured calls are not.
Every call is recorded as an Action with a ToolTrace, so every tool
invocation you make is attributable to a case_uid
and actor_id and shows up in that case's audit trail.

Always pass the case_uid of the investigation you are working on; a tool
call with no case_uid still executes but is not attributable to any case.`

// Server wraps the MCP server with Evidentia's Tool Broker.
type Server struct {
	mcpServer *mcpserver.MCPServer
	broker    *broker.Broker
	logger    *slog.Logger
}

// New creates and configures an MCP server exposing the Tool Broker.
func New(b *broker.Broker, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{broker: b, logger: logger}

	s.mcpServer = mcpserver.NewMCPServer(
		"evidentia",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}
