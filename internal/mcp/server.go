// Package mcp exposes the household assistant's memory and chat
// operations as Model Context Protocol tools, backed by the LLM
// sidecar's HTTP API. Desktop MCP clients get the same operations the
// gateway offers: add, search and delete family memories, and chat as a
// family member.
package mcp

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// defaultToolSource labels memories added through the MCP surface.
const defaultToolSource = "mcp_tool"

// Server is an MCP tool server. Tool inputs are validated against their
// inferred schemas by the SDK; domain validation (who exists, who may
// delete) stays with the sidecar, whose error messages are surfaced as
// tool errors.
type Server struct {
	sidecar Sidecar
	mcp     *mcpsdk.Server
}

// NewServer builds the tool server around a sidecar connection.
func NewServer(sidecar Sidecar) *Server {
	s := &Server{sidecar: sidecar}

	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "foyer-mcp", Version: "1.0.0"}, nil)
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name: "memory_add",
		Description: "Store one fact in the family's long-term memory. " +
			"user_id is the family member the fact belongs to, or \"shared\" for household-wide facts.",
	}, s.memoryAdd)
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name: "memory_search",
		Description: "Search a family member's memories (their own plus shared ones) by meaning. " +
			"Returns the closest matches with similarity scores.",
	}, s.memorySearch)
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name: "memory_delete",
		Description: "Delete one memory by id. caller_id must name an admin family member; " +
			"user_id is the collection the memory lives in.",
	}, s.memoryDelete)
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name: "chat",
		Description: "Send one message to the household assistant as the given family member " +
			"and return its reply. Memory recall and model routing happen in the sidecar.",
	}, s.chat)
	s.mcp = srv

	return s
}

// Run serves the tool set over transport until the peer disconnects or
// ctx is cancelled. The usual transport is [mcpsdk.StdioTransport].
func (s *Server) Run(ctx context.Context, transport mcpsdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}

type memoryAddInput struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

func (s *Server) memoryAdd(ctx context.Context, _ *mcpsdk.CallToolRequest, in memoryAddInput) (*mcpsdk.CallToolResult, any, error) {
	source := in.Source
	if source == "" {
		source = defaultToolSource
	}
	id, err := s.sidecar.AddMemory(ctx, in.UserID, in.Content, source)
	if err != nil {
		return errResult(err), nil, nil
	}
	return textResult(fmt.Sprintf("Stored memory %s for %s.", id, in.UserID)), nil, nil
}

type memorySearchInput struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
	TopK   int    `json:"top_k,omitempty"`
}

func (s *Server) memorySearch(ctx context.Context, _ *mcpsdk.CallToolRequest, in memorySearchInput) (*mcpsdk.CallToolResult, any, error) {
	hits, err := s.sidecar.SearchMemory(ctx, in.UserID, in.Query, in.TopK)
	if err != nil {
		return errResult(err), nil, nil
	}
	return textResult(renderHits(hits)), nil, nil
}

func renderHits(hits []MemoryHit) string {
	if len(hits) == 0 {
		return "No memories matched."
	}
	var sb strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&sb, "%d. %s (score %.2f, source %s, id %s)\n",
			i+1, h.Content, h.Score, h.Source, h.ID)
	}
	return strings.TrimRight(sb.String(), "\n")
}

type memoryDeleteInput struct {
	CallerID string `json:"caller_id"`
	UserID   string `json:"user_id"`
	MemoryID string `json:"memory_id"`
}

func (s *Server) memoryDelete(ctx context.Context, _ *mcpsdk.CallToolRequest, in memoryDeleteInput) (*mcpsdk.CallToolResult, any, error) {
	if err := s.sidecar.DeleteMemory(ctx, in.CallerID, in.UserID, in.MemoryID); err != nil {
		return errResult(err), nil, nil
	}
	return textResult(fmt.Sprintf("Deleted memory %s for %s.", in.MemoryID, in.UserID)), nil, nil
}

type chatInput struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func (s *Server) chat(ctx context.Context, _ *mcpsdk.CallToolRequest, in chatInput) (*mcpsdk.CallToolResult, any, error) {
	reply, err := s.sidecar.Chat(ctx, in.UserID, in.Message)
	if err != nil {
		return errResult(err), nil, nil
	}
	return textResult(reply.Response), nil, nil
}

func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}
}

// errResult reports a failed tool call to the model rather than tearing
// down the session: sidecar rejections (unknown user, missing memory,
// forbidden delete) are things the model can react to.
func errResult(err error) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
	}
}
