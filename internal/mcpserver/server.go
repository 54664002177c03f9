// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Galdr note tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/galdr/internal/apperr"
	"github.com/starford/galdr/internal/models"
	"github.com/starford/galdr/internal/noteservice"
)

// Server wraps the MCP server with Galdr tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all Galdr tools registered.
func New(svc *noteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Galdr",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Submit a text note for asynchronous conversion to audio. "+
			"Returns the note id; poll get_note until its status is READY or FAILED."),
		mcp.WithString("text", mcp.Required(), mcp.Description("UTF-8 note text to convert")),
		mcp.WithString("voice", mcp.Description("Optional voice name; the configured default applies when empty")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("get_note",
		mcp.WithDescription("Read a note's conversion status and, when READY, its audio location."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id returned by create_note")),
	), s.getNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes in creation order, one page at a time."),
		mcp.WithString("cursor", mcp.Description("Cursor from a previous page (empty for the first page)")),
	), s.listNotes)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	voice := ""
	if v, err := req.RequireString("voice"); err == nil {
		voice = v
	}

	note, err := s.svc.CreateNote(ctx, text, voice)
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultError("failed to store note"), nil
	}
	return noteResult(*note)
}

func (s *Server) getNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return noteResult(*note)
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cursor := ""
	if c, err := req.RequireString("cursor"); err == nil {
		cursor = c
	}

	notes, next, err := s.svc.ListNotes(ctx, 0, cursor)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	items := make([]map[string]any, len(notes))
	for i, n := range notes {
		items[i] = noteFields(n)
	}
	out, _ := json.MarshalIndent(map[string]any{
		"notes":      items,
		"nextCursor": next,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func noteResult(n models.Note) (*mcp.CallToolResult, error) {
	out, _ := json.MarshalIndent(noteFields(n), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

// noteFields mirrors the REST response shape; failure diagnostics stay internal.
func noteFields(n models.Note) map[string]any {
	fields := map[string]any{
		"id":     n.ID,
		"status": string(n.Status),
	}
	if n.AudioLocation != "" {
		fields["audioLocation"] = n.AudioLocation
	}
	return fields
}
