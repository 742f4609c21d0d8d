// Package mcpsurface is the thin github.com/mark3labs/mcp-go tool server
// of §6: the eight agent-facing tools (create_long_term_memories,
// search_long_term_memory, get_long_term_memory, edit_long_term_memory,
// delete_long_term_memories, get_working_memory, set_working_memory,
// memory_prompt), each a direct call into query/longtermmemory/
// workingmemory with no business logic of its own. The teacher's go.mod
// reserves mark3labs/mcp-go for a separate mcp/ sub-module that carried
// no source in the retrieval pack; this is the home it was provisioned
// for, folded into the main module.
package mcpsurface

import (
	"context"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/chirino/agent-memory-service/internal/longtermmemory"
	"github.com/chirino/agent-memory-service/internal/query"
	"github.com/chirino/agent-memory-service/internal/taskruntime"
	"github.com/chirino/agent-memory-service/internal/workingmemory"
)

// Server composes the core components behind the MCP tool surface. It
// holds no state of its own beyond its collaborators, aside from the
// transport handle ServeHTTP stashes so Shutdown can drain it.
type Server struct {
	ltm     *longtermmemory.Store
	wm      *workingmemory.Store
	query   *query.Service
	tasks   *taskruntime.Runtime
	httpSrv *server.StreamableHTTPServer
}

// New builds a Server from its collaborators.
func New(ltm *longtermmemory.Store, wm *workingmemory.Store, q *query.Service, tasks *taskruntime.Runtime) *Server {
	return &Server{ltm: ltm, wm: wm, query: q, tasks: tasks}
}

// Build assembles the mcp-go server with all eight tools registered.
func (s *Server) Build(name, version string) *server.MCPServer {
	srv := server.NewMCPServer(name, version)

	srv.AddTool(createLongTermMemoriesTool(), s.handleCreateLongTermMemories)
	srv.AddTool(searchLongTermMemoryTool(), s.handleSearchLongTermMemory)
	srv.AddTool(getLongTermMemoryTool(), s.handleGetLongTermMemory)
	srv.AddTool(editLongTermMemoryTool(), s.handleEditLongTermMemory)
	srv.AddTool(deleteLongTermMemoriesTool(), s.handleDeleteLongTermMemories)
	srv.AddTool(getWorkingMemoryTool(), s.handleGetWorkingMemory)
	srv.AddTool(setWorkingMemoryTool(), s.handleSetWorkingMemory)
	srv.AddTool(memoryPromptTool(), s.handleMemoryPrompt)

	return srv
}

// ServeStdio serves the tool surface over stdio, the transport Claude
// Desktop / Claude Code style MCP clients speak.
func (s *Server) ServeStdio(ctx context.Context, name, version string) error {
	srv := s.Build(name, version)
	return server.ServeStdio(srv)
}

// ServeHTTP serves the tool surface over the streamable HTTP transport
// at addr (config.Config.MCPListenAddress), for deployments that run the
// memory service as a standing process rather than a per-client stdio
// subprocess.
func (s *Server) ServeHTTP(ctx context.Context, name, version, addr string) error {
	srv := s.Build(name, version)
	s.httpSrv = server.NewStreamableHTTPServer(srv)
	log.Info("mcpsurface: serving MCP tools over HTTP", "addr", addr)
	if err := s.httpSrv.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the HTTP transport started by ServeHTTP. It is a
// no-op if ServeHTTP was never called or has already returned.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// enqueueExtractSession enqueues the "ExtractSession" task (C6), the
// "agent writes -> working memory -> trigger enqueued on C6 -> pipeline
// runs extraction" arrow of the overall data flow: every tool call that
// adds content to working memory (set_working_memory's message append,
// create_long_term_memories' staging) schedules a promotion run rather
// than running extraction inline, so a slow embedding/LLM provider never
// blocks the tool call.
func (s *Server) enqueueExtractSession(ctx context.Context, userID, namespace, sessionID string) {
	if s.tasks == nil {
		return
	}
	if err := s.tasks.Enqueue(ctx, "ExtractSession", map[string]any{
		"user_id": userID, "namespace": namespace, "session_id": sessionID,
	}); err != nil {
		log.Error("mcpsurface: failed to enqueue ExtractSession", "userID", userID, "namespace", namespace, "sessionID", sessionID, "err", err)
	}
}

func errResult(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}
