package mcpsurface

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/chirino/agent-memory-service/internal/model"
)

func createLongTermMemoriesTool() mcp.Tool {
	return mcp.NewTool("create_long_term_memories",
		mcp.WithDescription("Stage one or more long-term memory candidates for a user/namespace/session. They are promoted (deduped, embedded, persisted) asynchronously, not written immediately."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owning user id")),
		mcp.WithString("namespace", mcp.Description("Namespace, defaults to \"default\"")),
		mcp.WithString("session_id", mcp.Description("Session to stage under; defaults to a synthetic direct-write session")),
		mcp.WithArray("memories", mcp.Required(), mcp.Description("Array of {text, memory_type?, topics?, entities?}")),
	)
}

// directSessionID is the synthetic session staged memories are attached
// to when the caller supplies no session_id of its own, since staging
// (model.WorkingMemory.Staged) is always scoped to a session tuple.
const directSessionID = "direct"

func (s *Server) handleCreateLongTermMemories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request.Params.Arguments)
	userID, err := requireString(args, "user_id")
	if err != nil {
		return errResult(err)
	}
	namespace := optionalString(args, "namespace", "default")
	sessionID := optionalString(args, "session_id", directSessionID)

	raw, ok := args["memories"].([]any)
	if !ok || len(raw) == 0 {
		return errResult(fmt.Errorf("memories: expected a non-empty array"))
	}

	records := make([]model.MemoryRecord, 0, len(raw))
	for i, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			return errResult(fmt.Errorf("memories[%d]: expected an object", i))
		}
		text, err := requireString(entry, "text")
		if err != nil {
			return errResult(fmt.Errorf("memories[%d]: %w", i, err))
		}
		memType := model.MemoryType(optionalString(entry, "memory_type", string(model.MemoryTypeSemantic)))
		records = append(records, model.MemoryRecord{
			UserID:     userID,
			Namespace:  namespace,
			SessionID:  sessionID,
			Text:       text,
			MemoryType: memType,
			Topics:     stringSlice(entry, "topics"),
			Entities:   stringSlice(entry, "entities"),
		})
	}

	if err := s.wm.StageMemories(ctx, userID, namespace, sessionID, records); err != nil {
		return errResult(err)
	}
	s.enqueueExtractSession(ctx, userID, namespace, sessionID)

	return mcp.NewToolResultText(fmt.Sprintf("staged %d memories for promotion", len(records))), nil
}
