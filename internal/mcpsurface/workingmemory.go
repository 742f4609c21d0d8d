package mcpsurface

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/chirino/agent-memory-service/internal/model"
)

func getWorkingMemoryTool() mcp.Tool {
	return mcp.NewTool("get_working_memory",
		mcp.WithDescription("Fetch the session-scoped working memory for a user/namespace/session: transcript, context blob, staged memories, and scratch data."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owning user id")),
		mcp.WithString("namespace", mcp.Description("Namespace, defaults to \"default\"")),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	)
}

func (s *Server) handleGetWorkingMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request.Params.Arguments)
	userID, err := requireString(args, "user_id")
	if err != nil {
		return errResult(err)
	}
	sessionID, err := requireString(args, "session_id")
	if err != nil {
		return errResult(err)
	}
	namespace := optionalString(args, "namespace", "default")

	wm, err := s.wm.Get(ctx, userID, namespace, sessionID)
	if err != nil {
		return errResult(err)
	}

	b, err := json.Marshal(wm)
	if err != nil {
		return errResult(err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

func setWorkingMemoryTool() mcp.Tool {
	return mcp.NewTool("set_working_memory",
		mcp.WithDescription("Append messages to a session's working memory transcript, renewing its TTL. May asynchronously trigger extraction into long-term memory and, once the transcript grows large enough, abstractive summarization."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owning user id")),
		mcp.WithString("namespace", mcp.Description("Namespace, defaults to \"default\"")),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithArray("messages", mcp.Required(), mcp.Description("Array of {role, content}")),
		mcp.WithNumber("ttl_seconds", mcp.Description("Override the default working-memory TTL")),
	)
}

func (s *Server) handleSetWorkingMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request.Params.Arguments)
	userID, err := requireString(args, "user_id")
	if err != nil {
		return errResult(err)
	}
	sessionID, err := requireString(args, "session_id")
	if err != nil {
		return errResult(err)
	}
	namespace := optionalString(args, "namespace", "default")

	raw, ok := args["messages"].([]any)
	if !ok || len(raw) == 0 {
		return errResult(fmt.Errorf("messages: expected a non-empty array"))
	}
	msgs := make([]model.MemoryMessage, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role := model.Role(optionalString(entry, "role", string(model.RoleUser)))
		content := optionalString(entry, "content", "")
		msgs = append(msgs, model.MemoryMessage{Role: role, Content: content})
	}

	ttl := time.Duration(optionalInt(args, "ttl_seconds", 0)) * time.Second
	if _, err := s.wm.AppendMessages(ctx, userID, namespace, sessionID, msgs, ttl); err != nil {
		return errResult(err)
	}
	s.enqueueExtractSession(ctx, userID, namespace, sessionID)

	return mcp.NewToolResultText("working memory updated"), nil
}
