package mcpsurface

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/chirino/agent-memory-service/internal/query"
)

func memoryPromptTool() mcp.Tool {
	return mcp.NewTool("memory_prompt",
		mcp.WithDescription("Compose an ordered message list for an agent turn: working-memory context/transcript (when a session is given), a relevant-memories system message, then the query as a user message."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owning user id")),
		mcp.WithString("namespace", mcp.Description("Namespace, defaults to \"default\"")),
		mcp.WithString("query", mcp.Required(), mcp.Description("The user's current turn")),
		mcp.WithString("session_id", mcp.Description("Session to pull working-memory context/transcript from")),
		mcp.WithObject("filter", mcp.Description("Metadata filter expression restricting which memories are considered relevant")),
		mcp.WithNumber("limit", mcp.DefaultNumber(10)),
	)
}

func (s *Server) handleMemoryPrompt(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request.Params.Arguments)
	userID, err := requireString(args, "user_id")
	if err != nil {
		return errResult(err)
	}
	q, err := requireString(args, "query")
	if err != nil {
		return errResult(err)
	}
	expr, err := filterExpression(args, "filter")
	if err != nil {
		return errResult(err)
	}

	messages, err := s.query.MemoryPrompt(ctx, query.PromptRequest{
		UserID:    userID,
		Namespace: optionalString(args, "namespace", "default"),
		Query:     q,
		SessionID: optionalString(args, "session_id", ""),
		Filter:    expr,
		Limit:     optionalInt(args, "limit", 10),
	})
	if err != nil {
		return errResult(err)
	}

	b, err := json.Marshal(messages)
	if err != nil {
		return errResult(err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
