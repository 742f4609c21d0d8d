package mcpsurface

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

func getLongTermMemoryTool() mcp.Tool {
	return mcp.NewTool("get_long_term_memory",
		mcp.WithDescription("Fetch one long-term memory record by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Memory record id")),
	)
}

func (s *Server) handleGetLongTermMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request.Params.Arguments)
	id, err := requireString(args, "id")
	if err != nil {
		return errResult(err)
	}

	rec, err := s.ltm.Get(ctx, id)
	if err != nil {
		return errResult(err)
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return errResult(err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
