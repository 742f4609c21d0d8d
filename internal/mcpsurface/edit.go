package mcpsurface

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

func editLongTermMemoryTool() mcp.Tool {
	return mcp.NewTool("edit_long_term_memory",
		mcp.WithDescription("Patch the enrichment-owned fields of a long-term memory record (topics, entities, superseded_by, access bookkeeping). Other fields are immutable once persisted."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Memory record id")),
		mcp.WithObject("patch", mcp.Required(), mcp.Description("Fields to update: topics, entities, superseded_by, enrichment_failed, access_count, last_access_at")),
		mcp.WithArray("vector", mcp.Description("Replacement embedding vector, if re-embedding")),
	)
}

func (s *Server) handleEditLongTermMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request.Params.Arguments)
	id, err := requireString(args, "id")
	if err != nil {
		return errResult(err)
	}
	patch := objectMap(args, "patch")

	var vector []float32
	if raw, ok := args["vector"].([]any); ok {
		vector = make([]float32, 0, len(raw))
		for _, v := range raw {
			if f, ok := v.(float64); ok {
				vector = append(vector, float32(f))
			}
		}
	}

	if err := s.ltm.Update(ctx, id, patch, vector); err != nil {
		return errResult(err)
	}
	return mcp.NewToolResultText("memory updated"), nil
}
