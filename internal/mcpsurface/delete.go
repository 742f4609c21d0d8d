package mcpsurface

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func deleteLongTermMemoriesTool() mcp.Tool {
	return mcp.NewTool("delete_long_term_memories",
		mcp.WithDescription("Tombstone one or more long-term memory records, recording a reason for the audit trail. Does not hard-delete."),
		mcp.WithArray("ids", mcp.Required(), mcp.Description("Memory record ids to delete")),
		mcp.WithString("reason", mcp.Description("Reason recorded alongside each deletion")),
	)
}

func (s *Server) handleDeleteLongTermMemories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request.Params.Arguments)
	ids := stringSlice(args, "ids")
	if len(ids) == 0 {
		return errResult(fmt.Errorf("ids: expected a non-empty array"))
	}
	reason := optionalString(args, "reason", "")

	var firstErr error
	deleted := 0
	for _, id := range ids {
		if err := s.ltm.Delete(ctx, id, reason); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		deleted++
	}
	if firstErr != nil && deleted == 0 {
		return errResult(firstErr)
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted %d of %d memories", deleted, len(ids))), nil
}
