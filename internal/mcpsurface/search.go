package mcpsurface

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/chirino/agent-memory-service/internal/query"
)

func searchLongTermMemoryTool() mcp.Tool {
	return mcp.NewTool("search_long_term_memory",
		mcp.WithDescription("Search long-term memory by text similarity and/or metadata filter, re-ranked by similarity, recency, and access frequency."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owning user id")),
		mcp.WithString("namespace", mcp.Description("Namespace, defaults to \"default\"")),
		mcp.WithString("text", mcp.Description("Free-text query; omit for a filter-only search")),
		mcp.WithObject("filter", mcp.Description("Metadata filter expression, {field: {eq,ne,any_of,none_of,gt,lt,gte,lte,between}}")),
		mcp.WithNumber("limit", mcp.DefaultNumber(10)),
		mcp.WithNumber("offset", mcp.DefaultNumber(0)),
		mcp.WithBoolean("optimize_query", mcp.Description("Rewrite the query text via the LLM provider before embedding it")),
	)
}

func (s *Server) handleSearchLongTermMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request.Params.Arguments)
	userID, err := requireString(args, "user_id")
	if err != nil {
		return errResult(err)
	}
	expr, err := filterExpression(args, "filter")
	if err != nil {
		return errResult(err)
	}

	resp, err := s.query.Search(ctx, query.SearchRequest{
		UserID:        userID,
		Namespace:     optionalString(args, "namespace", "default"),
		Text:          optionalString(args, "text", ""),
		Filter:        expr,
		Limit:         optionalInt(args, "limit", 10),
		Offset:        optionalInt(args, "offset", 0),
		OptimizeQuery: optionalBool(args, "optimize_query", false),
	})
	if err != nil {
		return errResult(err)
	}

	b, err := json.Marshal(resp)
	if err != nil {
		return errResult(err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
