package mcpsurface

import (
	"encoding/json"
	"fmt"

	"github.com/chirino/agent-memory-service/internal/filter"
)

// arguments returns the raw argument map of a tool call. mcp-go decodes
// the JSON-RPC params into Params.Arguments as a plain map, same shape
// every typed accessor below type-asserts out of.
func arguments(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return args
}

func requireString(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("missing or invalid required argument %q", key)
	}
	return v, nil
}

func optionalString(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

func optionalInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func optionalBool(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func stringSlice(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// filterExpression decodes the wire-shape filter argument
// ({field: {eq,ne,any_of,...}}) into filter.Expression by round-tripping
// it through JSON, since Condition already carries the matching json
// tags for this exact shape.
func filterExpression(args map[string]any, key string) (filter.Expression, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	var expr filter.Expression
	if err := json.Unmarshal(b, &expr); err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return expr, nil
}

// objectMap returns the argument at key as a map[string]any, or nil.
func objectMap(args map[string]any, key string) map[string]any {
	m, _ := args[key].(map[string]any)
	return m
}
