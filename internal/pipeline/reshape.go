package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// reshapeFacts parses a generator's raw response (expected to be a JSON
// array, optionally wrapped in prose) into a flat list of fact strings.
// When jqFilter is non-empty it is applied first, letting a custom
// strategy author reshape an arbitrary JSON response (e.g. {"facts":
// [...]}) into the flat array this pipeline expects, per Design Note §9
// and the custom strategy's "post-extraction JSON reshape" in
// SPEC_FULL.md §4.5. itchyny/gojq is the teacher's go.mod dependency for
// its admin/search query tooling, given a pipeline-facing home here.
func reshapeFacts(raw, jqFilter string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	start := strings.IndexAny(raw, "[{")
	if start == -1 {
		return nil, fmt.Errorf("pipeline: custom strategy response contained no JSON")
	}
	var doc any
	if err := json.Unmarshal([]byte(raw[start:]), &doc); err != nil {
		// Try trimming trailing prose after the last closing bracket.
		end := strings.LastIndexAny(raw, "]}")
		if end == -1 || end < start {
			return nil, fmt.Errorf("pipeline: parsing custom strategy response: %w", err)
		}
		if err := json.Unmarshal([]byte(raw[start:end+1]), &doc); err != nil {
			return nil, fmt.Errorf("pipeline: parsing custom strategy response: %w", err)
		}
	}

	if jqFilter != "" {
		reshaped, err := applyJQ(jqFilter, doc)
		if err != nil {
			return nil, err
		}
		doc = reshaped
	}

	switch v := doc.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			default:
				b, _ := json.Marshal(item)
				out = append(out, string(b))
			}
		}
		return out, nil
	case string:
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("pipeline: custom strategy response did not reshape to an array")
	}
}

func applyJQ(filterSrc string, input any) (any, error) {
	query, err := gojq.Parse(filterSrc)
	if err != nil {
		return nil, fmt.Errorf("pipeline: compiling jq filter: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("pipeline: compiling jq filter: %w", err)
	}
	iter := code.RunWithContext(context.Background(), input)
	v, ok := iter.Next()
	if !ok {
		return nil, fmt.Errorf("pipeline: jq filter produced no output")
	}
	if err, ok := v.(error); ok {
		return nil, fmt.Errorf("pipeline: jq filter: %w", err)
	}
	return v, nil
}
