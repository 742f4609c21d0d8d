// Package tokenizer provides the pluggable token counter named in
// Design Note §9: a small registry of named counters selected by model
// name, falling back to a documented deterministic word-based heuristic
// when no counter is registered for a model, so summarization_threshold
// behavior stays reproducible without vendoring a real BPE tokenizer.
package tokenizer

import "strings"

// Counter estimates the token count of text for a given model.
type Counter func(text string) int

var counters = map[string]Counter{}

// Register associates a Counter with a model name.
func Register(modelName string, c Counter) {
	counters[modelName] = c
}

// Count returns the estimated token count of text for modelName, using
// the registered counter if one exists, or the fallback heuristic
// documented in Design Note §9: len(strings.Fields(text)) * 1.3.
func Count(modelName, text string) int {
	if c, ok := counters[modelName]; ok {
		return c(text)
	}
	return EstimateWords(text)
}

// EstimateWords is the deterministic fallback heuristic: word count
// scaled by 1.3 to approximate subword tokenization overhead.
func EstimateWords(text string) int {
	words := len(strings.Fields(text))
	return int(float64(words) * 1.3)
}
