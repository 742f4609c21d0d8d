// Package llm defines the pluggable generation/classification provider
// used by the topic-tagging stage (topic_model_source=llm), the custom
// extraction strategy, the SummarizeSession task, and the Query
// Service's optional query optimization step. Same Register/Names/Select shape as
// internal/registry/embed, grounded on internal/plugin/embed/openai for
// the HTTP client conventions.
package llm

import (
	"context"
	"fmt"
)

// Generator produces free-form text and closed-taxonomy classifications.
type Generator interface {
	// Generate runs prompt against the given model tier ("fast" or "slow",
	// see config.Config.GenerationModelFast/Slow) and returns the raw text.
	Generate(ctx context.Context, modelTier, prompt string) (string, error)
	// Classify returns the subset of taxonomy that applies to text.
	Classify(ctx context.Context, text string, taxonomy []string) ([]string, error)
	Name() string
}

// Loader creates a Generator from config.
type Loader func(ctx context.Context) (Generator, error)

// Plugin represents a generator plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a generator plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown generator %q; valid: %v", name, Names())
}
