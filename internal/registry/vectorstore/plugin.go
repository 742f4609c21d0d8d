// Package vectorstore defines the pluggable C2 Vector Store Adapter
// interface and its plugin registry, grounded on the teacher's
// internal/registry/vector/plugin.go Register/Names/Select triple but
// re-shaped around MemoryRecord vectors with metadata filter pushdown
// instead of per-(conversation,entry) embeddings.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/chirino/agent-memory-service/internal/filter"
)

// Record is the unit of storage: one MemoryRecord's vector plus the
// metadata fields filters can be pushed down against.
type Record struct {
	ID        string
	UserID    string
	Namespace string // encoded, see internal/keys
	Hash      string
	Vector    []float32
	Metadata  map[string]any
}

// SearchResult is a single vector search hit.
type SearchResult struct {
	ID       string
	Score    float64 // similarity in [0,1], backend-normalized
	Metadata map[string]any
}

// SearchRequest describes a filtered vector (or filter-only) search.
type SearchRequest struct {
	UserID    string
	Namespace string    // prefix match
	Vector    []float32 // nil for a filter-only lookup (e.g. exact-hash dedup)
	Filter    filter.Expression
	Limit     int
}

// VectorStore is the C2 adapter contract: put/get/delete/update_fields/
// search/count, per §4.2.
type VectorStore interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	// UpdateFields performs a partial update: it merges the given metadata
	// keys into the stored ones and replaces the vector when one is given.
	// Stored values are not compared first; concurrent writers to the same
	// field resolve last-writer-wins.
	UpdateFields(ctx context.Context, id string, metadata map[string]any, vector []float32) error
	Search(ctx context.Context, req SearchRequest) ([]SearchResult, error)
	Count(ctx context.Context, userID, namespacePrefix string) (int, error)

	Name() string
	IsEnabled() bool
}

// Loader creates a VectorStore from config.
type Loader func(ctx context.Context) (VectorStore, error)

// Plugin represents a vector store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a vector store plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered vector store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named vector store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown vector store %q; valid: %v", name, Names())
}
