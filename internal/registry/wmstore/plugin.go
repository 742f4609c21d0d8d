// Package wmstore defines the pluggable C3 Working Memory Store
// interface, grounded on the teacher's internal/registry/cache plugin
// shape (itself grounded on internal/plugin/cache/redis), generalized
// from a conversation-entries cache to the full WorkingMemory contract
// of §4.3: get/set/append_messages/stage_memories/delete, TTL-bound.
package wmstore

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/agent-memory-service/internal/model"
)

// WorkingMemoryStore is the C3 contract.
type WorkingMemoryStore interface {
	Get(ctx context.Context, userID, namespace, sessionID string) (*model.WorkingMemory, error)
	// Set replaces the working memory wholesale and (re)sets its TTL.
	Set(ctx context.Context, wm *model.WorkingMemory, ttl time.Duration) error
	// AppendMessages appends to the message list without requiring a
	// full read-modify-write by the caller, and renews the TTL.
	AppendMessages(ctx context.Context, userID, namespace, sessionID string, msgs []model.MemoryMessage, ttl time.Duration) (*model.WorkingMemory, error)
	// StageMemories appends caller-supplied MemoryRecord candidates,
	// bypassing extraction, awaiting promotion.
	StageMemories(ctx context.Context, userID, namespace, sessionID string, records []model.MemoryRecord) error
	Delete(ctx context.Context, userID, namespace, sessionID string) error
}

// Loader creates a WorkingMemoryStore from config.
type Loader func(ctx context.Context) (WorkingMemoryStore, error)

// Plugin represents a working memory store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a working memory store plugin.
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
	return nil, fmt.Errorf("unknown working memory store %q; valid: %v", name, Names())
}
