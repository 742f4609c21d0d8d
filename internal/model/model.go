// Package model defines the data entities shared across the memory
// service: MemoryMessage, WorkingMemory, and MemoryRecord, per §3.1.
package model

import "time"

// Role identifies the speaker of a MemoryMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// MemoryMessage is one turn of a working-memory session transcript.
type MemoryMessage struct {
	ID        string
	Role      Role
	Content   string
	CreatedAt time.Time
	// Metadata carries caller-supplied, opaque key-value annotations
	// (tool call ids, client turn numbers) that never participate in
	// dedup, search, or promotion.
	Metadata map[string]any
}

// MemoryStrategy selects which ExtractStrategy the promotion pipeline
// runs over a session's unpromoted messages. See internal/pipeline/strategy.go.
type MemoryStrategy struct {
	Name   string // "discrete", "summary", "preferences", or "custom"
	Prompt string // only meaningful when Name == "custom"
}

// WorkingMemory is the session-scoped, TTL-bound working set for one
// (user_id, namespace, session_id) tuple.
type WorkingMemory struct {
	UserID    string
	Namespace string
	SessionID string

	Messages []MemoryMessage
	// Staged holds MemoryRecord candidates written directly into working
	// memory by a caller (bypassing extraction) awaiting promotion.
	Staged []MemoryRecord

	Context string         // free-form session context blob
	Data    map[string]any // caller-controlled scratch data, opaque to the server

	Strategy MemoryStrategy

	// PromotedThroughID is the id of the last MemoryMessage the
	// enrichment pipeline has considered; the promotion watermark of §4.5.
	PromotedThroughID string

	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// MemoryType is the closed set of §3.1/Glossary record categories:
// semantic (fact/preference), episodic (event with time), and message
// (raw message).
type MemoryType string

const (
	MemoryTypeSemantic MemoryType = "semantic"
	MemoryTypeEpisodic MemoryType = "episodic"
	MemoryTypeMessage  MemoryType = "message"
)

// MemoryRecord is a persisted, independently searchable long-term memory.
type MemoryRecord struct {
	ID         string
	UserID     string
	Namespace  string
	SessionID  string // origin session, retained for provenance only
	Text       string
	MemoryType MemoryType
	Hash       string // see internal/longtermmemory/hash.go

	Topics   []string
	Entities []string

	// DiscreteSourceIDs are the ids of the source messages/records that
	// produced this record, set by extraction, stored with the record and
	// read back with it (provenance only, not an enrichment field).
	DiscreteSourceIDs []string

	// EventDate is set only for MemoryTypeEpisodic records and marks the
	// real-world date the memory describes, not when it was recorded.
	EventDate *time.Time

	Embedding []float32
	// EnrichmentFailed marks a record whose Embed stage exhausted its
	// retry budget: the record is retained and stays searchable by
	// filter, but excluded from vector search, per §4.5 stage 3.
	EnrichmentFailed bool

	AccessCount  int
	LastAccessAt time.Time

	CreatedAt   time.Time
	PersistedAt *time.Time // nil until search-visible; see invariant 1

	SupersededBy string // id of the record that replaced this one, if any

	DeletedAt     *time.Time
	DeletedReason string
}

// Immutable reports whether id/text/memory_type/hash/created_at may no
// longer change, per invariant 2: once persisted_at is set.
func (r *MemoryRecord) Immutable() bool {
	return r.PersistedAt != nil
}
