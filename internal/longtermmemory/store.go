// Package longtermmemory implements C4: a thin facade over
// registryvector.VectorStore that owns the content hash, exact-dedup
// fast path, and the immutability/supersession invariants of §3.2.
// Grounded on the teacher's postgresEpisodicStore.PutMemory
// (internal/plugin/store/postgres/episodic_store.go), which implements
// the same upsert-with-supersede shape for episodic memory entries:
// soft-replace the loser via a superseded_by pointer, never hard-delete
// inline.
package longtermmemory

import (
	"context"
	"time"

	"github.com/chirino/agent-memory-service/internal/errs"
	"github.com/chirino/agent-memory-service/internal/filter"
	"github.com/chirino/agent-memory-service/internal/model"
	registryvector "github.com/chirino/agent-memory-service/internal/registry/vectorstore"
	"github.com/chirino/agent-memory-service/internal/ulid"
)

// maxSupersedeChainDepth bounds the superseded_by walk Supersede performs
// before writing, per Design Note §9.
const maxSupersedeChainDepth = 64

// Store is the C4 facade.
type Store struct {
	vectors registryvector.VectorStore
}

// New wraps a VectorStore as a longtermmemory.Store.
func New(vectors registryvector.VectorStore) *Store {
	return &Store{vectors: vectors}
}

func toRecord(rec *registryvector.Record) *model.MemoryRecord {
	m := rec.Metadata
	out := &model.MemoryRecord{
		ID:                rec.ID,
		UserID:            rec.UserID,
		Namespace:         rec.Namespace,
		Hash:              rec.Hash,
		Embedding:         rec.Vector,
		SessionID:         stringField(m, "session_id"),
		Text:              stringField(m, "text"),
		MemoryType:        model.MemoryType(stringField(m, "memory_type")),
		Topics:            stringSliceField(m, "topics"),
		Entities:          stringSliceField(m, "entities"),
		DiscreteSourceIDs: stringSliceField(m, "discrete_source_ids"),
		AccessCount:       intField(m, "access_count"),
		SupersededBy:      stringField(m, "superseded_by"),
		EnrichmentFailed:  boolField(m, "enrichment_failed"),
	}
	if v := stringField(m, "event_date"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			out.EventDate = &t
		}
	}
	if v := stringField(m, "last_access_at"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			out.LastAccessAt = t
		}
	}
	if v := stringField(m, "created_at"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			out.CreatedAt = t
		}
	}
	if v := stringField(m, "persisted_at"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			out.PersistedAt = &t
		}
	}
	if v := stringField(m, "deleted_at"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			out.DeletedAt = &t
		}
	}
	out.DeletedReason = stringField(m, "deleted_reason")
	return out
}

func toMetadata(r *model.MemoryRecord) map[string]any {
	m := map[string]any{
		"session_id":          r.SessionID,
		"text":                r.Text,
		"memory_type":         string(r.MemoryType),
		"topics":              r.Topics,
		"entities":            r.Entities,
		"discrete_source_ids": r.DiscreteSourceIDs,
		"access_count":        r.AccessCount,
		"enrichment_failed":   r.EnrichmentFailed,
	}
	if r.EventDate != nil {
		m["event_date"] = r.EventDate.UTC().Format(time.RFC3339)
	}
	if !r.LastAccessAt.IsZero() {
		m["last_access_at"] = r.LastAccessAt.UTC().Format(time.RFC3339)
	}
	if !r.CreatedAt.IsZero() {
		m["created_at"] = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	if r.PersistedAt != nil {
		m["persisted_at"] = r.PersistedAt.UTC().Format(time.RFC3339)
	}
	if r.SupersededBy != "" {
		m["superseded_by"] = r.SupersededBy
	}
	if r.DeletedAt != nil {
		m["deleted_at"] = r.DeletedAt.UTC().Format(time.RFC3339)
		m["deleted_reason"] = r.DeletedReason
	}
	return m
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func stringSliceField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		if s, ok := m[key].([]string); ok {
			return s
		}
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

// findByHash looks up an existing, non-superseded record with the given
// hash using a filter-only search (invariant: hash is a dedup identity,
// never a freeform query).
func (s *Store) findByHash(ctx context.Context, userID, namespace, hash string) (*model.MemoryRecord, error) {
	results, err := s.vectors.Search(ctx, registryvector.SearchRequest{
		UserID:    userID,
		Namespace: namespace,
		Filter:    filter.Expression{"hash": filter.Condition{Eq: hash}},
		Limit:     1,
	})
	if err != nil {
		return nil, &errs.StoreUnavailableError{Store: "vectorstore", Cause: err}
	}
	for _, r := range results {
		if supersededBy, _ := r.Metadata["superseded_by"].(string); supersededBy == "" {
			rec, getErr := s.vectors.Get(ctx, r.ID)
			if getErr != nil {
				return nil, &errs.StoreUnavailableError{Store: "vectorstore", Cause: getErr}
			}
			return toRecord(rec), nil
		}
	}
	return nil, nil
}

// Create implements the exact-dedup fast path of §4.4: if a
// non-superseded record with the same hash already exists, it is
// returned unchanged and no write occurs.
func (s *Store) Create(ctx context.Context, r model.MemoryRecord) (*model.MemoryRecord, error) {
	if r.ID == "" {
		r.ID = ulid.New()
	}
	r.Hash = Hash(&r)

	existing, err := s.findByHash(ctx, r.UserID, r.Namespace, r.Hash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	r.CreatedAt = now
	r.PersistedAt = &now

	if err := s.vectors.Put(ctx, registryvector.Record{
		ID: r.ID, UserID: r.UserID, Namespace: r.Namespace, Hash: r.Hash,
		Vector: r.Embedding, Metadata: toMetadata(&r),
	}); err != nil {
		return nil, &errs.StoreUnavailableError{Store: "vectorstore", Cause: err}
	}
	return &r, nil
}

// Get returns a record by id.
func (s *Store) Get(ctx context.Context, id string) (*model.MemoryRecord, error) {
	rec, err := s.vectors.Get(ctx, id)
	if err != nil {
		return nil, &errs.NotFoundError{Resource: "memory_record", ID: id}
	}
	return toRecord(rec), nil
}

// enrichmentFields are the only fields Update may change, per invariant 2.
var enrichmentFields = map[string]bool{
	"vector": true, "topics": true, "entities": true,
	"last_access_at": true, "access_count": true, "superseded_by": true,
	"enrichment_failed": true,
}

// Update applies a patch restricted to enrichment-owned fields.
func (s *Store) Update(ctx context.Context, id string, patch map[string]any, vector []float32) error {
	for k := range patch {
		if !enrichmentFields[k] {
			return &errs.InputInvalidError{Field: k, Message: "field is immutable once persisted"}
		}
	}
	if err := s.vectors.UpdateFields(ctx, id, patch, vector); err != nil {
		return &errs.StoreUnavailableError{Store: "vectorstore", Cause: err}
	}
	return nil
}

// Supersede sets superseded_by=newID on oldID, idempotently, after
// verifying the chain stays acyclic and within maxSupersedeChainDepth.
func (s *Store) Supersede(ctx context.Context, oldID, newID string) error {
	if oldID == newID {
		return &errs.ConflictError{Message: "a record cannot supersede itself"}
	}
	seen := map[string]bool{oldID: true}
	cursor := newID
	for depth := 0; ; depth++ {
		if depth > maxSupersedeChainDepth {
			return &errs.ConflictError{Message: "supersede chain exceeds maximum depth"}
		}
		if seen[cursor] {
			return &errs.ConflictError{Message: "supersede would introduce a cycle"}
		}
		rec, err := s.Get(ctx, cursor)
		if err != nil {
			break // chain ends at a record that doesn't exist (or newID itself is terminal); stop walking
		}
		if rec.SupersededBy == "" {
			break
		}
		cursor = rec.SupersededBy
	}
	return s.Update(ctx, oldID, map[string]any{"superseded_by": newID}, nil)
}

// Touch bumps last_access_at and increments access_count for each id, batched.
func (s *Store) Touch(ctx context.Context, ids []string) error {
	var firstErr error
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		patch := map[string]any{
			"access_count":   rec.AccessCount + 1,
			"last_access_at": time.Now().UTC().Format(time.RFC3339),
		}
		if err := s.Update(ctx, id, patch, nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Delete tombstones a record, recording a reason for the audit trail.
func (s *Store) Delete(ctx context.Context, id, reason string) error {
	if err := s.vectors.UpdateFields(ctx, id, map[string]any{
		"deleted_at":     time.Now().UTC().Format(time.RFC3339),
		"deleted_reason": reason,
	}, nil); err != nil {
		return &errs.StoreUnavailableError{Store: "vectorstore", Cause: err}
	}
	return nil
}
