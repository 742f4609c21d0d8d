// Package memtest provides an in-process VectorStore fake used by the
// §8 testable-property suites, since none of the real backends (redis,
// pgvector, qdrant, sqlitevec) can run without a live server. It is
// never registered into the vectorstore registry — tests construct it
// directly — grounded on the teacher's practice of hand-written fakes
// in internal/testutil for the same reason (no embedded/miniredis
// dependency appears anywhere in the example pack).
package memtest

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/chirino/agent-memory-service/internal/keys"
	registryvector "github.com/chirino/agent-memory-service/internal/registry/vectorstore"
)

// Store is a goroutine-safe, in-memory VectorStore.
type Store struct {
	mu      sync.Mutex
	records map[string]registryvector.Record
}

// New returns an empty Store.
func New() *Store {
	return &Store{records: map[string]registryvector.Record{}}
}

func (s *Store) Name() string    { return "memtest" }
func (s *Store) IsEnabled() bool { return true }

func clone(rec registryvector.Record) registryvector.Record {
	meta := make(map[string]any, len(rec.Metadata))
	for k, v := range rec.Metadata {
		meta[k] = v
	}
	vec := make([]float32, len(rec.Vector))
	copy(vec, rec.Vector)
	rec.Metadata = meta
	rec.Vector = vec
	return rec
}

func (s *Store) Put(ctx context.Context, rec registryvector.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = clone(rec)
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*registryvector.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("memtest: record %s not found", id)
	}
	out := clone(rec)
	return &out, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *Store) UpdateFields(ctx context.Context, id string, metadata map[string]any, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("memtest: record %s not found", id)
	}
	for k, v := range metadata {
		rec.Metadata[k] = v
	}
	if vector != nil {
		rec.Vector = vector
	}
	s.records[id] = rec
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (s *Store) Search(ctx context.Context, req registryvector.SearchRequest) ([]registryvector.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []registryvector.SearchResult
	for _, rec := range s.records {
		if rec.UserID != req.UserID {
			continue
		}
		if req.Namespace != "" && !keys.NamespaceHasPrefix(rec.Namespace, req.Namespace) {
			continue
		}
		if req.Filter != nil && !req.Filter.Match(rec.Metadata) {
			continue
		}
		score := 1.0
		if req.Vector != nil {
			score = cosineSimilarity(req.Vector, rec.Vector)
		}
		matches = append(matches, registryvector.SearchResult{ID: rec.ID, Score: score, Metadata: clone(rec).Metadata})
	}

	// simple insertion sort by descending score; result sets in tests are small
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].Score > matches[j-1].Score; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}
	if req.Limit > 0 && len(matches) > req.Limit {
		matches = matches[:req.Limit]
	}
	return matches, nil
}

func (s *Store) Count(ctx context.Context, userID, namespacePrefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, rec := range s.records {
		if rec.UserID != userID {
			continue
		}
		if namespacePrefix != "" && !strings.HasPrefix(rec.Namespace, namespacePrefix) {
			continue
		}
		if deletedAt, _ := rec.Metadata["deleted_at"].(string); deletedAt != "" {
			continue
		}
		count++
	}
	return count, nil
}

var _ registryvector.VectorStore = (*Store)(nil)
