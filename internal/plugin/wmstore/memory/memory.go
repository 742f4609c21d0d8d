// Package memory implements a process-local WorkingMemoryStore for unit
// tests and single-process deployments, grounded on the teacher's
// in-process fake stores: a mutex-guarded map plus a background janitor
// goroutine sweeping expired entries, generalized to the session-scoped
// WorkingMemory contract of §4.3.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/chirino/agent-memory-service/internal/config"
	"github.com/chirino/agent-memory-service/internal/model"
	registrywmstore "github.com/chirino/agent-memory-service/internal/registry/wmstore"
)

func init() {
	registrywmstore.Register(registrywmstore.Plugin{Name: "memory", Loader: load})
}

func load(ctx context.Context) (registrywmstore.WorkingMemoryStore, error) {
	cfg := config.FromContext(ctx)
	ttl := 24 * time.Hour
	if cfg != nil && cfg.DefaultWMTTL > 0 {
		ttl = cfg.DefaultWMTTL
	}
	s := New(ttl)
	go s.janitor(ctx)
	return s, nil
}

type entry struct {
	wm        model.WorkingMemory
	expiresAt time.Time
}

// Store is a goroutine-safe, process-local WorkingMemoryStore.
type Store struct {
	mu         sync.Mutex
	entries    map[string]entry
	defaultTTL time.Duration
}

// New returns an empty Store with the given default TTL.
func New(defaultTTL time.Duration) *Store {
	return &Store{entries: map[string]entry{}, defaultTTL: defaultTTL}
}

func flatKey(userID, namespace, sessionID string) string {
	return userID + "\x00" + namespace + "\x00" + sessionID
}

func (s *Store) janitor(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

func (s *Store) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}

func (s *Store) Get(ctx context.Context, userID, namespace, sessionID string) (*model.WorkingMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[flatKey(userID, namespace, sessionID)]
	if !ok || (!e.expiresAt.IsZero() && time.Now().After(e.expiresAt)) {
		return nil, nil
	}
	wm := e.wm
	return &wm, nil
}

func (s *Store) Set(ctx context.Context, wm *model.WorkingMemory, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	wm.UpdatedAt = time.Now()
	if wm.CreatedAt.IsZero() {
		wm.CreatedAt = wm.UpdatedAt
	}
	wm.ExpiresAt = wm.UpdatedAt.Add(ttl)
	s.entries[flatKey(wm.UserID, wm.Namespace, wm.SessionID)] = entry{wm: *wm, expiresAt: wm.ExpiresAt}
	return nil
}

func (s *Store) AppendMessages(ctx context.Context, userID, namespace, sessionID string, msgs []model.MemoryMessage, ttl time.Duration) (*model.WorkingMemory, error) {
	wm, err := s.Get(ctx, userID, namespace, sessionID)
	if err != nil {
		return nil, err
	}
	if wm == nil {
		wm = &model.WorkingMemory{UserID: userID, Namespace: namespace, SessionID: sessionID}
	}
	wm.Messages = append(wm.Messages, msgs...)
	if err := s.Set(ctx, wm, ttl); err != nil {
		return nil, err
	}
	return wm, nil
}

func (s *Store) StageMemories(ctx context.Context, userID, namespace, sessionID string, records []model.MemoryRecord) error {
	wm, err := s.Get(ctx, userID, namespace, sessionID)
	if err != nil {
		return err
	}
	if wm == nil {
		wm = &model.WorkingMemory{UserID: userID, Namespace: namespace, SessionID: sessionID}
	}
	wm.Staged = append(wm.Staged, records...)
	return s.Set(ctx, wm, 0)
}

func (s *Store) Delete(ctx context.Context, userID, namespace, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, flatKey(userID, namespace, sessionID))
	return nil
}

var _ registrywmstore.WorkingMemoryStore = (*Store)(nil)
