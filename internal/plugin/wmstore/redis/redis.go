// Package redis adapts C3 (WorkingMemoryStore) onto Redis, the default
// backend named in SPEC_FULL.md §4.3. Grounded on the teacher's
// internal/plugin/cache/redis client/URL conventions; a WorkingMemory is
// stored as one JSON blob per (user_id, namespace, session_id) key with
// a TTL renewed on every write, matching that package's LoadFromURLWithTTL
// idiom generalized from a conversation cache entry to a full session.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/chirino/agent-memory-service/internal/config"
	"github.com/chirino/agent-memory-service/internal/keys"
	"github.com/chirino/agent-memory-service/internal/model"
	registrywmstore "github.com/chirino/agent-memory-service/internal/registry/wmstore"
)

func init() {
	registrywmstore.Register(registrywmstore.Plugin{Name: "redis", Loader: load})
}

func load(ctx context.Context) (registrywmstore.WorkingMemoryStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis wmstore: redis_url is required")
	}
	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis wmstore: parsing redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis wmstore: ping: %w", err)
	}
	return &Store{client: client, defaultTTL: cfg.DefaultWMTTL}, nil
}

// Store implements WorkingMemoryStore as one JSON value per session key.
type Store struct {
	client     *goredis.Client
	defaultTTL time.Duration
}

func flatKey(userID, namespace, sessionID string) (string, error) {
	encoded, err := keys.Encode(namespace)
	if err != nil {
		return "", err
	}
	return keys.WorkingMemoryKey(userID, encoded, sessionID), nil
}

func (s *Store) Get(ctx context.Context, userID, namespace, sessionID string) (*model.WorkingMemory, error) {
	key, err := flatKey(userID, namespace, sessionID)
	if err != nil {
		return nil, err
	}
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var wm model.WorkingMemory
	if err := json.Unmarshal(raw, &wm); err != nil {
		return nil, fmt.Errorf("redis wmstore: decode: %w", err)
	}
	return &wm, nil
}

func (s *Store) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return s.defaultTTL
}

func (s *Store) Set(ctx context.Context, wm *model.WorkingMemory, ttl time.Duration) error {
	key, err := flatKey(wm.UserID, wm.Namespace, wm.SessionID)
	if err != nil {
		return err
	}
	wm.UpdatedAt = time.Now()
	if wm.CreatedAt.IsZero() {
		wm.CreatedAt = wm.UpdatedAt
	}
	effectiveTTL := s.ttlOrDefault(ttl)
	wm.ExpiresAt = wm.UpdatedAt.Add(effectiveTTL)
	raw, err := json.Marshal(wm)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, raw, effectiveTTL).Err()
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
	key, err := flatKey(userID, namespace, sessionID)
	if err != nil {
		return err
	}
	return s.client.Del(ctx, key).Err()
}

var _ registrywmstore.WorkingMemoryStore = (*Store)(nil)
