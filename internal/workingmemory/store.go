// Package workingmemory implements C3: the session-scoped, TTL-bound
// working set facade over registrywmstore.WorkingMemoryStore, adding
// per-key serialization and the summarization trigger of §4.3.
//
// Per-key serialization is a striped mutex keyed by fnv64(key), grounded
// on the teacher's per-(conversation,client) locking pattern visible in
// PostgresStore.warmEntriesCache/fetchLatestMemoryEntries, which always
// takes the lock only for the critical section and never across a
// suspend point touching the backing store.
package workingmemory

import (
	"context"
	"time"

	"github.com/chirino/agent-memory-service/internal/config"
	"github.com/chirino/agent-memory-service/internal/errs"
	"github.com/chirino/agent-memory-service/internal/model"
	registrytaskstore "github.com/chirino/agent-memory-service/internal/registry/taskstore"
	registrywmstore "github.com/chirino/agent-memory-service/internal/registry/wmstore"
	"github.com/chirino/agent-memory-service/internal/tokenizer"
	"github.com/chirino/agent-memory-service/internal/ulid"
)

// Store is the C3 facade.
type Store struct {
	backend registrywmstore.WorkingMemoryStore
	tasks   registrytaskstore.TaskStore
	cfg     *config.Config
	locks   stripedLock
}

// New wraps a WorkingMemoryStore backend as a workingmemory.Store. tasks
// may be nil, in which case the summarization trigger is a no-op (used
// by tests that don't exercise C6).
func New(backend registrywmstore.WorkingMemoryStore, tasks registrytaskstore.TaskStore, cfg *config.Config) *Store {
	return &Store{backend: backend, tasks: tasks, cfg: cfg}
}

func sessionKey(userID, namespace, sessionID string) string {
	return userID + "\x00" + namespace + "\x00" + sessionID
}

func (s *Store) Get(ctx context.Context, userID, namespace, sessionID string) (*model.WorkingMemory, error) {
	wm, err := s.backend.Get(ctx, userID, namespace, sessionID)
	if err != nil {
		return nil, &errs.StoreUnavailableError{Store: "wmstore", Cause: err}
	}
	return wm, nil
}

func (s *Store) Set(ctx context.Context, wm *model.WorkingMemory, ttl time.Duration) error {
	key := sessionKey(wm.UserID, wm.Namespace, wm.SessionID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	effectiveTTL := ttl
	if effectiveTTL <= 0 && s.cfg != nil {
		effectiveTTL = s.cfg.DefaultWMTTL
	}
	if err := s.backend.Set(ctx, wm, effectiveTTL); err != nil {
		return &errs.StoreUnavailableError{Store: "wmstore", Cause: err}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID, namespace, sessionID string) error {
	key := sessionKey(userID, namespace, sessionID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	if err := s.backend.Delete(ctx, userID, namespace, sessionID); err != nil {
		return &errs.StoreUnavailableError{Store: "wmstore", Cause: err}
	}
	return nil
}

func (s *Store) StageMemories(ctx context.Context, userID, namespace, sessionID string, records []model.MemoryRecord) error {
	key := sessionKey(userID, namespace, sessionID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	if err := s.backend.StageMemories(ctx, userID, namespace, sessionID, records); err != nil {
		return &errs.StoreUnavailableError{Store: "wmstore", Cause: err}
	}
	return nil
}

// AppendMessages appends msgs under the per-key lock, renews the TTL,
// and when the session's estimated token count crosses
// config.SummarizationTokenThreshold, enqueues a SummarizeSession
// task and stamps a fresh summarization epoch so concurrent triggers from
// racing writers coalesce into the same in-flight task (via the task's
// fingerprint), directly analogous to the teacher's Conversation.Epoch /
// sync-epoch concept.
func (s *Store) AppendMessages(ctx context.Context, userID, namespace, sessionID string, msgs []model.MemoryMessage, ttl time.Duration) (*model.WorkingMemory, error) {
	key := sessionKey(userID, namespace, sessionID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	effectiveTTL := ttl
	if effectiveTTL <= 0 && s.cfg != nil {
		effectiveTTL = s.cfg.DefaultWMTTL
	}
	wm, err := s.backend.AppendMessages(ctx, userID, namespace, sessionID, msgs, effectiveTTL)
	if err != nil {
		return nil, &errs.StoreUnavailableError{Store: "wmstore", Cause: err}
	}

	if s.shouldSummarize(wm) {
		epoch := ulid.New()
		if err := s.enqueueSummarize(ctx, userID, namespace, sessionID, epoch); err != nil {
			return wm, &errs.StoreUnavailableError{Store: "taskstore", Cause: err}
		}
	}
	if err := s.ensureMaintenanceScheduled(ctx, userID, namespace); err != nil {
		return wm, &errs.StoreUnavailableError{Store: "taskstore", Cause: err}
	}
	return wm, nil
}

// ensureMaintenanceScheduled registers the periodic Compact/Forget tasks
// for a (user_id, namespace) pair the first time the working memory layer
// observes traffic for it. SchedulePeriodic upserts by fingerprint, so
// calling this on every append is idempotent and cheap, not a growing
// schedule: it is how compaction/forgetting get scoped per tenant instead
// of as one global sweep, since the vector store adapter (§4.2) only ever
// searches within a single user_id.
func (s *Store) ensureMaintenanceScheduled(ctx context.Context, userID, namespace string) error {
	if s.tasks == nil || s.cfg == nil {
		return nil
	}
	args := map[string]any{"user_id": userID, "namespace": namespace}
	if s.cfg.CompactionEveryMinutes > 0 {
		if err := s.tasks.SchedulePeriodic(ctx, registrytaskstore.Task{
			TaskName:    "Compact",
			Fingerprint: "compact:" + sessionKey(userID, namespace, ""),
			Args:        args,
			Periodic:    true,
			Interval:    time.Duration(s.cfg.CompactionEveryMinutes) * time.Minute,
		}); err != nil {
			return err
		}
	}
	if s.cfg.ForgettingEnabled && s.cfg.ForgettingEveryMinutes > 0 {
		if err := s.tasks.SchedulePeriodic(ctx, registrytaskstore.Task{
			TaskName:    "Forget",
			Fingerprint: "forget:" + sessionKey(userID, namespace, ""),
			Args:        args,
			Periodic:    true,
			Interval:    time.Duration(s.cfg.ForgettingEveryMinutes) * time.Minute,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) shouldSummarize(wm *model.WorkingMemory) bool {
	if s.cfg == nil || s.cfg.SummarizationTokenThreshold <= 0 {
		return false
	}
	var total int
	for _, m := range wm.Messages {
		total += tokenizer.EstimateWords(m.Content)
	}
	return total >= s.cfg.SummarizationTokenThreshold
}

// AdvanceWatermark implements invariant 6's promotion watermark: it
// compare-and-swaps PromotedThroughID to newWatermark only if
// newWatermark sorts after the current value (ULIDs are lexicographically
// monotonic), under the same per-key lock as every other write, so a
// retried or racing promotion run can never move the watermark backwards
// (testable property 4).
func (s *Store) AdvanceWatermark(ctx context.Context, userID, namespace, sessionID, newWatermark string) error {
	key := sessionKey(userID, namespace, sessionID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	wm, err := s.backend.Get(ctx, userID, namespace, sessionID)
	if err != nil {
		return &errs.StoreUnavailableError{Store: "wmstore", Cause: err}
	}
	if wm == nil {
		return &errs.NotFoundError{Resource: "working_memory", ID: key}
	}
	if newWatermark <= wm.PromotedThroughID {
		return nil
	}
	wm.PromotedThroughID = newWatermark
	if err := s.backend.Set(ctx, wm, 0); err != nil {
		return &errs.StoreUnavailableError{Store: "wmstore", Cause: err}
	}
	return nil
}

func (s *Store) enqueueSummarize(ctx context.Context, userID, namespace, sessionID, epoch string) error {
	if s.tasks == nil {
		return nil
	}
	fingerprint := "summarize:" + sessionKey(userID, namespace, sessionID)
	return s.tasks.Enqueue(ctx, registrytaskstore.Task{
		TaskName:    "SummarizeSession",
		Fingerprint: fingerprint,
		Args: map[string]any{
			"user_id": userID, "namespace": namespace, "session_id": sessionID, "epoch": epoch,
		},
	})
}
