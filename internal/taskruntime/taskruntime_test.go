package taskruntime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	registrytaskstore "github.com/chirino/agent-memory-service/internal/registry/taskstore"
)

// fakeTaskStore is an in-process TaskStore fake for runtime tests, the
// same role memtest.Store plays for the vector store contract: no real
// backend in the pack can run without a live server.
type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[string]registrytaskstore.Task
	seq   int
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: map[string]registrytaskstore.Task{}}
}

func (f *fakeTaskStore) nextID() string {
	f.seq++
	return "task-" + time.Now().Format("150405") + "-" + string(rune('a'+f.seq))
}

func (f *fakeTaskStore) Enqueue(ctx context.Context, t registrytaskstore.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.tasks {
		if existing.Fingerprint == t.Fingerprint && !existing.Periodic {
			return nil
		}
	}
	if t.ID == "" {
		t.ID = f.nextID()
	}
	t.CreatedAt = time.Now()
	t.RetryAt = time.Now()
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeTaskStore) SchedulePeriodic(ctx context.Context, t registrytaskstore.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, existing := range f.tasks {
		if existing.Fingerprint == t.Fingerprint {
			existing.Interval = t.Interval
			f.tasks[id] = existing
			return nil
		}
	}
	if t.ID == "" {
		t.ID = f.nextID()
	}
	t.Periodic = true
	t.CreatedAt = time.Now()
	t.RetryAt = time.Now()
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeTaskStore) ClaimReady(ctx context.Context, limit int) ([]registrytaskstore.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []registrytaskstore.Task
	now := time.Now()
	for id, t := range f.tasks {
		if len(out) >= limit {
			break
		}
		if t.RetryAt.After(now) {
			continue
		}
		t.RetryAt = now.Add(5 * time.Minute)
		f.tasks[id] = t
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTaskStore) Fail(ctx context.Context, id, errMsg string, retryDelay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil
	}
	t.RetryCount++
	t.RetryAt = time.Now().Add(retryDelay)
	t.LastError = errMsg
	f.tasks[id] = t
	return nil
}

func (f *fakeTaskStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, id)
	return nil
}

func (f *fakeTaskStore) Reschedule(ctx context.Context, id string, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil
	}
	t.RetryAt = time.Now().Add(delay)
	f.tasks[id] = t
	return nil
}

func (f *fakeTaskStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

var _ registrytaskstore.TaskStore = (*fakeTaskStore)(nil)

func TestProcessBatchDispatchesToRegisteredHandler(t *testing.T) {
	ctx := context.Background()
	store := newFakeTaskStore()
	rt := New(store, time.Minute, time.Minute, 10, 3)

	var gotArgs map[string]any
	rt.RegisterHandler("ExtractSession", func(ctx context.Context, args map[string]any) error {
		gotArgs = args
		return nil
	})

	require.NoError(t, rt.Enqueue(ctx, "ExtractSession", map[string]any{"session_id": "s1"}))
	rt.ProcessBatch(ctx)

	assert.Equal(t, "s1", gotArgs["session_id"])
	assert.Equal(t, 0, store.count(), "a successful one-shot task is deleted")
}

func TestProcessBatchRetriesFailedTaskUntilMaxRetries(t *testing.T) {
	ctx := context.Background()
	store := newFakeTaskStore()
	rt := New(store, time.Minute, time.Nanosecond, 10, 2)

	var attempts int
	rt.RegisterHandler("Compact", func(ctx context.Context, args map[string]any) error {
		attempts++
		return assertErr("boom")
	})
	require.NoError(t, rt.Enqueue(ctx, "Compact", map[string]any{"user_id": "u1"}))

	// Retry delay is one nanosecond (zero would select New's 10m default)
	// so each ProcessBatch call immediately reclaims the task, simulating
	// retries across poll cycles.
	rt.ProcessBatch(ctx)
	rt.ProcessBatch(ctx)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 0, store.count(), "task is dropped once retry_count reaches maxRetries")
}

func TestProcessBatchWithoutHandlerFailsTask(t *testing.T) {
	ctx := context.Background()
	store := newFakeTaskStore()
	rt := New(store, time.Minute, time.Hour, 10, 5)

	require.NoError(t, rt.Enqueue(ctx, "Unregistered", nil))
	rt.ProcessBatch(ctx)

	assert.Equal(t, 1, store.count(), "task is retained with an incremented retry, not silently dropped")
}

func TestEnqueueIsIdempotentByFingerprint(t *testing.T) {
	ctx := context.Background()
	store := newFakeTaskStore()
	rt := New(store, time.Minute, time.Minute, 10, 3)

	args := map[string]any{"session_id": "s1", "namespace": "ns"}
	require.NoError(t, rt.Enqueue(ctx, "ExtractSession", args))
	require.NoError(t, rt.Enqueue(ctx, "ExtractSession", args))
	assert.Equal(t, 1, store.count())
}

func TestFingerprintIsOrderIndependent(t *testing.T) {
	a := Fingerprint("Compact", map[string]any{"user_id": "u1", "namespace": "ns"})
	b := Fingerprint("Compact", map[string]any{"namespace": "ns", "user_id": "u1"})
	assert.Equal(t, a, b)
}

func TestFingerprintDiffersByTaskName(t *testing.T) {
	a := Fingerprint("Compact", map[string]any{"user_id": "u1"})
	b := Fingerprint("Forget", map[string]any{"user_id": "u1"})
	assert.NotEqual(t, a, b)
}

func TestPeriodicTaskIsNeverDeletedAfterSuccess(t *testing.T) {
	ctx := context.Background()
	store := newFakeTaskStore()
	rt := New(store, time.Minute, time.Minute, 10, 3)

	var runs int
	rt.RegisterHandler("CompactNamespace", func(ctx context.Context, args map[string]any) error {
		runs++
		return nil
	})
	require.NoError(t, rt.SchedulePeriodic(ctx, "CompactNamespace", map[string]any{"user_id": "u1"}, 10*time.Minute))

	rt.ProcessBatch(ctx)
	assert.Equal(t, 1, runs)
	assert.Equal(t, 1, store.count(), "periodic task row survives a successful run")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
