package workingmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirino/agent-memory-service/internal/config"
	"github.com/chirino/agent-memory-service/internal/model"
	memorybackend "github.com/chirino/agent-memory-service/internal/plugin/wmstore/memory"
	registrytaskstore "github.com/chirino/agent-memory-service/internal/registry/taskstore"
)

type fakeTaskStore struct {
	enqueued []registrytaskstore.Task
}

func (f *fakeTaskStore) Enqueue(ctx context.Context, t registrytaskstore.Task) error {
	f.enqueued = append(f.enqueued, t)
	return nil
}
func (f *fakeTaskStore) SchedulePeriodic(ctx context.Context, t registrytaskstore.Task) error {
	return nil
}
func (f *fakeTaskStore) ClaimReady(ctx context.Context, limit int) ([]registrytaskstore.Task, error) {
	return nil, nil
}
func (f *fakeTaskStore) Fail(ctx context.Context, id, errMsg string, retryDelay time.Duration) error {
	return nil
}
func (f *fakeTaskStore) Delete(ctx context.Context, id string) error { return nil }
func (f *fakeTaskStore) Reschedule(ctx context.Context, id string, delay time.Duration) error {
	return nil
}

func newTestStore(threshold int) (*Store, *fakeTaskStore) {
	cfg := config.DefaultConfig()
	cfg.SummarizationTokenThreshold = threshold
	tasks := &fakeTaskStore{}
	return New(memorybackend.New(time.Hour), tasks, &cfg), tasks
}

func TestAppendMessagesRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(0)

	wm, err := store.AppendMessages(ctx, "u1", "ns", "s1", []model.MemoryMessage{{ID: "m1", Content: "hello"}}, 0)
	require.NoError(t, err)
	assert.Len(t, wm.Messages, 1)
}

func TestAppendMessagesTriggersSummarizationOnce(t *testing.T) {
	ctx := context.Background()
	store, tasks := newTestStore(2)

	_, err := store.AppendMessages(ctx, "u1", "ns", "s1", []model.MemoryMessage{{ID: "m1", Content: "one two three four"}}, 0)
	require.NoError(t, err)
	require.Len(t, tasks.enqueued, 1)
	assert.Equal(t, "SummarizeSession", tasks.enqueued[0].TaskName)
}

func TestAppendMessagesBelowThresholdDoesNotTrigger(t *testing.T) {
	ctx := context.Background()
	store, tasks := newTestStore(1000)

	_, err := store.AppendMessages(ctx, "u1", "ns", "s1", []model.MemoryMessage{{ID: "m1", Content: "hi"}}, 0)
	require.NoError(t, err)
	assert.Empty(t, tasks.enqueued)
}

func TestDeleteRemovesSession(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(0)

	require.NoError(t, store.Set(ctx, &model.WorkingMemory{UserID: "u1", Namespace: "ns", SessionID: "s1"}, 0))
	require.NoError(t, store.Delete(ctx, "u1", "ns", "s1"))

	got, err := store.Get(ctx, "u1", "ns", "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
