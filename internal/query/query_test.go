package query

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirino/agent-memory-service/internal/longtermmemory"
	"github.com/chirino/agent-memory-service/internal/model"
	"github.com/chirino/agent-memory-service/internal/plugin/vector/memtest"
	memwm "github.com/chirino/agent-memory-service/internal/plugin/wmstore/memory"
	registrytaskstore "github.com/chirino/agent-memory-service/internal/registry/taskstore"
	registryvector "github.com/chirino/agent-memory-service/internal/registry/vectorstore"
	"github.com/chirino/agent-memory-service/internal/taskruntime"
	"github.com/chirino/agent-memory-service/internal/workingmemory"
)

// recordingTaskStore only needs to capture Enqueue calls; every other
// TaskStore method is a no-op since Search/MemoryPrompt never drive them.
type recordingTaskStore struct {
	mu       sync.Mutex
	enqueued []registrytaskstore.Task
}

func (r *recordingTaskStore) Enqueue(ctx context.Context, t registrytaskstore.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enqueued = append(r.enqueued, t)
	return nil
}
func (r *recordingTaskStore) SchedulePeriodic(ctx context.Context, t registrytaskstore.Task) error {
	return nil
}
func (r *recordingTaskStore) ClaimReady(ctx context.Context, limit int) ([]registrytaskstore.Task, error) {
	return nil, nil
}
func (r *recordingTaskStore) Fail(ctx context.Context, id, errMsg string, retryDelay time.Duration) error {
	return nil
}
func (r *recordingTaskStore) Delete(ctx context.Context, id string) error { return nil }
func (r *recordingTaskStore) Reschedule(ctx context.Context, id string, delay time.Duration) error {
	return nil
}

func (r *recordingTaskStore) touchedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, t := range r.enqueued {
		if t.TaskName != "TouchRecords" {
			continue
		}
		raw, _ := t.Args["ids"].([]string)
		ids = append(ids, raw...)
	}
	return ids
}

var _ registrytaskstore.TaskStore = (*recordingTaskStore)(nil)

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		for _, r := range t {
			v[int(r)%f.dim]++
		}
		out[i] = v
	}
	return out, nil
}
func (f *fakeEmbedder) ModelName() string { return "fake" }
func (f *fakeEmbedder) Dimension() int    { return f.dim }

func newTestService(t *testing.T) (*Service, *longtermmemory.Store, *memtest.Store, *recordingTaskStore) {
	vectors := memtest.New()
	ltm := longtermmemory.New(vectors)
	wmBackend := memwm.New(time.Hour)
	wm := workingmemory.New(wmBackend, nil, nil)
	store := &recordingTaskStore{}
	tasks := taskruntime.New(store, time.Minute, time.Minute, 10, 3)
	embedder := &fakeEmbedder{dim: 16}
	svc := New(ltm, wm, vectors, tasks, embedder, nil, nil)
	return svc, ltm, vectors, store
}

func createRecord(t *testing.T, ltm *longtermmemory.Store, userID, namespace, text string, vector []float32) model.MemoryRecord {
	rec, err := ltm.Create(context.Background(), model.MemoryRecord{
		UserID: userID, Namespace: namespace, Text: text,
		MemoryType: model.MemoryTypeSemantic, Embedding: vector,
	})
	require.NoError(t, err)
	return *rec
}

func TestSearchReturnsFilterOnlyResultsWithoutText(t *testing.T) {
	svc, ltm, _, _ := newTestService(t)
	ctx := context.Background()
	createRecord(t, ltm, "u1", "ns", "likes coffee", []float32{1, 0, 0})
	createRecord(t, ltm, "u2", "ns", "likes tea", []float32{0, 1, 0})

	resp, err := svc.Search(ctx, SearchRequest{UserID: "u1", Namespace: "ns", Limit: 10})
	require.NoError(t, err)
	require.Len(t, resp.Memories, 1)
	assert.Equal(t, "likes coffee", resp.Memories[0].Text)
}

func TestSearchExcludesSupersededUnpersistedRecords(t *testing.T) {
	svc, _, vectors, _ := newTestService(t)
	ctx := context.Background()
	// longtermmemory.Create always stamps persisted_at immediately, so the
	// only way to reach a superseded_by != "" && persisted_at == nil
	// record (§4.6 step 3's guard) is to write the vector store directly,
	// as if a staged record was superseded before ever being persisted.
	require.NoError(t, vectors.Put(ctx, registryvector.Record{
		ID: "staged-1", UserID: "u1", Namespace: "ns", Vector: []float32{1, 0, 0},
		Metadata: map[string]any{"text": "staged fact", "superseded_by": "replacement-id"},
	}))

	resp, err := svc.Search(ctx, SearchRequest{UserID: "u1", Namespace: "ns", Limit: 10})
	require.NoError(t, err)
	for _, m := range resp.Memories {
		assert.NotEqual(t, "staged-1", m.ID)
	}
}

func TestSearchExcludesSupersededPersistedRecords(t *testing.T) {
	// S2: a record that reached the vector store through the normal
	// Create path (so persisted_at is always set, store.go:197-199) and
	// was later superseded by a dedup winner must still drop out of
	// Search. superseded_by != "" and persisted_at == nil are independent
	// exclusions; this covers the first in isolation.
	svc, ltm, _, _ := newTestService(t)
	ctx := context.Background()
	loser := createRecord(t, ltm, "u1", "ns", "user likes tea", []float32{1, 0, 0})
	winner := createRecord(t, ltm, "u1", "ns", "the user likes hot green tea in the morning", []float32{1, 0, 0})
	require.NoError(t, ltm.Supersede(ctx, loser.ID, winner.ID))

	resp, err := svc.Search(ctx, SearchRequest{UserID: "u1", Namespace: "ns", Text: "tea", Limit: 10})
	require.NoError(t, err)
	require.Len(t, resp.Memories, 1)
	assert.Equal(t, winner.ID, resp.Memories[0].ID)
}

func TestSearchExcludesTombstonedRecords(t *testing.T) {
	svc, ltm, _, _ := newTestService(t)
	ctx := context.Background()
	rec := createRecord(t, ltm, "u1", "ns", "likes coffee", []float32{1, 0, 0})
	require.NoError(t, ltm.Delete(ctx, rec.ID, "forgotten"))

	resp, err := svc.Search(ctx, SearchRequest{UserID: "u1", Namespace: "ns", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, resp.Memories)
}

func TestSearchSchedulesTouchInBackgroundNotSynchronously(t *testing.T) {
	svc, ltm, _, store := newTestService(t)
	ctx := context.Background()
	rec := createRecord(t, ltm, "u1", "ns", "likes coffee", []float32{1, 0, 0})

	resp, err := svc.Search(ctx, SearchRequest{UserID: "u1", Namespace: "ns", Limit: 10})
	require.NoError(t, err)
	require.Len(t, resp.Memories, 1)

	assert.Equal(t, 0, rec.AccessCount, "search must not touch synchronously")
	assert.Contains(t, store.touchedIDs(), rec.ID, "touch is scheduled through the task store instead")
}

func TestSearchPaginatesWithNextOffset(t *testing.T) {
	svc, ltm, _, _ := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		createRecord(t, ltm, "u1", "ns", "fact", []float32{1, 0, 0})
	}

	resp, err := svc.Search(ctx, SearchRequest{UserID: "u1", Namespace: "ns", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Total)
	require.Len(t, resp.Memories, 2)
	require.NotNil(t, resp.NextOffset)
	assert.Equal(t, 2, *resp.NextOffset)
}

func TestSearchRejectsNonPositiveLimit(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.Search(context.Background(), SearchRequest{UserID: "u1", Namespace: "ns", Limit: 0})
	assert.Error(t, err)
}

func TestSearchWithTextEmbedsAndRanksBySimilarity(t *testing.T) {
	svc, ltm, _, _ := newTestService(t)
	ctx := context.Background()
	embedder := &fakeEmbedder{dim: 16}
	vecs, err := embedder.EmbedTexts(ctx, []string{"apple", "zebra"})
	require.NoError(t, err)
	createRecord(t, ltm, "u1", "ns", "apple", vecs[0])
	createRecord(t, ltm, "u1", "ns", "zebra", vecs[1])

	resp, err := svc.Search(ctx, SearchRequest{UserID: "u1", Namespace: "ns", Text: "apple", Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Memories)
	assert.Equal(t, "apple", resp.Memories[0].Text)
}
