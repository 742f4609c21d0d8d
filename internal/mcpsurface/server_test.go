package mcpsurface

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirino/agent-memory-service/internal/longtermmemory"
	"github.com/chirino/agent-memory-service/internal/model"
	"github.com/chirino/agent-memory-service/internal/plugin/vector/memtest"
	memwm "github.com/chirino/agent-memory-service/internal/plugin/wmstore/memory"
	"github.com/chirino/agent-memory-service/internal/query"
	registrytaskstore "github.com/chirino/agent-memory-service/internal/registry/taskstore"
	"github.com/chirino/agent-memory-service/internal/taskruntime"
	"github.com/chirino/agent-memory-service/internal/workingmemory"
)

// recordingTaskStore mirrors query's test fake: only Enqueue/SchedulePeriodic
// calls matter to these tests, every other TaskStore method is a no-op.
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

func (r *recordingTaskStore) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.enqueued))
	for i, t := range r.enqueued {
		out[i] = t.TaskName
	}
	return out
}

var _ registrytaskstore.TaskStore = (*recordingTaskStore)(nil)

// fakeEmbedder matches query package's own test fake so text search and
// memory_prompt exercise the real embed-then-rerank path in these tests.
type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, txt := range texts {
		v := make([]float32, f.dim)
		for _, r := range txt {
			v[int(r)%f.dim]++
		}
		out[i] = v
	}
	return out, nil
}
func (f *fakeEmbedder) ModelName() string { return "fake" }
func (f *fakeEmbedder) Dimension() int    { return f.dim }

func newTestServer(t *testing.T) (*Server, *longtermmemory.Store, *recordingTaskStore) {
	vectors := memtest.New()
	ltm := longtermmemory.New(vectors)
	wmBackend := memwm.New(time.Hour)
	store := &recordingTaskStore{}
	rt := taskruntime.New(store, time.Minute, time.Minute, 10, 3)
	wm := workingmemory.New(wmBackend, store, nil)
	svc := query.New(ltm, wm, vectors, rt, &fakeEmbedder{dim: 16}, nil, nil)
	return New(ltm, wm, svc, rt), ltm, store
}

func callTool(ctx context.Context, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok, "expected text content")
	return tc.Text
}

func TestCreateLongTermMemoriesStagesAndEnqueuesExtraction(t *testing.T) {
	s, _, tasks := newTestServer(t)
	ctx := context.Background()

	req := callTool(ctx, map[string]any{
		"user_id":    "u1",
		"namespace":  "ns",
		"session_id": "sess1",
		"memories": []any{
			map[string]any{"text": "likes coffee"},
		},
	})
	res, err := s.handleCreateLongTermMemories(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.IsError)

	wm, err := s.wm.Get(ctx, "u1", "ns", "sess1")
	require.NoError(t, err)
	require.Len(t, wm.Staged, 1)
	assert.Equal(t, "likes coffee", wm.Staged[0].Text)
	assert.Contains(t, tasks.names(), "ExtractSession")
}

func TestCreateLongTermMemoriesDefaultsSessionWhenOmitted(t *testing.T) {
	s, _, _ := newTestServer(t)
	ctx := context.Background()

	req := callTool(ctx, map[string]any{
		"user_id": "u1",
		"memories": []any{
			map[string]any{"text": "likes tea"},
		},
	})
	res, err := s.handleCreateLongTermMemories(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.IsError)

	wm, err := s.wm.Get(ctx, "u1", "default", directSessionID)
	require.NoError(t, err)
	require.Len(t, wm.Staged, 1)
}

func TestCreateLongTermMemoriesRejectsEmptyArray(t *testing.T) {
	s, _, _ := newTestServer(t)
	ctx := context.Background()

	req := callTool(ctx, map[string]any{"user_id": "u1", "memories": []any{}})
	res, err := s.handleCreateLongTermMemories(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestGetAndDeleteLongTermMemory(t *testing.T) {
	s, ltm, _ := newTestServer(t)
	ctx := context.Background()

	rec, err := ltm.Create(ctx, model.MemoryRecord{
		UserID: "u1", Namespace: "ns", Text: "likes coffee",
		MemoryType: model.MemoryTypeSemantic,
	})
	require.NoError(t, err)

	getReq := callTool(ctx, map[string]any{"id": rec.ID})
	getRes, err := s.handleGetLongTermMemory(ctx, getReq)
	require.NoError(t, err)
	assert.False(t, getRes.IsError)
	var fetched model.MemoryRecord
	require.NoError(t, json.Unmarshal([]byte(resultText(t, getRes)), &fetched))
	assert.Equal(t, rec.ID, fetched.ID)

	delReq := callTool(ctx, map[string]any{"ids": []any{rec.ID}, "reason": "test cleanup"})
	delRes, err := s.handleDeleteLongTermMemories(ctx, delReq)
	require.NoError(t, err)
	assert.False(t, delRes.IsError)

	deleted, err := ltm.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.NotNil(t, deleted.DeletedAt)
	assert.Equal(t, "test cleanup", deleted.DeletedReason)
}

func TestEditLongTermMemoryRejectsImmutableField(t *testing.T) {
	s, ltm, _ := newTestServer(t)
	ctx := context.Background()

	rec, err := ltm.Create(ctx, model.MemoryRecord{
		UserID: "u1", Namespace: "ns", Text: "likes coffee",
		MemoryType: model.MemoryTypeSemantic,
	})
	require.NoError(t, err)

	req := callTool(ctx, map[string]any{
		"id":    rec.ID,
		"patch": map[string]any{"text": "rewritten"},
	})
	res, err := s.handleEditLongTermMemory(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestSetWorkingMemoryAppendsAndEnqueuesExtraction(t *testing.T) {
	s, _, tasks := newTestServer(t)
	ctx := context.Background()

	req := callTool(ctx, map[string]any{
		"user_id":    "u1",
		"session_id": "sess1",
		"messages": []any{
			map[string]any{"role": "user", "content": "hello"},
		},
	})
	res, err := s.handleSetWorkingMemory(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.IsError)

	wm, err := s.wm.Get(ctx, "u1", "default", "sess1")
	require.NoError(t, err)
	require.Len(t, wm.Messages, 1)
	assert.Equal(t, "hello", wm.Messages[0].Content)
	assert.Contains(t, tasks.names(), "ExtractSession")
}

func TestSearchLongTermMemoryFilterOnly(t *testing.T) {
	s, ltm, _ := newTestServer(t)
	ctx := context.Background()
	_, err := ltm.Create(ctx, model.MemoryRecord{
		UserID: "u1", Namespace: "ns", Text: "likes coffee",
		MemoryType: model.MemoryTypeSemantic,
	})
	require.NoError(t, err)

	req := callTool(ctx, map[string]any{"user_id": "u1", "namespace": "ns"})
	res, err := s.handleSearchLongTermMemory(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var resp query.SearchResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &resp))
	assert.Equal(t, 1, resp.Total)
}

func TestMemoryPromptIncludesQueryAsFinalMessage(t *testing.T) {
	s, _, _ := newTestServer(t)
	ctx := context.Background()

	req := callTool(ctx, map[string]any{"user_id": "u1", "query": "what do I like?"})
	res, err := s.handleMemoryPrompt(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var messages []model.MemoryMessage
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &messages))
	require.NotEmpty(t, messages)
	assert.Equal(t, model.RoleUser, messages[len(messages)-1].Role)
	assert.Equal(t, "what do I like?", messages[len(messages)-1].Content)
}
