package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirino/agent-memory-service/internal/longtermmemory"
	"github.com/chirino/agent-memory-service/internal/model"
	"github.com/chirino/agent-memory-service/internal/plugin/vector/memtest"
)

func TestEmbedWritesVectorForEachRecord(t *testing.T) {
	ctx := context.Background()
	vectors := memtest.New()
	ltm := longtermmemory.New(vectors)
	p := New(nil, ltm, vectors, &fakeEmbedder{}, nil, nil, nil)

	rec, err := ltm.Create(ctx, model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: "plays the cello", MemoryType: model.MemoryTypeSemantic})
	require.NoError(t, err)

	require.NoError(t, p.Embed(ctx, []model.MemoryRecord{*rec}))

	got, err := ltm.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, got.Embedding)
	assert.False(t, got.EnrichmentFailed)
}

func TestEmbedMarksRecordEnrichmentFailedWhenProviderExhaustsRetries(t *testing.T) {
	ctx := context.Background()
	vectors := memtest.New()
	ltm := longtermmemory.New(vectors)
	embedder := &alwaysFailEmbedder{}
	p := New(nil, ltm, vectors, embedder, nil, nil, nil)

	rec, err := ltm.Create(ctx, model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: "plays the cello", MemoryType: model.MemoryTypeSemantic})
	require.NoError(t, err)

	err = p.Embed(ctx, []model.MemoryRecord{*rec})
	assert.Error(t, err)

	got, getErr := ltm.Get(ctx, rec.ID)
	require.NoError(t, getErr)
	assert.True(t, got.EnrichmentFailed, "record must be retained, not dropped, on exhausted embed retries")
	assert.Empty(t, got.Embedding)
}

func TestEmbedNoOpOnEmptyInput(t *testing.T) {
	ctx := context.Background()
	vectors := memtest.New()
	ltm := longtermmemory.New(vectors)
	p := New(nil, ltm, vectors, &fakeEmbedder{}, nil, nil, nil)
	assert.NoError(t, p.Embed(ctx, nil))
}

type alwaysFailEmbedder struct{ calls int }

func (e *alwaysFailEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	return nil, assertErr("provider unreachable")
}
func (e *alwaysFailEmbedder) ModelName() string { return "always-fail" }
func (e *alwaysFailEmbedder) Dimension() int    { return 8 }
