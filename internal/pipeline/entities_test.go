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

func TestExtractEntitiesWritesDetectedEntities(t *testing.T) {
	ctx := context.Background()
	vectors := memtest.New()
	ltm := longtermmemory.New(vectors)
	p := New(nil, ltm, vectors, &fakeEmbedder{}, nil, nil, nil)

	rec, err := ltm.Create(ctx, model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: "Met with Sarah Chen about the Austin office", MemoryType: model.MemoryTypeSemantic})
	require.NoError(t, err)

	require.NoError(t, p.ExtractEntities(ctx, []model.MemoryRecord{*rec}))

	got, err := ltm.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Contains(t, got.Entities, "Sarah Chen")
}

func TestExtractEntitiesSkippedWhenNERDisabled(t *testing.T) {
	ctx := context.Background()
	vectors := memtest.New()
	ltm := longtermmemory.New(vectors)
	p := New(nil, ltm, vectors, &fakeEmbedder{}, nil, nil, nil)
	p.enableNER = false

	rec, err := ltm.Create(ctx, model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: "Met with Sarah Chen about the Austin office", MemoryType: model.MemoryTypeSemantic})
	require.NoError(t, err)

	require.NoError(t, p.ExtractEntities(ctx, []model.MemoryRecord{*rec}))

	got, err := ltm.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Entities)
}
