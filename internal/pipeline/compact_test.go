package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirino/agent-memory-service/internal/longtermmemory"
	"github.com/chirino/agent-memory-service/internal/model"
	"github.com/chirino/agent-memory-service/internal/plugin/vector/memtest"
)

func newCompactPipeline() (*Pipeline, *longtermmemory.Store) {
	vectors := memtest.New()
	ltm := longtermmemory.New(vectors)
	p := New(nil, ltm, vectors, &fakeEmbedder{}, nil, nil, nil)
	p.dedupDistanceThreshold = 0.5
	return p, ltm
}

func createWithVector(t *testing.T, ctx context.Context, ltm *longtermmemory.Store, userID, ns, text string) *model.MemoryRecord {
	t.Helper()
	rec, err := ltm.Create(ctx, model.MemoryRecord{UserID: userID, Namespace: ns, Text: text, MemoryType: model.MemoryTypeSemantic})
	require.NoError(t, err)
	require.NoError(t, ltm.Update(ctx, rec.ID, nil, wordVector(text)))
	got, err := ltm.Get(ctx, rec.ID)
	require.NoError(t, err)
	return got
}

func TestCompactSupersedesCrossSessionNearDuplicate(t *testing.T) {
	ctx := context.Background()
	p, ltm := newCompactPipeline()

	first := createWithVector(t, ctx, ltm, "u1", "ns", "enjoys hiking")
	second := createWithVector(t, ctx, ltm, "u1", "ns", "enjoys hiking in the mountains")

	result, err := p.Compact(ctx, "u1", "ns", time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Superseded)

	stale, err := ltm.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, stale.SupersededBy)
}

func TestCompactLeavesUnrelatedRecordsAlone(t *testing.T) {
	ctx := context.Background()
	p, ltm := newCompactPipeline()

	createWithVector(t, ctx, ltm, "u1", "ns", "enjoys hiking")
	createWithVector(t, ctx, ltm, "u1", "ns", "owns a vintage motorcycle")

	result, err := p.Compact(ctx, "u1", "ns", time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Superseded)
}

func TestCompactSkipsAlreadySupersededRecords(t *testing.T) {
	ctx := context.Background()
	p, ltm := newCompactPipeline()

	a := createWithVector(t, ctx, ltm, "u1", "ns", "enjoys hiking")
	b := createWithVector(t, ctx, ltm, "u1", "ns", "enjoys hiking in the mountains")
	require.NoError(t, ltm.Supersede(ctx, a.ID, b.ID))

	result, err := p.Compact(ctx, "u1", "ns", time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned, "already-superseded record should be excluded from the scan")
	assert.Equal(t, 0, result.Superseded)
}
