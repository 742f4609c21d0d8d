package longtermmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirino/agent-memory-service/internal/model"
	"github.com/chirino/agent-memory-service/internal/plugin/vector/memtest"
)

func newStore() *Store {
	return New(memtest.New())
}

// S1 (§8): create followed by create with the same hash yields exactly
// one persisted record with the original id.
func TestCreateIdempotentByHash(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	r1, err := store.Create(ctx, model.MemoryRecord{
		UserID: "u1", Namespace: "ns", Text: "user likes coffee", MemoryType: model.MemoryTypeSemantic,
	})
	require.NoError(t, err)
	require.NotEmpty(t, r1.ID)
	require.NotNil(t, r1.PersistedAt)

	r2, err := store.Create(ctx, model.MemoryRecord{
		UserID: "u1", Namespace: "ns", Text: "  User Likes Coffee  ", MemoryType: model.MemoryTypeSemantic,
	})
	require.NoError(t, err)
	assert.Equal(t, r1.ID, r2.ID)
}

func TestCreateDistinctTextProducesDistinctRecords(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	r1, err := store.Create(ctx, model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: "likes coffee", MemoryType: model.MemoryTypeSemantic})
	require.NoError(t, err)
	r2, err := store.Create(ctx, model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: "likes tea", MemoryType: model.MemoryTypeSemantic})
	require.NoError(t, err)
	assert.NotEqual(t, r1.ID, r2.ID)
}

func TestUpdateRejectsImmutableField(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	r, err := store.Create(ctx, model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: "fact", MemoryType: model.MemoryTypeSemantic})
	require.NoError(t, err)

	err = store.Update(ctx, r.ID, map[string]any{"text": "changed"}, nil)
	assert.Error(t, err)
}

func TestUpdateAllowsEnrichmentFields(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	r, err := store.Create(ctx, model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: "fact", MemoryType: model.MemoryTypeSemantic})
	require.NoError(t, err)

	err = store.Update(ctx, r.ID, map[string]any{"topics": []string{"billing"}}, []float32{0.1, 0.2})
	require.NoError(t, err)

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"billing"}, got.Topics)
}

func TestSupersedeSetsPointer(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	old, err := store.Create(ctx, model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: "short form", MemoryType: model.MemoryTypeSemantic})
	require.NoError(t, err)
	newer, err := store.Create(ctx, model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: "long form with detail", MemoryType: model.MemoryTypeSemantic})
	require.NoError(t, err)

	require.NoError(t, store.Supersede(ctx, old.ID, newer.ID))

	got, err := store.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.SupersededBy)
}

func TestSupersedeRejectsSelfReference(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	r, err := store.Create(ctx, model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: "fact", MemoryType: model.MemoryTypeSemantic})
	require.NoError(t, err)

	err = store.Supersede(ctx, r.ID, r.ID)
	assert.Error(t, err)
}

func TestTouchIncrementsAccessCount(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	r, err := store.Create(ctx, model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: "fact", MemoryType: model.MemoryTypeSemantic})
	require.NoError(t, err)

	require.NoError(t, store.Touch(ctx, []string{r.ID}))
	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AccessCount)
}
