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

func newForgetPipeline(t *testing.T, maxAge time.Duration, minAccess int) (*Pipeline, *longtermmemory.Store) {
	t.Helper()
	vectors := memtest.New()
	ltm := longtermmemory.New(vectors)
	p := New(nil, ltm, vectors, &fakeEmbedder{}, nil, nil, nil)
	p.forgettingEnabled = true
	p.forgettingMaxAge = maxAge
	p.forgettingMinAccess = minAccess
	return p, ltm
}

func createStaleRecord(t *testing.T, ctx context.Context, ltm *longtermmemory.Store, text string, lastAccess time.Time, accessCount int, eventDate *time.Time) *model.MemoryRecord {
	t.Helper()
	rec, err := ltm.Create(ctx, model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: text, MemoryType: model.MemoryTypeSemantic, EventDate: eventDate})
	require.NoError(t, err)
	require.NoError(t, ltm.Update(ctx, rec.ID, map[string]any{
		"last_access_at": lastAccess.UTC().Format(time.RFC3339),
		"access_count":   accessCount,
	}, nil))
	return rec
}

func TestForgetDeletesStaleLowAccessRecord(t *testing.T) {
	ctx := context.Background()
	p, ltm := newForgetPipeline(t, 30*24*time.Hour, 3)

	rec := createStaleRecord(t, ctx, ltm, "forgettable fact", time.Now().Add(-60*24*time.Hour), 1, nil)

	result, err := p.Forget(ctx, "u1", "ns", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)

	got, err := ltm.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.DeletedAt)
}

func TestForgetSparesRecordWithSufficientAccessCount(t *testing.T) {
	ctx := context.Background()
	p, ltm := newForgetPipeline(t, 30*24*time.Hour, 3)

	rec := createStaleRecord(t, ctx, ltm, "well used fact", time.Now().Add(-60*24*time.Hour), 10, nil)

	result, err := p.Forget(ctx, "u1", "ns", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Deleted)

	got, err := ltm.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DeletedAt)
}

func TestForgetSparesFutureDatedEpisodicRecord(t *testing.T) {
	ctx := context.Background()
	p, ltm := newForgetPipeline(t, 30*24*time.Hour, 3)

	future := time.Now().Add(365 * 24 * time.Hour)
	rec := createStaleRecord(t, ctx, ltm, "planned trip reminder", time.Now().Add(-60*24*time.Hour), 0, &future)

	result, err := p.Forget(ctx, "u1", "ns", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Deleted, "a future event_date exempts the record regardless of staleness")

	got, err := ltm.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DeletedAt)
}

func TestForgetIsNoOpWhenDisabled(t *testing.T) {
	ctx := context.Background()
	p, ltm := newForgetPipeline(t, 30*24*time.Hour, 3)
	p.forgettingEnabled = false

	createStaleRecord(t, ctx, ltm, "forgettable fact", time.Now().Add(-60*24*time.Hour), 0, nil)

	result, err := p.Forget(ctx, "u1", "ns", 0)
	require.NoError(t, err)
	assert.Equal(t, ForgetResult{}, result)
}
