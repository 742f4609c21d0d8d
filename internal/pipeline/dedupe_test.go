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

func newDedupePipeline() (*Pipeline, *longtermmemory.Store) {
	vectors := memtest.New()
	ltm := longtermmemory.New(vectors)
	p := New(nil, ltm, vectors, &fakeEmbedder{}, nil, nil, nil)
	// The bag-of-words fake embedder produces coarser vectors than a real
	// model, so the distance threshold is widened for these tests; the
	// distance/containment logic under test does not depend on its exact
	// value, only on candidate-vs-hit being considered "near".
	p.dedupDistanceThreshold = 0.5
	return p, ltm
}

func cand(userID, ns, text string) Candidate {
	return Candidate{Record: model.MemoryRecord{UserID: userID, Namespace: ns, Text: text, MemoryType: model.MemoryTypeSemantic}}
}

func TestDedupeBatchExactPhaseDropsIdenticalText(t *testing.T) {
	ctx := context.Background()
	p, ltm := newDedupePipeline()

	existing, err := ltm.Create(ctx, model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: "lives in Austin", MemoryType: model.MemoryTypeSemantic})
	require.NoError(t, err)

	outcomes, err := p.DedupeBatch(ctx, []Candidate{cand("u1", "ns", "lives in Austin")})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Keep)
	assert.Equal(t, existing.ID, outcomes[0].TouchID)
}

func TestDedupeBatchSemanticPhaseSupersedesOnStrictSuperset(t *testing.T) {
	ctx := context.Background()
	p, ltm := newDedupePipeline()

	older, err := ltm.Create(ctx, model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: "likes coffee", MemoryType: model.MemoryTypeSemantic})
	require.NoError(t, err)
	require.NoError(t, ltm.Update(ctx, older.ID, nil, wordVector("likes coffee")))

	outcomes, err := p.DedupeBatch(ctx, []Candidate{cand("u1", "ns", "likes coffee in the morning")})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Keep, "superset candidate should survive and supersede the older record")

	stale, err := ltm.Get(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, outcomes[0].Candidate.Record.ID, stale.SupersededBy)
}

func TestDedupeBatchSemanticPhaseDropsNonSupersetNearDuplicate(t *testing.T) {
	ctx := context.Background()
	p, ltm := newDedupePipeline()

	older, err := ltm.Create(ctx, model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: "likes coffee in the morning", MemoryType: model.MemoryTypeSemantic})
	require.NoError(t, err)
	require.NoError(t, ltm.Update(ctx, older.ID, nil, wordVector("likes coffee in the morning")))

	// A near-duplicate candidate whose words are all contained in the
	// existing record (the existing record is a superset, the candidate
	// is not) should neither win nor supersede: it is dropped and the
	// existing record is touched.
	outcomes, err := p.DedupeBatch(ctx, []Candidate{cand("u1", "ns", "likes coffee")})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Keep)
	assert.Equal(t, older.ID, outcomes[0].TouchID)
}

func TestDedupeBatchKeepsUnrelatedCandidates(t *testing.T) {
	ctx := context.Background()
	p, ltm := newDedupePipeline()

	_, err := ltm.Create(ctx, model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: "lives in Austin Texas", MemoryType: model.MemoryTypeSemantic})
	require.NoError(t, err)

	outcomes, err := p.DedupeBatch(ctx, []Candidate{cand("u1", "ns", "owns a vintage motorcycle")})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Keep)
}

func TestContainsTokensRequiresStrictSuperset(t *testing.T) {
	assert.True(t, containsTokens("likes coffee in the morning", "likes coffee"))
	assert.False(t, containsTokens("likes coffee", "likes coffee in the morning"))
	assert.False(t, containsTokens("likes coffee", "likes coffee"), "identical sets are not a strict superset")
}
