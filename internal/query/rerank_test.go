package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecencyIsOneForJustAccessed(t *testing.T) {
	assert.InDelta(t, 1.0, recency(time.Now()), 0.01)
}

func TestRecencyIsZeroForUnset(t *testing.T) {
	assert.Equal(t, 0.0, recency(time.Time{}))
}

func TestRecencyHalvesAtOneHalfLife(t *testing.T) {
	past := time.Now().Add(-recencyHalfLifeDays * 24 * time.Hour)
	assert.InDelta(t, 0.5, recency(past), 0.02)
}

func TestRerankScorePureSimilarityIgnoresRecencyAndAccess(t *testing.T) {
	w := Weights{Alpha: 1, Beta: 0, Gamma: 0}
	old := time.Now().Add(-365 * 24 * time.Hour)
	score := rerankScore(w, 0.7, old, 0)
	assert.InDelta(t, 0.7, score, 1e-9)
}

func TestRerankScoreWeighsRecentAndAccessedHigher(t *testing.T) {
	w := Weights{Alpha: 0.8, Beta: 0.1, Gamma: 0.1}
	fresh := rerankScore(w, 0.5, time.Now(), 10)
	stale := rerankScore(w, 0.5, time.Now().Add(-365*24*time.Hour), 0)
	assert.Greater(t, fresh, stale)
}
