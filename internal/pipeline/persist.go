package pipeline

import (
	"context"

	"github.com/chirino/agent-memory-service/internal/model"
)

// Persist implements §4.5 stage 6: calls longtermmemory.Create, which
// itself short-circuits on exact dedup (invariant 2, idempotent by
// hash). Returns the persisted (or pre-existing) records in the same
// order as the input.
func (p *Pipeline) Persist(ctx context.Context, candidates []model.MemoryRecord) ([]model.MemoryRecord, error) {
	out := make([]model.MemoryRecord, 0, len(candidates))
	for _, c := range candidates {
		rec, err := p.ltm.Create(ctx, c)
		if err != nil {
			return out, err
		}
		out = append(out, *rec)
	}
	return out, nil
}
