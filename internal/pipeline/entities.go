package pipeline

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/chirino/agent-memory-service/internal/model"
	"github.com/chirino/agent-memory-service/internal/pipeline/ner"
)

// ExtractEntities implements §4.5 stage 5: writes entities via
// update_fields, gated by enable_ner.
func (p *Pipeline) ExtractEntities(ctx context.Context, records []model.MemoryRecord) error {
	if !p.enableNER || len(records) == 0 {
		return nil
	}
	for _, r := range records {
		entities := ner.Extract(r.Text)
		if len(entities) == 0 {
			continue
		}
		if err := p.ltm.Update(ctx, r.ID, map[string]any{"entities": entities}, nil); err != nil {
			log.Error("pipeline: write entities failed", "id", r.ID, "err", err)
		}
	}
	return nil
}
