package query

import (
	"context"
	"fmt"

	"github.com/chirino/agent-memory-service/internal/taskruntime"
)

// RegisterTaskHandlers wires the Query Service's own background task
// ("TouchRecords", the batched touch(ids) of §4.6 step 5) onto rt. Called
// once at startup alongside the pipeline's handlers.
func (s *Service) RegisterTaskHandlers(rt *taskruntime.Runtime) {
	rt.RegisterHandler("TouchRecords", s.handleTouchRecords)
}

func (s *Service) handleTouchRecords(ctx context.Context, args map[string]any) error {
	raw, ok := args["ids"].([]any)
	if !ok {
		if ids, ok := args["ids"].([]string); ok {
			return s.ltm.Touch(ctx, ids)
		}
		return fmt.Errorf("touch_records: missing or malformed ids argument")
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return s.ltm.Touch(ctx, ids)
}
