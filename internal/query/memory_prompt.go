package query

import (
	"context"
	"strings"

	"github.com/chirino/agent-memory-service/internal/filter"
	"github.com/chirino/agent-memory-service/internal/model"
)

// PromptRequest is §4.6's memory_prompt(query, session?, filters…) input.
type PromptRequest struct {
	UserID    string
	Namespace string
	Query     string
	SessionID string // optional

	Filter filter.Expression
	Limit  int
}

// MemoryPrompt implements §4.6's ordered message composition: working
// memory context and transcript first (when a session is given), then a
// single "Relevant memories:" system message, then the user query.
func (s *Service) MemoryPrompt(ctx context.Context, req PromptRequest) ([]model.MemoryMessage, error) {
	var messages []model.MemoryMessage

	if req.SessionID != "" {
		wm, err := s.wm.Get(ctx, req.UserID, req.Namespace, req.SessionID)
		if err != nil {
			return nil, err
		}
		if wm != nil {
			if wm.Context != "" {
				messages = append(messages, model.MemoryMessage{Role: model.RoleSystem, Content: wm.Context})
			}
			messages = append(messages, wm.Messages...)
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	result, err := s.Search(ctx, SearchRequest{
		UserID: req.UserID, Namespace: req.Namespace,
		Text: req.Query, Filter: req.Filter, Limit: limit,
	})
	if err != nil {
		return nil, err
	}
	if len(result.Memories) > 0 {
		var b strings.Builder
		b.WriteString("Relevant memories:")
		for _, m := range result.Memories {
			b.WriteString("\n- ")
			b.WriteString(m.Text)
		}
		messages = append(messages, model.MemoryMessage{Role: model.RoleSystem, Content: b.String()})
	}

	messages = append(messages, model.MemoryMessage{Role: model.RoleUser, Content: req.Query})

	// Search already scheduled touch(ids) for the returned memories; no
	// further scheduling needed here.
	return messages, nil
}
