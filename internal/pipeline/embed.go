package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sony/gobreaker"

	"github.com/chirino/agent-memory-service/internal/errs"
	"github.com/chirino/agent-memory-service/internal/model"
)

const (
	embedMaxAttempts  = 4
	embedRetryBase    = 500 * time.Millisecond
	embedRetryMaxWait = 30 * time.Second
)

// newEmbedBreaker builds the circuit breaker guarding embedding provider
// calls, adapted from scrypster-memento's internal/llm/circuit_breaker.go
// (same three-state gobreaker.Settings shape) onto the teacher's plain
// charmbracelet/log logging instead of a custom metrics struct.
func newEmbedBreaker(providerName string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embed:" + providerName,
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("pipeline: embed circuit breaker state change", "breaker", name, "from", from, "to", to)
		},
	})
}

// Embed implements §4.5 stage 3: batches an EmbedTexts call behind the
// circuit breaker and a bounded exponential-backoff retry, writes
// vector via update_fields, and — on a provider failure that survives
// retry — marks the record enrichment-failed but retained rather than
// dropping it, per "poisoned record marked with an enrichment-failure
// flag but retained (vectorless records are searchable only by
// filter)".
func (p *Pipeline) Embed(ctx context.Context, records []model.MemoryRecord) error {
	if len(records) == 0 || p.embedder == nil {
		return nil
	}
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}

	var vectors [][]float32
	err := withRetry(ctx, embedMaxAttempts, embedRetryBase, embedRetryMaxWait, func() error {
		result, breakerErr := p.embedBreaker.Execute(func() (any, error) {
			return p.embedder.EmbedTexts(ctx, texts)
		})
		if breakerErr != nil {
			return &errs.ProviderFailureError{Provider: p.embedder.ModelName(), Cause: breakerErr}
		}
		vectors, _ = result.([][]float32)
		return nil
	})

	if err != nil {
		log.Error("pipeline: embed batch failed, marking poisoned", "count", len(records), "err", err)
		for _, r := range records {
			if markErr := p.ltm.Update(ctx, r.ID, map[string]any{"enrichment_failed": true}, nil); markErr != nil {
				log.Error("pipeline: mark enrichment-failed failed", "id", r.ID, "err", markErr)
			}
		}
		return err
	}

	for i, r := range records {
		if i >= len(vectors) {
			continue
		}
		if updErr := p.ltm.Update(ctx, r.ID, nil, vectors[i]); updErr != nil {
			log.Error("pipeline: write embedding failed", "id", r.ID, "err", updErr)
		}
	}
	return nil
}
