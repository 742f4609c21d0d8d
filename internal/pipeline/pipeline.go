package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sony/gobreaker"

	"github.com/chirino/agent-memory-service/internal/config"
	"github.com/chirino/agent-memory-service/internal/longtermmemory"
	"github.com/chirino/agent-memory-service/internal/model"
	registryembed "github.com/chirino/agent-memory-service/internal/registry/embed"
	registryllm "github.com/chirino/agent-memory-service/internal/registry/llm"
	registryvector "github.com/chirino/agent-memory-service/internal/registry/vectorstore"
	"github.com/chirino/agent-memory-service/internal/security"
	"github.com/chirino/agent-memory-service/internal/workingmemory"
)

// Pipeline wires the C5 stages together. It holds no per-call state, so
// a single instance is shared by every invocation the task runtime (C6)
// dispatches.
type Pipeline struct {
	wm      *workingmemory.Store
	ltm     *longtermmemory.Store
	vectors registryvector.VectorStore

	embedder     registryembed.Embedder
	embedBreaker *gobreaker.CircuitBreaker
	generator    registryllm.Generator
	validator    *security.Validator

	enableDiscreteExtraction bool
	enableTopicExtraction    bool
	enableNER                bool
	topicModelSource         string
	dedupDistanceThreshold   float64

	forgettingEnabled   bool
	forgettingMaxAge    time.Duration
	forgettingMinAccess int
}

// New builds a Pipeline from its collaborators and config. embedder,
// generator, and validator may be nil: Embed/TagTopics(llm)/Custom
// extraction degrade gracefully (see each stage's nil-guard).
func New(
	wm *workingmemory.Store,
	ltm *longtermmemory.Store,
	vectors registryvector.VectorStore,
	embedder registryembed.Embedder,
	generator registryllm.Generator,
	validator *security.Validator,
	cfg *config.Config,
) *Pipeline {
	p := &Pipeline{
		wm: wm, ltm: ltm, vectors: vectors,
		embedder: embedder, generator: generator, validator: validator,
		dedupDistanceThreshold:   0.1,
		topicModelSource:         "local",
		enableDiscreteExtraction: true,
		enableTopicExtraction:    true,
		enableNER:                true,
	}
	providerName := "none"
	if embedder != nil {
		providerName = embedder.ModelName()
	}
	p.embedBreaker = newEmbedBreaker(providerName)
	if cfg != nil {
		p.dedupDistanceThreshold = cfg.DedupDistanceThreshold
		p.topicModelSource = cfg.TopicModelSource
		p.enableDiscreteExtraction = cfg.EnableDiscreteExtraction
		p.enableTopicExtraction = cfg.EnableTopicExtraction
		p.enableNER = cfg.EnableNER
		p.forgettingEnabled = cfg.ForgettingEnabled
		p.forgettingMaxAge = time.Duration(cfg.ForgettingMaxAgeDays) * 24 * time.Hour
		p.forgettingMinAccess = cfg.ForgettingMinAccess
	}
	return p
}

// ExtractionResult summarizes one ExtractFromSession run, returned so
// the task runtime can log it and tests can assert on it (testable
// property 3, S3).
type ExtractionResult struct {
	SourceIDs []string
	Persisted []model.MemoryRecord
	Watermark string
}

// ExtractFromSession implements §4.5 stages 1-7 end to end for one
// session: read messages above the watermark, extract candidates with
// the session's configured strategy, dedupe, embed, tag, persist, and
// advance the watermark. It is the operation the "ExtractSession" task
// (C6) dispatches, and is safe to re-run: a session whose watermark has
// already advanced past every message in scope and that holds no staged
// memories does no work. Staged memories are promoted even when there
// are no new messages.
func (p *Pipeline) ExtractFromSession(ctx context.Context, userID, namespace, sessionID string) (ExtractionResult, error) {
	wm, err := p.wm.Get(ctx, userID, namespace, sessionID)
	if err != nil {
		return ExtractionResult{}, err
	}
	if wm == nil {
		return ExtractionResult{}, nil
	}

	pending := make([]model.MemoryMessage, 0, len(wm.Messages))
	for _, m := range wm.Messages {
		if m.ID > wm.PromotedThroughID {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 && len(wm.Staged) == 0 {
		return ExtractionResult{Watermark: wm.PromotedThroughID}, nil
	}
	maxID := wm.PromotedThroughID
	if len(pending) > 0 {
		maxID = pending[len(pending)-1].ID
	}

	if wm.Strategy.Name == "discrete" && !p.enableDiscreteExtraction {
		// Discrete extraction is globally disabled; still advance the
		// watermark so these messages are never reconsidered.
		if err := p.AdvanceWatermark(ctx, userID, namespace, sessionID, maxID); err != nil {
			return ExtractionResult{}, err
		}
		return ExtractionResult{SourceIDs: sourceIDs(pending), Watermark: maxID}, nil
	}

	var candidates []Candidate
	if len(pending) > 0 {
		strategy, err := NewStrategy(wm.Strategy, p.validator, p.generator, "")
		if err != nil {
			return ExtractionResult{}, err
		}
		candidates, err = strategy.Extract(ctx, Segment{UserID: userID, Namespace: namespace, SessionID: sessionID, Messages: pending})
		if err != nil {
			return ExtractionResult{}, err
		}
	}

	// Staged memories bypass extraction entirely (§3.3) but still flow
	// through dedupe/embed/persist like any other candidate.
	for _, staged := range wm.Staged {
		staged.UserID, staged.Namespace, staged.SessionID = userID, namespace, sessionID
		candidates = append(candidates, Candidate{Record: staged, DiscreteSourceIDs: staged.DiscreteSourceIDs})
	}

	if len(candidates) == 0 {
		if err := p.AdvanceWatermark(ctx, userID, namespace, sessionID, maxID); err != nil {
			return ExtractionResult{}, err
		}
		return ExtractionResult{SourceIDs: sourceIDs(pending), Watermark: maxID}, nil
	}

	outcomes, err := p.DedupeBatch(ctx, candidates)
	if err != nil {
		return ExtractionResult{}, err
	}

	var toPersist []model.MemoryRecord
	var touchIDs []string
	for _, o := range outcomes {
		if o.Keep {
			rec := o.Candidate.Record
			rec.DiscreteSourceIDs = o.Candidate.DiscreteSourceIDs
			toPersist = append(toPersist, rec)
		} else if o.TouchID != "" {
			touchIDs = append(touchIDs, o.TouchID)
		}
	}

	persisted, err := p.Persist(ctx, toPersist)
	if err != nil {
		return ExtractionResult{}, err
	}

	if err := p.Embed(ctx, persisted); err != nil {
		log.Warn("pipeline: embed stage failed for session", "session", sessionID, "err", err)
	}
	if err := p.TagTopics(ctx, persisted); err != nil {
		log.Warn("pipeline: topic tagging failed for session", "session", sessionID, "err", err)
	}
	if err := p.ExtractEntities(ctx, persisted); err != nil {
		log.Warn("pipeline: entity extraction failed for session", "session", sessionID, "err", err)
	}
	if len(touchIDs) > 0 {
		if err := p.ltm.Touch(ctx, touchIDs); err != nil {
			log.Warn("pipeline: touch failed for session", "session", sessionID, "err", err)
		}
	}

	if err := p.AdvanceWatermark(ctx, userID, namespace, sessionID, maxID); err != nil {
		return ExtractionResult{}, err
	}

	return ExtractionResult{SourceIDs: sourceIDs(pending), Persisted: persisted, Watermark: maxID}, nil
}
