// Package query implements the Query Service of §4.6: Search and
// MemoryPrompt compose registryvector.VectorStore, longtermmemory.Store,
// and workingmemory.Store into the two read-side operations the rest of
// the system is built to feed. Grounded on the teacher's
// internal/service/search_service.go for the embed-then-filter-then-
// rerank shape, generalized from its fixed similarity ordering to the
// configurable alpha/beta/gamma re-rank of rerank.go.
package query

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/time/rate"

	"github.com/chirino/agent-memory-service/internal/config"
	"github.com/chirino/agent-memory-service/internal/errs"
	"github.com/chirino/agent-memory-service/internal/filter"
	"github.com/chirino/agent-memory-service/internal/longtermmemory"
	"github.com/chirino/agent-memory-service/internal/model"
	registryembed "github.com/chirino/agent-memory-service/internal/registry/embed"
	registryllm "github.com/chirino/agent-memory-service/internal/registry/llm"
	registryvector "github.com/chirino/agent-memory-service/internal/registry/vectorstore"
	"github.com/chirino/agent-memory-service/internal/taskruntime"
	"github.com/chirino/agent-memory-service/internal/workingmemory"
)

// maxSearchCandidates is the N = limit+offset cap of §4.6 step 2.
const maxSearchCandidates = 200

// Service is the Query Service. tasks may be nil (touch scheduling
// becomes a no-op, used by tests that don't exercise C6); embedder and
// generator may be nil. With no embedder, filter-only search still works
// but a search with Text is rejected with InputInvalid; with no
// generator, optimize_query leaves the query unoptimized.
type Service struct {
	ltm     *longtermmemory.Store
	wm      *workingmemory.Store
	vectors registryvector.VectorStore
	tasks   *taskruntime.Runtime

	embedder  registryembed.Embedder
	generator registryllm.Generator
	llmLimit  *rate.Limiter

	weights Weights
	cache   *hotCache
}

// New builds a Service. cfg may be nil, in which case DefaultWeights apply.
func New(
	ltm *longtermmemory.Store,
	wm *workingmemory.Store,
	vectors registryvector.VectorStore,
	tasks *taskruntime.Runtime,
	embedder registryembed.Embedder,
	generator registryllm.Generator,
	cfg *config.Config,
) *Service {
	s := &Service{
		ltm: ltm, wm: wm, vectors: vectors, tasks: tasks,
		embedder: embedder, generator: generator,
		weights: DefaultWeights,
	}
	limitPerSecond := rate.Limit(20)
	if cfg != nil {
		s.weights = Weights{Alpha: cfg.RerankAlpha, Beta: cfg.RerankBeta, Gamma: cfg.RerankGamma}
		if cfg.LLMRateLimitPerSecond > 0 {
			limitPerSecond = rate.Limit(cfg.LLMRateLimitPerSecond)
		}
	}
	s.llmLimit = rate.NewLimiter(limitPerSecond, 1)
	if cache, err := newHotCache(); err == nil {
		s.cache = cache
	}
	return s
}

// SearchRequest is §4.6's search(query) input.
type SearchRequest struct {
	UserID    string
	Namespace string
	Text      string
	Filter    filter.Expression

	DistanceThreshold float64 // 0 means unset/no threshold
	Limit             int
	Offset            int

	OptimizeQuery bool
}

// SearchResponse is §4.6 step 6's {total, memories[limit], next_offset?}.
type SearchResponse struct {
	Total      int
	Memories   []model.MemoryRecord
	NextOffset *int
}

// Search implements §4.6 steps 1-6.
func (s *Service) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	if req.Limit <= 0 {
		return SearchResponse{}, &errs.InputInvalidError{Field: "limit", Message: "must be positive"}
	}

	candidateN := req.Limit + req.Offset
	if candidateN > maxSearchCandidates {
		candidateN = maxSearchCandidates
	}

	queryText := req.Text
	if req.OptimizeQuery && queryText != "" && s.generator != nil {
		if opt, err := s.optimizeQuery(ctx, queryText); err == nil {
			queryText = opt
		}
	}

	var vector []float32
	if queryText != "" {
		if s.embedder == nil {
			return SearchResponse{}, &errs.InputInvalidError{Field: "text", Message: "no embedder configured for text search"}
		}
		vecs, err := s.embedder.EmbedTexts(ctx, []string{queryText})
		if err != nil {
			return SearchResponse{}, &errs.ProviderFailureError{Provider: s.embedder.ModelName(), Cause: err}
		}
		vector = vecs[0]
	}

	results, err := s.vectors.Search(ctx, registryvector.SearchRequest{
		UserID: req.UserID, Namespace: req.Namespace,
		Vector: vector, Filter: req.Filter, Limit: candidateN,
	})
	if err != nil {
		return SearchResponse{}, &errs.StoreUnavailableError{Store: "vectorstore", Cause: err}
	}

	type scored struct {
		rec   model.MemoryRecord
		score float64
	}
	var live []scored
	for _, r := range results {
		rec, err := s.getRecord(ctx, r.ID)
		if err != nil {
			continue
		}
		// §4.6 step 3: exclude superseded records and never-persisted
		// records, two independent exclusions, plus tombstoned ones.
		if rec.SupersededBy != "" || rec.PersistedAt == nil {
			continue
		}
		if rec.DeletedAt != nil {
			continue
		}
		if rec.EnrichmentFailed && vector != nil {
			continue
		}
		if req.DistanceThreshold > 0 && (1-r.Score) > req.DistanceThreshold {
			continue
		}
		sc := rerankScore(s.weights, r.Score, rec.LastAccessAt, rec.AccessCount)
		live = append(live, scored{rec: *rec, score: sc})
	}

	sort.SliceStable(live, func(i, j int) bool { return live[i].score > live[j].score })

	total := len(live)
	start := req.Offset
	if start > total {
		start = total
	}
	end := start + req.Limit
	if end > total {
		end = total
	}

	page := make([]model.MemoryRecord, 0, end-start)
	ids := make([]string, 0, end-start)
	for _, sc := range live[start:end] {
		page = append(page, sc.rec)
		ids = append(ids, sc.rec.ID)
	}

	s.scheduleTouch(ctx, ids)

	resp := SearchResponse{Total: total, Memories: page}
	if end < total {
		next := end
		resp.NextOffset = &next
	}
	return resp, nil
}

// getRecord reads through the hot cache before hitting the vector store,
// since the same ids are re-read on every overlapping search/touch
// fan-out.
func (s *Service) getRecord(ctx context.Context, id string) (*model.MemoryRecord, error) {
	if cached, ok := s.cache.get(id); ok {
		rec, _ := cached.(model.MemoryRecord)
		return &rec, nil
	}
	rec, err := s.ltm.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.set(id, *rec, 1)
	return rec, nil
}

// scheduleTouch enqueues a batched touch(ids) through C6, never calling
// longtermmemory.Touch synchronously, per testable property 7.
func (s *Service) scheduleTouch(ctx context.Context, ids []string) {
	if s.tasks == nil || len(ids) == 0 {
		return
	}
	if err := s.tasks.Enqueue(ctx, "TouchRecords", map[string]any{"ids": ids}); err != nil {
		return
	}
	for _, id := range ids {
		s.cache.invalidate(id)
	}
}

// optimizeQuery rewrites text via the fast LLM tier with a bounded
// prompt, rate-limited per provider per §5. Falls back to the original
// text on limiter/provider failure rather than blocking the search.
func (s *Service) optimizeQuery(ctx context.Context, text string) (string, error) {
	if err := s.llmLimit.Wait(ctx); err != nil {
		return text, err
	}
	prompt := fmt.Sprintf(
		"Rewrite the following search query into a short, vector-search-friendly phrase. "+
			"Keep only the key entities and intent, drop filler words. Return only the rewritten phrase.\n\nQuery: %s",
		text,
	)
	return s.generator.Generate(ctx, "fast", prompt)
}
