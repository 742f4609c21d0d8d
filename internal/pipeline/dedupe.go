package pipeline

import (
	"context"
	"strings"

	"github.com/chirino/agent-memory-service/internal/errs"
	"github.com/chirino/agent-memory-service/internal/filter"
	"github.com/chirino/agent-memory-service/internal/longtermmemory"
	"github.com/chirino/agent-memory-service/internal/model"
	registryvector "github.com/chirino/agent-memory-service/internal/registry/vectorstore"
	"github.com/chirino/agent-memory-service/internal/ulid"
)

// semanticDedupeTopK is the k in "top-k (k=5) vector search" of §4.5 stage 2.
const semanticDedupeTopK = 5

// DedupeOutcome is what DedupeBatch decided for one candidate.
type DedupeOutcome struct {
	Candidate Candidate
	// Keep is false when the candidate was dropped in favor of an
	// existing record (exact duplicate, or losing the containment test).
	Keep bool
	// TouchID, when non-empty, is the id of an existing record that
	// should receive a background touch because it "won" over a
	// semantically-near candidate that added no new information.
	TouchID string
}

// DedupeBatch implements §4.5 stage 2's two-phase dedup: an exact phase
// (hash lookup) followed by a semantic phase (vector proximity +
// token-set containment) over the surviving candidates. The pipeline's
// embedder embeds the surviving candidates' text in one batch call,
// matching "embed candidates (via stage 3 batched)". With no embedder
// configured the semantic phase is skipped and every survivor is kept.
func (p *Pipeline) DedupeBatch(ctx context.Context, candidates []Candidate) ([]DedupeOutcome, error) {
	// Exact phase.
	var survivors []Candidate
	outcomes := make([]DedupeOutcome, 0, len(candidates))
	for _, c := range candidates {
		if c.Record.ID == "" {
			// Assigned up front (rather than left to Persist's Create) so a
			// winning candidate can be named as the supersede target of an
			// older record in the semantic phase below, before it is ever
			// written to the store.
			c.Record.ID = ulid.New()
		}
		c.Record.Hash = longtermmemory.Hash(&c.Record)
		existing, err := p.findExact(ctx, c.Record.UserID, c.Record.Namespace, c.Record.Hash)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			outcomes = append(outcomes, DedupeOutcome{Candidate: c, Keep: false, TouchID: existing.ID})
			continue
		}
		survivors = append(survivors, c)
	}
	if len(survivors) == 0 {
		return outcomes, nil
	}
	if p.embedder == nil {
		// Without an embedder there is no semantic phase: every exact-phase
		// survivor is kept, vectorless.
		for _, c := range survivors {
			outcomes = append(outcomes, DedupeOutcome{Candidate: c, Keep: true})
		}
		return outcomes, nil
	}

	// Semantic phase: embed survivors in one batch, then search each
	// independently so the containment/supersede decision can use the
	// per-candidate winner rather than a global threshold.
	texts := make([]string, len(survivors))
	for i, c := range survivors {
		texts[i] = c.Record.Text
	}
	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, &errs.ProviderFailureError{Provider: p.embedder.ModelName(), Cause: err}
	}

	for i, c := range survivors {
		c.Record.Embedding = vectors[i]
		hit, distance, err := p.nearestNeighbor(ctx, c.Record.UserID, c.Record.Namespace, vectors[i])
		if err != nil {
			return nil, err
		}
		if hit == nil || distance > p.dedupDistanceThreshold {
			outcomes = append(outcomes, DedupeOutcome{Candidate: c, Keep: true})
			continue
		}
		if containsTokens(c.Record.Text, hit.Text) {
			// Candidate is a strict superset: it supersedes the hit and is kept.
			if err := p.ltm.Supersede(ctx, hit.ID, c.Record.ID); err != nil {
				return nil, err
			}
			outcomes = append(outcomes, DedupeOutcome{Candidate: c, Keep: true})
			continue
		}
		// Candidate adds nothing new; drop it and touch the winner.
		outcomes = append(outcomes, DedupeOutcome{Candidate: c, Keep: false, TouchID: hit.ID})
	}
	return outcomes, nil
}

func (p *Pipeline) findExact(ctx context.Context, userID, namespace, hash string) (*model.MemoryRecord, error) {
	results, err := p.vectors.Search(ctx, registryvector.SearchRequest{
		UserID:    userID,
		Namespace: namespace,
		Filter:    filter.Expression{"hash": filter.Condition{Eq: hash}},
		Limit:     1,
	})
	if err != nil {
		return nil, &errs.StoreUnavailableError{Store: "vectorstore", Cause: err}
	}
	for _, r := range results {
		if supersededBy, _ := r.Metadata["superseded_by"].(string); supersededBy == "" {
			return p.ltm.Get(ctx, r.ID)
		}
	}
	return nil, nil
}

// nearestNeighbor returns the closest non-superseded existing record to
// vector (restricted to the same user/namespace) and its cosine
// distance (1 - similarity), or nil if none exists.
func (p *Pipeline) nearestNeighbor(ctx context.Context, userID, namespace string, vector []float32) (*model.MemoryRecord, float64, error) {
	results, err := p.vectors.Search(ctx, registryvector.SearchRequest{
		UserID:    userID,
		Namespace: namespace,
		Vector:    vector,
		Limit:     semanticDedupeTopK,
	})
	if err != nil {
		return nil, 0, &errs.StoreUnavailableError{Store: "vectorstore", Cause: err}
	}
	for _, r := range results {
		if supersededBy, _ := r.Metadata["superseded_by"].(string); supersededBy != "" {
			continue
		}
		rec, err := p.ltm.Get(ctx, r.ID)
		if err != nil {
			continue
		}
		return rec, 1 - r.Score, nil
	}
	return nil, 0, nil
}

// containsTokens reports whether every distinct lowercase word token in
// other also appears in candidate, i.e. candidate is a token-set
// superset of other — the "strict superset (token-set containment)"
// winner rule of §4.5 stage 2.
func containsTokens(candidate, other string) bool {
	candidateSet := tokenSet(candidate)
	otherSet := tokenSet(other)
	if len(otherSet) == 0 || len(candidateSet) <= len(otherSet) {
		return false
	}
	for tok := range otherSet {
		if !candidateSet[tok] {
			return false
		}
	}
	return true
}

func tokenSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[strings.Trim(w, ".,!?;:\"'")] = true
	}
	return set
}
