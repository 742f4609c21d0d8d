package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"github.com/chirino/agent-memory-service/internal/errs"
	"github.com/chirino/agent-memory-service/internal/filter"
	"github.com/chirino/agent-memory-service/internal/model"
	registryvector "github.com/chirino/agent-memory-service/internal/registry/vectorstore"
)

// compactDefaultWindowLimit bounds the number of records one Compact
// call considers, per §4.5 stage 8 "bounded by wall-clock and record
// count per run". The task runtime's per-task wall-clock ceiling (§5)
// provides the wall-clock bound; this provides the count bound.
const compactDefaultWindowLimit = 200

// CompactResult summarizes one Compact run.
type CompactResult struct {
	Scanned    int
	Superseded int
}

// Compact implements §4.5 stage 8: within the (user_id, namespace)
// window given, re-runs the semantic-dedup step across records created
// since `since` to catch cross-session duplicates that DedupeBatch
// never compared directly (they were extracted in different pipeline
// runs). The adapter contract (§4.2) scopes every Search to a single
// user_id, so periodic compaction is scheduled per (user_id, namespace)
// pair observed by the working memory layer rather than as one global
// sweep — see DESIGN.md.
func (p *Pipeline) Compact(ctx context.Context, userID, namespace string, since time.Time, limit int) (CompactResult, error) {
	if limit <= 0 {
		limit = compactDefaultWindowLimit
	}
	results, err := p.vectors.Search(ctx, registryvector.SearchRequest{
		UserID:    userID,
		Namespace: namespace,
		Filter:    filter.Expression{"created_at": filter.Condition{Gte: since.UTC().Format(time.RFC3339)}},
		Limit:     limit,
	})
	if err != nil {
		return CompactResult{}, &errs.StoreUnavailableError{Store: "vectorstore", Cause: err}
	}

	records := make([]*model.MemoryRecord, 0, len(results))
	for _, r := range results {
		rec, err := p.ltm.Get(ctx, r.ID)
		if err != nil || rec.SupersededBy != "" || len(rec.Embedding) == 0 {
			continue
		}
		records = append(records, rec)
	}

	out := CompactResult{Scanned: len(records)}
	for i := 0; i < len(records); i++ {
		a := records[i]
		if a.SupersededBy != "" {
			continue
		}
		for j := i + 1; j < len(records); j++ {
			b := records[j]
			if b.SupersededBy != "" {
				continue
			}
			distance := 1 - cosineSimilarity(a.Embedding, b.Embedding)
			if distance > p.dedupDistanceThreshold {
				continue
			}
			winner, loser := a, b
			if !containsTokens(winner.Text, loser.Text) {
				winner, loser = b, a
				if !containsTokens(winner.Text, loser.Text) {
					continue // neither contains the other; leave both
				}
			}
			if err := p.ltm.Supersede(ctx, loser.ID, winner.ID); err != nil {
				log.Warn("pipeline: compact supersede failed", "loser", loser.ID, "winner", winner.ID, "err", err)
				continue
			}
			loser.SupersededBy = winner.ID
			out.Superseded++
		}
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
