package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/chirino/agent-memory-service/internal/errs"
	"github.com/chirino/agent-memory-service/internal/filter"
	registryvector "github.com/chirino/agent-memory-service/internal/registry/vectorstore"
)

const forgetDefaultBatchLimit = 200

// ForgetResult summarizes one Forget run.
type ForgetResult struct {
	Scanned int
	Deleted int
}

// Forget implements §4.5 stage 9: deletes records in the given
// (user_id, namespace) window whose last_access_at is older than
// forgetting_max_age_days AND access_count < forgetting_min_access.
// Episodic records with a future event_date are exempt (S4). Runs in a
// small batch, logging each deletion for the audit trail per §7's
// "poisoned memory records ... never silently dropped" (this is a
// deliberate, logged delete, not a silent one).
func (p *Pipeline) Forget(ctx context.Context, userID, namespace string, limit int) (ForgetResult, error) {
	if !p.forgettingEnabled {
		return ForgetResult{}, nil
	}
	if limit <= 0 {
		limit = forgetDefaultBatchLimit
	}
	cutoff := time.Now().Add(-p.forgettingMaxAge).UTC().Format(time.RFC3339)

	results, err := p.vectors.Search(ctx, registryvector.SearchRequest{
		UserID:    userID,
		Namespace: namespace,
		Filter:    filter.Expression{"last_access_at": filter.Condition{Lte: cutoff}},
		Limit:     limit,
	})
	if err != nil {
		return ForgetResult{}, &errs.StoreUnavailableError{Store: "vectorstore", Cause: err}
	}

	out := ForgetResult{Scanned: len(results)}
	now := time.Now()
	for _, r := range results {
		rec, err := p.ltm.Get(ctx, r.ID)
		if err != nil {
			continue
		}
		if rec.DeletedAt != nil {
			continue
		}
		if rec.AccessCount >= p.forgettingMinAccess {
			continue
		}
		if rec.EventDate != nil && rec.EventDate.After(now) {
			continue // future-dated episodic record is exempt
		}
		if err := p.ltm.Delete(ctx, rec.ID, "forgetting: age+access threshold exceeded"); err != nil {
			log.Warn("pipeline: forget delete failed", "id", rec.ID, "err", err)
			continue
		}
		log.Info("pipeline: forgot memory record", "id", rec.ID, "user", userID, "namespace", namespace, "access_count", rec.AccessCount)
		out.Deleted++
	}
	return out, nil
}
