package pipeline

import "context"

// AdvanceWatermark implements §4.5 stage 7: records that promotion has
// completed through maxSourceID for the given session, so a retried
// ExtractFromSession whose watermark has already advanced becomes a
// no-op (§4.5 "Ordering & idempotence").
func (p *Pipeline) AdvanceWatermark(ctx context.Context, userID, namespace, sessionID, maxSourceID string) error {
	if maxSourceID == "" {
		return nil
	}
	return p.wm.AdvanceWatermark(ctx, userID, namespace, sessionID, maxSourceID)
}
