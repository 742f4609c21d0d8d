package longtermmemory

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/chirino/agent-memory-service/internal/model"
)

const hashFieldSep = "\x1f"

// Hash computes the deterministic content+identity hash that dedup and
// idempotent create rely on:
//
//	sha256(lowercase_trim(text) || 0x1F || user_id || 0x1F || namespace ||
//	       0x1F || session_id || 0x1F || memory_type || 0x1F || event_date_iso_or_empty)
func Hash(r *model.MemoryRecord) string {
	text := strings.ToLower(strings.TrimSpace(r.Text))
	eventDate := ""
	if r.EventDate != nil {
		eventDate = r.EventDate.UTC().Format("2006-01-02")
	}
	parts := []string{text, r.UserID, r.Namespace, r.SessionID, string(r.MemoryType), eventDate}
	sum := sha256.Sum256([]byte(strings.Join(parts, hashFieldSep)))
	return hex.EncodeToString(sum[:])
}
