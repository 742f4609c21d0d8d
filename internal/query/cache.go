package query

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// cacheTTL bounds how long a cached by-id record lookup may be served
// stale before the next lookup re-reads the backing store.
// Short enough that a record superseded mid-window is visible again
// well before any human would notice.
const cacheTTL = 30 * time.Second

// hotCache fronts the Query Service's single-record by-id lookups,
// cutting backing-store load under touch/search fan-out; search result
// pages are not cached. The
// teacher's go.mod requires dgraph-io/ristretto/v2 directly but no file
// in its tree ever imports it; this is the home it was provisioned for.
type hotCache struct {
	cache *ristretto.Cache[string, any]
}

// newHotCache builds a process-local cache sized for a few thousand hot
// keys, per ristretto's own NumCounters ~= 10x-expected-items guidance.
func newHotCache() (*hotCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: 100_000,
		MaxCost:     1 << 26, // 64 MiB
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &hotCache{cache: c}, nil
}

func (h *hotCache) get(key string) (any, bool) {
	if h == nil || h.cache == nil {
		return nil, false
	}
	return h.cache.Get(key)
}

func (h *hotCache) set(key string, value any, cost int64) {
	if h == nil || h.cache == nil {
		return
	}
	h.cache.SetWithTTL(key, value, cost, cacheTTL)
	h.cache.Wait()
}

func (h *hotCache) invalidate(key string) {
	if h == nil || h.cache == nil {
		return
	}
	h.cache.Del(key)
}
