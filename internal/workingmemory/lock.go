package workingmemory

import (
	"hash/fnv"
	"sync"
)

// stripeCount bounds the number of mutexes in the lock striping table;
// grounded on the teacher's per-(conversation,client) locking pattern in
// PostgresStore.warmEntriesCache/fetchLatestMemoryEntries, which never
// holds a lock across a call into the backing store.
const stripeCount = 256

type stripedLock struct {
	stripes [stripeCount]sync.Mutex
}

func (l *stripedLock) index(key string) uint32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return uint32(h.Sum64() % stripeCount)
}

func (l *stripedLock) Lock(key string)   { l.stripes[l.index(key)].Lock() }
func (l *stripedLock) Unlock(key string) { l.stripes[l.index(key)].Unlock() }
