// Package ulid generates the lexicographically sortable identifiers used
// for MemoryMessage and MemoryRecord ids: a 48-bit millisecond timestamp
// followed by 80 bits of randomness, Crockford base32 encoded into a
// fixed 26-character string. No ULID library appears anywhere in the
// example pack, so this is hand-rolled on the standard library rather
// than borrowed.
package ulid

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

const encoding = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// New returns a new ULID string for the current time.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a new ULID string for the given time, with fresh random
// entropy. Exposed for deterministic tests that need to control ordering.
func NewAt(t time.Time) string {
	var entropy [10]byte
	if _, err := rand.Read(entropy[:]); err != nil {
		panic(fmt.Sprintf("ulid: reading entropy: %v", err))
	}
	ms := uint64(t.UnixMilli())

	var sb strings.Builder
	sb.Grow(26)
	// Timestamp: 48 bits as 10 base32 characters (5 bits each = 50 bits;
	// the top 2 bits are always zero).
	for i := 9; i >= 0; i-- {
		shift := uint(i * 5)
		sb.WriteByte(encoding[(ms>>shift)&0x1F])
	}
	// Entropy: 80 bits as 16 base32 characters, processed 5 bits at a time
	// across the byte boundary.
	var acc uint32
	accBits := 0
	for _, b := range entropy {
		acc = acc<<8 | uint32(b)
		accBits += 8
		for accBits >= 5 {
			accBits -= 5
			sb.WriteByte(encoding[(acc>>uint(accBits))&0x1F])
		}
	}
	if accBits > 0 {
		sb.WriteByte(encoding[(acc<<uint(5-accBits))&0x1F])
	}
	return sb.String()
}

// Timestamp extracts the embedded millisecond timestamp from a ULID
// string produced by this package. Returns the zero time if id is not a
// well-formed ULID.
func Timestamp(id string) time.Time {
	if len(id) != 26 {
		return time.Time{}
	}
	var ms uint64
	for i := 0; i < 10; i++ {
		idx := strings.IndexByte(encoding, id[i])
		if idx < 0 {
			return time.Time{}
		}
		ms = ms<<5 | uint64(idx)
	}
	return time.UnixMilli(int64(ms))
}
