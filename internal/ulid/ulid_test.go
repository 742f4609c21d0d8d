package ulid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewIsWellFormed(t *testing.T) {
	id := New()
	require.Len(t, id, 26)
	for _, c := range id {
		require.Contains(t, encoding, string(c))
	}
}

func TestMonotonicOrdering(t *testing.T) {
	t0 := time.UnixMilli(1_700_000_000_000)
	t1 := t0.Add(time.Millisecond)
	a := NewAt(t0)
	b := NewAt(t1)
	require.Less(t, a, b)
}

func TestTimestampRoundTrip(t *testing.T) {
	at := time.UnixMilli(1_700_000_123_456)
	id := NewAt(at)
	require.Equal(t, at, Timestamp(id))
}

func TestTimestampInvalid(t *testing.T) {
	require.True(t, Timestamp("too-short").IsZero())
}
