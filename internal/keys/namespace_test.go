package keys

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	encoded, err := Encode("users", "alice", "projects")
	require.NoError(t, err)
	segments, err := DecodeNamespace(encoded)
	require.NoError(t, err)
	require.Equal(t, []string{"users", "alice", "projects"}, segments)
}

func TestEncodeRejectsEmptySegment(t *testing.T) {
	_, err := Encode("users", "")
	require.Error(t, err)
}

func TestEncodeRejectsDepthOverflow(t *testing.T) {
	segs := make([]string, MaxNamespaceDepth+1)
	for i := range segs {
		segs[i] = "x"
	}
	_, err := Encode(segs...)
	require.Error(t, err)
}

func TestNamespaceHasPrefixDoesNotFalsePositiveOnSegmentBoundary(t *testing.T) {
	users, err := Encode("users", "alice")
	require.NoError(t, err)
	aliced, err := Encode("users", "aliced")
	require.NoError(t, err)
	require.False(t, NamespaceHasPrefix(aliced, users))
	require.True(t, NamespaceHasPrefix(users, users))
}

func TestFlatKeyBuilders(t *testing.T) {
	ns, _ := Encode("users", "alice")
	require.Equal(t, "wm:u1:"+ns+":s1", WorkingMemoryKey("u1", ns, "s1"))
	require.Equal(t, "ltm:r1", LongTermMemoryKey("r1"))
}
