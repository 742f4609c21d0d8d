package longtermmemory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chirino/agent-memory-service/internal/model"
)

func TestHashIsCaseAndWhitespaceInsensitive(t *testing.T) {
	a := &model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: "Likes Coffee"}
	b := &model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: "  likes coffee  "}
	assert.Equal(t, Hash(a), Hash(b))
}

func TestHashDiffersByNamespace(t *testing.T) {
	a := &model.MemoryRecord{UserID: "u1", Namespace: "ns1", Text: "likes coffee"}
	b := &model.MemoryRecord{UserID: "u1", Namespace: "ns2", Text: "likes coffee"}
	assert.NotEqual(t, Hash(a), Hash(b))
}

func TestHashDiffersByMemoryType(t *testing.T) {
	a := &model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: "t", MemoryType: model.MemoryTypeSemantic}
	b := &model.MemoryRecord{UserID: "u1", Namespace: "ns", Text: "t", MemoryType: model.MemoryTypeEpisodic}
	assert.NotEqual(t, Hash(a), Hash(b))
}
