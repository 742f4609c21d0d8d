package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirino/agent-memory-service/internal/model"
)

func TestMemoryPromptOrdersContextTranscriptMemoriesThenQuery(t *testing.T) {
	svc, ltm, _, _ := newTestService(t)
	ctx := context.Background()
	createRecord(t, ltm, "u1", "ns", "likes coffee", []float32{1, 0, 0})

	wm := &model.WorkingMemory{
		UserID: "u1", Namespace: "ns", SessionID: "s1",
		Context:  "session context blob",
		Messages: []model.MemoryMessage{{ID: "m1", Role: model.RoleUser, Content: "hi"}},
	}
	require.NoError(t, svc.wm.Set(ctx, wm, time.Hour))

	messages, err := svc.MemoryPrompt(ctx, PromptRequest{
		UserID: "u1", Namespace: "ns", SessionID: "s1", Query: "what do I drink?",
	})
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, model.RoleSystem, messages[0].Role)
	assert.Equal(t, "session context blob", messages[0].Content)
	assert.Equal(t, "hi", messages[1].Content)
	assert.Equal(t, model.RoleSystem, messages[2].Role)
	assert.Contains(t, messages[2].Content, "Relevant memories:")
	assert.Contains(t, messages[2].Content, "likes coffee")
	assert.Equal(t, model.RoleUser, messages[3].Role)
	assert.Equal(t, "what do I drink?", messages[3].Content)
}

func TestMemoryPromptWithoutSessionSkipsTranscript(t *testing.T) {
	svc, ltm, _, _ := newTestService(t)
	ctx := context.Background()
	createRecord(t, ltm, "u1", "ns", "likes coffee", []float32{1, 0, 0})

	messages, err := svc.MemoryPrompt(ctx, PromptRequest{UserID: "u1", Namespace: "ns", Query: "what do I drink?"})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, model.RoleSystem, messages[0].Role)
	assert.Equal(t, model.RoleUser, messages[1].Role)
}

func TestMemoryPromptWithNoMatchingMemoriesOmitsSystemMessage(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	messages, err := svc.MemoryPrompt(context.Background(), PromptRequest{UserID: "u1", Namespace: "ns", Query: "hello"})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, model.RoleUser, messages[0].Role)
}
