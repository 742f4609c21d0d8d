package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReshapeFactsPlainJSONArray(t *testing.T) {
	out, err := reshapeFacts(`["fact one", "fact two"]`, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"fact one", "fact two"}, out)
}

func TestReshapeFactsStripsSurroundingProse(t *testing.T) {
	out, err := reshapeFacts("Sure, here are the facts:\n[\"fact one\", \"fact two\"]\nHope that helps!", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"fact one", "fact two"}, out)
}

func TestReshapeFactsAppliesJQFilterToNestedObject(t *testing.T) {
	out, err := reshapeFacts(`{"facts": ["fact one", "fact two"], "confidence": 0.9}`, ".facts")
	require.NoError(t, err)
	assert.Equal(t, []string{"fact one", "fact two"}, out)
}

func TestReshapeFactsRejectsNonArrayResult(t *testing.T) {
	_, err := reshapeFacts(`{"confidence": 0.9}`, ".confidence")
	assert.Error(t, err)
}

func TestReshapeFactsErrorsOnNoJSON(t *testing.T) {
	_, err := reshapeFacts("no json here at all", "")
	assert.Error(t, err)
}
