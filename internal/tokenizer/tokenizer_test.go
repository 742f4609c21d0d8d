package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateWordsScalesByWordCount(t *testing.T) {
	assert.Equal(t, 0, EstimateWords(""))
	assert.Equal(t, 3, EstimateWords("one two three"))
}

func TestCountUsesRegisteredCounterWhenPresent(t *testing.T) {
	Register("fixed-model", func(text string) int { return 42 })
	assert.Equal(t, 42, Count("fixed-model", "anything"))
}

func TestCountFallsBackToWordEstimate(t *testing.T) {
	assert.Equal(t, EstimateWords("a b c d"), Count("unregistered-model", "a b c d"))
}
