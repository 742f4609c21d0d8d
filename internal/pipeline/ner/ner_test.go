package ner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractFindsProperNounsEmailsAndHandles(t *testing.T) {
	text := "My friend Maria Gomez emailed me at maria.gomez@example.com and mentioned @maria_g on the trip to San Francisco."
	got := Extract(text)
	assert.Contains(t, got, "Maria Gomez")
	assert.Contains(t, got, "maria.gomez@example.com")
	assert.Contains(t, got, "@maria_g")
	assert.Contains(t, got, "San Francisco")
}

func TestExtractSkipsCommonSentenceStarters(t *testing.T) {
	got := Extract("I went to the store. The clerk was friendly.")
	assert.NotContains(t, got, "I")
	assert.NotContains(t, got, "The")
}

func TestExtractDeduplicates(t *testing.T) {
	got := Extract("Austin is great. I love Austin in the fall.")
	count := 0
	for _, e := range got {
		if e == "Austin" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestExtractReturnsEmptyForPlainText(t *testing.T) {
	got := Extract("it was a quiet afternoon")
	assert.Empty(t, got)
}
