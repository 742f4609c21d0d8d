// Package ner implements the lightweight named-entity recognizer SPEC_FULL.md
// names for §4.5 stage 5 ("ExtractEntities"): a regex/gazetteer
// extractor rather than a statistical model, since no NER library or
// model appears anywhere in the example pack. It recognizes
// capitalized multi-word spans (proper nouns) and a small set of
// structural patterns (emails, handles) that a real conversational
// agent's memories routinely contain.
package ner

import "regexp"

var (
	properNounRe = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s[A-Z][a-z]+){0,2})\b`)
	emailRe      = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	handleRe     = regexp.MustCompile(`@[A-Za-z0-9_]{2,}`)
)

// commonSentenceStarters are capitalized words NER should not treat as
// entities purely because they begin a sentence.
var commonSentenceStarters = map[string]bool{
	"I": true, "The": true, "A": true, "An": true, "My": true, "Our": true,
	"This": true, "That": true, "It": true, "He": true, "She": true, "They": true,
	"We": true, "You": true,
}

// Extract returns the deduplicated set of entity strings found in text.
func Extract(text string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	for _, m := range emailRe.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range handleRe.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range properNounRe.FindAllString(text, -1) {
		if commonSentenceStarters[m] {
			continue
		}
		add(m)
	}
	return out
}
