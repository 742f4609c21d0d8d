package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/chirino/agent-memory-service/internal/model"
)

// fixedTaxonomy is the closed vocabulary both topic classifiers
// (topic_model_source=llm and the local keyword classifier, topicsLocal
// below) are constrained to, resolving Open Question §9 "custom topic
// taxonomy" per DESIGN.md, so tagged topics stay filterable without
// drift.
var fixedTaxonomy = []string{
	"preferences", "pets", "food", "travel", "work", "family", "health",
	"finance", "technology", "entertainment", "relationships", "hobbies",
	"education", "housing", "shopping",
}

// topicKeywords backs the "local" topic_model_source: a small
// keyword-gazetteer classifier, grounded on the same closed-vocabulary
// shape as the llm path but requiring no provider round trip — the
// teacher's config names topic_model_source: llm|local explicitly (§6),
// and every local-mode deployment needs a real implementation, not just
// a stub.
var topicKeywords = map[string][]string{
	"preferences":   {"prefer", "like", "favorite", "love", "hate", "dislike"},
	"pets":          {"dog", "cat", "pet", "puppy", "kitten"},
	"food":          {"food", "eat", "restaurant", "recipe", "cuisine", "tea", "coffee"},
	"travel":        {"travel", "trip", "flight", "vacation", "visit", "country"},
	"work":          {"work", "job", "career", "office", "project", "meeting"},
	"family":        {"family", "mother", "father", "sister", "brother", "son", "daughter"},
	"health":        {"health", "doctor", "exercise", "diet", "sleep"},
	"finance":       {"money", "budget", "invest", "bank", "salary"},
	"technology":    {"computer", "software", "app", "phone", "code", "programming"},
	"entertainment": {"movie", "show", "music", "game", "book"},
	"relationships": {"friend", "partner", "relationship", "spouse"},
	"hobbies":       {"hobby", "hiking", "painting", "reading", "gardening"},
	"education":     {"school", "university", "course", "study", "learn"},
	"housing":       {"house", "apartment", "rent", "home", "move"},
	"shopping":      {"buy", "shopping", "purchase", "store"},
}

// TagTopics implements §4.5 stage 4: writes topics via update_fields,
// switching on config.TopicModelSource exactly as §6 names it
// ("llm"|"local").
func (p *Pipeline) TagTopics(ctx context.Context, records []model.MemoryRecord) error {
	if !p.enableTopicExtraction || len(records) == 0 {
		return nil
	}
	for _, r := range records {
		var topics []string
		var err error
		if p.topicModelSource == "llm" && p.generator != nil {
			topics, err = p.generator.Classify(ctx, r.Text, fixedTaxonomy)
			if err != nil {
				log.Warn("pipeline: llm topic classification failed, falling back to local", "id", r.ID, "err", err)
				topics = topicsLocal(r.Text)
			}
		} else {
			topics = topicsLocal(r.Text)
		}
		if len(topics) == 0 {
			continue
		}
		if err := p.ltm.Update(ctx, r.ID, map[string]any{"topics": topics}, nil); err != nil {
			log.Error("pipeline: write topics failed", "id", r.ID, "err", err)
		}
	}
	return nil
}

// topicsLocal runs the keyword-gazetteer classifier, matching whichever
// of fixedTaxonomy's labels has at least one keyword hit. It is
// open-vocabulary only in the sense that a deployment can add entries to
// topicKeywords; the labels it returns stay within fixedTaxonomy, so
// "accept open-vocabulary topics, exact-string match" (DESIGN.md's Open
// Question resolution) is about what the *filter* layer accepts, not a
// promise that this particular classifier invents new labels.
func topicsLocal(text string) []string {
	lower := strings.ToLower(text)
	var hits []string
	for _, topic := range fixedTaxonomy {
		for _, kw := range topicKeywords[topic] {
			if strings.Contains(lower, kw) {
				hits = append(hits, topic)
				break
			}
		}
	}
	sort.Strings(hits)
	return hits
}
