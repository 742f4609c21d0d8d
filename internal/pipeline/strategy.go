// Package pipeline implements C5: the enrichment and promotion pipeline
// that turns WorkingMemory messages into searchable MemoryRecords.
//
// Grounded on the teacher's background-worker trio
// (internal/service/episodic_indexer.go, internal/service/indexer.go,
// internal/service/episodic_ttl.go), generalized from "index this row"
// to the full extract -> dedupe -> embed -> tag -> persist -> watermark
// chain named in §4.5. Each stage is its own file and is safely
// re-runnable; Pipeline (pipeline.go) composes them into the operations
// the task runtime (C6) dispatches by task name.
package pipeline

import (
	"context"
	"strings"

	"github.com/chirino/agent-memory-service/internal/errs"
	"github.com/chirino/agent-memory-service/internal/model"
	"github.com/chirino/agent-memory-service/internal/security"
	"github.com/chirino/agent-memory-service/internal/ulid"
)

// Candidate is a not-yet-persisted MemoryRecord produced by an
// ExtractStrategy, with its source messages recorded for provenance.
type Candidate struct {
	Record            model.MemoryRecord
	DiscreteSourceIDs []string
}

// ExtractStrategy is the closed sum type of Design Note §9:
// {Discrete, Summary, Preferences, Custom{Prompt}}, represented as a Go
// interface with four implementations rather than a tagged union, since
// Go has no sum types.
type ExtractStrategy interface {
	Name() string
	Extract(ctx context.Context, seg Segment) ([]Candidate, error)
}

// Segment is the slice of WorkingMemory messages above the watermark
// that one ExtractFromSession run considers, plus the identity fields
// every candidate it produces must carry.
type Segment struct {
	UserID    string
	Namespace string
	SessionID string
	Messages  []model.MemoryMessage
}

func sourceIDs(msgs []model.MemoryMessage) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

func transcript(msgs []model.MemoryMessage) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

// DiscreteStrategy produces one atomic semantic fact/preference record
// per message that looks like a standalone statement (non-trivial,
// non-question content), matching §4.5 stage 1's "atomic facts/
// preferences" description without requiring an LLM round trip: the
// extraction rule is sentence-level segmentation of user and assistant
// content, filtering out short utterances and questions.
type DiscreteStrategy struct{}

func (DiscreteStrategy) Name() string { return "discrete" }

func (DiscreteStrategy) Extract(_ context.Context, seg Segment) ([]Candidate, error) {
	var out []Candidate
	for _, m := range seg.Messages {
		if m.Role != model.RoleUser && m.Role != model.RoleAssistant {
			continue
		}
		for _, sentence := range splitSentences(m.Content) {
			sentence = strings.TrimSpace(sentence)
			if !isDiscreteFact(sentence) {
				continue
			}
			out = append(out, Candidate{
				Record: model.MemoryRecord{
					UserID:     seg.UserID,
					Namespace:  seg.Namespace,
					SessionID:  seg.SessionID,
					Text:       sentence,
					MemoryType: model.MemoryTypeSemantic,
				},
				DiscreteSourceIDs: []string{m.ID},
			})
		}
	}
	return out, nil
}

// SummaryStrategy produces exactly one episodic record summarizing the
// whole segment, per §4.5 stage 1's "summary" strategy. The summary text
// itself is a deterministic transcript of every turn in the segment
// ("role: content" lines); it calls no generator. Abstractive,
// generator-written summaries are the job of the SummarizeSession task,
// not this strategy.
type SummaryStrategy struct{}

func (SummaryStrategy) Name() string { return "summary" }

func (SummaryStrategy) Extract(_ context.Context, seg Segment) ([]Candidate, error) {
	if len(seg.Messages) == 0 {
		return nil, nil
	}
	text := strings.TrimSpace(transcript(seg.Messages))
	if text == "" {
		return nil, nil
	}
	eventDate := seg.Messages[len(seg.Messages)-1].CreatedAt
	return []Candidate{{
		Record: model.MemoryRecord{
			UserID:     seg.UserID,
			Namespace:  seg.Namespace,
			SessionID:  seg.SessionID,
			Text:       text,
			MemoryType: model.MemoryTypeEpisodic,
			EventDate:  &eventDate,
		},
		DiscreteSourceIDs: sourceIDs(seg.Messages),
	}}, nil
}

// PreferencesStrategy restricts extraction to first-person statements
// about the user's traits/preferences, per §4.5's "preferences"
// strategy: a lexical filter (first-person pronoun + preference verb)
// over the same sentence segmentation DiscreteStrategy uses.
type PreferencesStrategy struct{}

func (PreferencesStrategy) Name() string { return "preferences" }

var preferenceVerbs = []string{"like", "likes", "love", "loves", "prefer", "prefers", "hate", "hates", "enjoy", "enjoys", "dislike", "dislikes", "want", "wants", "need", "needs"}

func isPreferenceSentence(s string) bool {
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "i ") && !strings.Contains(lower, " i ") {
		return false
	}
	for _, v := range preferenceVerbs {
		if strings.Contains(lower, " "+v+" ") || strings.HasPrefix(lower, v+" ") {
			return true
		}
	}
	return false
}

func (PreferencesStrategy) Extract(_ context.Context, seg Segment) ([]Candidate, error) {
	var out []Candidate
	for _, m := range seg.Messages {
		if m.Role != model.RoleUser {
			continue
		}
		for _, sentence := range splitSentences(m.Content) {
			sentence = strings.TrimSpace(sentence)
			if !isPreferenceSentence(sentence) {
				continue
			}
			out = append(out, Candidate{
				Record: model.MemoryRecord{
					UserID:     seg.UserID,
					Namespace:  seg.Namespace,
					SessionID:  seg.SessionID,
					Text:       sentence,
					MemoryType: model.MemoryTypeSemantic,
				},
				DiscreteSourceIDs: []string{m.ID},
			})
		}
	}
	return out, nil
}

// CustomStrategy runs a strategy-provided prompt through a Generator,
// after the prompt clears the security validator (§4.5 stage 1, §7
// SecurityRejected). The generator's raw text response is reshaped into
// candidates by an optional bounded jq filter (see reshape.go) before it
// becomes MemoryRecords, matching the "custom" extraction strategy of
// Design Note §9.
type CustomStrategy struct {
	Prompt    string
	Validator *security.Validator
	Generator Generator
	// JQFilter, if non-empty, reshapes the generator's JSON array
	// response before each element becomes a candidate text.
	JQFilter string
}

// Generator is the narrow subset of registryllm.Generator CustomStrategy
// needs, declared locally so this package does not import the registry
// (the caller wires a concrete registryllm.Generator in).
type Generator interface {
	Generate(ctx context.Context, modelTier, prompt string) (string, error)
}

func (CustomStrategy) Name() string { return "custom" }

func (c CustomStrategy) Extract(ctx context.Context, seg Segment) ([]Candidate, error) {
	if c.Validator != nil {
		if err := c.Validator.ValidateCustomPrompt(ctx, c.Prompt); err != nil {
			return nil, err
		}
	}
	if c.Generator == nil {
		return nil, &errs.InputInvalidError{Field: "strategy", Message: "custom strategy requires a generator"}
	}
	fullPrompt := c.Prompt + "\n\nConversation:\n" + transcript(seg.Messages) +
		"\n\nRespond with a JSON array of short fact strings, nothing else."
	raw, err := c.Generator.Generate(ctx, "slow", fullPrompt)
	if err != nil {
		return nil, &errs.ProviderFailureError{Provider: "llm", Cause: err}
	}

	texts, err := reshapeFacts(raw, c.JQFilter)
	if err != nil {
		return nil, &errs.InternalError{Cause: err}
	}
	out := make([]Candidate, 0, len(texts))
	ids := sourceIDs(seg.Messages)
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, Candidate{
			Record: model.MemoryRecord{
				UserID:     seg.UserID,
				Namespace:  seg.Namespace,
				SessionID:  seg.SessionID,
				Text:       t,
				MemoryType: model.MemoryTypeSemantic,
			},
			DiscreteSourceIDs: ids,
		})
	}
	return out, nil
}

// NewStrategy resolves a model.MemoryStrategy descriptor into the
// concrete ExtractStrategy, per Design Note §9's closed-set-plus-custom
// shape.
func NewStrategy(s model.MemoryStrategy, validator *security.Validator, gen Generator, jqFilter string) (ExtractStrategy, error) {
	switch s.Name {
	case "", "discrete":
		return DiscreteStrategy{}, nil
	case "summary":
		return SummaryStrategy{}, nil
	case "preferences":
		return PreferencesStrategy{}, nil
	case "custom":
		if strings.TrimSpace(s.Prompt) == "" {
			return nil, &errs.InputInvalidError{Field: "strategy.prompt", Message: "custom strategy requires a prompt"}
		}
		return CustomStrategy{Prompt: s.Prompt, Validator: validator, Generator: gen, JQFilter: jqFilter}, nil
	default:
		return nil, &errs.InputInvalidError{Field: "strategy.name", Message: "unknown extraction strategy " + s.Name}
	}
}

// splitSentences is a deterministic, punctuation-based sentence
// splitter. It intentionally doesn't handle abbreviations or decimals
// specially — the pipeline only needs candidate boundaries, not
// linguistically perfect sentences.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder
	for _, r := range text {
		cur.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(cur.String()); s != "" {
				sentences = append(sentences, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// minDiscreteFactWords is the shortest sentence DiscreteStrategy treats
// as a fact candidate rather than chatter ("ok", "thanks").
const minDiscreteFactWords = 3

func isDiscreteFact(sentence string) bool {
	trimmed := strings.TrimRight(sentence, ".!?")
	if strings.HasSuffix(sentence, "?") {
		return false
	}
	words := strings.Fields(trimmed)
	return len(words) >= minDiscreteFactWords
}
