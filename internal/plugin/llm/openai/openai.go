// Package openai implements the llm.Generator contract against the
// OpenAI chat completions endpoint, grounded on the same HTTP client
// shape as internal/plugin/embed/openai: a bare net/http client, no SDK,
// matching the teacher's preference for hand-rolled thin REST clients
// over provider SDKs. Classify is implemented as a constrained Generate
// call asking the model to pick from the given taxonomy and parsing a
// JSON array back out, since chat completion is the only primitive this
// backend offers.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/chirino/agent-memory-service/internal/config"
	registryllm "github.com/chirino/agent-memory-service/internal/registry/llm"
)

func init() {
	registryllm.Register(registryllm.Plugin{Name: "openai", Loader: load})
}

func load(ctx context.Context) (registryllm.Generator, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai generator: AGENT_MEMORY_OPENAI_API_KEY is required")
	}
	return &Generator{
		apiKey:    cfg.OpenAIAPIKey,
		baseURL:   strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		fastModel: cfg.GenerationModelFast,
		slowModel: cfg.GenerationModelSlow,
	}, nil
}

// Generator calls the OpenAI chat completions API.
type Generator struct {
	apiKey    string
	baseURL   string
	fastModel string
	slowModel string
}

func (g *Generator) Name() string { return "openai" }

func (g *Generator) modelFor(tier string) string {
	if tier == "slow" {
		return g.slowModel
	}
	return g.fastModel
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Generator) Generate(ctx context.Context, modelTier, prompt string) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model:    g.modelFor(modelTier),
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai generate request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openai generate: read response: %w", err)
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("openai generate: parse response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("openai generate error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai generate: empty choices")
	}
	return result.Choices[0].Message.Content, nil
}

func (g *Generator) Classify(ctx context.Context, text string, taxonomy []string) ([]string, error) {
	prompt := fmt.Sprintf(
		"Given the text below, return a JSON array containing only the labels from %v that apply. Return [] if none apply.\n\nText: %s",
		taxonomy, text,
	)
	raw, err := g.Generate(ctx, "fast", prompt)
	if err != nil {
		return nil, err
	}
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("openai classify: response did not contain a JSON array")
	}
	var labels []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &labels); err != nil {
		return nil, fmt.Errorf("openai classify: parse labels: %w", err)
	}
	allowed := make(map[string]bool, len(taxonomy))
	for _, t := range taxonomy {
		allowed[t] = true
	}
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if allowed[l] {
			out = append(out, l)
		}
	}
	return out, nil
}

var _ registryllm.Generator = (*Generator)(nil)
