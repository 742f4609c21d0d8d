// Package security implements the hot-reloadable OPA/rego validator that
// gates the custom extraction strategy of §4.5: a caller-supplied prompt
// is rejected, rather than executed against an LLM, if the policy flags
// it as attempting prompt injection, data exfiltration across namespaces,
// or instruction override.
//
// Grounded on internal/episodic/policy.go's PolicyEngine: same
// rego.New/PrepareForEval/hot-reload shape, narrowed to a single query.
package security

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/open-policy-agent/opa/rego"

	"github.com/chirino/agent-memory-service/internal/errs"
)

const defaultPromptPolicy = `
package extraction.prompt

import future.keywords.if
import future.keywords.in

default allow = true

deny contains msg if {
    some phrase in {"ignore previous instructions", "ignore all previous", "system prompt", "you are now"}
    contains(lower(input.prompt), phrase)
    msg := sprintf("prompt contains disallowed phrase %q", [phrase])
}

deny contains msg if {
    contains(lower(input.prompt), "other users")
    msg := "prompt attempts cross-user data access"
}

allow = false if {
    count(deny) > 0
}
`

// Validator evaluates caller-supplied extraction prompts before they are
// ever sent to an LLM provider.
type Validator struct {
	mu     sync.RWMutex
	query  *rego.PreparedEvalQuery
	source string
}

// NewValidator loads the policy from policyDir/prompt.rego, or the
// built-in default if policyDir is empty or the file is absent.
func NewValidator(ctx context.Context, policyDir string) (*Validator, error) {
	v := &Validator{}
	if err := v.load(ctx, policyDir); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Validator) load(ctx context.Context, policyDir string) error {
	src := defaultPromptPolicy
	if policyDir != "" {
		data, err := os.ReadFile(filepath.Join(policyDir, "prompt.rego"))
		if err != nil {
			log.Warn("security: prompt policy file not found, using built-in default", "err", err)
		} else {
			src = string(data)
		}
	}
	pq, err := rego.New(
		rego.Query("data.extraction.prompt.allow"),
		rego.Module("prompt.rego", src),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("security: compile prompt policy: %w", err)
	}
	v.mu.Lock()
	v.query = &pq
	v.source = src
	v.mu.Unlock()
	return nil
}

// Reload hot-swaps the policy from policyDir. Thread-safe.
func (v *Validator) Reload(ctx context.Context, policyDir string) error {
	return v.load(ctx, policyDir)
}

// ValidateCustomPrompt evaluates the prompt against the active policy and
// returns a *errs.SecurityRejectedError when it is disallowed.
func (v *Validator) ValidateCustomPrompt(ctx context.Context, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return &errs.InputInvalidError{Field: "prompt", Message: "must not be empty"}
	}
	v.mu.RLock()
	q := *v.query
	v.mu.RUnlock()

	results, err := q.Eval(ctx, rego.EvalInput(map[string]any{"prompt": prompt}))
	if err != nil {
		return &errs.InternalError{Cause: fmt.Errorf("security: evaluating prompt policy: %w", err)}
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return &errs.SecurityRejectedError{Reason: "prompt policy produced no result"}
	}
	allowed, _ := results[0].Expressions[0].Value.(bool)
	if !allowed {
		return &errs.SecurityRejectedError{Reason: "prompt failed the extraction security policy"}
	}
	return nil
}
