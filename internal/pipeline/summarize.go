package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// SummarizeSession is the job the "SummarizeSession" task (C6) dispatches
// once a session's estimated token count crosses
// config.SummarizationTokenThreshold (internal/workingmemory/store.go's
// AppendMessages trigger). Unlike SummaryStrategy's deterministic
// concatenation, this produces the richer abstractive summary
// strategy.go's doc comment defers to this task, then folds it into the
// session's Context blob so MemoryPrompt picks it up as working-memory
// context on the next call.
//
// Falls back to a deterministic transcript excerpt when no generator is
// configured, so the task still does useful work in local-only deployments.
func (p *Pipeline) SummarizeSession(ctx context.Context, userID, namespace, sessionID string) error {
	wm, err := p.wm.Get(ctx, userID, namespace, sessionID)
	if err != nil {
		return err
	}
	if wm == nil || len(wm.Messages) == 0 {
		return nil
	}

	summarizeCtx, cancel := context.WithTimeout(ctx, summarizationTimeout)
	defer cancel()

	text := transcript(wm.Messages)
	summary, err := p.summarizeText(summarizeCtx, text)
	if err != nil {
		log.Error("pipeline: session summarization failed, falling back to excerpt", "userID", userID, "namespace", namespace, "sessionID", sessionID, "err", err)
		summary = fallbackSummary(text)
	}

	wm.Context = summary
	return p.wm.Set(ctx, wm, 0)
}

func (p *Pipeline) summarizeText(ctx context.Context, transcriptText string) (string, error) {
	if p.generator == nil {
		return fallbackSummary(transcriptText), nil
	}
	prompt := fmt.Sprintf(`Summarize the following conversation transcript into a short paragraph
capturing the topics discussed and any decisions made. Respond with only
the summary, no preamble.

Transcript:
%s`, transcriptText)
	return p.generator.Generate(ctx, "slow", prompt)
}

// fallbackSummary keeps the most recent lines of the transcript, bounded
// so an unconfigured generator still yields a usable context blob rather
// than the entire (possibly huge) transcript.
func fallbackSummary(transcriptText string) string {
	lines := strings.Split(strings.TrimSpace(transcriptText), "\n")
	const maxLines = 20
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n")
}

// summarizationTimeout bounds how long a single SummarizeSession run may
// take before the task runtime's own retry/backoff takes over.
const summarizationTimeout = 30 * time.Second
