package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/chirino/agent-memory-service/internal/taskruntime"
)

// RegisterTaskHandlers wires every task name the pipeline dispatches
// through C6 onto rt: "ExtractSession" (§4.5 stages 1-7, triggered by
// new working-memory messages), "SummarizeSession" (the abstractive
// summary job, triggered by AppendMessages crossing the token
// threshold), and the periodic "Compact"/"Forget" sweeps
// (workingmemory.Store.ensureMaintenanceScheduled). Called once at
// startup alongside the Query Service's own handlers.
func (p *Pipeline) RegisterTaskHandlers(rt *taskruntime.Runtime) {
	rt.RegisterHandler("ExtractSession", p.handleExtractSession)
	rt.RegisterHandler("SummarizeSession", p.handleSummarizeSession)
	rt.RegisterHandler("Compact", p.handleCompact)
	rt.RegisterHandler("Forget", p.handleForget)
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("missing or malformed %q argument", key)
	}
	return v, nil
}

func (p *Pipeline) handleExtractSession(ctx context.Context, args map[string]any) error {
	userID, err := stringArg(args, "user_id")
	if err != nil {
		return err
	}
	namespace, err := stringArg(args, "namespace")
	if err != nil {
		return err
	}
	sessionID, err := stringArg(args, "session_id")
	if err != nil {
		return err
	}
	result, err := p.ExtractFromSession(ctx, userID, namespace, sessionID)
	if err != nil {
		return err
	}
	log.Info("pipeline: extracted session", "userID", userID, "namespace", namespace, "sessionID", sessionID, "persisted", len(result.Persisted))
	return nil
}

func (p *Pipeline) handleSummarizeSession(ctx context.Context, args map[string]any) error {
	userID, err := stringArg(args, "user_id")
	if err != nil {
		return err
	}
	namespace, err := stringArg(args, "namespace")
	if err != nil {
		return err
	}
	sessionID, err := stringArg(args, "session_id")
	if err != nil {
		return err
	}
	return p.SummarizeSession(ctx, userID, namespace, sessionID)
}

// compactLookbackWindow bounds how far back a single Compact run scans
// when the task carries no explicit "since" argument.
const compactLookbackWindow = 24 * time.Hour

func (p *Pipeline) handleCompact(ctx context.Context, args map[string]any) error {
	userID, err := stringArg(args, "user_id")
	if err != nil {
		return err
	}
	namespace, err := stringArg(args, "namespace")
	if err != nil {
		return err
	}
	since := time.Now().Add(-compactLookbackWindow)
	if raw, ok := args["since"].(string); ok && raw != "" {
		if t, parseErr := time.Parse(time.RFC3339, raw); parseErr == nil {
			since = t
		}
	}
	result, err := p.Compact(ctx, userID, namespace, since, 0)
	if err != nil {
		return err
	}
	log.Info("pipeline: compacted namespace", "userID", userID, "namespace", namespace, "scanned", result.Scanned, "superseded", result.Superseded)
	return nil
}

func (p *Pipeline) handleForget(ctx context.Context, args map[string]any) error {
	userID, err := stringArg(args, "user_id")
	if err != nil {
		return err
	}
	namespace, err := stringArg(args, "namespace")
	if err != nil {
		return err
	}
	result, err := p.Forget(ctx, userID, namespace, 0)
	if err != nil {
		return err
	}
	log.Info("pipeline: forgot records", "userID", userID, "namespace", namespace, "scanned", result.Scanned, "deleted", result.Deleted)
	return nil
}
