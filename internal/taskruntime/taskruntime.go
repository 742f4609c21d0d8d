// Package taskruntime implements C6: the background task runtime that
// polls a durable registrytaskstore.TaskStore and dispatches claimed
// tasks by name, direct generalization of the teacher's TaskProcessor
// (internal/service/taskprocessor.go) from its single hardcoded task
// type ("vector_store_delete") to the full pipeline stage set named in
// §4.5/§6, fingerprinted for at-most-one-in-flight per §5.
package taskruntime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	registrytaskstore "github.com/chirino/agent-memory-service/internal/registry/taskstore"
)

// Handler executes one task's args and returns nil on success or an
// error to trigger a retry; the runtime retries any error, of whatever
// kind, until the task reaches maxRetries attempts.
type Handler func(ctx context.Context, args map[string]any) error

// Runtime polls store for ready tasks and dispatches them to the
// registered Handler for their TaskName, mirroring TaskProcessor's
// interval/retryDelay/batchSize fields and Start/processBatch shape.
type Runtime struct {
	store      registrytaskstore.TaskStore
	handlers   map[string]Handler
	interval   time.Duration
	retryDelay time.Duration
	batchSize  int
	maxRetries int
}

// New builds a Runtime. interval/retryDelay/batchSize default to the
// teacher's TaskProcessor constants (1m/10m/100) when zero.
func New(store registrytaskstore.TaskStore, interval, retryDelay time.Duration, batchSize, maxRetries int) *Runtime {
	if interval <= 0 {
		interval = time.Minute
	}
	if retryDelay <= 0 {
		retryDelay = 10 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Runtime{
		store:      store,
		handlers:   map[string]Handler{},
		interval:   interval,
		retryDelay: retryDelay,
		batchSize:  batchSize,
		maxRetries: maxRetries,
	}
}

// RegisterHandler wires a Handler for the given task name. Call before Start.
func (r *Runtime) RegisterHandler(taskName string, h Handler) {
	r.handlers[taskName] = h
}

// Fingerprint computes sha256(task_name || canonical(args)) per §5, a
// stable identity used for at-most-one-in-flight Enqueue idempotency.
// Canonicalization is sorted-key JSON so argument map iteration order
// never changes the fingerprint.
func Fingerprint(taskName string, args map[string]any) string {
	h := sha256.New()
	h.Write([]byte(taskName))
	h.Write([]byte{0})
	h.Write([]byte(canonicalJSON(args)))
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalJSON(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]keyValue, len(keys))
	for i, k := range keys {
		ordered[i] = keyValue{Key: k, Value: args[k]}
	}
	b, err := json.Marshal(ordered)
	if err != nil {
		return ""
	}
	return string(b)
}

type keyValue struct {
	Key   string `json:"k"`
	Value any    `json:"v"`
}

// Enqueue inserts a one-shot task, deriving its fingerprint from name+args.
func (r *Runtime) Enqueue(ctx context.Context, taskName string, args map[string]any) error {
	return r.store.Enqueue(ctx, registrytaskstore.Task{
		TaskName:    taskName,
		Fingerprint: Fingerprint(taskName, args),
		Args:        args,
	})
}

// SchedulePeriodic registers a recurring task per §6's schedule_periodic.
func (r *Runtime) SchedulePeriodic(ctx context.Context, taskName string, args map[string]any, interval time.Duration) error {
	return r.store.SchedulePeriodic(ctx, registrytaskstore.Task{
		TaskName:    taskName,
		Fingerprint: Fingerprint(taskName, args),
		Args:        args,
		Periodic:    true,
		Interval:    interval,
	})
}

// Start begins the periodic poll loop. Returns when ctx is cancelled,
// exactly matching TaskProcessor.Start's shape.
func (r *Runtime) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch claims up to batchSize ready tasks and dispatches each to
// its registered handler, exported so tests and a one-shot CLI command
// can drive exactly one poll cycle without running the ticker loop.
func (r *Runtime) ProcessBatch(ctx context.Context) {
	tasks, err := r.store.ClaimReady(ctx, r.batchSize)
	if err != nil {
		log.Error("taskruntime: claim ready failed", "err", err)
		recordClaimError()
		return
	}
	for _, task := range tasks {
		r.runOne(ctx, task)
	}
}

func (r *Runtime) runOne(ctx context.Context, task registrytaskstore.Task) {
	start := time.Now()
	h, ok := r.handlers[task.TaskName]
	if !ok {
		log.Error("taskruntime: no handler registered", "taskName", task.TaskName, "id", task.ID)
		recordTaskResult(task.TaskName, "unknown")
		if err := r.store.Fail(ctx, task.ID, "no handler registered for task name", r.retryDelay); err != nil {
			log.Error("taskruntime: fail task record failed", "id", task.ID, "err", err)
		}
		return
	}

	err := h(ctx, task.Args)
	recordTaskDuration(task.TaskName, time.Since(start).Seconds())

	if err != nil {
		log.Error("taskruntime: task failed", "id", task.ID, "taskName", task.TaskName, "attempt", task.RetryCount, "err", err)
		recordTaskResult(task.TaskName, "failure")
		if task.RetryCount+1 >= r.maxRetries {
			log.Error("taskruntime: task exhausted retries, dropping", "id", task.ID, "taskName", task.TaskName)
			recordTaskResult(task.TaskName, "exhausted")
			if dErr := r.store.Delete(ctx, task.ID); dErr != nil {
				log.Error("taskruntime: delete exhausted task failed", "id", task.ID, "err", dErr)
			}
			return
		}
		if fErr := r.store.Fail(ctx, task.ID, err.Error(), r.retryDelay); fErr != nil {
			log.Error("taskruntime: fail task record failed", "id", task.ID, "err", fErr)
		}
		return
	}

	recordTaskResult(task.TaskName, "success")
	if task.Periodic {
		// Periodic tasks are never deleted. ClaimReady already bumped
		// retry_at forward by its generic claim-lease window; Reschedule
		// re-arms it to the task's own interval so the next run is spaced
		// correctly instead of inheriting the claim lease's duration.
		interval := task.Interval
		if interval <= 0 {
			interval = r.interval
		}
		if err := r.store.Reschedule(ctx, task.ID, interval); err != nil {
			log.Error("taskruntime: reschedule periodic task failed", "id", task.ID, "err", err)
		}
		return
	}
	if dErr := r.store.Delete(ctx, task.ID); dErr != nil {
		log.Error("taskruntime: delete completed task failed", "id", task.ID, "err", dErr)
	}
}
