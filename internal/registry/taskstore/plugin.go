// Package taskstore defines the pluggable durable backing store for C6,
// grounded on the teacher's model.Task row shape and the
// CreateTask/ClaimReadyTasks/FailTask/DeleteTask methods of
// internal/plugin/store/postgres/postgres.go, generalized with a
// fingerprint column for at-most-one-in-flight dedup and
// Periodic/Interval fields for schedule_periodic.
package taskstore

import (
	"context"
	"fmt"
	"time"
)

// Task is a single queued unit of background work.
type Task struct {
	ID          string
	TaskName    string // e.g. "ExtractSession", "Compact"
	Fingerprint string // unique while in flight; taskruntime.Fingerprint derives it as sha256(task_name || canonical(args))
	Args        map[string]any

	Periodic bool
	Interval time.Duration // only meaningful when Periodic

	CreatedAt  time.Time
	RetryAt    time.Time
	RetryCount int
	LastError  string
}

// TaskStore is the durable queue backing store contract.
type TaskStore interface {
	// Enqueue inserts a task. If a non-periodic task with the same
	// fingerprint is already pending, Enqueue is a no-op (idempotent,
	// matching the teacher's unique-taskName-violation-as-no-op pattern).
	Enqueue(ctx context.Context, t Task) error
	// SchedulePeriodic registers (or updates the interval of) a recurring
	// task definition; the runtime re-enqueues it each time RetryAt elapses.
	SchedulePeriodic(ctx context.Context, t Task) error
	// ClaimReady atomically claims up to limit tasks whose RetryAt has
	// elapsed, using a SKIP LOCKED-style claim so concurrent runtime
	// instances never double-process a task.
	ClaimReady(ctx context.Context, limit int) ([]Task, error)
	Fail(ctx context.Context, id string, errMsg string, retryDelay time.Duration) error
	Delete(ctx context.Context, id string) error
	// Reschedule pushes a task's retry_at forward by delay without
	// touching retry_count/last_error, used by the runtime after a
	// periodic task succeeds so the next run is spaced by its own
	// interval rather than ClaimReady's generic claim lease window.
	Reschedule(ctx context.Context, id string, delay time.Duration) error
}

// Loader creates a TaskStore from config.
type Loader func(ctx context.Context) (TaskStore, error)

// Plugin represents a task store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a task store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown task store %q; valid: %v", name, Names())
}
