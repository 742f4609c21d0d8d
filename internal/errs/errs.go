// Package errs implements the error taxonomy used across the memory
// service: every store, provider, and pipeline stage returns one of
// these typed errors rather than a bare fmt.Errorf, so callers at the
// Query Service and background task boundaries can dispatch on kind.
package errs

import "fmt"

// InputInvalidError indicates the caller supplied malformed or
// out-of-contract input. Never retried.
type InputInvalidError struct {
	Field   string
	Message string
}

func (e *InputInvalidError) Error() string {
	return fmt.Sprintf("invalid input (%s): %s", e.Field, e.Message)
}

// NotFoundError indicates the referenced resource does not exist, or the
// caller lacks visibility into it.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConflictError indicates a write lost a race (stale supersede target,
// duplicate unique key, watermark moved backwards).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// StoreUnavailableError indicates a backing store (vector store, working
// memory store, task store) could not be reached. Safe to retry.
type StoreUnavailableError struct {
	Store string
	Cause error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store %s unavailable: %v", e.Store, e.Cause)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Cause }

// ProviderFailureError indicates an embedding/generation provider call
// failed. Safe to retry with backoff; see internal/pipeline/retry.go.
type ProviderFailureError struct {
	Provider string
	Cause    error
}

func (e *ProviderFailureError) Error() string {
	return fmt.Sprintf("provider %s failed: %v", e.Provider, e.Cause)
}

func (e *ProviderFailureError) Unwrap() error { return e.Cause }

// SecurityRejectedError indicates a custom extraction strategy or prompt
// failed the security validator. Never retried.
type SecurityRejectedError struct {
	Reason string
}

func (e *SecurityRejectedError) Error() string {
	return fmt.Sprintf("rejected by security validator: %s", e.Reason)
}

// DeadlineExceededError indicates a caller-supplied deadline or the
// per-task wall-clock ceiling elapsed before completion.
type DeadlineExceededError struct {
	Operation string
}

func (e *DeadlineExceededError) Error() string {
	return fmt.Sprintf("deadline exceeded: %s", e.Operation)
}

// InternalError wraps any unexpected failure that does not fit the other
// categories. Logged with full detail, reported to callers without it.
type InternalError struct {
	Cause error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: %v", e.Cause)
}

func (e *InternalError) Unwrap() error { return e.Cause }

// Retryable reports whether err is transient under the §7 propagation
// policy: StoreUnavailable, ProviderFailure and DeadlineExceeded are,
// everything else is not. The pipeline's withRetry loop retries only
// errors for which this returns true.
func Retryable(err error) bool {
	switch err.(type) {
	case *StoreUnavailableError, *ProviderFailureError, *DeadlineExceededError:
		return true
	default:
		return false
	}
}
