package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRetryable(t *testing.T) {
	require.True(t, Retryable(&StoreUnavailableError{Store: "redis", Cause: errors.New("dial tcp")}))
	require.True(t, Retryable(&ProviderFailureError{Provider: "openai", Cause: errors.New("429")}))
	require.False(t, Retryable(&InputInvalidError{Field: "namespace", Message: "empty"}))
	require.False(t, Retryable(&SecurityRejectedError{Reason: "prompt injection"}))
	require.False(t, Retryable(&ConflictError{Message: "stale watermark"}))
}

func TestErrorMessages(t *testing.T) {
	require.Contains(t, (&NotFoundError{Resource: "memory", ID: "abc"}).Error(), "abc")
	require.Contains(t, (&InternalError{Cause: errors.New("boom")}).Error(), "boom")
}
