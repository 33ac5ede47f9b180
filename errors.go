package registryfs

import (
	"errors"
	"fmt"

	"oras.land/oras-go/v2/errdef"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when the probe connection fails or a blob
	// fetch exhausts its retries.
	ErrNotFound = fmt.Errorf("registryfs: blob %w", errdef.ErrNotFound)

	// ErrTimeout is returned when an operation's deadline is exhausted
	// during resolution or fetch.
	ErrTimeout = errors.New("registryfs: deadline exceeded")

	// ErrAuthDenied is returned when the registry rejects the configured
	// credentials, either at the token endpoint or with 401/403 on the
	// blob itself after retries.
	ErrAuthDenied = errors.New("registryfs: authorization denied")

	// ErrNotImplemented is returned by every mutating filesystem
	// operation; the filesystem is read-only.
	ErrNotImplemented = fmt.Errorf("registryfs: mutating operation %w", errdef.ErrUnsupported)

	// ErrNoEndpoint is returned by path-based operations on a filesystem
	// constructed without WithEndpoint.
	ErrNoEndpoint = errors.New("registryfs: no registry endpoint configured")
)

// StatusError reports a non-2xx response to a blob fetch. The resolved
// URL information for the blob has been invalidated by the time the
// error is returned, so the next attempt re-resolves from scratch.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("registryfs: fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// deadlineErr maps a context deadline failure onto ErrTimeout while
// keeping the context error visible to errors.Is.
func deadlineErr(err error) error {
	return fmt.Errorf("%w: %w", ErrTimeout, err)
}
