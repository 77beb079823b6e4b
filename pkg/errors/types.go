package errors

import (
	"fmt"
)

var (
	// ErrRateLimited is returned by remote sources when the remote asked us
	// to slow down. It is always safe to retry.
	ErrRateLimited = New("rate limit exceeded")

	// ErrQuotaExceeded is returned when the remote refuses to serve more
	// content for now. The entry is skipped until a later run.
	ErrQuotaExceeded = New("download quota exceeded")

	// ErrUnsupportedKind is returned for entries that have no byte stream and
	// no known export format.
	ErrUnsupportedKind = New("unsupported content kind")
)

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}
