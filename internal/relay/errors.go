package relay

import (
	"errors"
	"strings"
)

var (
	ErrEmptyMessage   = errors.New("relay: message is empty")
	ErrMessageTooLong = errors.New("relay: message exceeds bot network limit")
	ErrLogUnavailable = errors.New("relay: message log is not configured")
)

// ConfigurationError means the process is missing settings it needs; it stays
// fatal for the affected flow until an operator fixes the environment.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "relay: missing configuration: " + strings.Join(e.Missing, ", ")
}

// UpstreamRejected wraps a non-success answer or transport failure from the
// bot network. It is never retried.
type UpstreamRejected struct {
	Details string
	Err     error
}

func (e *UpstreamRejected) Error() string {
	return "relay: upstream rejected: " + e.Details
}

func (e *UpstreamRejected) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err should be answered with a client error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyMessage) || errors.Is(err, ErrMessageTooLong)
}
