package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork marks a transport failure for one attempt.
	ErrNetwork = errors.New("network error")
	// ErrRenderTimeout marks a rendered fetch whose ready marker never appeared.
	ErrRenderTimeout = errors.New("render timeout")
	// ErrNotFound is returned by artifact stores for unknown keys.
	ErrNotFound = errors.New("artifact not found")
	// ErrArtifactWrite wraps persistence failures surfaced to the run's caller.
	ErrArtifactWrite = errors.New("artifact write failed")
)

// FailureReason is the machine-readable cause of a failed run.
type FailureReason string

const (
	ReasonSourceExhausted FailureReason = "source_exhausted"
	ReasonNoValidEntries  FailureReason = "no_valid_entries"
	ReasonSchemaMismatch  FailureReason = "schema_mismatch"
)

// ConfigurationError reports a source definition that cannot be resolved.
type ConfigurationError struct {
	Source string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: source %s: %s", e.Source, e.Reason)
}

// NewConfigurationError builds a ConfigurationError with a formatted reason.
func NewConfigurationError(source, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Source: source, Reason: fmt.Sprintf(format, args...)}
}
