package pipeline

import (
	"errors"
	"fmt"
)

// Pipeline errors.
var (
	// ErrNoInput indicates no input URL was configured.
	ErrNoInput = errors.New("no input configured")

	// ErrAlreadyRunning indicates Run was called on a pipeline that is
	// already pumping.
	ErrAlreadyRunning = errors.New("pipeline already running")

	// ErrNotOpen indicates Run was called before Open succeeded.
	ErrNotOpen = errors.New("pipeline not open")
)

// ConfigurationError represents a configuration combination the pipeline
// cannot build.
type ConfigurationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{
		Field:   field,
		Message: message,
	}
}

// OutputError wraps a failure of one named output.
type OutputError struct {
	Output string
	Err    error
}

// Error implements the error interface.
func (e *OutputError) Error() string {
	return fmt.Sprintf("output %s: %v", e.Output, e.Err)
}

// Unwrap returns the underlying error.
func (e *OutputError) Unwrap() error {
	return e.Err
}
