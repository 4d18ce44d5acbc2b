package schedule

import (
	"errors"
	"fmt"
)

// ErrEmptyTable is returned when a table is built without keyframes.
var ErrEmptyTable = errors.New("keyframe table is empty")

// ConfigurationError describes a schedule misconfiguration detected at startup.
// It is fatal: the control loop must not start when one is returned.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("schedule configuration: %s: %v", e.Reason, e.Err)
	}
	return "schedule configuration: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configErrorf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}
