package control

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by Step before Init has succeeded.
var ErrNotInitialized = errors.New("control loop not initialized")

// ActuationError is a failed push to one device. It never stops a tick; the
// other devices are still pushed.
type ActuationError struct {
	Device string
	Err    error
}

func (e *ActuationError) Error() string {
	return fmt.Sprintf("actuate device %s: %v", e.Device, e.Err)
}

func (e *ActuationError) Unwrap() error {
	return e.Err
}
