package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when the backend does not pass its
	// readiness probe within the configured timeout.
	ErrNotReady = errors.New("backend not ready")

	// ErrLoginFailed is returned when the backend rejects the session
	// password or the login exchange cannot complete.
	ErrLoginFailed = errors.New("backend login failed")
)

// HealthError represents a failed backend health probe with
// recoverability information for the process supervisor.
type HealthError struct {
	Recoverable bool
	Err         error
}

func (e *HealthError) Error() string {
	return fmt.Sprintf("backend health check failed: %v", e.Err)
}

func (e *HealthError) Unwrap() error {
	return e.Err
}

// IsRecoverable implements the process.RecoverableError interface.
func (e *HealthError) IsRecoverable() bool {
	return e.Recoverable
}
