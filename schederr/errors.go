// Package schederr defines the error taxonomy for schedcore: configuration
// failures, invariant violations, and divergence outcomes.
//
// Configuration errors are returned to the caller of Init. Invariant
// violations are not returned at all -- per the scheduler's contract, the
// loop-facing API is void at every schedule point, so a miscoded
// collaborator is surfaced by aborting the process rather than by a value
// the hot path would have to check.
package schederr

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is.
var (
	// ErrUnknownBackend is returned by Init when the requested backend name
	// has not been registered.
	ErrUnknownBackend = errors.New("schedcore: unknown backend")

	// ErrScheduleMissing is returned by Init when REPLAY mode is requested
	// but the schedule file does not exist. Other failures to open it are
	// returned as the underlying error inside a ConfigError.
	ErrScheduleMissing = errors.New("schedcore: schedule file missing")

	// ErrMalformedLog is returned by the loader when a schedule file fails
	// structural validation.
	ErrMalformedLog = errors.New("schedcore: malformed schedule log")

	// ErrRoleTaken is returned by RegisterThread when a second LOOPER
	// thread attempts to register.
	ErrRoleTaken = errors.New("schedcore: role already registered")

	// ErrDivergenceFatal is the diagnostic raised (via panic, see
	// InvariantViolation) when replay diverges before the configured
	// minimum prefix has been consumed.
	ErrDivergenceFatal = errors.New("schedcore: replay diverged below threshold")

	// ErrSPPUninitialised is the cause carried by the InvariantViolation
	// panic raised when an SPP's magic sentinel does not match the
	// initialised value.
	ErrSPPUninitialised = errors.New("schedcore: schedule-point payload not initialised")
)

// ConfigError wraps a configuration-time failure: unknown backend, missing
// schedule file, malformed log. Always fatal to Init.
type ConfigError struct {
	Op    string
	Cause error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("schedcore: config error during %s: %v", e.Op, e.Cause)
}

// Unwrap exposes the underlying sentinel for errors.Is/errors.As.
func (e *ConfigError) Unwrap() error { return e.Cause }

// NewConfigError builds a ConfigError for the given operation.
func NewConfigError(op string, cause error) *ConfigError {
	return &ConfigError{Op: op, Cause: cause}
}

// InvariantViolation represents a miscoded collaborator: an SPP with a bad
// magic sentinel, a schedule-point reached from the wrong thread role, an
// AFTER_EXEC_CB with no matching BEFORE_EXEC_CB. Per §7 of the
// specification these abort the process -- recovering from them would mask
// a bug in the calling event loop, not in schedcore itself.
type InvariantViolation struct {
	Point string
	Cause error
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("schedcore: invariant violated at %s: %v", e.Point, e.Cause)
}

func (e *InvariantViolation) Unwrap() error { return e.Cause }

// Abort panics with an InvariantViolation. It never returns. Call sites in
// the façade use it instead of returning an error, matching the spec's
// "errors at schedule points are never reported via a return value" design.
func Abort(point string, cause error) {
	panic(&InvariantViolation{Point: point, Cause: cause})
}
