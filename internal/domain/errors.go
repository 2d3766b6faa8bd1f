package domain

import (
	"errors"
	"fmt"
)

// Taxonomy: ordinary task errors are transient (counted, task continues)
// until the consecutive-failure threshold turns them persistent (task
// disabled). A CriticalError skips the ladder and forces a full reset.
var (
	ErrAuthentication = errors.New("command authentication failed")
	ErrMalformed      = errors.New("malformed command")
	ErrNotArmed       = errors.New("destructive command not armed")
	ErrUnknownCommand = errors.New("unknown command id")
	ErrUnknownTask    = errors.New("unknown task")
)

// Severity is the fault monitor's classification of one task invocation.
type Severity int

const (
	// SeverityNone: completed normally, consecutive-failure counter reset.
	SeverityNone Severity = iota
	// SeverityTransient: counted, the task stays scheduled.
	SeverityTransient
	// SeverityPersistent: threshold crossed, the task is disabled.
	SeverityPersistent
	// SeverityCritical: a full system reset has been requested.
	SeverityCritical
)

// CriticalError marks a failure the fault monitor must answer with a
// system reset rather than the per-task degradation ladder.
type CriticalError struct {
	Code FaultCode
	Err  error
}

func (e *CriticalError) Error() string {
	return fmt.Sprintf("critical (%s): %v", e.Code, e.Err)
}

func (e *CriticalError) Unwrap() error { return e.Err }

// Critical wraps err as a reset-forcing failure with the given fault code.
func Critical(code FaultCode, err error) error {
	return &CriticalError{Code: code, Err: err}
}

// AsCritical reports whether err is (or wraps) a CriticalError.
func AsCritical(err error) (*CriticalError, bool) {
	var ce *CriticalError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
