package domain

import (
	"context"
	"fmt"
	"time"
)

// StepStatus tells the scheduler what to do with a task body after one step.
type StepStatus int

const (
	// StepDone means the body finished; the task is rescheduled one period out.
	StepDone StepStatus = iota
	// StepYield means the body wants to keep running; it resumes next tick.
	StepYield
	// StepSleep means the body suspends until StepResult.ResumeAt.
	StepSleep
)

// StepResult is returned by every task step. A task "blocks" only by
// returning StepYield or StepSleep; it must never wait synchronously.
type StepResult struct {
	Status   StepStatus
	ResumeAt time.Time
}

func Done() StepResult                      { return StepResult{Status: StepDone} }
func Yield() StepResult                     { return StepResult{Status: StepYield} }
func SleepUntil(t time.Time) StepResult     { return StepResult{Status: StepSleep, ResumeAt: t} }

// StepFunc is a bare resumable body, used for deferred one-shots.
type StepFunc func(ctx context.Context, sys *SystemState) (StepResult, error)

// Runner is the capability contract every mission routine implements.
// The body is a resumable state machine: the scheduler calls Step until it
// returns StepDone, and the points between calls are the only reentrancy
// boundaries.
type Runner interface {
	Step(ctx context.Context, sys *SystemState) (StepResult, error)
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context, sys *SystemState) (StepResult, error)

func (f RunnerFunc) Step(ctx context.Context, sys *SystemState) (StepResult, error) {
	return f(ctx, sys)
}

// TaskInfo is the static metadata a routine declares at registration.
// Exactly one of FrequencyHz (periodic) or CronExpr (calendar) is set.
type TaskInfo struct {
	Name        string
	Priority    int // lower runs first among ties at the same due time
	FrequencyHz float64
	CronExpr    string
	Runner      Runner
}

// Validate rejects metadata the scheduler cannot turn into a schedule entry.
func (t TaskInfo) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if t.Runner == nil {
		return fmt.Errorf("task %q: runner is required", t.Name)
	}
	if t.FrequencyHz <= 0 && t.CronExpr == "" {
		return fmt.Errorf("task %q: frequency must be > 0 Hz or a cron expression set", t.Name)
	}
	if t.FrequencyHz > 0 && t.CronExpr != "" {
		return fmt.Errorf("task %q: frequency and cron expression are mutually exclusive", t.Name)
	}
	return nil
}

// Period converts the declared frequency to a duration. Calendar tasks
// have no fixed period and return zero.
func (t TaskInfo) Period() time.Duration {
	if t.FrequencyHz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / t.FrequencyHz)
}
