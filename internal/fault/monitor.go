// Package fault wraps every task invocation and applies the graceful
// degradation ladder: count and continue, disable at threshold, full reset
// on a critical failure. A single misbehaving routine must never halt
// beaconing or command handling.
package fault

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"beepsat/internal/domain"
)

// Monitor tracks per-task consecutive failures and mirrors the global
// counter into NVM. It runs on the scheduler thread only.
type Monitor struct {
	store     domain.StateStore
	threshold func(name string) int

	counts         map[string]int
	resetRequested bool
	requestReset   func(code domain.FaultCode)
}

// NewMonitor creates a fault monitor. threshold returns the per-task
// consecutive-failure limit; requestReset asks the supervision loop for a
// full system reset and is invoked at most once per boot session.
func NewMonitor(store domain.StateStore, threshold func(string) int, requestReset func(domain.FaultCode)) *Monitor {
	return &Monitor{
		store:        store,
		threshold:    threshold,
		counts:       make(map[string]int),
		requestReset: requestReset,
	}
}

// Invoke runs one task step behind the fault boundary. No error from run,
// panics included, propagates into the scheduler's own control flow.
func (m *Monitor) Invoke(name string, run func() (domain.StepResult, error)) (res domain.StepResult, severity domain.Severity) {
	code := domain.FaultTaskError
	err := func() (stepErr error) {
		defer func() {
			if r := recover(); r != nil {
				code = domain.FaultTaskPanic
				stepErr = fmt.Errorf("task %s panicked: %v", name, r)
			}
		}()
		var runErr error
		res, runErr = run()
		return runErr
	}()

	if err == nil {
		m.counts[name] = 0
		return res, domain.SeverityNone
	}

	if ce, ok := domain.AsCritical(err); ok {
		m.escalate(name, ce)
		return res, domain.SeverityCritical
	}

	m.counts[name]++
	consecutive := m.counts[name]
	if perr := m.store.Mutate(func(c *domain.Counters) {
		c.StateErrors++
		c.LastFaultCode = code
	}); perr != nil {
		log.Error().Err(perr).Msg("persisting fault counters failed")
	}

	limit := m.threshold(name)
	if consecutive >= limit {
		log.Warn().
			Str("task", name).
			Err(err).
			Int("consecutive", consecutive).
			Int("threshold", limit).
			Msg("failure threshold crossed, disabling task")
		return res, domain.SeverityPersistent
	}

	log.Warn().
		Str("task", name).
		Err(err).
		Int("consecutive", consecutive).
		Msg("task failure, continuing")
	return res, domain.SeverityTransient
}

// escalate flushes counters and requests the reset exactly once; a second
// critical failure in the same session is logged but cannot double-fire.
func (m *Monitor) escalate(name string, ce *domain.CriticalError) {
	log.Error().
		Str("task", name).
		Str("fault_code", ce.Code.String()).
		Err(ce.Err).
		Msg("critical failure, requesting system reset")

	if m.resetRequested {
		return
	}
	m.resetRequested = true

	if perr := m.store.Mutate(func(c *domain.Counters) {
		c.StateErrors++
		c.ResetCount++
		c.LastFaultCode = ce.Code
	}); perr != nil {
		log.Error().Err(perr).Msg("flushing counters before reset failed")
	}
	m.requestReset(ce.Code)
}

// ConsecutiveFailures returns a task's current consecutive-failure count.
func (m *Monitor) ConsecutiveFailures(name string) int {
	return m.counts[name]
}

// Clear zeroes every per-task counter and the persisted global record.
// Only the authenticated CLEAR_FAULTS command path calls this.
func (m *Monitor) Clear() error {
	m.counts = make(map[string]int)
	return m.store.Mutate(func(c *domain.Counters) {
		c.StateErrors = 0
		c.LastFaultCode = domain.FaultNone
	})
}
