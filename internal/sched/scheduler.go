// Package sched implements the single-threaded cooperative event loop. All
// task bodies, CDH included, run on this one goroutine; between any two
// suspension points inside a body no other task observes intermediate
// state, which is the mutual-exclusion guarantee substituting for locks.
package sched

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"beepsat/internal/domain"
)

// Invoker wraps every task invocation; the fault monitor implements it.
type Invoker interface {
	Invoke(name string, run func() (domain.StepResult, error)) (domain.StepResult, domain.Severity)
	ConsecutiveFailures(name string) int
}

type entry struct {
	info     domain.TaskInfo
	cronNext cron.Schedule // set for calendar tasks, nil otherwise
	regOrder int

	nextDue  time.Time
	active   bool
	lastRun  time.Time
	runCount uint64

	oneShot bool
	step    domain.StepFunc
}

// Scheduler owns the static task registry and drives the tick loop.
type Scheduler struct {
	clock      domain.Clock
	invoker    Invoker
	tickPeriod time.Duration
	watchdog   *Watchdog

	sys       *domain.SystemState
	entries   []*entry
	byName    map[string]*entry
	oneShots  []*entry
	started   bool
	afterTick func(now time.Time)
}

// New creates a scheduler. The registry is sealed when Run starts.
func New(clock domain.Clock, invoker Invoker, tickPeriod time.Duration, wd *Watchdog) *Scheduler {
	return &Scheduler{
		clock:      clock,
		invoker:    invoker,
		tickPeriod: tickPeriod,
		watchdog:   wd,
		byName:     make(map[string]*entry),
	}
}

// Bind attaches the system state handed into every task step. Must be
// called once before Run; it is separate from New because the state's
// Control field refers back to this scheduler.
func (s *Scheduler) Bind(sys *domain.SystemState) {
	s.sys = sys
}

// AfterTick installs a hook run at the end of every tick, on the scheduler
// thread. The telemetry publisher hangs off this.
func (s *Scheduler) AfterTick(fn func(now time.Time)) {
	s.afterTick = fn
}

// Register adds a task before the run loop starts. The schedule table is
// static and bounded: registration after start is not supported; runtime
// enable/disable goes through SetActive.
func (s *Scheduler) Register(info domain.TaskInfo) error {
	if s.started {
		return fmt.Errorf("register %q: scheduler already started", info.Name)
	}
	if err := info.Validate(); err != nil {
		return err
	}
	if _, exists := s.byName[info.Name]; exists {
		return fmt.Errorf("register %q: duplicate task name", info.Name)
	}
	e := &entry{
		info:     info,
		regOrder: len(s.entries),
		active:   true,
		step:     info.Runner.Step,
	}
	if info.CronExpr != "" {
		sched, err := cron.ParseStandard(info.CronExpr)
		if err != nil {
			return fmt.Errorf("register %q: invalid cron expression: %w", info.Name, err)
		}
		e.cronNext = sched
	}
	s.entries = append(s.entries, e)
	s.byName[info.Name] = e
	return nil
}

// SetActive flips a task's active flag. Disabling takes effect at the next
// scheduling decision; an in-flight body still runs to its next suspension
// point. Re-enabling rearms one period out so a long-disabled task does not
// fire a burst.
func (s *Scheduler) SetActive(name string, active bool) error {
	e, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownTask, name)
	}
	if e.active == active {
		return nil
	}
	e.active = active
	if active {
		e.nextDue = s.nextAfter(e, s.clock.Now())
	}
	log.Info().Str("task", name).Bool("active", active).Msg("task active flag changed")
	return nil
}

// Defer queues a one-shot derived entry with no periodic re-arming. Called
// from inside a tick (task bodies, CDH), so no locking is needed.
func (s *Scheduler) Defer(name string, at time.Time, fn domain.StepFunc) {
	e := &entry{
		info:    domain.TaskInfo{Name: name, Priority: s.deferPriority(name)},
		nextDue: at,
		active:  true,
		oneShot: true,
		step:    fn,
	}
	s.oneShots = append(s.oneShots, e)
}

func (s *Scheduler) deferPriority(name string) int {
	if e, ok := s.byName[name]; ok {
		return e.info.Priority
	}
	return 10
}

// Prime seals the registry and computes initial due times, one period out
// from start. Run calls it; tests call it directly and then drive Tick.
func (s *Scheduler) Prime(start time.Time) {
	s.started = true
	for _, e := range s.entries {
		e.nextDue = s.nextAfter(e, start)
	}
}

// Run seals the registry, arms the watchdog, and drives ticks until the
// context is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	s.Prime(s.clock.Now())
	if s.watchdog != nil {
		s.watchdog.Start(ctx)
	}

	log.Info().
		Int("tasks", len(s.entries)).
		Dur("tick", s.tickPeriod).
		Msg("scheduler started")

	ticker := time.NewTicker(s.tickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			if s.watchdog != nil {
				s.watchdog.Pet()
			}
			s.Tick(ctx, s.clock.Now())
		}
	}
}

// Tick executes exactly the entries due at now, in ascending due-time
// order, ties broken by ascending priority then registration order. Due
// time dominates, so priority ties are resolved each tick and no task is
// starved indefinitely.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	due := s.collectDue(now)
	for _, e := range due {
		if ctx.Err() != nil {
			return // reset or shutdown requested mid-tick
		}
		if !e.active {
			continue // disabled earlier in this same tick
		}
		s.runEntry(ctx, e, now)
	}
	s.pruneOneShots()
	if s.afterTick != nil {
		s.afterTick(now)
	}
}

func (s *Scheduler) collectDue(now time.Time) []*entry {
	var due []*entry
	for _, e := range s.entries {
		if e.active && !e.nextDue.After(now) {
			due = append(due, e)
		}
	}
	for _, e := range s.oneShots {
		if e.active && !e.nextDue.After(now) {
			due = append(due, e)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].nextDue.Equal(due[j].nextDue) {
			return due[i].nextDue.Before(due[j].nextDue)
		}
		if due[i].info.Priority != due[j].info.Priority {
			return due[i].info.Priority < due[j].info.Priority
		}
		return due[i].regOrder < due[j].regOrder
	})
	return due
}

func (s *Scheduler) runEntry(ctx context.Context, e *entry, now time.Time) {
	res, severity := s.invoker.Invoke(e.info.Name, func() (domain.StepResult, error) {
		return e.step(ctx, s.sys)
	})
	e.lastRun = now

	switch severity {
	case domain.SeverityPersistent:
		e.active = false
		return
	case domain.SeverityCritical:
		// The invoker has already flushed counters and requested the reset;
		// the canceled context stops the rest of the tick.
		return
	}

	switch res.Status {
	case domain.StepYield:
		e.nextDue = now // eligible again next tick
	case domain.StepSleep:
		e.nextDue = res.ResumeAt
	case domain.StepDone:
		// run_count is a success counter; a transient failure reschedules
		// but does not count.
		if severity == domain.SeverityNone {
			e.runCount++
		}
		if e.oneShot {
			e.active = false
			return
		}
		e.nextDue = s.nextAfter(e, now)
	}
}

// nextAfter recomputes a periodic entry's due time from its last execution.
// If the body overran its period the missed cycles are dropped, never
// queued: the entry runs once and is pushed a full period past the present.
func (s *Scheduler) nextAfter(e *entry, ran time.Time) time.Time {
	if e.cronNext != nil {
		return e.cronNext.Next(ran)
	}
	next := ran.Add(e.info.Period())
	if wall := s.clock.Now(); !next.After(wall) {
		next = wall.Add(e.info.Period())
	}
	return next
}

func (s *Scheduler) pruneOneShots() {
	if len(s.oneShots) == 0 {
		return
	}
	kept := s.oneShots[:0]
	for _, e := range s.oneShots {
		if e.active {
			kept = append(kept, e)
		}
	}
	s.oneShots = kept
}

// Snapshot returns the read-only per-task telemetry rows for this tick.
func (s *Scheduler) Snapshot() []domain.TaskSnapshot {
	out := make([]domain.TaskSnapshot, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, domain.TaskSnapshot{
			Name:                e.info.Name,
			Priority:            e.info.Priority,
			Active:              e.active,
			LastRun:             e.lastRun,
			RunCount:            e.runCount,
			ConsecutiveFailures: s.invoker.ConsecutiveFailures(e.info.Name),
		})
	}
	return out
}
