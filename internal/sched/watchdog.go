package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Watchdog is the independent hard-timeout mechanism. The scheduler main
// loop must call Pet every tick; if the deadline passes without a pet (an
// unbounded wait inside a task body, for example) the expiry callback fires
// from the watchdog's own goroutine. A wedged main loop is the one failure
// path the in-process fault monitor cannot catch.
//
// The watchdog reads the wall clock directly; it must not depend on the
// scheduler's clock or tick loop.
type Watchdog struct {
	timeout  time.Duration
	onExpire func()

	lastPet atomic.Int64 // unix nanos
	fired   atomic.Bool
	once    sync.Once
}

// NewWatchdog creates a watchdog with the given timeout. onExpire is called
// at most once.
func NewWatchdog(timeout time.Duration, onExpire func()) *Watchdog {
	return &Watchdog{timeout: timeout, onExpire: onExpire}
}

// Start arms the watchdog and begins the expiry check loop.
func (w *Watchdog) Start(ctx context.Context) {
	w.lastPet.Store(time.Now().UnixNano())
	interval := w.timeout / 4
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if ctx.Err() != nil {
					// Shutdown in progress; a late expiry must not turn it
					// into a reset.
					return
				}
				last := time.Unix(0, w.lastPet.Load())
				if time.Since(last) <= w.timeout {
					continue
				}
				if w.fired.CompareAndSwap(false, true) {
					log.Error().
						Dur("timeout", w.timeout).
						Time("last_pet", last).
						Msg("watchdog expired, forcing reset")
					w.once.Do(w.onExpire)
				}
				return
			}
		}
	}()
}

// Pet services the watchdog, deferring expiry by one timeout.
func (w *Watchdog) Pet() {
	w.lastPet.Store(time.Now().UnixNano())
}

// Fired reports whether the watchdog has expired.
func (w *Watchdog) Fired() bool {
	return w.fired.Load()
}
