package tasks

import (
	"context"

	"beepsat/internal/domain"
)

// Blink pulses the status indicator. Deliberately trivial: its continued
// running is itself the signal that the event loop is alive.
type Blink struct {
	led Heartbeat
}

func NewBlink(led Heartbeat) *Blink {
	return &Blink{led: led}
}

func (b *Blink) Step(ctx context.Context, sys *domain.SystemState) (domain.StepResult, error) {
	b.led.Pulse()
	return domain.Done(), nil
}
