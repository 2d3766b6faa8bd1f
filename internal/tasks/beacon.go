package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"beepsat/internal/domain"
	"beepsat/internal/telemetry"
)

// Beacon downlinks the latest telemetry frame once per period. It pulls
// from the hub; frame assembly happens in the scheduler's tick hook, so
// the beacon never reads mutable scheduler state itself.
type Beacon struct {
	hub   *telemetry.Hub
	radio Radio
}

func NewBeacon(hub *telemetry.Hub, radio Radio) *Beacon {
	return &Beacon{hub: hub, radio: radio}
}

func (b *Beacon) Step(ctx context.Context, sys *domain.SystemState) (domain.StepResult, error) {
	frame, ok := b.hub.Latest()
	if !ok {
		return domain.Done(), nil // nothing to send yet, first tick
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return domain.Done(), fmt.Errorf("marshal beacon frame: %w", err)
	}
	if err := b.radio.Transmit(data); err != nil {
		return domain.Done(), fmt.Errorf("beacon transmit: %w", err)
	}
	return domain.Done(), nil
}
