package tasks

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"beepsat/internal/domain"
)

// WeakSignalDbm is the RSSI below which the link is considered degraded.
const WeakSignalDbm = -90.0

// RadioMonitor samples the downlink RSSI. On a weak reading it defers a
// one-shot recheck rather than tightening its own period, so the schedule
// table stays static.
type RadioMonitor struct {
	radio        Radio
	recheckAfter time.Duration
}

func NewRadioMonitor(radio Radio) *RadioMonitor {
	return &RadioMonitor{radio: radio, recheckAfter: 5 * time.Second}
}

func (m *RadioMonitor) Step(ctx context.Context, sys *domain.SystemState) (domain.StepResult, error) {
	m.check(sys, true)
	return domain.Done(), nil
}

func (m *RadioMonitor) check(sys *domain.SystemState, mayDefer bool) {
	rssi, ok := m.radio.LastRSSI()
	if !ok {
		log.Warn().Msg("radio rssi unavailable")
		return
	}
	if rssi >= WeakSignalDbm {
		log.Debug().Float64("rssi", rssi).Msg("radio link nominal")
		return
	}
	log.Warn().Float64("rssi", rssi).Msg("radio link degraded")
	if mayDefer {
		at := sys.Clock.Now().Add(m.recheckAfter)
		sys.Control.Defer("radio_monitor_recheck", at,
			func(ctx context.Context, sys *domain.SystemState) (domain.StepResult, error) {
				m.check(sys, false)
				return domain.Done(), nil
			})
	}
}
