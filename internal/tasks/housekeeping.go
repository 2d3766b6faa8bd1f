package tasks

import (
	"context"

	"github.com/rs/zerolog/log"

	"beepsat/internal/domain"
)

// Housekeeping runs on a calendar schedule rather than a frequency. It
// samples the charge state and rolls the long-horizon NVM counters.
type Housekeeping struct {
	gauge BatteryGauge

	charging bool
}

func NewHousekeeping(gauge BatteryGauge) *Housekeeping {
	return &Housekeeping{gauge: gauge}
}

func (h *Housekeeping) Step(ctx context.Context, sys *domain.SystemState) (domain.StepResult, error) {
	v := h.gauge.Voltage()
	charging := v >= RecoveryVolts

	// Count a charge cycle on the discharge->charge edge.
	if charging && !h.charging {
		if err := sys.Store.Mutate(func(c *domain.Counters) { c.ChargeCycles++ }); err != nil {
			return domain.Done(), err
		}
	}
	h.charging = charging

	log.Info().
		Float64("volts", v).
		Bool("charging", charging).
		Uint32("charge_cycles", sys.Store.Counters().ChargeCycles).
		Msg("housekeeping pass")
	return domain.Done(), nil
}
