package tasks

import (
	"context"

	"github.com/rs/zerolog/log"

	"beepsat/internal/domain"
)

// Battery voltage policy levels.
const (
	LowBatteryVolts  = 6.0
	SafeBatteryVolts = 5.8
	RecoveryVolts    = 6.4
)

// BatteryMonitor samples the pack and moves the power mode. The body is a
// two-step state machine, sample then evaluate, with a suspension point
// between the phases where other tasks interleave.
type BatteryMonitor struct {
	gauge BatteryGauge

	phase   int
	sampled float64
}

func NewBatteryMonitor(gauge BatteryGauge) *BatteryMonitor {
	return &BatteryMonitor{gauge: gauge}
}

func (m *BatteryMonitor) Step(ctx context.Context, sys *domain.SystemState) (domain.StepResult, error) {
	switch m.phase {
	case 0:
		m.sampled = m.gauge.Voltage()
		m.phase = 1
		return domain.Yield(), nil
	default:
		m.phase = 0
		return domain.Done(), m.evaluate(sys)
	}
}

func (m *BatteryMonitor) evaluate(sys *domain.SystemState) error {
	v := m.sampled
	switch {
	case v < SafeBatteryVolts && sys.PowerMode != domain.PowerSafe:
		log.Warn().Float64("volts", v).Msg("battery critically low, entering safe mode")
		sys.PowerMode = domain.PowerSafe
	case v < LowBatteryVolts && sys.PowerMode == domain.PowerNormal:
		log.Warn().Float64("volts", v).Msg("battery low, entering low power mode")
		sys.PowerMode = domain.PowerLow
	case v >= RecoveryVolts && sys.PowerMode != domain.PowerNormal:
		log.Info().Float64("volts", v).Msg("battery recovered, back to normal power")
		sys.PowerMode = domain.PowerNormal
	}
	return nil
}
