package tasks

import (
	"beepsat/internal/cdh"
	"beepsat/internal/config"
	"beepsat/internal/domain"
	"beepsat/internal/sched"
	"beepsat/internal/telemetry"
)

// Deps carries everything the mission routines need.
type Deps struct {
	Hub   *telemetry.Hub
	Gauge BatteryGauge
	Radio Radio
	LED   Heartbeat
	CDH   *cdh.CDH
}

// Register is the single registration call site: the complete static task
// table, in one place, with config overrides applied. Dropping in a new
// routine means adding one line here.
func Register(s *sched.Scheduler, cfg *config.Config, deps Deps) error {
	table := []domain.TaskInfo{
		{Name: "battery_monitor", Priority: 1, FrequencyHz: 2, Runner: NewBatteryMonitor(deps.Gauge)},
		{Name: cdh.TaskName, Priority: 2, FrequencyHz: 5, Runner: deps.CDH},
		{Name: "radio_monitor", Priority: 3, FrequencyHz: 0.2, Runner: NewRadioMonitor(deps.Radio)},
		{Name: "beacon", Priority: 5, FrequencyHz: 1, Runner: NewBeacon(deps.Hub, deps.Radio)},
		{Name: "blink", Priority: 8, FrequencyHz: 2, Runner: NewBlink(deps.LED)},
		{Name: "housekeeping", Priority: 9, CronExpr: "0 * * * *", Runner: NewHousekeeping(deps.Gauge)},
	}

	overrides := make(map[string]config.TaskConfig, len(cfg.Tasks))
	for _, tc := range cfg.Tasks {
		overrides[tc.Name] = tc
	}

	for _, info := range table {
		if tc, ok := overrides[info.Name]; ok {
			if tc.Priority != 0 {
				info.Priority = tc.Priority
			}
			if tc.FrequencyHz > 0 {
				info.FrequencyHz = tc.FrequencyHz
				info.CronExpr = ""
			}
			if tc.CronExpr != "" {
				info.CronExpr = tc.CronExpr
				info.FrequencyHz = 0
			}
		}
		if err := s.Register(info); err != nil {
			return err
		}
		if tc, ok := overrides[info.Name]; ok && tc.Disabled {
			if err := s.SetActive(info.Name, false); err != nil {
				return err
			}
		}
	}
	return nil
}
