// Package telemetry assembles the per-tick read-only snapshot and serves
// it to ground collaborators. The core never transmits on its own; the
// beacon task and the HTTP server pull frames from the hub.
package telemetry

import (
	"sync"
	"time"

	"beepsat/internal/domain"
)

// TaskState is one task row in the frame, ground-dashboard vocabulary.
type TaskState struct {
	Active              bool      `json:"active"`
	LastSeen            time.Time `json:"last_seen"`
	RunCount            uint64    `json:"run_count"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Frame is the beacon/dashboard telemetry packet.
type Frame struct {
	Timestamp   time.Time            `json:"timestamp"`
	Uptime      float64              `json:"uptime"`
	TaskStates  map[string]TaskState `json:"task_states"`
	NVMCounters NVMCounters          `json:"nvm_counters"`
	NVMFlags    NVMFlags             `json:"nvm_flags"`
	PowerStatus PowerStatus          `json:"power_status"`
	RadioStatus RadioStatus          `json:"radio_status"`
	PowerMode   string               `json:"power_mode"`
	CmdDropped  uint64               `json:"cmd_dropped"`
}

// PowerStatus is the sampled electrical state block.
type PowerStatus struct {
	BatteryVoltage float64 `json:"battery_voltage"`
}

// RadioStatus is the sampled link state block.
type RadioStatus struct {
	LastRSSI  float64 `json:"last_rssi"`
	Frequency float64 `json:"frequency"`
}

// Readings carries the sensor samples taken at frame assembly time, on the
// scheduler thread.
type Readings struct {
	BatteryVolts float64
	LastRSSI     float64
	FrequencyMHz float64
	CmdDropped   uint64
}

// NVMCounters mirrors the persisted counter block.
type NVMCounters struct {
	BootCount     uint32 `json:"boot_count"`
	ResetCount    uint32 `json:"reset_count"`
	StateErrors   uint32 `json:"state_errors"`
	LastFaultCode string `json:"last_fault_code"`
	CmdAccepted   uint32 `json:"cmd_accepted"`
	CmdRejected   uint32 `json:"cmd_rejected"`
	GSResponses   uint32 `json:"gs_responses"`
	VbusResets    uint32 `json:"vbus_resets"`
	ChargeCycles  uint32 `json:"charge_cycles"`
}

// NVMFlags mirrors the persisted and session flags.
type NVMFlags struct {
	DeployArmed   bool `json:"deploy_armed"`
	TransmitArmed bool `json:"transmit_armed"`
	ResetArmed    bool `json:"reset_armed"`
	LowPower      bool `json:"low_power"`
	SafeMode      bool `json:"safe_mode"`
	Shutdown      bool `json:"shutdown"`
}

// Assemble builds a frame from the scheduler and counter snapshots plus
// the tick's sensor readings.
func Assemble(now time.Time, tasks []domain.TaskSnapshot, sys domain.SystemSnapshot, r Readings) Frame {
	states := make(map[string]TaskState, len(tasks))
	for _, t := range tasks {
		states[t.Name] = TaskState{
			Active:              t.Active,
			LastSeen:            t.LastRun,
			RunCount:            t.RunCount,
			ConsecutiveFailures: t.ConsecutiveFailures,
		}
	}
	return Frame{
		Timestamp:  now,
		Uptime:     sys.UptimeSeconds,
		TaskStates: states,
		NVMCounters: NVMCounters{
			BootCount:     sys.BootCount,
			ResetCount:    sys.ResetCount,
			StateErrors:   sys.StateErrors,
			LastFaultCode: sys.LastFaultCode.String(),
			CmdAccepted:   sys.CmdAccepted,
			CmdRejected:   sys.CmdRejected,
			GSResponses:   sys.GSResponses,
			VbusResets:    sys.VbusResets,
			ChargeCycles:  sys.ChargeCycles,
		},
		NVMFlags: NVMFlags{
			DeployArmed:   sys.ArmedFlags&domain.ArmDeploy != 0,
			TransmitArmed: sys.ArmedFlags&domain.ArmTransmit != 0,
			ResetArmed:    sys.ArmedFlags&domain.ArmReset != 0,
			LowPower:      sys.PowerMode == domain.PowerLow.String(),
			SafeMode:      sys.PowerMode == domain.PowerSafe.String(),
			Shutdown:      sys.ShutdownPending,
		},
		PowerStatus: PowerStatus{BatteryVoltage: r.BatteryVolts},
		RadioStatus: RadioStatus{LastRSSI: r.LastRSSI, Frequency: r.FrequencyMHz},
		PowerMode:   sys.PowerMode,
		CmdDropped:  r.CmdDropped,
	}
}

// Hub holds the latest frame. Published from the scheduler thread each
// tick, read by the HTTP server and beacon consumers from any goroutine.
type Hub struct {
	mu    sync.RWMutex
	frame Frame
	tasks []domain.TaskSnapshot
	seq   uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Publish replaces the latest frame.
func (h *Hub) Publish(frame Frame, tasks []domain.TaskSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frame = frame
	h.tasks = tasks
	h.seq++
}

// Latest returns the most recent frame; ok is false before first publish.
func (h *Hub) Latest() (Frame, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.frame, h.seq > 0
}

// Tasks returns the most recent per-task rows.
func (h *Hub) Tasks() []domain.TaskSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.TaskSnapshot, len(h.tasks))
	copy(out, h.tasks)
	return out
}
