package domain

import "time"

// TaskSnapshot is the read-only per-task telemetry row exported each tick.
type TaskSnapshot struct {
	Name                string    `json:"name"`
	Priority            int       `json:"priority"`
	Active              bool      `json:"active"`
	LastRun             time.Time `json:"last_run"`
	RunCount            uint64    `json:"run_count"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// SystemSnapshot is the vehicle-level telemetry row.
type SystemSnapshot struct {
	BootCount       uint32    `json:"boot_count"`
	ResetCount      uint32    `json:"reset_count"`
	StateErrors     uint32    `json:"state_errors"`
	LastFaultCode   FaultCode `json:"last_fault_code"`
	CmdAccepted     uint32    `json:"cmd_accepted"`
	CmdRejected     uint32    `json:"cmd_rejected"`
	GSResponses     uint32    `json:"gs_responses"`
	VbusResets      uint32    `json:"vbus_resets"`
	ChargeCycles    uint32    `json:"charge_cycles"`
	PowerMode       string    `json:"power_mode"`
	ArmedFlags      ArmFlag   `json:"armed_flags"`
	ShutdownPending bool      `json:"shutdown_pending"`
	UptimeSeconds   float64   `json:"uptime"`
}
