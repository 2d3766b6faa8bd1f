package domain

import "time"

// Clock is the monotonic time source every component reads. Tests swap in a
// manual implementation.
type Clock interface {
	Now() time.Time
}

// FaultCode identifies the last recorded failure cause in NVM.
type FaultCode uint16

const (
	FaultNone      FaultCode = 0
	FaultTaskError FaultCode = 1 // task body returned an error
	FaultTaskPanic FaultCode = 2 // task body panicked
	FaultMemory    FaultCode = 3 // allocation/exhaustion class failure
	FaultWatchdog  FaultCode = 4 // watchdog expired, externally forced reset
	FaultCommanded FaultCode = 5 // authenticated RESET command
)

func (c FaultCode) String() string {
	switch c {
	case FaultNone:
		return "none"
	case FaultTaskError:
		return "task_error"
	case FaultTaskPanic:
		return "task_panic"
	case FaultMemory:
		return "memory"
	case FaultWatchdog:
		return "watchdog"
	case FaultCommanded:
		return "commanded"
	}
	return "unknown"
}

// ArmFlag is a bit in the persisted armed_flags set. Destructive commands
// require their bit armed before they take effect.
type ArmFlag uint8

const (
	ArmDeploy   ArmFlag = 1 << 0
	ArmTransmit ArmFlag = 1 << 1
	ArmReset    ArmFlag = 1 << 2
)

func (f ArmFlag) String() string {
	switch f {
	case ArmDeploy:
		return "deploy"
	case ArmTransmit:
		return "transmit"
	case ArmReset:
		return "reset"
	}
	return "unknown"
}

// PowerMode is the vehicle-wide power posture, switched by CDH.
type PowerMode int

const (
	PowerNormal PowerMode = iota
	PowerLow
	PowerSafe
)

func (m PowerMode) String() string {
	switch m {
	case PowerNormal:
		return "normal"
	case PowerLow:
		return "low"
	case PowerSafe:
		return "safe"
	}
	return "unknown"
}

// ParsePowerMode maps a wire string to a PowerMode.
func ParsePowerMode(s string) (PowerMode, bool) {
	switch s {
	case "normal":
		return PowerNormal, true
	case "low":
		return PowerLow, true
	case "safe":
		return PowerSafe, true
	}
	return PowerNormal, false
}

// Counters is the in-memory mirror of the NVM record. Each field is
// independently meaningful; a power loss mid-write loses at most the last
// increment of one field.
type Counters struct {
	BootCount     uint32
	ResetCount    uint32
	StateErrors   uint32 // global fault counter across all tasks
	LastFaultCode FaultCode
	CmdAccepted   uint32
	CmdRejected   uint32
	GSResponses   uint32
	VbusResets    uint32
	ChargeCycles  uint32
	ArmedFlags    ArmFlag
}

// StateStore is the persistence contract implemented by the NVM layer.
// Mutate applies fn to the mirror and issues the durable write before
// returning (write-through).
type StateStore interface {
	Counters() Counters
	Mutate(fn func(*Counters)) error
}

// TaskControl is the slice of the scheduler CDH and the fault monitor are
// allowed to reach: flipping active flags and queueing one-shots. Disables
// take effect at the next scheduling decision, never mid-step.
type TaskControl interface {
	SetActive(name string, active bool) error
	Defer(name string, at time.Time, fn StepFunc)
}

// SystemState is the single explicitly owned mutable state handed by
// reference into every task step and into CDH. It is touched only from the
// scheduler thread, inside a tick; transports and interrupt-style sources
// may not mutate it directly.
type SystemState struct {
	Clock   Clock
	Store   StateStore
	Control TaskControl

	PowerMode PowerMode
	BootTime  time.Time

	// ShutdownPending is set on the scheduler thread by a commanded
	// shutdown, before RequestShutdown, so the final telemetry frames of
	// the session carry the flag.
	ShutdownPending bool

	// RequestReset asks the supervision loop for a full system reset after
	// counters have been flushed. RequestShutdown ends the mission process.
	RequestReset    func(code FaultCode)
	RequestShutdown func()
}

// Uptime reports seconds since boot per the system clock.
func (s *SystemState) Uptime() time.Duration {
	return s.Clock.Now().Sub(s.BootTime)
}

// Snapshot assembles the vehicle-level telemetry row.
func (s *SystemState) Snapshot() SystemSnapshot {
	c := s.Store.Counters()
	return SystemSnapshot{
		BootCount:       c.BootCount,
		ResetCount:      c.ResetCount,
		StateErrors:     c.StateErrors,
		LastFaultCode:   c.LastFaultCode,
		CmdAccepted:     c.CmdAccepted,
		CmdRejected:     c.CmdRejected,
		GSResponses:     c.GSResponses,
		VbusResets:      c.VbusResets,
		ChargeCycles:    c.ChargeCycles,
		PowerMode:       s.PowerMode.String(),
		ArmedFlags:      c.ArmedFlags,
		ShutdownPending: s.ShutdownPending,
		UptimeSeconds:   s.Uptime().Seconds(),
	}
}
