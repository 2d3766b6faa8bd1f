package domain

import "time"

// CommandID is the numeric identifier in the uplink wire contract.
type CommandID uint16

const (
	CmdStatus        CommandID = 0x01
	CmdArm           CommandID = 0x10
	CmdDisarm        CommandID = 0x11
	CmdReset         CommandID = 0x20
	CmdShutdown      CommandID = 0x21
	CmdDeployAntenna CommandID = 0x22
	CmdDisableTask   CommandID = 0x30
	CmdEnableTask    CommandID = 0x31
	CmdClearFaults   CommandID = 0x32
	CmdPowerMode     CommandID = 0x33
)

func (id CommandID) String() string {
	switch id {
	case CmdStatus:
		return "STATUS"
	case CmdArm:
		return "ARM"
	case CmdDisarm:
		return "DISARM"
	case CmdReset:
		return "RESET"
	case CmdShutdown:
		return "SHUTDOWN"
	case CmdDeployAntenna:
		return "DEPLOY_ANTENNA"
	case CmdDisableTask:
		return "DISABLE_TASK"
	case CmdEnableTask:
		return "ENABLE_TASK"
	case CmdClearFaults:
		return "CLEAR_FAULTS"
	case CmdPowerMode:
		return "POWER_MODE"
	}
	return "UNKNOWN"
}

// Command is one received uplink message. Transient: consumed after
// dispatch, never persisted beyond audit counter increments.
type Command struct {
	ID            CommandID `json:"command_id"`
	Payload       []byte    `json:"payload,omitempty"`
	AuthToken     string    `json:"auth_token,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Received      time.Time `json:"-"`
}
