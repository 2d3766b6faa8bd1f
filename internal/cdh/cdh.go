// Package cdh implements command and data handling: a privileged task
// that drains the uplink inbox each invocation, authenticates commands,
// and executes state-mutating actions through the scheduler and NVM.
package cdh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"beepsat/internal/audit"
	"beepsat/internal/domain"
)

// TaskName is the CDH task's registry name. CDH refuses to disable itself.
const TaskName = "cdh"

// FaultControl is the slice of the fault monitor reachable from commands.
type FaultControl interface {
	Clear() error
}

// Deployer actuates the antenna release. Hardware burn-wire drivers are
// external collaborators; the default implementation only logs.
type Deployer interface {
	Deploy(ctx context.Context) error
}

// LogDeployer is the no-hardware Deployer.
type LogDeployer struct{}

func (LogDeployer) Deploy(ctx context.Context) error {
	log.Info().Msg("antenna deploy actuated")
	return nil
}

// StatusFn produces the STATUS response payload.
type StatusFn func() ([]byte, error)

// Responder sends a reply for a processed command back down the link.
type Responder func(cmd domain.Command, payload []byte)

// Options wires a CDH task.
type Options struct {
	Inbox       *Inbox
	Verifier    *Verifier
	Interlock   *Interlock
	Audit       *audit.Logger
	Faults      FaultControl
	Deployer    Deployer
	Status      StatusFn
	Respond     Responder
	DrainBudget int
}

// CDH is the command handling task body.
type CDH struct {
	inbox     *Inbox
	verifier  *Verifier
	interlock *Interlock
	audit     *audit.Logger
	faults    FaultControl
	deployer  Deployer
	status    StatusFn
	respond   Responder
	budget    int
}

// New creates the CDH task.
func New(opts Options) *CDH {
	c := &CDH{
		inbox:     opts.Inbox,
		verifier:  opts.Verifier,
		interlock: opts.Interlock,
		audit:     opts.Audit,
		faults:    opts.Faults,
		deployer:  opts.Deployer,
		status:    opts.Status,
		respond:   opts.Respond,
		budget:    opts.DrainBudget,
	}
	if c.deployer == nil {
		c.deployer = LogDeployer{}
	}
	if c.budget <= 0 {
		c.budget = 8
	}
	return c
}

// Step drains up to the per-invocation budget of pending commands. Each
// command is processed in isolation: one bad command never affects the
// next, and CDH errors never cross the fault boundary as task failures.
func (c *CDH) Step(ctx context.Context, sys *domain.SystemState) (domain.StepResult, error) {
	now := sys.Clock.Now()
	c.interlock.Expire(now)

	for n := 0; n < c.budget; n++ {
		cmd, ok := c.inbox.poll()
		if !ok {
			break
		}
		c.process(ctx, sys, cmd)
	}
	return domain.Done(), nil
}

func (c *CDH) process(ctx context.Context, sys *domain.SystemState, cmd domain.Command) {
	now := sys.Clock.Now()
	subject, err := c.handle(ctx, sys, cmd)
	if err != nil {
		if merr := sys.Store.Mutate(func(cnt *domain.Counters) { cnt.CmdRejected++ }); merr != nil {
			log.Error().Err(merr).Msg("persisting rejected-command counter failed")
		}
		c.audit.Record(cmd, subject, audit.OutcomeRejected, err.Error(), now)
		log.Warn().
			Str("cmd", cmd.ID.String()).
			Str("correlation_id", cmd.CorrelationID).
			Err(err).
			Msg("command rejected")
		return
	}

	if merr := sys.Store.Mutate(func(cnt *domain.Counters) { cnt.CmdAccepted++ }); merr != nil {
		log.Error().Err(merr).Msg("persisting accepted-command counter failed")
	}
	c.audit.Record(cmd, subject, audit.OutcomeAccepted, "", now)
	log.Info().
		Str("cmd", cmd.ID.String()).
		Str("subject", subject).
		Str("correlation_id", cmd.CorrelationID).
		Msg("command executed")
}

// destructiveFlag maps a command to the arm bit it must consume.
func destructiveFlag(id domain.CommandID) (domain.ArmFlag, bool) {
	switch id {
	case domain.CmdReset, domain.CmdShutdown:
		return domain.ArmReset, true
	case domain.CmdDeployAntenna:
		return domain.ArmDeploy, true
	}
	return 0, false
}

// handle validates, authenticates, and dispatches one command. Any
// returned error means no state mutation happened beyond the rejection
// counter the caller records.
func (c *CDH) handle(ctx context.Context, sys *domain.SystemState, cmd domain.Command) (string, error) {
	if cmd.ID.String() == "UNKNOWN" {
		return "", fmt.Errorf("%w: 0x%02x", domain.ErrUnknownCommand, uint16(cmd.ID))
	}

	subject := ""
	if cmd.ID != domain.CmdStatus {
		claims, err := c.verifier.Verify(cmd.AuthToken)
		if err != nil {
			return "", err
		}
		subject = claims.Subject
	}

	now := sys.Clock.Now()
	if flag, destructive := destructiveFlag(cmd.ID); destructive {
		armed, err := c.interlock.Consume(flag, now)
		if err != nil {
			return subject, fmt.Errorf("interlock: %w", err)
		}
		if !armed {
			return subject, fmt.Errorf("%w: %s requires prior ARM %s", domain.ErrNotArmed, cmd.ID, flag)
		}
	}

	switch cmd.ID {
	case domain.CmdStatus:
		return subject, c.handleStatus(sys, cmd)
	case domain.CmdArm:
		flag, err := parseArmPayload(cmd.Payload)
		if err != nil {
			return subject, err
		}
		return subject, c.interlock.Arm(flag, now)
	case domain.CmdDisarm:
		flag, err := parseArmPayload(cmd.Payload)
		if err != nil {
			return subject, err
		}
		return subject, c.interlock.Disarm(flag)
	case domain.CmdReset:
		err := sys.Store.Mutate(func(cnt *domain.Counters) {
			cnt.ResetCount++
			cnt.LastFaultCode = domain.FaultCommanded
		})
		if err != nil {
			return subject, err
		}
		sys.RequestReset(domain.FaultCommanded)
		return subject, nil
	case domain.CmdShutdown:
		sys.ShutdownPending = true
		sys.RequestShutdown()
		return subject, nil
	case domain.CmdDeployAntenna:
		return subject, c.deployer.Deploy(ctx)
	case domain.CmdDisableTask:
		name, err := parseTaskPayload(cmd.Payload)
		if err != nil {
			return subject, err
		}
		if name == TaskName {
			return subject, fmt.Errorf("%w: cdh cannot disable itself", domain.ErrMalformed)
		}
		return subject, sys.Control.SetActive(name, false)
	case domain.CmdEnableTask:
		name, err := parseTaskPayload(cmd.Payload)
		if err != nil {
			return subject, err
		}
		return subject, sys.Control.SetActive(name, true)
	case domain.CmdClearFaults:
		return subject, c.faults.Clear()
	case domain.CmdPowerMode:
		mode, err := parsePowerPayload(cmd.Payload)
		if err != nil {
			return subject, err
		}
		sys.PowerMode = mode
		log.Info().Str("mode", mode.String()).Msg("power mode changed")
		return subject, nil
	}
	return subject, fmt.Errorf("%w: %s", domain.ErrUnknownCommand, cmd.ID)
}

func (c *CDH) handleStatus(sys *domain.SystemState, cmd domain.Command) error {
	if c.status == nil {
		return errors.New("status reporter not wired")
	}
	data, err := c.status()
	if err != nil {
		return fmt.Errorf("assemble status: %w", err)
	}
	if c.respond != nil {
		c.respond(cmd, data)
	}
	return sys.Store.Mutate(func(cnt *domain.Counters) { cnt.GSResponses++ })
}

type armPayload struct {
	Flag string `json:"flag"`
}

type taskPayload struct {
	Task string `json:"task"`
}

type powerPayload struct {
	Mode string `json:"mode"`
}

func parseArmPayload(payload []byte) (domain.ArmFlag, error) {
	var p armPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	switch p.Flag {
	case "deploy":
		return domain.ArmDeploy, nil
	case "transmit":
		return domain.ArmTransmit, nil
	case "reset":
		return domain.ArmReset, nil
	}
	return 0, fmt.Errorf("%w: unknown arm flag %q", domain.ErrMalformed, p.Flag)
}

func parseTaskPayload(payload []byte) (string, error) {
	var p taskPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	if p.Task == "" {
		return "", fmt.Errorf("%w: task name required", domain.ErrMalformed)
	}
	return p.Task, nil
}

func parsePowerPayload(payload []byte) (domain.PowerMode, error) {
	var p powerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	mode, ok := domain.ParsePowerMode(p.Mode)
	if !ok {
		return 0, fmt.Errorf("%w: unknown power mode %q", domain.ErrMalformed, p.Mode)
	}
	return mode, nil
}
