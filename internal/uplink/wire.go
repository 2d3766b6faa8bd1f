// Package uplink receives ground commands and hands them to CDH. The
// transports run off the scheduler thread and therefore only enqueue;
// they never touch system state.
package uplink

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"beepsat/internal/domain"
)

// wireCommand is the uplink message contract:
// {command_id, payload, auth_token, correlation_id}.
type wireCommand struct {
	CommandID     uint16          `json:"command_id"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	AuthToken     string          `json:"auth_token,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

type ack struct {
	CorrelationID string `json:"correlation_id"`
	Queued        bool   `json:"queued"`
	Error         string `json:"error,omitempty"`
}

// Decode parses a wire message into a Command. A missing correlation ID is
// assigned here so the audit trail can always tie an outcome to a receipt.
func Decode(data []byte, received time.Time) (domain.Command, error) {
	var w wireCommand
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.Command{}, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	if w.CommandID == 0 {
		return domain.Command{}, fmt.Errorf("%w: command_id required", domain.ErrMalformed)
	}
	cmd := domain.Command{
		ID:            domain.CommandID(w.CommandID),
		Payload:       []byte(w.Payload),
		AuthToken:     w.AuthToken,
		CorrelationID: w.CorrelationID,
		Received:      received,
	}
	if cmd.CorrelationID == "" {
		cmd.CorrelationID = "cmd_" + uuid.NewString()
	}
	return cmd, nil
}
