// Package audit records every command disposition to an append-only JSONL
// file. The audit trail is the only durable record of who commanded what;
// rotation keeps it bounded on the flash filesystem.
package audit

import (
	"encoding/json"
	"io"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"beepsat/internal/domain"
)

// Entry is a single audit record.
type Entry struct {
	Timestamp     time.Time `json:"ts"`
	Command       string    `json:"cmd"`
	CorrelationID string    `json:"correlation_id"`
	Subject       string    `json:"subject,omitempty"`
	Outcome       string    `json:"outcome"`
	Detail        string    `json:"detail,omitempty"`
}

// Outcome codes.
const (
	OutcomeAccepted = "ACCEPTED"
	OutcomeRejected = "REJECTED"
	OutcomeError    = "ERROR"
)

// Logger writes audit entries. Safe for the single scheduler thread only.
type Logger struct {
	w io.Writer
}

// NewLogger creates an audit logger writing to dir/audit.jsonl with
// rotation.
func NewLogger(dir string, maxSizeMB, maxBackups, maxAgeDays int) *Logger {
	return &Logger{w: &lumberjack.Logger{
		Filename:   filepath.Join(dir, "audit.jsonl"),
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}}
}

// NewLoggerTo creates an audit logger writing to an arbitrary writer.
func NewLoggerTo(w io.Writer) *Logger {
	return &Logger{w: w}
}

// Record appends one command disposition.
func (l *Logger) Record(cmd domain.Command, subject, outcome, detail string, now time.Time) {
	entry := Entry{
		Timestamp:     now.UTC(),
		Command:       cmd.ID.String(),
		CorrelationID: cmd.CorrelationID,
		Subject:       subject,
		Outcome:       outcome,
		Detail:        detail,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Msg("audit entry marshal failed")
		return
	}
	data = append(data, '\n')
	if _, err := l.w.Write(data); err != nil {
		log.Error().Err(err).Msg("audit entry write failed")
	}
}
