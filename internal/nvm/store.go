// Package nvm persists the counters and flags that must survive power loss
// and hard resets. The durable record is a small key/value table; an
// in-memory mirror is loaded once at boot and every mutation is written
// through before control returns to the caller.
package nvm

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"beepsat/internal/domain"
)

const (
	keyBootCount     = "boot_count"
	keyResetCount    = "reset_count"
	keyStateErrors   = "state_errors"
	keyLastFaultCode = "last_fault_code"
	keyCmdAccepted   = "cmd_accepted"
	keyCmdRejected   = "cmd_rejected"
	keyGSResponses   = "gs_responses"
	keyVbusResets    = "vbus_resets"
	keyChargeCycles  = "charge_cycles"
	keyArmedFlags    = "armed_flags"
)

// Store is the SQLite-backed persistent state store.
type Store struct {
	db     *sql.DB
	mirror domain.Counters
}

// Open opens (creating if needed) the NVM database at path and loads the
// last-known record into the mirror. A missing record means first boot:
// zeroed defaults.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open nvm db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure nvm schema: %w", err)
	}

	s := &Store{db: db}
	if err := s.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load nvm record: %w", err)
	}
	return s, nil
}

func ensureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS nvm (
  key TEXT PRIMARY KEY,
  value INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	_, err := db.Exec(schema)
	return err
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT key, value FROM nvm`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var c domain.Counters
	for rows.Next() {
		var key string
		var value int64
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		setField(&c, key, value)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	s.mirror = c
	return nil
}

// Counters returns a copy of the in-memory mirror.
func (s *Store) Counters() domain.Counters {
	return s.mirror
}

// Mutate applies fn to the mirror and writes the changed fields through to
// disk before returning. A power loss after return has already captured the
// new values; a loss during the write leaves the previous ones. Fields are
// written independently, so callers must keep each counter meaningful on
// its own.
func (s *Store) Mutate(fn func(*domain.Counters)) error {
	next := s.mirror
	fn(&next)

	prev := fields(s.mirror)
	curr := fields(next)
	s.mirror = next

	for key, value := range curr {
		if prev[key] == value {
			continue
		}
		_, err := s.db.Exec(`
INSERT INTO nvm (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=CURRENT_TIMESTAMP
`, key, value)
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("nvm write-through failed")
			return fmt.Errorf("nvm write %s: %w", key, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func fields(c domain.Counters) map[string]int64 {
	return map[string]int64{
		keyBootCount:     int64(c.BootCount),
		keyResetCount:    int64(c.ResetCount),
		keyStateErrors:   int64(c.StateErrors),
		keyLastFaultCode: int64(c.LastFaultCode),
		keyCmdAccepted:   int64(c.CmdAccepted),
		keyCmdRejected:   int64(c.CmdRejected),
		keyGSResponses:   int64(c.GSResponses),
		keyVbusResets:    int64(c.VbusResets),
		keyChargeCycles:  int64(c.ChargeCycles),
		keyArmedFlags:    int64(c.ArmedFlags),
	}
}

func setField(c *domain.Counters, key string, value int64) {
	switch key {
	case keyBootCount:
		c.BootCount = uint32(value)
	case keyResetCount:
		c.ResetCount = uint32(value)
	case keyStateErrors:
		c.StateErrors = uint32(value)
	case keyLastFaultCode:
		c.LastFaultCode = domain.FaultCode(value)
	case keyCmdAccepted:
		c.CmdAccepted = uint32(value)
	case keyCmdRejected:
		c.CmdRejected = uint32(value)
	case keyGSResponses:
		c.GSResponses = uint32(value)
	case keyVbusResets:
		c.VbusResets = uint32(value)
	case keyChargeCycles:
		c.ChargeCycles = uint32(value)
	case keyArmedFlags:
		c.ArmedFlags = domain.ArmFlag(value)
	}
}
