package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"beepsat/internal/domain"
)

func TestRecord_WritesOneJSONLinePerEntry(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cmd := domain.Command{ID: domain.CmdArm, CorrelationID: "cmd_42"}
	l.Record(cmd, "cmd.uplink", OutcomeAccepted, "armed deploy", now)
	l.Record(cmd, "cmd.uplink", OutcomeRejected, "not authenticated", now.Add(time.Second))

	sc := bufio.NewScanner(&buf)
	var entries []Entry
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line not valid JSON: %v", err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("wrote %d entries, want 2", len(entries))
	}

	first := entries[0]
	if first.Command != "ARM" {
		t.Fatalf("cmd = %q", first.Command)
	}
	if first.CorrelationID != "cmd_42" || first.Subject != "cmd.uplink" {
		t.Fatalf("entry = %+v", first)
	}
	if first.Outcome != OutcomeAccepted || first.Detail != "armed deploy" {
		t.Fatalf("entry = %+v", first)
	}
	if !first.Timestamp.Equal(now) {
		t.Fatalf("ts = %v", first.Timestamp)
	}
	if entries[1].Outcome != OutcomeRejected {
		t.Fatalf("second outcome = %q", entries[1].Outcome)
	}
}
