package telemetry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"beepsat/internal/cdh"
)

func newTestServer(t *testing.T) (*Hub, *cdh.Inbox, *httptest.Server) {
	t.Helper()
	hub := NewHub()
	inbox := cdh.NewInbox(4)
	srv := httptest.NewServer(NewServer(hub, inbox))
	t.Cleanup(srv.Close)
	return hub, inbox, srv
}

func TestServer_Health(t *testing.T) {
	_, _, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestServer_TelemetryBeforeAndAfterPublish(t *testing.T) {
	hub, _, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/telemetry")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status before publish = %d, want 503", resp.StatusCode)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tasks, sys := sampleSnapshots(now)
	hub.Publish(Assemble(now, tasks, sys, sampleReadings()), tasks)

	resp, err = http.Get(srv.URL + "/api/v1/telemetry")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var frame Frame
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.NVMCounters.BootCount != 4 {
		t.Fatalf("boot_count = %d", frame.NVMCounters.BootCount)
	}
}

func TestServer_CommandBridgeFeedsInbox(t *testing.T) {
	_, inbox, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/command", "application/json",
		strings.NewReader(`{"command_id":1}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if inbox.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", inbox.Pending())
	}
}
