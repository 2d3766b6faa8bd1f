package uplink

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"beepsat/internal/cdh"
	"beepsat/internal/domain"
)

func TestHandler_QueuesCommand(t *testing.T) {
	inbox := cdh.NewInbox(4)
	h := Handler(inbox)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/command",
		strings.NewReader(`{"command_id":1,"correlation_id":"cmd_x"}`))
	w := httptest.NewRecorder()
	h(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	if inbox.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", inbox.Pending())
	}
	if !strings.Contains(w.Body.String(), `"queued":true`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestHandler_MalformedBody(t *testing.T) {
	inbox := cdh.NewInbox(4)
	h := Handler(inbox)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/command", strings.NewReader(`{"command_id":`))
	w := httptest.NewRecorder()
	h(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if inbox.Pending() != 0 {
		t.Fatal("malformed command queued")
	}
}

func TestHandler_FullInbox(t *testing.T) {
	inbox := cdh.NewInbox(1)
	inbox.Offer(domain.Command{ID: domain.CmdStatus})
	h := Handler(inbox)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/command", strings.NewReader(`{"command_id":1}`))
	w := httptest.NewRecorder()
	h(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}
