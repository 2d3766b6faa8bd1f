package uplink

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"beepsat/internal/cdh"
)

// Handler accepts uplink commands over HTTP POST, for ground-station links
// that bridge to IP instead of NATS. Same wire contract, same inbox.
func Handler(inbox *cdh.Inbox) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		cmd, err := Decode(body, time.Now())
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ack{Queued: false, Error: err.Error()})
			return
		}
		queued := inbox.Offer(cmd)
		status := http.StatusAccepted
		if !queued {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, ack{CorrelationID: cmd.CorrelationID, Queued: queued})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
