package telemetry

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"beepsat/internal/cdh"
	"beepsat/internal/uplink"
)

// NewServer builds the ground-debug HTTP surface: health, telemetry pull,
// task table, and the HTTP uplink bridge.
func NewServer(hub *Hub, inbox *cdh.Inbox) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	s := &server{hub: hub}
	r.Get("/health", s.health)
	r.Get("/api/v1/telemetry", s.latest)
	r.Get("/api/v1/tasks", s.tasks)
	r.Post("/api/v1/command", uplink.Handler(inbox))
	return r
}

type server struct {
	hub *Hub
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *server) latest(w http.ResponseWriter, r *http.Request) {
	frame, ok := s.hub.Latest()
	if !ok {
		http.Error(w, "no telemetry yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, frame)
}

func (s *server) tasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Tasks())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
