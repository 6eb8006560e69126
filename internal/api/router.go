package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/hubs", func(r chi.Router) {
			r.Get("/", s.handleListHubs)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetHub)
				r.Get("/state", s.handleGetHubState)
			})
		})
	})

	return r
}

// handleHealth returns service health plus broker and hub connectivity.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	connected := 0
	for _, b := range s.bridges {
		if b.Metrics().Connected {
			connected++
		}
	}

	body := map[string]any{
		"status":         "ok",
		"version":        s.version,
		"hubs":           len(s.bridges),
		"hubs_connected": connected,
	}
	if s.broker != nil {
		body["mqtt_connected"] = s.broker.IsConnected()
	}
	writeJSON(w, http.StatusOK, body)
}

// handleMetrics returns an aggregate operational snapshot across all hubs.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	hubs := make([]any, 0, len(s.bridges))
	connected := 0
	for _, b := range s.bridges {
		m := b.Metrics()
		if m.Connected {
			connected++
		}
		hubs = append(hubs, m)
	}

	body := map[string]any{
		"hubs":           hubs,
		"hubs_total":     len(s.bridges),
		"hubs_connected": connected,
	}
	if s.broker != nil {
		body["mqtt_connected"] = s.broker.IsConnected()
	}
	writeJSON(w, http.StatusOK, body)
}

// handleListHubs returns the per-hub summaries.
func (s *Server) handleListHubs(w http.ResponseWriter, _ *http.Request) {
	hubs := make([]any, 0, len(s.bridges))
	for _, b := range s.bridges {
		hubs = append(hubs, b.Metrics())
	}
	writeJSON(w, http.StatusOK, map[string]any{"hubs": hubs})
}

// handleGetHub returns one hub's summary.
func (s *Server) handleGetHub(w http.ResponseWriter, r *http.Request) {
	b := s.findBridge(chi.URLParam(r, "id"))
	if b == nil {
		writeNotFound(w, "unknown hub")
		return
	}
	writeJSON(w, http.StatusOK, b.Metrics())
}

// handleGetHubState returns one hub's full live state, the same shape
// published on the hub's MQTT state topic.
func (s *Server) handleGetHubState(w http.ResponseWriter, r *http.Request) {
	b := s.findBridge(chi.URLParam(r, "id"))
	if b == nil {
		writeNotFound(w, "unknown hub")
		return
	}
	writeJSON(w, http.StatusOK, b.State())
}
