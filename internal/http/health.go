package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) mountHealth(r chi.Router) {
	// Liveness: never touches the datastore.
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		now := s.now()
		writeJSON(w, http.StatusOK, healthResponse{
			Status:    "healthy",
			Timestamp: isoTime(now),
			Uptime:    now.Sub(s.started).Seconds(),
		})
	})

	// Status: probes the datastore on every call.
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		rep := s.svc.Probe(r.Context())
		if rep.Operational() {
			writeJSON(w, http.StatusOK, statusResponse{
				Status:      string(rep.Status),
				Timestamp:   isoTime(rep.Timestamp),
				Database:    string(rep.Database),
				Environment: rep.Environment,
			})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, statusResponse{
			Status:    string(rep.Status),
			Timestamp: isoTime(rep.Timestamp),
			Database:  string(rep.Database),
			Error:     rep.Error,
		})
	})
}
