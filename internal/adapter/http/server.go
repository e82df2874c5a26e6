// Package adapthttp implements the HTTP adapter for the application.
package adapthttp

import (
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"carelytics/internal/app"
)

// Server is the driving HTTP adapter that routes requests to application
// services.
type Server struct {
	patients *app.PatientService
	log      *zap.Logger

	rateLimit rate.Limit
	burst     int
}

// New creates a Server wired to the given application service.
func New(ps *app.PatientService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{patients: ps, log: log}
}

// WithRateLimit enables a per-client token bucket of rps requests per second.
// A non-positive rps leaves rate limiting off.
func (s *Server) WithRateLimit(rps float64, burst int) *Server {
	if rps > 0 {
		s.rateLimit = rate.Limit(rps)
		s.burst = max(burst, 1)
	}
	return s
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, r, http.StatusOK, map[string]any{"ok": true})
	})

	mux.HandleFunc("GET /view", s.handleView)
	mux.HandleFunc("POST /create", s.handleCreate)
	mux.HandleFunc("PUT /edit/{id}", s.handleEdit)
	mux.HandleFunc("DELETE /delete/{id}", s.handleDelete)

	var h http.Handler = withNoCache(mux)
	if s.rateLimit > 0 {
		h = s.rateLimitMiddleware(h)
	}
	h = s.loggingMiddleware(h)
	h = requestIDMiddleware(h)
	return s.recoverMiddleware(h)
}
