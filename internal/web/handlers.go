package web

// handlers.go covers the read-only API: health, source catalog, source
// status, and run history.

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// handleHealth reports process liveness and how many runs are active.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.service.RunnerStatus()
	writeJSON(w, map[string]any{
		"status":      "ok",
		"active_runs": status.Active,
	})
}

// handleListSources returns the operational snapshot of every configured
// source.
func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.service.AllSourceStatuses(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, statuses)
}

// handleSourceStatus returns the snapshot of one source.
func (s *Server) handleSourceStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing source name")
		return
	}

	status, err := s.service.SourceStatus(r.Context(), name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, status)
}

// handleRuns returns run history, newest first. Query parameters: source
// filters to one source, limit caps the row count (default 50).
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	limit := parseIntParam(r, "limit", 50)

	runs, err := s.service.Store().Runs(r.Context(), source, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, runs)
}

// handleActiveRuns lists the source/operation pairs with a live background
// driver.
func (s *Server) handleActiveRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"active": s.service.ActiveRuns()})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
