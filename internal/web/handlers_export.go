package web

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seaward/sluice/internal/logging"
)

// handleExport streams a source's entities as a JSONL download. Field keys
// match mapping target paths, so the file re-imports through a jsonl
// source unchanged.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing source name")
		return
	}

	if _, ok := s.service.Source(name); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown source: %s", name))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".jsonl"))

	written, err := s.service.ExportSource(r.Context(), name, w)
	if err != nil {
		// Headers are already sent; log and cut the stream short.
		logging.FromContext(r.Context()).Error("export failed",
			"source", name, "written", written, "error", err)
		return
	}

	logging.FromContext(r.Context()).Info("export complete", "source", name, "entities", written)
}
