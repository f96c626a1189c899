package web

// handlers_ops.go triggers source operations and streams their progress.
// A trigger starts a background driver that invokes chunks until the
// operation completes; clients follow along over SSE and read the final
// counts from run history.

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seaward/sluice/internal/core"
	"github.com/seaward/sluice/internal/logging"
)

// triggerHandler returns the handler that starts op for the named source.
func (s *Server) triggerHandler(op core.OperationKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if name == "" {
			writeError(w, http.StatusBadRequest, "missing source name")
			return
		}

		if err := s.service.StartOperation(r.Context(), name, op); err != nil {
			s.respondError(w, r, err)
			return
		}

		logging.FromContext(r.Context()).Info("operation triggered",
			"source", name, "op", string(op))

		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, map[string]string{
			"source": name,
			"op":     string(op),
			"status": "started",
		})
	}
}

// parseOp validates the {op} URL parameter.
func parseOp(r *http.Request) (core.OperationKind, error) {
	switch op := core.OperationKind(chi.URLParam(r, "op")); op {
	case core.OpImport, core.OpClear, core.OpExpire:
		return op, nil
	default:
		return "", fmt.Errorf("unknown operation %q", chi.URLParam(r, "op"))
	}
}

// handleProgress streams operation progress via Server-Sent Events. Each
// progress event carries the persisted checkpoint; a final complete event
// closes the stream.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	op, err := parseOp(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	progressCh, err := s.service.SubscribeProgress(name, op)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed: the run finished or was cancelled
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", progress.Percent(), data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleCancel stops a background driver between chunks. The operation
// keeps its checkpoint and lock, so a later trigger resumes it.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	op, err := parseOp(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.service.CancelOperation(name, op); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "cancelled"})
}

// handleUnlock force-releases a source's persisted lock. For recovering
// from a crashed run; the interrupted operation resumes from its
// checkpoint on the next trigger.
func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing source name")
		return
	}

	if err := s.service.ForceUnlock(r.Context(), name); err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Warn("lock force released via API", "source", name)
	writeJSON(w, map[string]string{"status": "unlocked"})
}
