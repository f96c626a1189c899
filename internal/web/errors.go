package web

// errors.go maps pipeline errors onto HTTP responses. Technical detail is
// logged with the request ID for correlation; clients get a JSON body with
// the message and status.

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/seaward/sluice/internal/core"
	"github.com/seaward/sluice/internal/logging"
)

// respondError logs err with request context and writes the JSON error
// response for it.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"request_id", middleware.GetReqID(r.Context()),
	)

	writeError(w, status, err.Error())
}

// statusFor classifies a pipeline error into an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrSourceLocked), errors.Is(err, core.ErrOperationActive):
		return http.StatusConflict
	case errors.Is(err, core.ErrNotFound), isUnknown(err):
		return http.StatusNotFound
	case errors.Is(err, core.ErrEmptyFeed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// isUnknown matches the "unknown source"/"no active" lookup failures the
// service reports as plain errors.
func isUnknown(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown source") || strings.HasPrefix(msg, "no active")
}
