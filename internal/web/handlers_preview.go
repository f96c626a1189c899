package web

// handlers_preview.go exposes the dry-run side of the pipeline: analyze
// what an import would do without writing anything.

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// maxPreviewPayload bounds uploaded preview payloads (20MB).
const maxPreviewPayload = 20 * 1024 * 1024

// handlePreview fetches the source's payload and reports the would-be
// outcome of an import right now.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing source name")
		return
	}

	result, err := s.service.Preview(r.Context(), name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// handlePreviewPayload analyzes a caller-supplied payload against the
// source's mappings. Accepts either a multipart form with a "file" field
// or the payload as the raw request body.
func (s *Server) handlePreviewPayload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing source name")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPreviewPayload)

	payload, cleanup, err := previewBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()

	result, err := s.service.PreviewPayload(r.Context(), name, payload)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// previewBody picks the payload reader out of the request: the "file"
// multipart field when the form content type is used, the body otherwise.
func previewBody(r *http.Request) (io.Reader, func(), error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		return r.Body, func() {}, nil
	}
	if err := r.ParseMultipartForm(maxPreviewPayload); err != nil {
		return nil, nil, err
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, nil, err
	}
	return file, func() { file.Close() }, nil
}
