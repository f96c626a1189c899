package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// PreviewSample is one record's would-be outcome, with its parsed fields
// for display.
type PreviewSample struct {
	Position int                 `json:"position"`
	Action   ProcessAction       `json:"action"`
	EntityID string              `json:"entityId,omitempty"`
	Fields   map[string][]string `json:"fields"`
	Error    string              `json:"error,omitempty"`
}

// PreviewResponse is the read-only analysis of what an import would do.
type PreviewResponse struct {
	Source           string          `json:"source"`
	Total            int             `json:"total"`
	Summary          Summary         `json:"summary"`
	Samples          []PreviewSample `json:"samples"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
}

// maxPreviewSamples bounds the per-action samples a preview returns.
const maxPreviewSamples = 20

// Preview fetches and parses a source's payload and runs every record
// through reconciliation without writing. It takes no lock and keeps no
// state; counts show what a real import would do right now.
func (s *Service) Preview(ctx context.Context, sourceName string) (*PreviewResponse, error) {
	start := time.Now()

	spec, kind, err := s.previewSpec(sourceName)
	if err != nil {
		return nil, err
	}

	fetcher, err := s.fetchers(spec.Fetch)
	if err != nil {
		return nil, err
	}
	body, err := fetcher.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer body.Close()

	return s.preview(ctx, spec, kind, body, start)
}

// PreviewPayload analyzes a caller-supplied payload against a source's
// mappings without fetching or writing. Backs upload-style preview: check
// a file against the store before publishing it where the fetcher looks.
func (s *Service) PreviewPayload(ctx context.Context, sourceName string, payload io.Reader) (*PreviewResponse, error) {
	start := time.Now()

	spec, kind, err := s.previewSpec(sourceName)
	if err != nil {
		return nil, err
	}
	return s.preview(ctx, spec, kind, payload, start)
}

func (s *Service) previewSpec(sourceName string) (*SourceSpec, *KindSpec, error) {
	spec, ok := s.sources[sourceName]
	if !ok {
		return nil, nil, fmt.Errorf("unknown source: %s", sourceName)
	}
	kind := s.kinds[spec.Kind]
	if err := ValidateSpec(spec, kind); err != nil {
		return nil, nil, err
	}
	return spec, kind, nil
}

func (s *Service) preview(ctx context.Context, spec *SourceSpec, kind *KindSpec, body io.Reader, start time.Time) (*PreviewResponse, error) {
	parser, err := s.parsers(spec.Format, spec.ParserOptions)
	if err != nil {
		return nil, err
	}

	resp := &PreviewResponse{Source: spec.Name}
	records, err := parser.Parse(ctx, body)
	if err != nil {
		if errors.Is(err, ErrEmptyFeed) {
			resp.Summary.Messages = []string{"feed contains no entries"}
			resp.ProcessingTimeMs = time.Since(start).Milliseconds()
			return resp, nil
		}
		return nil, fmt.Errorf("parse: %w", err)
	}
	resp.Total = len(records)

	log := s.log.With("source", spec.Name, "op", "preview")
	rec := newReconciler(s.store, spec, kind, true, log)

	for i, r := range records {
		res := rec.processRecord(ctx, r)
		switch res.Action {
		case ActionCreated:
			resp.Summary.Created++
		case ActionUpdated:
			resp.Summary.Updated++
		case ActionSkipped:
			resp.Summary.Skipped++
		case ActionFailed:
			resp.Summary.Failed++
		}

		if res.Action == ActionSkipped || len(resp.Samples) >= maxPreviewSamples {
			continue
		}
		sample := PreviewSample{
			Position: i + 1,
			Action:   res.Action,
			EntityID: res.EntityID,
			Fields:   make(map[string][]string, r.Len()),
		}
		for _, name := range r.Fields() {
			sample.Fields[name] = append([]string(nil), r.Values(name)...)
		}
		if res.Err != nil {
			sample.Error = res.Err.Error()
		}
		resp.Samples = append(resp.Samples, sample)
	}

	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}
