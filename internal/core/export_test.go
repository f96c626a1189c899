package core

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestExportSourceJSONL(t *testing.T) {
	fs := newFakeStore(testKind())
	svc := newTestService(t, fs, &staticFetcher{payload: fiveLines}, testSpec(), testKind())
	ctx := context.Background()

	if _, err := svc.RunChunk(ctx, "news", OpImport); err != nil {
		t.Fatalf("import: %v", err)
	}

	var buf bytes.Buffer
	written, err := svc.ExportSource(ctx, "news", &buf)
	if err != nil {
		t.Fatalf("ExportSource: %v", err)
	}
	if written != 5 {
		t.Errorf("written = %d, want 5", written)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5", len(lines))
	}

	// Oldest import first: the first line is the first record in.
	var row map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &row); err != nil {
		t.Fatalf("line 1 is not JSON: %v", err)
	}
	if row["guid"] != "g1" || row["title"] != "A" {
		t.Errorf("line 1 = %v, want guid g1 title A", row)
	}
}

func TestExportSourceEmpty(t *testing.T) {
	fs := newFakeStore(testKind())
	svc := newTestService(t, fs, &staticFetcher{}, testSpec(), testKind())

	var buf bytes.Buffer
	written, err := svc.ExportSource(context.Background(), "news", &buf)
	if err != nil {
		t.Fatalf("ExportSource: %v", err)
	}
	if written != 0 || buf.Len() != 0 {
		t.Errorf("empty source exported %d entities, %d bytes", written, buf.Len())
	}
}

func TestExportSourceUnknown(t *testing.T) {
	fs := newFakeStore(testKind())
	svc := newTestService(t, fs, &staticFetcher{}, testSpec(), testKind())

	var buf bytes.Buffer
	if _, err := svc.ExportSource(context.Background(), "nope", &buf); err == nil {
		t.Fatal("expected error for unknown source")
	}
}
