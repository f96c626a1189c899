package core

import (
	"context"
	"testing"
)

func TestSourceStatusIdle(t *testing.T) {
	fs := newFakeStore(testKind())
	svc := newTestService(t, fs, &staticFetcher{payload: fiveLines}, testSpec(), testKind())

	st, err := svc.SourceStatus(context.Background(), "news")
	if err != nil {
		t.Fatalf("SourceStatus: %v", err)
	}
	if st.Name != "news" || st.Kind != "article" {
		t.Errorf("status = %s/%s, want news/article", st.Name, st.Kind)
	}
	if st.EntityCount != 0 {
		t.Errorf("EntityCount = %d, want 0", st.EntityCount)
	}
	if len(st.Active) != 0 {
		t.Errorf("Active = %v, want none", st.Active)
	}
	if st.LastRun != nil {
		t.Errorf("LastRun = %+v, want nil", st.LastRun)
	}
}

func TestSourceStatusMidRun(t *testing.T) {
	fs := newFakeStore(testKind())
	spec := testSpec()
	spec.ChunkLimit = 2
	svc := newTestService(t, fs, &staticFetcher{payload: fiveLines}, spec, testKind())
	ctx := context.Background()

	if _, err := svc.RunChunk(ctx, "news", OpImport); err != nil {
		t.Fatalf("chunk 1: %v", err)
	}

	st, err := svc.SourceStatus(ctx, "news")
	if err != nil {
		t.Fatalf("SourceStatus: %v", err)
	}
	prog, ok := st.Active[OpImport]
	if !ok {
		t.Fatalf("no active import in status, got %v", st.Active)
	}
	if prog.Processed != 2 || prog.Total != 5 {
		t.Errorf("active progress = %d/%d, want 2/5", prog.Processed, prog.Total)
	}
	// Clear and expire stay idle even while the import runs.
	if _, ok := st.Active[OpClear]; ok {
		t.Error("clear reported active")
	}
}

func TestSourceStatusAfterCompletion(t *testing.T) {
	fs := newFakeStore(testKind())
	svc := newTestService(t, fs, &staticFetcher{payload: fiveLines}, testSpec(), testKind())
	ctx := context.Background()

	if _, err := svc.RunChunk(ctx, "news", OpImport); err != nil {
		t.Fatalf("import: %v", err)
	}

	st, err := svc.SourceStatus(ctx, "news")
	if err != nil {
		t.Fatalf("SourceStatus: %v", err)
	}
	if st.EntityCount != 5 {
		t.Errorf("EntityCount = %d, want 5", st.EntityCount)
	}
	if len(st.Active) != 0 {
		t.Errorf("Active = %v, want none after completion", st.Active)
	}
	if st.LastRun == nil {
		t.Fatal("LastRun missing after completed import")
	}
	if st.LastRun.Status != "complete" || st.LastRun.Created != 5 {
		t.Errorf("LastRun = %s created %d, want complete created 5",
			st.LastRun.Status, st.LastRun.Created)
	}
}

func TestAllSourceStatusesOrder(t *testing.T) {
	fs := newFakeStore(testKind())
	first := testSpec()
	second := testSpec()
	second.Name = "archive"

	svc, err := NewService(ServiceOptions{
		Store:    fs,
		Fetchers: func(FetchSpec) (Fetcher, error) { return &staticFetcher{payload: fiveLines}, nil },
		Parsers:  func(string, map[string]string) (Parser, error) { return lineParser{}, nil },
		Sources:  []*SourceSpec{first, second},
		Kinds:    []*KindSpec{testKind()},
		SpoolDir: t.TempDir(),
		Logger:   discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	statuses, err := svc.AllSourceStatuses(context.Background())
	if err != nil {
		t.Fatalf("AllSourceStatuses: %v", err)
	}
	if len(statuses) != 2 || statuses[0].Name != "news" || statuses[1].Name != "archive" {
		t.Errorf("statuses out of declaration order: %v", statuses)
	}
}

func TestSourceStatusUnknownSource(t *testing.T) {
	fs := newFakeStore(testKind())
	svc := newTestService(t, fs, &staticFetcher{}, testSpec(), testKind())

	if _, err := svc.SourceStatus(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown source")
	}
}
