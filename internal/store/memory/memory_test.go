package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seaward/sluice/internal/core"
	"github.com/seaward/sluice/internal/entity"
)

func testKinds() []*core.KindSpec {
	return []*core.KindSpec{
		{
			Name: "article",
			Fields: []core.FieldSpec{
				{Name: "title", Handler: "text", Required: true},
				{Name: "guid", Handler: "text"},
			},
		},
	}
}

func newEntity(t *testing.T, title string) *entity.Entity {
	t.Helper()
	ent := entity.New("article")
	ent.SetTuples("title", []entity.Tuple{{entity.ValueColumn: title}})
	return ent
}

func meta(source, fp string, at time.Time) *entity.ItemMetadata {
	return &entity.ItemMetadata{SourceName: source, Fingerprint: fp, ImportedAt: at}
}

// ----------------------------------------------------------------------------
// Entity CRUD Tests
// ----------------------------------------------------------------------------

func TestCreateAssignsIDAndIsolates(t *testing.T) {
	s := New(testKinds())
	ctx := context.Background()

	ent := newEntity(t, "first")
	if err := s.Create(ctx, ent, meta("feed", "fp1", time.Now())); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ent.ID == "" {
		t.Fatal("Create did not assign an ID")
	}

	// Mutating the caller's entity must not reach the stored copy
	ent.SetTuples("title", []entity.Tuple{{entity.ValueColumn: "mutated"}})

	loaded, err := s.Load(ctx, "article", ent.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := loaded.Value("title", entity.ValueColumn); got != "first" {
		t.Errorf("stored title = %q, want %q", got, "first")
	}
}

func TestLoadWrongKind(t *testing.T) {
	s := New(testKinds())
	ctx := context.Background()

	ent := newEntity(t, "x")
	if err := s.Create(ctx, ent, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx, "comment", ent.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Load with wrong kind = %v, want ErrNotFound", err)
	}
}

func TestSaveUnknownEntity(t *testing.T) {
	s := New(testKinds())
	ent := newEntity(t, "x")
	ent.ID = "nope"

	if err := s.Save(context.Background(), ent, nil); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Save = %v, want ErrNotFound", err)
	}
}

func TestQueryOldestFirst(t *testing.T) {
	s := New(testKinds())
	ctx := context.Background()

	var ids []string
	for _, title := range []string{"dup", "other", "dup"} {
		ent := newEntity(t, title)
		if err := s.Create(ctx, ent, nil); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, ent.ID)
	}

	got, err := s.Query(ctx, "article", "title", entity.ValueColumn, "dup")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 || got[0] != ids[0] || got[1] != ids[2] {
		t.Errorf("Query = %v, want [%s %s]", got, ids[0], ids[2])
	}
}

func TestDeleteRemovesMetadataEverywhere(t *testing.T) {
	s := New(testKinds())
	ctx := context.Background()

	ent := newEntity(t, "x")
	if err := s.Create(ctx, ent, meta("feed-a", "fp", time.Now())); err != nil {
		t.Fatal(err)
	}
	// Same entity tracked by a second source
	if err := s.Save(ctx, ent, &entity.ItemMetadata{
		SourceName: "feed-b", EntityID: ent.ID, Fingerprint: "fp", ImportedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(ctx, "article", ent.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	for _, source := range []string{"feed-a", "feed-b"} {
		if _, err := s.Metadata(ctx, source, ent.ID); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("metadata for %s survived delete: %v", source, err)
		}
	}
}

// ----------------------------------------------------------------------------
// Metadata Tests
// ----------------------------------------------------------------------------

func TestMetadataBySourceOrderingAndFilter(t *testing.T) {
	s := New(testKinds())
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, age := range []time.Duration{2 * time.Hour, 0, time.Hour} {
		ent := newEntity(t, "x")
		if err := s.Create(ctx, ent, meta("feed", "fp", base.Add(-age))); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.MetadataBySource(ctx, "feed", time.Time{}, 0)
	if err != nil {
		t.Fatalf("MetadataBySource: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d rows, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ImportedAt.Before(all[i-1].ImportedAt) {
			t.Errorf("rows not oldest first: %v", all)
		}
	}

	old, err := s.MetadataBySource(ctx, "feed", base.Add(-30*time.Minute), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(old) != 2 {
		t.Errorf("olderThan filter returned %d rows, want 2", len(old))
	}

	limited, err := s.MetadataBySource(ctx, "feed", time.Time{}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limit returned %d rows, want 1", len(limited))
	}
}

// ----------------------------------------------------------------------------
// Lock Tests
// ----------------------------------------------------------------------------

func TestLockExclusionAndReacquire(t *testing.T) {
	s := New(testKinds())
	ctx := context.Background()

	if err := s.AcquireLock(ctx, "feed", "run-1"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	// Same holder may re-acquire
	if err := s.AcquireLock(ctx, "feed", "run-1"); err != nil {
		t.Errorf("re-acquire by holder: %v", err)
	}
	// A different holder may not
	if err := s.AcquireLock(ctx, "feed", "run-2"); !errors.Is(err, core.ErrSourceLocked) {
		t.Errorf("acquire by other holder = %v, want ErrSourceLocked", err)
	}

	if err := s.ReleaseLock(ctx, "feed"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := s.AcquireLock(ctx, "feed", "run-2"); err != nil {
		t.Errorf("acquire after release: %v", err)
	}
}

// ----------------------------------------------------------------------------
// Progress Tests
// ----------------------------------------------------------------------------

func TestProgressRoundTrip(t *testing.T) {
	s := New(testKinds())
	ctx := context.Background()

	if _, err := s.Progress(ctx, "feed", core.OpImport); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Progress before save = %v, want ErrNotFound", err)
	}

	st := &core.ProgressState{Phase: core.PhaseRunning, RunID: "r1", Total: 10, Processed: 4}
	st.AddMessage("record 2: bad date")
	if err := s.SaveProgress(ctx, "feed", core.OpImport, st); err != nil {
		t.Fatal(err)
	}

	// Progress is keyed by operation as well as source
	if _, err := s.Progress(ctx, "feed", core.OpClear); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Progress for other op = %v, want ErrNotFound", err)
	}

	got, err := s.Progress(ctx, "feed", core.OpImport)
	if err != nil {
		t.Fatal(err)
	}
	if got.Processed != 4 || got.RunID != "r1" || len(got.Messages) != 1 {
		t.Errorf("Progress = %+v", got)
	}

	if err := s.ClearProgress(ctx, "feed", core.OpImport); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Progress(ctx, "feed", core.OpImport); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Progress after clear = %v, want ErrNotFound", err)
	}
}

// ----------------------------------------------------------------------------
// Run History Tests
// ----------------------------------------------------------------------------

func TestRunsNewestFirst(t *testing.T) {
	s := New(testKinds())
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3"} {
		if err := s.RecordRun(ctx, &core.RunRecord{RunID: id, Source: "feed", Op: core.OpImport}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.RecordRun(ctx, &core.RunRecord{RunID: "other", Source: "else", Op: core.OpImport}); err != nil {
		t.Fatal(err)
	}

	runs, err := s.Runs(ctx, "feed", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].RunID != "r3" || runs[1].RunID != "r2" {
		t.Errorf("Runs = %v, want [r3 r2]", runs)
	}

	all, err := s.Runs(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("Runs with empty source = %d rows, want 4", len(all))
	}
}

// ----------------------------------------------------------------------------
// Validation Tests
// ----------------------------------------------------------------------------

func TestValidateRequiredField(t *testing.T) {
	s := New(testKinds())
	ctx := context.Background()

	ent := entity.New("article") // no title
	violations, err := s.Validate(ctx, ent)
	if err != nil {
		t.Fatal(err)
	}
	if len(violations) != 1 || violations[0].Field != "title" {
		t.Errorf("violations = %v, want required title", violations)
	}

	ok := newEntity(t, "has title")
	violations, err = s.Validate(ctx, ok)
	if err != nil {
		t.Fatal(err)
	}
	if violations != nil {
		t.Errorf("valid entity produced violations: %v", violations)
	}
}
