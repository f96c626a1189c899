package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seaward/sluice/internal/entity"
	"github.com/seaward/sluice/internal/record"
)

func TestResolveExistingFirstMatchWins(t *testing.T) {
	fs := newFakeStore(testKind())
	byGUID := fs.seedEntity("article", "news", "fp", time.Now(), map[string][]entity.Tuple{
		"guid": {{entity.ValueColumn: "g-1"}},
	})
	fs.seedEntity("article", "news", "fp", time.Now(), map[string][]entity.Tuple{
		"title": {{entity.ValueColumn: "Shared Title"}},
	})

	spec := &SourceSpec{
		Name: "news",
		Kind: "article",
		Mappings: []Mapping{
			{Source: "guid", Target: "guid", Unique: true},
			{Source: "title", Target: "title", Unique: true},
		},
	}
	rec := record.New()
	rec.Set("guid", "g-1")
	rec.Set("title", "Shared Title")

	id, err := resolveExisting(context.Background(), fs, spec, testKind(), rec, discardLogger())
	if err != nil {
		t.Fatalf("resolveExisting: %v", err)
	}
	if id != byGUID {
		t.Errorf("resolved %q, want the guid match %q", id, byGUID)
	}
}

func TestResolveExistingSkipsEmptyValues(t *testing.T) {
	fs := newFakeStore(testKind())
	byTitle := fs.seedEntity("article", "news", "fp", time.Now(), map[string][]entity.Tuple{
		"title": {{entity.ValueColumn: "Fallback"}},
	})

	spec := &SourceSpec{
		Name: "news",
		Kind: "article",
		Mappings: []Mapping{
			{Source: "guid", Target: "guid", Unique: true},
			{Source: "title", Target: "title", Unique: true},
		},
	}
	rec := record.New()
	rec.Set("guid", "")
	rec.Set("title", "Fallback")

	id, err := resolveExisting(context.Background(), fs, spec, testKind(), rec, discardLogger())
	if err != nil {
		t.Fatalf("resolveExisting: %v", err)
	}
	if id != byTitle {
		t.Errorf("resolved %q, want the title match %q", id, byTitle)
	}
}

func TestResolveExistingToleratesLookupErrors(t *testing.T) {
	// A unique target whose lookup fails is treated as a non-match; the
	// remaining unique targets still resolve.
	fs := newFakeStore(testKind())
	byGUID := fs.seedEntity("article", "news", "fp", time.Now(), map[string][]entity.Tuple{
		"ref":  {{entity.ValueColumn: "r-1"}},
		"guid": {{entity.ValueColumn: "g-1"}},
	})

	flaky.setFindErr(errors.New("index offline"))
	defer flaky.setFindErr(nil)

	spec := &SourceSpec{
		Name: "news",
		Kind: "article",
		Mappings: []Mapping{
			{Source: "ref", Target: "ref", Unique: true},
			{Source: "guid", Target: "guid", Unique: true},
		},
	}
	rec := record.New()
	rec.Set("ref", "r-1")
	rec.Set("guid", "g-1")

	id, err := resolveExisting(context.Background(), fs, spec, testKind(), rec, discardLogger())
	if err != nil {
		t.Fatalf("resolveExisting: %v", err)
	}
	if id != byGUID {
		t.Errorf("resolved %q, want fallthrough to guid match %q", id, byGUID)
	}
}

func TestResolveExistingUnsearchableColumn(t *testing.T) {
	// pair's second column refuses lookups; resolution falls through.
	fs := newFakeStore(testKind())
	byGUID := fs.seedEntity("article", "news", "fp", time.Now(), map[string][]entity.Tuple{
		"meta": {{"a": "k", "b": "v"}},
		"guid": {{entity.ValueColumn: "g-1"}},
	})

	spec := &SourceSpec{
		Name: "news",
		Kind: "article",
		Mappings: []Mapping{
			{Source: "note", Target: "meta.b", Unique: true},
			{Source: "guid", Target: "guid", Unique: true},
		},
	}
	rec := record.New()
	rec.Set("note", "v")
	rec.Set("guid", "g-1")

	id, err := resolveExisting(context.Background(), fs, spec, testKind(), rec, discardLogger())
	if err != nil {
		t.Fatalf("resolveExisting: %v", err)
	}
	if id != byGUID {
		t.Errorf("resolved %q, want %q", id, byGUID)
	}
}

func TestResolveExistingNoMatch(t *testing.T) {
	fs := newFakeStore(testKind())

	rec := record.New()
	rec.Set("guid", "never-seen")

	id, err := resolveExisting(context.Background(), fs, testSpec(), testKind(), rec, discardLogger())
	if err != nil {
		t.Fatalf("resolveExisting: %v", err)
	}
	if id != "" {
		t.Errorf("resolved %q, want no match", id)
	}
}
