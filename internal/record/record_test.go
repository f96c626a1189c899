package record

import (
	"reflect"
	"testing"
)

// ============================================================================
// Record Tests
// ============================================================================

func TestRecordOrderPreserved(t *testing.T) {
	r := New()
	r.Set("title", "First")
	r.Set("url", "https://example.org/1")
	r.Set("published", "2026-01-02")
	r.Add("tag", "go")
	r.Add("tag", "import")

	want := []string{"title", "url", "published", "tag"}
	if got := r.Fields(); !reflect.DeepEqual(got, want) {
		t.Errorf("Fields() = %v, want %v", got, want)
	}
	if got := r.Values("tag"); !reflect.DeepEqual(got, []string{"go", "import"}) {
		t.Errorf("Values(tag) = %v, want [go import]", got)
	}
}

func TestRecordSetReplaces(t *testing.T) {
	r := New()
	r.Add("tag", "a", "b")
	r.Set("tag", "c")

	if got := r.Values("tag"); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("Values(tag) = %v, want [c]", got)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRecordFirst(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Record
		field string
		want  string
	}{
		{
			name: "first of multi-value field",
			build: func() *Record {
				r := New()
				r.Add("tag", "x", "y")
				return r
			},
			field: "tag",
			want:  "x",
		},
		{
			name:  "absent field",
			build: func() *Record { return New() },
			field: "missing",
			want:  "",
		},
		{
			name: "field with zero values",
			build: func() *Record {
				r := New()
				r.Set("empty")
				return r
			},
			field: "empty",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.build().First(tt.field); got != tt.want {
				t.Errorf("First(%q) = %q, want %q", tt.field, got, tt.want)
			}
		})
	}
}

func TestRecordIsEmpty(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Record
		want  bool
	}{
		{
			name:  "no fields",
			build: func() *Record { return New() },
			want:  true,
		},
		{
			name: "only empty values",
			build: func() *Record {
				r := New()
				r.Set("a", "")
				r.Set("b", "", "")
				return r
			},
			want: true,
		},
		{
			name: "one non-empty value",
			build: func() *Record {
				r := New()
				r.Set("a", "")
				r.Set("b", "", "x")
				return r
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.build().IsEmpty(); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

// ============================================================================
// Fingerprint Tests
// ============================================================================

func TestFingerprintDeterministic(t *testing.T) {
	build := func() *Record {
		r := New()
		r.Set("title", "Hello")
		r.Set("body", "World")
		r.Add("tag", "a", "b")
		return r
	}

	first := Fingerprint(build(), "cfg")
	for i := 0; i < 5; i++ {
		if got := Fingerprint(build(), "cfg"); got != first {
			t.Fatalf("fingerprint changed between identical records: %s vs %s", got, first)
		}
	}
	if len(first) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(first))
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base := func() *Record {
		r := New()
		r.Set("title", "Hello")
		r.Set("body", "World")
		return r
	}
	baseFP := Fingerprint(base(), "cfg")

	tests := []struct {
		name   string
		mutate func(*Record)
		salt   string
	}{
		{
			name:   "value changed",
			mutate: func(r *Record) { r.Set("title", "Hallo") },
			salt:   "cfg",
		},
		{
			name:   "field added",
			mutate: func(r *Record) { r.Set("extra", "x") },
			salt:   "cfg",
		},
		{
			name:   "value moved between fields",
			mutate: func(r *Record) { r.Set("title", "HelloWorld"); r.Set("body", "") },
			salt:   "cfg",
		},
		{
			name:   "salt changed",
			mutate: func(r *Record) {},
			salt:   "cfg2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base()
			tt.mutate(r)
			if got := Fingerprint(r, tt.salt); got == baseFP {
				t.Errorf("fingerprint did not change")
			}
		})
	}
}

// Value boundaries must matter: ("ab","c") and ("a","bc") carry the same
// bytes but are different content.
func TestFingerprintValueBoundaries(t *testing.T) {
	a := New()
	a.Add("tag", "ab", "c")
	b := New()
	b.Add("tag", "a", "bc")

	if Fingerprint(a, "") == Fingerprint(b, "") {
		t.Error("fingerprints collide across different value boundaries")
	}
}
