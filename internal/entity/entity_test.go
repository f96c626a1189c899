package entity

import (
	"reflect"
	"testing"
)

func TestEntityTuples(t *testing.T) {
	e := New("article")
	e.SetTuples("link", []Tuple{
		{"url": "https://example.org", "title": "Example"},
		{"url": "https://example.net", "title": ""},
	})

	if got := e.Value("link", "url"); got != "https://example.org" {
		t.Errorf("Value(link, url) = %q, want example.org URL", got)
	}
	if got := len(e.Tuples("link")); got != 2 {
		t.Errorf("len(Tuples) = %d, want 2", got)
	}

	e.Clear("link")
	if e.Tuples("link") != nil {
		t.Error("Clear did not remove field")
	}
}

func TestEntitySetTuplesEmptyClears(t *testing.T) {
	e := New("article")
	e.SetTuples("title", []Tuple{{ValueColumn: "x"}})
	e.SetTuples("title", nil)
	if _, ok := e.Fields["title"]; ok {
		t.Error("SetTuples(nil) should remove the field")
	}
}

func TestEntityClone(t *testing.T) {
	e := New("article")
	e.ID = "42"
	e.SetTuples("title", []Tuple{{ValueColumn: "original"}})

	c := e.Clone()
	c.Tuples("title")[0][ValueColumn] = "changed"

	if got := e.Value("title", ValueColumn); got != "original" {
		t.Errorf("clone mutation leaked into source: %q", got)
	}
	if !reflect.DeepEqual(c.ID, e.ID) || c.Kind != e.Kind {
		t.Error("clone lost identity fields")
	}
}

func TestViolationsError(t *testing.T) {
	v := Violations{
		{Field: "title", Message: "required"},
		{Field: "published", Message: "not a date"},
	}
	want := "validation failed: title: required; published: not a date"
	if got := v.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
