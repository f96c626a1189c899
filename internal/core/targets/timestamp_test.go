package targets

import (
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// parseTimestamp Tests
// ----------------------------------------------------------------------------

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string // UTC RFC 3339 of the expected instant
	}{
		// ISO / RFC formats
		{name: "rfc3339", input: "2024-03-15T10:30:00Z", want: "2024-03-15T10:30:00Z"},
		{name: "rfc3339 with offset", input: "2024-03-15T10:30:00+02:00", want: "2024-03-15T08:30:00Z"},
		{name: "datetime with space", input: "2024-03-15 10:30:00", want: "2024-03-15T10:30:00Z"},
		{name: "rfc1123z", input: "Fri, 15 Mar 2024 10:30:00 +0000", want: "2024-03-15T10:30:00Z"},

		// Date-only formats
		{name: "iso date", input: "2024-03-15", want: "2024-03-15T00:00:00Z"},
		{name: "us slash date", input: "3/15/2024", want: "2024-03-15T00:00:00Z"},
		{name: "padded us slash date", input: "03/15/2024", want: "2024-03-15T00:00:00Z"},
		{name: "dotted date", input: "15.03.2024", want: "2024-03-15T00:00:00Z"},
		{name: "spelled month", input: "Mar 15, 2024", want: "2024-03-15T00:00:00Z"},
		{name: "compact date", input: "20240315", want: "2024-03-15T00:00:00Z"},

		// 2-digit years pivot into the right century
		{name: "two digit year past", input: "12/31/99", want: "1999-12-31T00:00:00Z"},
		{name: "two digit year recent", input: "1/2/24", want: "2024-01-02T00:00:00Z"},

		// Unix epoch seconds
		{name: "unix epoch", input: "1710498600", want: "2024-03-15T10:30:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTimestamp(tt.input)
			if err != nil {
				t.Fatalf("parseTimestamp(%q) error: %v", tt.input, err)
			}
			if formatted := got.UTC().Format(time.RFC3339); formatted != tt.want {
				t.Errorf("parseTimestamp(%q) = %s, want %s", tt.input, formatted, tt.want)
			}
		})
	}
}

func TestParseTimestampInvalid(t *testing.T) {
	invalid := []string{"", "not a date", "13/32/2024", "2024-13-45"}
	for _, in := range invalid {
		if _, err := parseTimestamp(in); err == nil {
			t.Errorf("parseTimestamp(%q) succeeded, want error", in)
		}
	}
}

// ----------------------------------------------------------------------------
// normalizeTimestamp Tests
// ----------------------------------------------------------------------------

// Different spellings of the same instant must normalize identically, or
// unchanged records would re-import whenever the upstream reformats dates.
func TestNormalizeTimestampCanonical(t *testing.T) {
	a, err := normalizeTimestamp("2024-03-15T10:30:00+00:00")
	if err != nil {
		t.Fatal(err)
	}
	b, err := normalizeTimestamp("Fri, 15 Mar 2024 12:30:00 +0200")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("same instant normalized differently: %q vs %q", a, b)
	}
}
