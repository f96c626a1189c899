package targets

// timestamp.go provides the timestamp handler and its date parsing.
//
// Source data carries dates in whatever shape the upstream system
// produced: ISO 8601, US and EU slash formats, spelled-out months, Unix
// epochs, with or without a time component. Parsing tries the unambiguous
// layouts first and interprets 2-digit years against a pivot so "69"
// means 1969, not 2069.
//
// The canonical stored form is UTC RFC 3339, which keeps fingerprints and
// lookups stable across input variations of the same instant.

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/seaward/sluice/internal/core"
)

func init() {
	core.RegisterTarget("timestamp", scalarHandler{normalize: normalizeTimestamp})
}

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Layouts split by year format for proper 2-digit year handling
var (
	dateTimeLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
	}
	fourDigitYearLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
)

// parseTimestamp parses a raw value into a time. Layouts are tried from
// most to least specific; a bare run of digits that no layout claimed is
// read as a Unix epoch in seconds.
func parseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	// 4-digit year layouts are unambiguous
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	// 2-digit year layouts with pivot year adjustment
	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, nil
		}
	}

	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(epoch, 0), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// normalizeTimestamp converts a raw value to canonical UTC RFC 3339.
func normalizeTimestamp(raw string) (string, error) {
	t, err := parseTimestamp(raw)
	if err != nil {
		return "", err
	}
	return t.UTC().Format(time.RFC3339), nil
}
