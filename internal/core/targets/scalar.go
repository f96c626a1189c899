package targets

// scalar.go provides the integer, decimal, and boolean handlers.
//
// These handlers deal with the messy reality of user-provided data:
//   - Currency symbols and thousand separators in numbers
//   - Accounting format (parentheses for negative)
//   - Various boolean representations (yes/no, true/false, 1/0)
//
// Values are stored in canonical form so that fingerprints and unique-key
// lookups are stable across cosmetic variations of the same value.

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/seaward/sluice/internal/core"
	"github.com/seaward/sluice/internal/entity"
)

func init() {
	core.RegisterTarget("integer", scalarHandler{normalize: normalizeInteger})
	core.RegisterTarget("decimal", scalarHandler{normalize: normalizeDecimal})
	core.RegisterTarget("boolean", scalarHandler{normalize: normalizeBoolean})
}

// scalarHandler is the shared shape of the single-column normalizing
// handlers. Empty values drop out of the tuple set; anything else must
// normalize or the record fails. Lookups normalize the probe value the
// same way, so "1,000" finds an entity stored as "1000".
type scalarHandler struct {
	normalize func(string) (string, error)
}

func (h scalarHandler) Columns() []string { return []string{entity.ValueColumn} }

func (h scalarHandler) SetValues(ent *entity.Entity, field string, tuples []entity.Tuple) error {
	kept := make([]entity.Tuple, 0, len(tuples))
	for _, tu := range tuples {
		raw := tu[entity.ValueColumn]
		if strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := h.normalize(raw)
		if err != nil {
			return err
		}
		kept = append(kept, entity.Tuple{entity.ValueColumn: v})
	}
	ent.SetTuples(field, kept)
	return nil
}

func (h scalarHandler) FindByValue(ctx context.Context, store core.Store, kind, field, column, value string) ([]string, error) {
	v, err := h.normalize(value)
	if err != nil {
		return nil, err
	}
	return store.Query(ctx, kind, field, column, v)
}

// numericRegex validates that a string is a valid numeric format after
// cleanup. Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// cleanNumber strips currency symbols, thousands separators, and accounting
// parentheses from a numeric string. Returns the bare signed number.
func cleanNumber(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// Detect negative accounting format "(123.45)"
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	// Remove common currency symbols and thousands separators
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}
	return s
}

// normalizeInteger converts a raw value to a canonical base-10 integer
// string.
func normalizeInteger(raw string) (string, error) {
	n, err := strconv.ParseInt(cleanNumber(raw), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid integer %q", raw)
	}
	return strconv.FormatInt(n, 10), nil
}

// normalizeDecimal validates a raw value as a decimal number and returns
// the cleaned form. The digits are kept as written rather than round-
// tripped through a float, so precision survives.
func normalizeDecimal(raw string) (string, error) {
	s := cleanNumber(raw)
	if !numericRegex.MatchString(s) {
		return "", fmt.Errorf("invalid number %q", raw)
	}
	return s, nil
}

// normalizeBoolean converts a raw value to "true" or "false".
// Accepts various representations: true/false, yes/no, t/f, y/n, 1/0.
func normalizeBoolean(raw string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "true", "t", "yes", "y", "1":
		return "true", nil
	case "false", "f", "no", "n", "0":
		return "false", nil
	default:
		return "", fmt.Errorf("invalid boolean %q (use yes/no, true/false, or 1/0)", raw)
	}
}
