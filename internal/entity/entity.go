// Package entity defines the persistent domain objects the import pipeline
// reconciles against: entities with typed multi-column fields, the
// per-item bookkeeping metadata, and validation violations.
package entity

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ValueColumn is the column name that addresses a target's main value when
// a mapping names a bare field path with no column suffix.
const ValueColumn = "value"

// Tuple is one positional value group on a multi-column field: column name
// to string value. Simple fields use a single-column tuple keyed by
// ValueColumn.
type Tuple map[string]string

// Entity is a persistent domain object. Fields hold zero or more tuples per
// field name; a scalar field holds one tuple, a multi-value field one tuple
// per value position.
type Entity struct {
	ID     string
	Kind   string
	Fields map[string][]Tuple
}

// New returns a blank entity of the given kind with no ID assigned yet.
// The store assigns IDs at save time.
func New(kind string) *Entity {
	return &Entity{Kind: kind, Fields: make(map[string][]Tuple)}
}

// Clear removes all tuples from a field.
func (e *Entity) Clear(field string) {
	delete(e.Fields, field)
}

// SetTuples replaces the tuples of a field.
func (e *Entity) SetTuples(field string, tuples []Tuple) {
	if len(tuples) == 0 {
		delete(e.Fields, field)
		return
	}
	e.Fields[field] = tuples
}

// Tuples returns the tuples of a field, or nil if unset.
func (e *Entity) Tuples(field string) []Tuple {
	return e.Fields[field]
}

// Value returns the named column of the first tuple of a field, or "".
func (e *Entity) Value(field, column string) string {
	if ts := e.Fields[field]; len(ts) > 0 {
		return ts[0][column]
	}
	return ""
}

// Flatten returns the entity's fields as JSON-encodable values for export:
// a string for a single value, a string list where a field holds several.
// Main-column values keep the bare field name; other columns get
// column-qualified keys ("field.column"), matching mapping target paths so
// an export can be imported back. List positions line up across the
// columns of one field; a column with no values at all is omitted.
func (e *Entity) Flatten() map[string]any {
	out := make(map[string]any, len(e.Fields))
	for field, tuples := range e.Fields {
		for _, col := range tupleColumns(tuples) {
			values := make([]string, len(tuples))
			empty := true
			for i, tu := range tuples {
				values[i] = tu[col]
				if tu[col] != "" {
					empty = false
				}
			}
			if empty {
				continue
			}
			key := field
			if col != ValueColumn {
				key = field + "." + col
			}
			if len(values) == 1 {
				out[key] = values[0]
			} else {
				out[key] = values
			}
		}
	}
	return out
}

// tupleColumns returns the union of column names across tuples, sorted.
func tupleColumns(tuples []Tuple) []string {
	seen := make(map[string]bool)
	cols := make([]string, 0, 2)
	for _, tu := range tuples {
		for col := range tu {
			if !seen[col] {
				seen[col] = true
				cols = append(cols, col)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// Clone returns a deep copy. Used by stores that hand entities to callers
// without exposing their internal state.
func (e *Entity) Clone() *Entity {
	c := &Entity{ID: e.ID, Kind: e.Kind, Fields: make(map[string][]Tuple, len(e.Fields))}
	for name, tuples := range e.Fields {
		ct := make([]Tuple, len(tuples))
		for i, tu := range tuples {
			m := make(Tuple, len(tu))
			for k, v := range tu {
				m[k] = v
			}
			ct[i] = m
		}
		c.Fields[name] = ct
	}
	return c
}

// ItemMetadata is the pipeline's bookkeeping for one imported entity. The
// store persists it alongside the entity; the reconciliation engine uses it
// for skip detection, and clear/expire use it to find what a source owns.
type ItemMetadata struct {
	SourceName  string
	EntityID    string
	Fingerprint string
	ImportedAt  time.Time
}

// Violation is a single validation failure on an entity field.
type Violation struct {
	Field   string
	Message string
}

// Violations aggregates validation failures. It satisfies error so a failed
// validation can flow through the per-record result unchanged.
type Violations []Violation

func (v Violations) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(v))
	for i, viol := range v {
		parts[i] = fmt.Sprintf("%s: %s", viol.Field, viol.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
