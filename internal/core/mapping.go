package core

import (
	"fmt"

	"github.com/seaward/sluice/internal/entity"
	"github.com/seaward/sluice/internal/record"
)

// applyMappings projects a record onto an entity. Every target field a
// mapping references is cleared first, so a record that carries no value
// for a mapped field clears it on update. Mappings are then grouped by
// target field in order of first appearance, each group's values gathered
// per column, and the columns transposed into positional tuples that the
// field's handler writes in one call.
//
// A missing value at a tuple position fills with the empty string; columns
// of different lengths stay aligned by position.
func applyMappings(rec *record.Record, spec *SourceSpec, kind *KindSpec, ent *entity.Entity) error {
	type group struct {
		field   string
		handler TargetHandler
		columns []string            // gather order of first appearance
		values  map[string][]string // column -> gathered values
	}

	var order []string
	groups := make(map[string]*group)

	for _, m := range spec.Mappings {
		field, column := m.TargetPath()
		g, ok := groups[field]
		if !ok {
			handler, err := handlerFor(kind, field)
			if err != nil {
				return err
			}
			g = &group{field: field, handler: handler, values: make(map[string][]string)}
			groups[field] = g
			order = append(order, field)
			ent.Clear(field)
		}
		if column == "" {
			column = g.handler.Columns()[0]
		}
		if _, seen := g.values[column]; !seen {
			g.columns = append(g.columns, column)
		}
		g.values[column] = append(g.values[column], rec.Values(m.Source)...)
	}

	for _, field := range order {
		g := groups[field]

		width := 0
		for _, vs := range g.values {
			if len(vs) > width {
				width = len(vs)
			}
		}
		if width == 0 {
			continue
		}

		tuples := make([]entity.Tuple, width)
		for i := range tuples {
			tu := make(entity.Tuple, len(g.columns))
			for _, col := range g.columns {
				vs := g.values[col]
				if i < len(vs) {
					tu[col] = vs[i]
				} else {
					tu[col] = ""
				}
			}
			tuples[i] = tu
		}

		if err := g.handler.SetValues(ent, field, tuples); err != nil {
			return fmt.Errorf("field %q: %w", field, err)
		}
	}
	return nil
}

// applyDefaults writes a source's configured default values onto a new
// entity. Defaults go through the field's handler so they normalize the
// same way mapped values do. Mapped values applied afterwards win.
func applyDefaults(spec *SourceSpec, kind *KindSpec, ent *entity.Entity) error {
	for field, value := range spec.Defaults {
		handler, err := handlerFor(kind, field)
		if err != nil {
			return err
		}
		main := handler.Columns()[0]
		if err := handler.SetValues(ent, field, []entity.Tuple{{main: value}}); err != nil {
			return fmt.Errorf("default for field %q: %w", field, err)
		}
	}
	return nil
}

// ValidateSpec checks a source's mapping configuration against its entity
// kind and the handler registry. Called at operation setup; a failure here
// aborts before any record is touched.
func ValidateSpec(spec *SourceSpec, kind *KindSpec) error {
	if spec.Kind != kind.Name {
		return fmt.Errorf("source %q: kind %q does not match %q", spec.Name, spec.Kind, kind.Name)
	}
	if len(spec.Mappings) == 0 {
		return fmt.Errorf("source %q has no mappings", spec.Name)
	}

	uniqueSeen := make(map[string]bool)
	for _, m := range spec.Mappings {
		field, column := m.TargetPath()
		spec2, ok := kind.Field(field)
		if !ok {
			return fmt.Errorf("source %q: mapping %q -> %q: kind %q has no field %q",
				spec.Name, m.Source, m.Target, kind.Name, field)
		}
		handler, ok := Target(spec2.Handler)
		if !ok {
			return fmt.Errorf("source %q: field %q: unknown target handler %q",
				spec.Name, field, spec2.Handler)
		}
		if column == "" {
			column = handler.Columns()[0]
		} else if !hasColumn(handler.Columns(), column) {
			return fmt.Errorf("source %q: mapping %q -> %q: handler %q has no column %q",
				spec.Name, m.Source, m.Target, spec2.Handler, column)
		}
		if m.Unique {
			key := field + "." + column
			if uniqueSeen[key] {
				return fmt.Errorf("source %q: target %q marked unique more than once", spec.Name, key)
			}
			uniqueSeen[key] = true
		}
	}

	for field := range spec.Defaults {
		if _, err := handlerFor(kind, field); err != nil {
			return fmt.Errorf("source %q: %w", spec.Name, err)
		}
	}
	return nil
}

func hasColumn(columns []string, name string) bool {
	for _, c := range columns {
		if c == name {
			return true
		}
	}
	return false
}
