package core

import (
	"context"
	"log/slog"

	"github.com/seaward/sluice/internal/record"
)

// resolveExisting finds the entity a record corresponds to, if any. It
// walks the source's unique mappings in configured order and asks each
// target's handler to look the record's value up; the first match wins.
//
// A handler that cannot perform the lookup, or a lookup that errors, is
// treated as a non-match and iteration continues: a partially searchable
// configuration still resolves through its remaining unique targets.
func resolveExisting(ctx context.Context, store Store, spec *SourceSpec, kind *KindSpec, rec *record.Record, log *slog.Logger) (string, error) {
	for _, m := range spec.Mappings {
		if !m.Unique {
			continue
		}
		value := rec.First(m.Source)
		if value == "" {
			continue
		}
		field, column := m.TargetPath()
		handler, err := handlerFor(kind, field)
		if err != nil {
			return "", err
		}
		if column == "" {
			column = handler.Columns()[0]
		}
		ids, err := handler.FindByValue(ctx, store, kind.Name, field, column, value)
		if err != nil {
			log.Debug("unique lookup failed, trying next target",
				"target", m.Target, "error", err)
			continue
		}
		if len(ids) > 0 {
			return ids[0], nil
		}
	}
	return "", nil
}
