package targets

import (
	"context"
	"strings"

	"github.com/seaward/sluice/internal/core"
	"github.com/seaward/sluice/internal/entity"
)

func init() {
	core.RegisterTarget("text", textHandler{})
	core.RegisterTarget("longtext", longTextHandler{})
}

// textHandler stores short single-column strings. Values are trimmed and
// empty tuples dropped. Text fields back unique-key lookups.
type textHandler struct{}

func (textHandler) Columns() []string { return []string{entity.ValueColumn} }

func (textHandler) SetValues(ent *entity.Entity, field string, tuples []entity.Tuple) error {
	kept := make([]entity.Tuple, 0, len(tuples))
	for _, tu := range tuples {
		v := strings.TrimSpace(tu[entity.ValueColumn])
		if v == "" {
			continue
		}
		kept = append(kept, entity.Tuple{entity.ValueColumn: v})
	}
	ent.SetTuples(field, kept)
	return nil
}

func (textHandler) FindByValue(ctx context.Context, store core.Store, kind, field, column, value string) ([]string, error) {
	return store.Query(ctx, kind, field, column, strings.TrimSpace(value))
}

// longTextHandler stores body-sized text. Interior whitespace is preserved;
// tuples that are entirely whitespace are dropped. Long text is not a
// stable key, so lookups are refused.
type longTextHandler struct{}

func (longTextHandler) Columns() []string { return []string{entity.ValueColumn} }

func (longTextHandler) SetValues(ent *entity.Entity, field string, tuples []entity.Tuple) error {
	kept := make([]entity.Tuple, 0, len(tuples))
	for _, tu := range tuples {
		v := tu[entity.ValueColumn]
		if strings.TrimSpace(v) == "" {
			continue
		}
		kept = append(kept, entity.Tuple{entity.ValueColumn: v})
	}
	ent.SetTuples(field, kept)
	return nil
}

func (longTextHandler) FindByValue(ctx context.Context, store core.Store, kind, field, column, value string) ([]string, error) {
	return nil, core.ErrNotSearchable
}
