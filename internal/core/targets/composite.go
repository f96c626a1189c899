package targets

// composite.go provides the link and tags handlers.
//
// link stores url+title pairs; tags explodes delimited term lists into
// one tuple per term.

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/seaward/sluice/internal/core"
	"github.com/seaward/sluice/internal/entity"
)

func init() {
	core.RegisterTarget("link", linkHandler{})
	core.RegisterTarget("tags", tagsHandler{})
}

// LinkURLColumn and LinkTitleColumn name the link handler's columns. The
// url column is the main one: a bare mapping target and unique lookups
// address it.
const (
	LinkURLColumn   = "url"
	LinkTitleColumn = "title"
)

type linkHandler struct{}

func (linkHandler) Columns() []string { return []string{LinkURLColumn, LinkTitleColumn} }

func (linkHandler) SetValues(ent *entity.Entity, field string, tuples []entity.Tuple) error {
	kept := make([]entity.Tuple, 0, len(tuples))
	for _, tu := range tuples {
		rawURL := strings.TrimSpace(tu[LinkURLColumn])
		title := strings.TrimSpace(tu[LinkTitleColumn])
		if rawURL == "" {
			// A title without a url is not a link
			continue
		}
		u, err := url.Parse(rawURL)
		if err != nil || u.Scheme == "" {
			return fmt.Errorf("invalid url %q", rawURL)
		}
		kept = append(kept, entity.Tuple{LinkURLColumn: u.String(), LinkTitleColumn: title})
	}
	ent.SetTuples(field, kept)
	return nil
}

// FindByValue resolves on the url column only; titles are display text,
// not keys.
func (linkHandler) FindByValue(ctx context.Context, store core.Store, kind, field, column, value string) ([]string, error) {
	if column != LinkURLColumn {
		return nil, core.ErrNotSearchable
	}
	return store.Query(ctx, kind, field, column, strings.TrimSpace(value))
}

type tagsHandler struct{}

func (tagsHandler) Columns() []string { return []string{entity.ValueColumn} }

// SetValues splits each gathered value on commas, trims the terms, and
// drops duplicates while keeping first-seen order.
func (tagsHandler) SetValues(ent *entity.Entity, field string, tuples []entity.Tuple) error {
	seen := make(map[string]bool)
	kept := make([]entity.Tuple, 0, len(tuples))
	for _, tu := range tuples {
		for _, term := range strings.Split(tu[entity.ValueColumn], ",") {
			term = strings.TrimSpace(term)
			if term == "" || seen[term] {
				continue
			}
			seen[term] = true
			kept = append(kept, entity.Tuple{entity.ValueColumn: term})
		}
	}
	ent.SetTuples(field, kept)
	return nil
}

func (tagsHandler) FindByValue(ctx context.Context, store core.Store, kind, field, column, value string) ([]string, error) {
	return store.Query(ctx, kind, field, column, strings.TrimSpace(value))
}
