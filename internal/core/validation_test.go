package core

import (
	"testing"

	"github.com/seaward/sluice/internal/entity"
)

func TestValidateEntity(t *testing.T) {
	kind := &KindSpec{
		Name: "article",
		Fields: []FieldSpec{
			{Name: "guid", Handler: "plain"},
			{Name: "title", Handler: "plain", Required: true},
		},
	}

	tests := []struct {
		name       string
		build      func() *entity.Entity
		kind       *KindSpec
		wantFields []string // violation fields, in order
	}{
		{
			name: "valid",
			build: func() *entity.Entity {
				ent := entity.New("article")
				ent.SetTuples("title", []entity.Tuple{{entity.ValueColumn: "Hello"}})
				return ent
			},
			kind:       kind,
			wantFields: nil,
		},
		{
			name:       "nil kind",
			build:      func() *entity.Entity { return entity.New("article") },
			kind:       nil,
			wantFields: []string{""},
		},
		{
			name:       "kind mismatch",
			build:      func() *entity.Entity { return entity.New("comment") },
			kind:       kind,
			wantFields: []string{""},
		},
		{
			name: "unknown fields sorted",
			build: func() *entity.Entity {
				ent := entity.New("article")
				ent.SetTuples("title", []entity.Tuple{{entity.ValueColumn: "ok"}})
				ent.SetTuples("zzz", []entity.Tuple{{entity.ValueColumn: "x"}})
				ent.SetTuples("aaa", []entity.Tuple{{entity.ValueColumn: "y"}})
				return ent
			},
			kind:       kind,
			wantFields: []string{"aaa", "zzz"},
		},
		{
			name:       "required missing",
			build:      func() *entity.Entity { return entity.New("article") },
			kind:       kind,
			wantFields: []string{"title"},
		},
		{
			name: "required present but empty",
			build: func() *entity.Entity {
				ent := entity.New("article")
				ent.SetTuples("title", []entity.Tuple{{entity.ValueColumn: ""}})
				return ent
			},
			kind:       kind,
			wantFields: []string{"title"},
		},
		{
			name: "required satisfied by any column",
			build: func() *entity.Entity {
				ent := entity.New("pairs")
				ent.SetTuples("link", []entity.Tuple{{"url": "", "title": "named"}})
				return ent
			},
			kind: &KindSpec{
				Name:   "pairs",
				Fields: []FieldSpec{{Name: "link", Handler: "pair", Required: true}},
			},
			wantFields: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := ValidateEntity(tt.build(), tt.kind)
			if len(violations) != len(tt.wantFields) {
				t.Fatalf("got %d violations (%v), want %d", len(violations), violations, len(tt.wantFields))
			}
			for i, want := range tt.wantFields {
				if violations[i].Field != want {
					t.Errorf("violation %d field = %q, want %q", i, violations[i].Field, want)
				}
			}
		})
	}
}

func TestViolationsError(t *testing.T) {
	v := entity.Violations{
		{Field: "title", Message: "required field is empty"},
		{Field: "extra", Message: "unknown field"},
	}
	got := v.Error()
	want := "validation failed: title: required field is empty; extra: unknown field"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
