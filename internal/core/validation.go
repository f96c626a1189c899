package core

// validation.go provides entity-level validation shared by the store
// implementations.
//
// Validation happens before an entity is persisted:
//  1. Kind validation: the entity's kind must match the declared kind.
//  2. Field validation: every populated field must exist on the kind.
//  3. Required validation: required fields must carry a non-empty value.
//
// Violations are collected rather than returned on first failure so
// callers can report every problem with a record at once.

import (
	"fmt"
	"sort"

	"github.com/seaward/sluice/internal/entity"
)

// ValidateEntity checks an entity against its kind specification and
// returns all violations found. A nil result means the entity is valid.
func ValidateEntity(ent *entity.Entity, kind *KindSpec) entity.Violations {
	var violations entity.Violations

	if kind == nil {
		return entity.Violations{{Message: "unknown kind"}}
	}
	if ent.Kind != kind.Name {
		return entity.Violations{{
			Message: fmt.Sprintf("kind mismatch: entity is %q, expected %q", ent.Kind, kind.Name),
		}}
	}

	unknown := make([]string, 0)
	for name := range ent.Fields {
		if _, ok := kind.Field(name); !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		violations = append(violations, entity.Violation{
			Field:   name,
			Message: "unknown field",
		})
	}

	for _, spec := range kind.Fields {
		if !spec.Required {
			continue
		}
		if !hasFieldValue(ent, spec.Name) {
			violations = append(violations, entity.Violation{
				Field:   spec.Name,
				Message: "required field is empty",
			})
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return violations
}

// hasFieldValue reports whether the field carries at least one non-empty
// column value.
func hasFieldValue(ent *entity.Entity, field string) bool {
	for _, tuple := range ent.Tuples(field) {
		for _, v := range tuple {
			if v != "" {
				return true
			}
		}
	}
	return false
}
