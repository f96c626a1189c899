package core

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/seaward/sluice/internal/entity"
)

// TargetHandler interprets values for one kind of entity field. Handlers
// normalize raw strings on the way in and back unique-key lookups on the
// way out. Dispatch is by the handler name a KindSpec assigns to the
// field; there is no reflection.
type TargetHandler interface {
	// Columns lists the target's named columns, main value column first.
	Columns() []string
	// SetValues normalizes the gathered tuples and writes them onto the
	// entity field, replacing whatever was there.
	SetValues(ent *entity.Entity, field string, tuples []entity.Tuple) error
	// FindByValue returns IDs of entities whose field column matches the
	// raw value, for unique-key resolution. Handlers that cannot back a
	// lookup return ErrNotSearchable.
	FindByValue(ctx context.Context, store Store, kind, field, column, value string) ([]string, error)
}

var (
	targets   = make(map[string]TargetHandler)
	targetsMu sync.RWMutex
)

// RegisterTarget adds a target handler to the registry.
// Panics if a handler with the same name is already registered.
func RegisterTarget(name string, h TargetHandler) {
	targetsMu.Lock()
	defer targetsMu.Unlock()

	if _, exists := targets[name]; exists {
		panic(fmt.Sprintf("target handler already registered: %s", name))
	}
	targets[name] = h
}

// Target returns a target handler by name.
// Returns false if not found.
func Target(name string) (TargetHandler, bool) {
	targetsMu.RLock()
	defer targetsMu.RUnlock()

	h, ok := targets[name]
	return h, ok
}

// TargetNames returns all registered handler names, sorted.
func TargetNames() []string {
	targetsMu.RLock()
	defer targetsMu.RUnlock()

	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// handlerFor resolves the target handler of a kind's field. Both lookups
// failing is a configuration error, caught at operation setup.
func handlerFor(kind *KindSpec, field string) (TargetHandler, error) {
	spec, ok := kind.Field(field)
	if !ok {
		return nil, fmt.Errorf("kind %q has no field %q", kind.Name, field)
	}
	h, ok := Target(spec.Handler)
	if !ok {
		return nil, fmt.Errorf("field %q: unknown target handler %q", field, spec.Handler)
	}
	return h, nil
}
