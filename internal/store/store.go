// Package store provides functions for creating entity store backends
// based on configuration. Backends register themselves in init(); import
// the backend packages for their side effects:
//
//	import (
//	    _ "github.com/seaward/sluice/internal/store/memory"
//	    _ "github.com/seaward/sluice/internal/store/postgres"
//	    _ "github.com/seaward/sluice/internal/store/sqlite"
//	)
package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/seaward/sluice/internal/core"
)

// BackendFactory is a function that creates a store backend. The
// connection string is interpreted per backend; kinds give the backend
// the entity schema it validates against.
type BackendFactory func(ctx context.Context, connString string, kinds []*core.KindSpec) (core.Store, error)

// backendRegistry holds registered backend factories
var backendRegistry = make(map[string]BackendFactory)

// RegisterBackend registers a store backend factory.
// Panics if a backend with the same name is already registered.
func RegisterBackend(name string, factory BackendFactory) {
	if _, exists := backendRegistry[name]; exists {
		panic(fmt.Sprintf("store backend already registered: %s", name))
	}
	backendRegistry[name] = factory
}

// Open creates a store backend based on the backend name.
func Open(ctx context.Context, backend, connString string, kinds []*core.KindSpec) (core.Store, error) {
	factory, ok := backendRegistry[backend]
	if !ok {
		return nil, fmt.Errorf("unknown store backend: %s (supported: %v)", backend, Backends())
	}
	return factory(ctx, connString, kinds)
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	names := make([]string, 0, len(backendRegistry))
	for name := range backendRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
