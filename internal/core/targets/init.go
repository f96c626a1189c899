// Package targets registers the built-in target handlers with the core
// registry. Import this package to ensure all handlers are registered.
package targets

// This file exists to provide a single import point.
// Each handler file uses init() to register its handlers.
