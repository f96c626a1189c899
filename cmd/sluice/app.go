package main

// app.go wires the pipeline together for every subcommand: source catalog,
// store backend, fetch and parse factories, and the core service.

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/seaward/sluice/internal/config"
	"github.com/seaward/sluice/internal/core"
	"github.com/seaward/sluice/internal/parser"
	"github.com/seaward/sluice/internal/source"
	"github.com/seaward/sluice/internal/store"
)

// buildService loads the catalog, opens the configured store backend, and
// assembles the core service. Callers close the store when done:
//
//	defer svc.Store().Close()
func buildService(ctx context.Context, cfg *config.Config) (*core.Service, error) {
	catalog, err := config.LoadCatalog(cfg.SourcesPath)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store.Backend, cfg.Store.URL, catalog.Kinds)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	core.OperationTimeout = cfg.Import.OperationTimeout

	svc, err := core.NewService(core.ServiceOptions{
		Store:             st,
		Fetchers:          source.Factory(&http.Client{Timeout: cfg.Import.FetchTimeout}),
		Parsers:           parser.Factory(),
		Sources:           catalog.Sources,
		Kinds:             catalog.Kinds,
		SpoolDir:          cfg.Import.SpoolDir,
		MaxConcurrentRuns: cfg.Import.MaxConcurrentRuns,
		Logger:            slog.Default(),
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	slog.Debug("service assembled",
		"store", cfg.Store.Backend,
		"kinds", len(catalog.Kinds),
		"sources", len(catalog.Sources),
	)
	return svc, nil
}
