package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seaward/sluice/internal/config"
	"github.com/seaward/sluice/internal/core"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and source catalog without running anything",
	Long: `Validate loads the process configuration and the source catalog and
runs the same setup checks an operation performs: kind references,
target handler resolution, and unique-mapping sanity. Nothing is
fetched and no store is opened.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := config.LoadCatalog(cfg.SourcesPath)
		if err != nil {
			return err
		}

		kinds := make(map[string]*core.KindSpec, len(catalog.Kinds))
		for _, k := range catalog.Kinds {
			kinds[k.Name] = k
		}

		failures := 0
		for _, spec := range catalog.Sources {
			if err := core.ValidateSpec(spec, kinds[spec.Kind]); err != nil {
				fmt.Printf("source %s: %v\n", spec.Name, err)
				failures++
			}
		}
		if failures > 0 {
			return fmt.Errorf("%d of %d sources failed validation", failures, len(catalog.Sources))
		}

		fmt.Printf("ok: %d kind(s), %d source(s)\n", len(catalog.Kinds), len(catalog.Sources))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
