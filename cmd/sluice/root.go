package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/seaward/sluice/internal/config"
	"github.com/seaward/sluice/internal/logging"
)

var (
	cfg     *config.Config
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sluice",
	Short: "A source-agnostic import pipeline",
	Long: `Sluice ingests external content (feeds, delimited files, directories)
and reconciles it against a persistent entity store, creating, updating,
or retiring entities as the source changes. Operations are chunked and
resumable: an interrupted run continues from its checkpoint.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load .env if present (Overload overwrites existing env vars)
		if err := godotenv.Overload(); err == nil {
			slog.Debug("loaded .env file")
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}
