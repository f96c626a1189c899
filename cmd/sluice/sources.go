package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seaward/sluice/internal/config"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the configured import sources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := config.LoadCatalog(cfg.SourcesPath)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tKIND\tFETCH\tFORMAT\tPOLICY\tMAPPINGS\tSCHEDULE")
		for _, spec := range catalog.Sources {
			schedule := "manual"
			if spec.Schedule > 0 {
				schedule = spec.Schedule.String()
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				spec.Name, spec.Kind, spec.Fetch.Type, spec.Format,
				spec.EffectivePolicy(), len(spec.Mappings), schedule)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
