package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var previewJSON bool

var previewCmd = &cobra.Command{
	Use:   "preview <source>",
	Short: "Analyze what an import would do without writing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, err := buildService(ctx, cfg)
		if err != nil {
			return err
		}
		defer svc.Store().Close()

		result, err := svc.Preview(ctx, args[0])
		if err != nil {
			return err
		}

		if previewJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		sum := result.Summary
		fmt.Printf("%s: %d records; would create=%d update=%d skip=%d fail=%d\n",
			result.Source, result.Total, sum.Created, sum.Updated, sum.Skipped, sum.Failed)
		for _, sample := range result.Samples {
			line := fmt.Sprintf("  #%d %s", sample.Position, sample.Action)
			if sample.EntityID != "" {
				line += " -> " + sample.EntityID
			}
			if sample.Error != "" {
				line += ": " + sample.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
	previewCmd.Flags().BoolVar(&previewJSON, "json", false, "Output the full analysis as JSON")
}
