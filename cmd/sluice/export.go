package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <source>",
	Short: "Dump a source's entities as JSONL",
	Long: `Export writes every entity the source owns as line-delimited JSON,
oldest import first. Field keys match mapping target paths, so the
output re-imports through a jsonl source unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, err := buildService(ctx, cfg)
		if err != nil {
			return err
		}
		defer svc.Store().Close()

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		written, err := svc.ExportSource(ctx, args[0], out)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "exported %d entities from %s\n", written, args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Write to file instead of stdout")
}
