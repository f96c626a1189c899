package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seaward/sluice/internal/core"
)

var (
	statusJSON bool
	statusRuns int
)

var statusCmd = &cobra.Command{
	Use:   "status [source]",
	Short: "Show entity counts, active operations, and recent runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, err := buildService(ctx, cfg)
		if err != nil {
			return err
		}
		defer svc.Store().Close()

		var statuses []*core.SourceStatus
		source := ""
		if len(args) == 1 {
			source = args[0]
			st, err := svc.SourceStatus(ctx, source)
			if err != nil {
				return err
			}
			statuses = []*core.SourceStatus{st}
		} else {
			statuses, err = svc.AllSourceStatuses(ctx)
			if err != nil {
				return err
			}
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(statuses)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SOURCE\tKIND\tFORMAT\tENTITIES\tACTIVE\tLAST RUN")
		for _, st := range statuses {
			active := "-"
			for op, prog := range st.Active {
				active = fmt.Sprintf("%s %d%%", op, prog.Percent())
			}
			last := "-"
			if st.LastRun != nil {
				last = fmt.Sprintf("%s %s (%s)",
					st.LastRun.Op, st.LastRun.Status,
					st.LastRun.FinishedAt.Format("2006-01-02 15:04"))
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
				st.Name, st.Kind, st.Format, st.EntityCount, active, last)
		}
		tw.Flush()

		if statusRuns > 0 {
			runs, err := svc.Store().Runs(ctx, source, statusRuns)
			if err != nil {
				return err
			}
			if len(runs) > 0 {
				fmt.Println()
				rw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(rw, "FINISHED\tSOURCE\tOP\tSTATUS\tCREATED\tUPDATED\tSKIPPED\tFAILED\tDELETED")
				for _, run := range runs {
					fmt.Fprintf(rw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
						run.FinishedAt.Format("2006-01-02 15:04:05"),
						run.Source, run.Op, run.Status,
						run.Created, run.Updated, run.Skipped, run.Failed, run.Deleted)
				}
				rw.Flush()
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
	statusCmd.Flags().IntVar(&statusRuns, "runs", 0, "Also show the N most recent runs")
}
