package main

// ops.go runs one chunked operation in the foreground: invoke chunks until
// the operation completes, printing progress along the way. Interrupting
// with Ctrl-C stops between chunks; the checkpoint stays persisted and the
// next invocation resumes from it.

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seaward/sluice/internal/core"
)

// runOperation drives op for the named source to completion (or for at
// most maxChunks invocations when positive).
func runOperation(cmd *cobra.Command, sourceName string, op core.OperationKind, maxChunks int) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Store().Close()

	chunks := 0
	for {
		res, err := svc.RunChunk(ctx, sourceName, op)
		if err != nil {
			return fmt.Errorf("%s %s: %w", op, sourceName, err)
		}
		chunks++

		if res.Status == core.StatusComplete {
			printSummary(sourceName, op, res.Summary)
			return nil
		}
		if maxChunks > 0 && chunks >= maxChunks {
			fmt.Printf("%s %s: suspended after %d chunk(s); re-run to continue\n",
				op, sourceName, chunks)
			return nil
		}
		if ctx.Err() != nil {
			fmt.Fprintf(os.Stderr, "%s %s: interrupted; progress is saved, re-run to continue\n",
				op, sourceName)
			return nil
		}
	}
}

// printSummary writes the final operation counts to stdout.
func printSummary(sourceName string, op core.OperationKind, sum core.Summary) {
	fmt.Printf("%s %s: created=%d updated=%d skipped=%d failed=%d deleted=%d\n",
		op, sourceName, sum.Created, sum.Updated, sum.Skipped, sum.Failed, sum.Deleted)
	for _, msg := range sum.Messages {
		fmt.Printf("  - %s\n", msg)
	}
	if sum.Dropped > 0 {
		fmt.Printf("  ... and %d further message(s) dropped\n", sum.Dropped)
	}
}

// opCommand builds the cobra command for one chunked operation.
func opCommand(op core.OperationKind, short string) *cobra.Command {
	var maxChunks int
	c := &cobra.Command{
		Use:   fmt.Sprintf("%s <source>", op),
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, args[0], op, maxChunks)
		},
	}
	c.Flags().IntVar(&maxChunks, "chunks", 0, "Stop after this many chunks (0 = run to completion)")
	return c
}

func init() {
	rootCmd.AddCommand(opCommand(core.OpImport, "Import a source and reconcile its records"))
	rootCmd.AddCommand(opCommand(core.OpClear, "Delete every entity a source owns"))
	rootCmd.AddCommand(opCommand(core.OpExpire, "Delete entities older than the source's retention window"))
}
