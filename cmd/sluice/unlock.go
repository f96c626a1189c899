package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock <source>",
	Short: "Force-release a source's operation lock",
	Long: `Unlock releases a source's persisted lock regardless of holder. Use it
after a crash left a lock behind. The interrupted operation's checkpoint
stays intact; the next run continues from it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, err := buildService(ctx, cfg)
		if err != nil {
			return err
		}
		defer svc.Store().Close()

		if err := svc.ForceUnlock(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("unlocked %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(unlockCmd)
}
