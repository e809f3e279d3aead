package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/austencloud/tka-desktop-sub001/internal/cli"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove orphaned scratch sessions from a persistent store",
	Long: `Deletes scratch sessions older than the cutoff from the configured
store. Sessions only outlive a run when the process crashed mid-batch.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := cli.SweepOptions{}
		opts.DataDir, _ = cmd.Flags().GetString("data-dir")
		opts.RedisAddr, _ = cmd.Flags().GetString("redis")
		opts.MaxAge, _ = cmd.Flags().GetDuration("max-age")
		opts.DryRun, _ = cmd.Flags().GetBool("dry-run")

		if err := cli.Sweep(cmd.Context(), opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	sweepCmd.Flags().Duration("max-age", 24*time.Hour, "Age after which a stored session counts as orphaned")
	sweepCmd.Flags().Bool("dry-run", false, "List stale sessions without removing them")
	rootCmd.AddCommand(sweepCmd)
}
