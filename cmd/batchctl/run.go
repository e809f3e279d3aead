package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/austencloud/tka-desktop-sub001/internal/cli"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one generation batch",
	Long: `Runs a batch of generation jobs and writes the rendered artifacts to the
output directory. Parameters come from a YAML file or the built-in defaults.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := cli.RunOptions{}
		opts.ParamsPath, _ = cmd.Flags().GetString("params")
		opts.Count, _ = cmd.Flags().GetInt("count")
		opts.OutDir, _ = cmd.Flags().GetString("out")
		opts.Cooperative, _ = cmd.Flags().GetBool("cooperative")
		opts.Review, _ = cmd.Flags().GetBool("review")
		opts.Plain, _ = cmd.Flags().GetBool("plain")
		opts.DataDir, _ = cmd.Flags().GetString("data-dir")
		opts.RedisAddr, _ = cmd.Flags().GetString("redis")
		opts.Debug, _ = cmd.Flags().GetBool("debug")

		if err := cli.Run(cmd.Context(), opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	runCmd.Flags().StringP("params", "p", "", "YAML file with generation parameters")
	runCmd.Flags().IntP("count", "n", 1, "Number of artifacts to generate")
	runCmd.Flags().StringP("out", "o", "out", "Output directory for rendered PNGs")
	runCmd.Flags().Bool("cooperative", false, "Render one job at a time instead of concurrently")
	runCmd.Flags().Bool("review", false, "Re-render completed artifacts at review scale")
	runCmd.Flags().Bool("plain", false, "Print the summary as raw markdown")
	rootCmd.AddCommand(runCmd)
}
