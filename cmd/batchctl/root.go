package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "batchctl",
	Short: "batchctl runs fault-tolerant artifact generation batches",
	Long: `batchctl drives the batch pipeline from the command line: generate N
sequence artifacts in isolated scratch sessions, render them with circuit
breaker and retry protection, and write the results as PNG files.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("data-dir", "", "Directory for persistent session and document storage")
	rootCmd.PersistentFlags().String("redis", "", "Redis address for session storage (host:port)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}
