package main

import (
	"fmt"

	"github.com/spf13/cobra"

	batchgen "github.com/austencloud/tka-desktop-sub001"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of batchctl",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("batchctl version %s\n", batchgen.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
