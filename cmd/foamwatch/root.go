package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "foamwatch",
	Short: "Run stability monitor and verification gate for CFD solver runs",
	Long:  "foamwatch tails OpenFOAM solver logs, classifies run stability in flight, and freezes the outcome into verification artifacts for downstream pipeline stages.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(verifyCmd)
}
