package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:     "dupesim",
		Short:   "Simulate a client-assisted deduplication protocol for cloud storage",
		Version: version + " (" + commit + ")",
	}

	root.AddCommand(newSimulateCmd())
	root.AddCommand(newReferenceCmd())
	root.AddCommand(newGenerateCmd())
	root.AddCommand(newPopularityCmd())

	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}
