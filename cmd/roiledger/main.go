package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "roiledger",
		Short:         "Reconciliation and ROI attribution for margin trading accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	root.AddCommand(
		newServeCmd(),
		newSimulateCmd(),
		newFetchCmd(),
		newPublishCmd(),
		newMigrateCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Stderr.WriteString("error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
