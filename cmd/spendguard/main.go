package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "spendguard",
		Short:         "Monthly spending guard for online checkout",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringP("config", "c", "config/example.yaml", "Path to config file")

	cmd.AddCommand(
		newServeCmd(),
		newScanCmd(),
		newLimitCmd(),
		newResetCmd(),
		newExportCmd(),
		newMigrateCmd(),
	)
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
