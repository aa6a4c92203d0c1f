package main

import (
	"github.com/spf13/cobra"
)

var logLevel string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "fachess",
		Short:        "chess game database: convert PGN archives, warm opening caches, explore positions",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log", "info", "log level (trace, debug, info, warn, error)")
	root.AddCommand(newConvertCmd(), newWarmupCmd(), newExploreCmd())
	return root
}
