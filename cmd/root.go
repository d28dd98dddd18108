package cmd

import (
	"github.com/signalnine/benchtrace/internal/logutil"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "benchtrace",
		Short:         "Benchmark harness with perf_event hardware counter diagnostics",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logutil.Init(logLevel)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logutil.Sync()
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "benchtrace.yaml", "config file path")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newValidateCmd())
	return root
}
