package cmd

import (
	"fmt"

	"github.com/signalnine/benchtrace/internal/config"
	"github.com/signalnine/benchtrace/internal/counters"
	"github.com/signalnine/benchtrace/internal/diagnoser"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that the configured counters can be captured on this host",
		Long:  "Check the configured hardware counters against the interval catalog for this CPU vendor, the perf_event_paranoid level and the process privileges.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			p := &cfg.Profiler
			catalog, err := p.LoadCatalog()
			if err != nil {
				return err
			}
			ids, err := p.CounterIDs()
			if err != nil {
				return err
			}

			env := counters.CurrentEnvironment()
			d := diagnoser.New(diagnoser.Options{
				Catalog:         catalog,
				Env:             env,
				KernelProviders: p.KernelProviders,
				UserProviders:   p.UserProviders,
				ExtraRun:        p.ExtraRun,
			}, nil, nil, nil)

			fmt.Printf("Host: %s, vendor %s, perf_event_paranoid %d, privileged %v\n", env.GOOS, env.Vendor, env.Paranoid, env.Privileged)
			fmt.Printf("Run mode: %s\n", d.RunMode())
			errs := d.ValidateMandatory(ids)
			if len(errs) == 0 {
				fmt.Printf("OK: %d counter(s) can be captured\n", len(ids))
				return nil
			}
			for _, e := range errs {
				fmt.Printf("  - %v\n", e)
			}
			return fmt.Errorf("%d validation error(s)", len(errs))
		},
	}
}
