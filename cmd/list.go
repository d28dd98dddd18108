package cmd

import (
	"fmt"

	"github.com/signalnine/benchtrace/internal/config"
	"github.com/signalnine/benchtrace/internal/counters"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List benchmarks and resolved counter intervals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Println("Benchmarks:")
			for _, b := range cfg.Benchmarks {
				where := "local"
				if b.Image != "" {
					where = "image: " + b.Image
				}
				fmt.Printf("  - %s (%d launch(es), %s)\n", b.Name, b.Launches, where)
			}

			p := &cfg.Profiler
			if !p.Enabled {
				fmt.Println("\nProfiler: disabled")
				return nil
			}
			catalog, err := p.LoadCatalog()
			if err != nil {
				return err
			}
			ids, err := p.CounterIDs()
			if err != nil {
				return err
			}
			overrides, err := p.Overrides()
			if err != nil {
				return err
			}
			vendor := counters.DetectVendor()
			descs, err := counters.Resolve(ids, overrides, catalog.Sources(vendor))
			if err != nil {
				return err
			}
			fmt.Printf("\nCounters (%s):\n", vendor)
			for _, d := range descs {
				fmt.Printf("  - %s every %d events [min %d, max %d, nominal %d]\n",
					d.ID, d.Interval, d.Source.Min, d.Source.Max, d.Source.Nominal)
			}
			fmt.Printf("\nKernel providers: %v\nUser providers: %v\n", p.KernelProviders, p.UserProviders)
			return nil
		},
	}
}
