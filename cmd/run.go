package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/signalnine/benchtrace/internal/config"
	"github.com/signalnine/benchtrace/internal/counters"
	"github.com/signalnine/benchtrace/internal/diagnoser"
	"github.com/signalnine/benchtrace/internal/perfsession"
	"github.com/signalnine/benchtrace/internal/report"
	"github.com/signalnine/benchtrace/internal/result"
	"github.com/signalnine/benchtrace/internal/runner"
	"github.com/signalnine/benchtrace/internal/trace"
	"github.com/spf13/cobra"
)

var (
	flagBench     string
	flagLaunches  int
	flagParallel  int
	flagNoProfile bool
	flagVerbose   bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the configured benchmarks",
		RunE:  runBenchmarks,
	}
	cmd.Flags().StringVar(&flagBench, "bench", "", "filter benchmarks by name (glob)")
	cmd.Flags().IntVar(&flagLaunches, "launches", 0, "override launch count")
	cmd.Flags().IntVar(&flagParallel, "parallel", 1, "max concurrent benchmarks")
	cmd.Flags().BoolVar(&flagNoProfile, "no-profile", false, "skip hardware counter diagnostics")
	cmd.Flags().BoolVar(&flagVerbose, "verbose", false, "forward benchmark output")
	return cmd
}

func runBenchmarks(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	benches, err := filterBenchmarks(cfg.Benchmarks, flagBench)
	if err != nil {
		return err
	}
	if len(benches) == 0 {
		return fmt.Errorf("no benchmarks match %q", flagBench)
	}
	if flagLaunches > 0 {
		for i := range benches {
			benches[i].Launches = flagLaunches
		}
	}

	ids, overrides, err := counterRequest(&cfg.Profiler)
	if err != nil {
		return err
	}

	runDir, err := result.CreateRunDir(cfg.Results.Dir)
	if err != nil {
		return err
	}
	fmt.Printf("Run directory: %s\n", runDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var diag *diagnoser.Diagnoser
	if cfg.Profiler.Enabled && !flagNoProfile {
		diag, err = newDiagnoser(&cfg.Profiler, runDir)
		if err != nil {
			fmt.Printf("Diagnostics disabled: %v\n", err)
			diag = nil
		}
	}

	jobs := make([]runner.Job, 0, len(benches))
	for _, b := range benches {
		opts := &runner.BenchmarkOpts{
			Benchmark: &b,
			RunDir:    runDir,
			Counters:  ids,
			Overrides: overrides,
		}
		if diag != nil {
			opts.Diagnoser = diag
		}
		if flagVerbose {
			opts.Output = os.Stderr
		}
		jobs = append(jobs, func(ctx context.Context) error {
			fmt.Printf("Running %s (%d launch(es))...\n", b.Name, b.Launches)
			meta, err := runner.RunBenchmark(ctx, opts)
			if err != nil {
				return err
			}
			if meta.DiagnosticError != "" {
				fmt.Printf("  %s: diagnostics failed: %s\n", b.Name, meta.DiagnosticError)
			}
			return nil
		})
	}
	for _, err := range runner.RunPool(ctx, flagParallel, jobs) {
		fmt.Printf("  ERROR: %v\n", err)
	}

	fmt.Println("\n--- Results ---")
	if err := report.Generate(runDir, "table", os.Stdout); err != nil {
		return err
	}
	if diag != nil {
		if summary := diag.DisplaySummary(); summary != "" {
			fmt.Printf("\n%s\n", summary)
		}
	}
	return nil
}

// counterRequest is what every benchmark asks the diagnoser to arm.
func counterRequest(p *config.Profiler) ([]counters.ID, map[counters.ID]counters.Resolver, error) {
	ids, err := p.CounterIDs()
	if err != nil {
		return nil, nil, fmt.Errorf("profiler: %w", err)
	}
	overrides, err := p.Overrides()
	if err != nil {
		return nil, nil, fmt.Errorf("profiler: %w", err)
	}
	return ids, overrides, nil
}

// newDiagnoser wires the perf_event backend. Validation problems are
// reported as an error so the run continues without diagnostics.
func newDiagnoser(p *config.Profiler, runDir string) (*diagnoser.Diagnoser, error) {
	catalog, err := p.LoadCatalog()
	if err != nil {
		return nil, err
	}
	outDir := p.OutputDir
	if outDir == "" {
		outDir = result.TraceDir(runDir)
	}
	opts := diagnoser.Options{
		Catalog:         catalog,
		Env:             counters.CurrentEnvironment(),
		KernelProviders: p.KernelProviders,
		UserProviders:   p.UserProviders,
		OutputDir:       outDir,
		ExtraRun:        p.ExtraRun,
	}

	ids, err := p.CounterIDs()
	if err != nil {
		return nil, err
	}
	probe := diagnoser.New(opts, nil, nil, nil)
	if errs := probe.Validate(ids); len(errs) > 0 {
		for _, e := range errs {
			fmt.Printf("  validation: %v\n", e)
		}
		return nil, fmt.Errorf("%d validation error(s)", len(errs))
	}

	backend, err := perfsession.New(perfsession.Options{OutputDir: outDir})
	if err != nil {
		return nil, err
	}
	return diagnoser.New(opts, backend, backend, trace.DefaultParser), nil
}

func filterBenchmarks(benches []config.Benchmark, pattern string) ([]config.Benchmark, error) {
	if pattern == "" {
		return benches, nil
	}
	var filtered []config.Benchmark
	for _, b := range benches {
		ok, err := path.Match(pattern, b.Name)
		if err != nil {
			return nil, fmt.Errorf("bad --bench pattern: %w", err)
		}
		if ok {
			filtered = append(filtered, b)
		}
	}
	return filtered, nil
}
