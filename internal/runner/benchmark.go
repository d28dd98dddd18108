package runner

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/signalnine/benchtrace/internal/config"
	"github.com/signalnine/benchtrace/internal/counters"
	"github.com/signalnine/benchtrace/internal/diagnoser"
	"github.com/signalnine/benchtrace/internal/gitops"
	"github.com/signalnine/benchtrace/internal/launcher"
	"github.com/signalnine/benchtrace/internal/logutil"
	"github.com/signalnine/benchtrace/internal/result"
	"github.com/signalnine/benchtrace/internal/trace"
	"go.uber.org/zap"
)

// Diagnoser is the part of diagnoser.Diagnoser the runner drives.
type Diagnoser interface {
	HandleSignal(ctx context.Context, sig diagnoser.Signal, unit string, p diagnoser.Params) error
	Metrics(unit string) ([]trace.Metric, error)
	Artifact(unit string) (string, []counters.Descriptor, bool)
	RunMode() diagnoser.RunMode
}

type BenchmarkOpts struct {
	Benchmark *config.Benchmark
	RunDir    string
	// Launcher overrides launcher.For.
	Launcher launcher.Launcher
	// Diagnoser is attached to one launch when set.
	Diagnoser Diagnoser
	Counters  []counters.ID
	Overrides map[counters.ID]counters.Resolver
	Output    io.Writer
}

func ExitReasonFromCode(code int, timedOut bool) string {
	if timedOut {
		return "timeout"
	}
	if code == 0 {
		return "completed"
	}
	return "failed"
}

// launchPlan returns how many launches to make and which one, if any, the
// diagnoser observes (-1 for none).
func launchPlan(timing int, diag Diagnoser) (total, diagnosed int) {
	if diag == nil {
		return timing, -1
	}
	if diag.RunMode() == diagnoser.ExtraRun {
		return timing + 1, timing
	}
	return timing, timing - 1
}

// RunBenchmark performs every launch of one benchmark and writes its
// meta.json. A diagnostic failure is recorded in the meta and does not fail
// the benchmark.
func RunBenchmark(ctx context.Context, opts *BenchmarkOpts) (*result.BenchmarkMeta, error) {
	b := opts.Benchmark
	unit := b.Name
	log := logutil.L().With(zap.String("unit", unit))

	meta := &result.BenchmarkMeta{
		Benchmark:  b.Name,
		Operations: b.Operations,
		Started:    time.Now().UTC(),
	}
	if b.Dir != "" {
		if rev, err := gitops.Revision(b.Dir); err == nil {
			meta.Revision = rev
		}
	}
	diag := opts.Diagnoser
	if diag != nil {
		meta.RunMode = diag.RunMode().String()
	}
	total, diagnosed := launchPlan(b.Launches, diag)

	params := diagnoser.Params{Counters: opts.Counters, Overrides: opts.Overrides}
	signal := func(sig diagnoser.Signal) error {
		return diag.HandleSignal(ctx, sig, unit, params)
	}
	diagFailed := func(err error) {
		if meta.DiagnosticError == "" {
			meta.DiagnosticError = err.Error()
		}
		log.Warn("diagnostic pass failed", zap.Error(err))
	}

	if diag != nil {
		if err := signal(diagnoser.BeforeAnythingElse); err != nil {
			diagFailed(err)
		}
	}
	for i := 0; i < total; i++ {
		var d Diagnoser
		if i == diagnosed && meta.DiagnosticError == "" {
			d = diag
		}
		launch, err := runLaunch(ctx, opts, d, &params, diagFailed)
		if err != nil {
			return meta, fmt.Errorf("%s launch %d: %w", b.Name, i+1, err)
		}
		launch.Index = i + 1
		launch.Diagnosed = i == diagnosed
		meta.Launches = append(meta.Launches, launch)
		log.Debug("launch finished", zap.Int("launch", launch.Index), zap.Int64("duration_ns", launch.DurationNS), zap.String("exit", launch.ExitReason))
	}
	if diag != nil {
		if err := signal(diagnoser.AfterAll); err != nil {
			diagFailed(err)
		}
		collectDiagnostics(meta, unit, diag, diagFailed)
	}

	if err := result.WriteBenchmarkMeta(result.BenchmarkDir(opts.RunDir, b.Name), meta); err != nil {
		return meta, err
	}
	return meta, nil
}

func runLaunch(ctx context.Context, opts *BenchmarkOpts, diag Diagnoser, params *diagnoser.Params, diagFailed func(error)) (result.Launch, error) {
	b := opts.Benchmark
	spec := &launcher.Spec{
		Name:    b.Name,
		Command: b.Command,
		Dir:     b.Dir,
		Env:     b.Env,
		Image:   b.Image,
		Timeout: b.Timeout,
		Output:  opts.Output,
	}
	l := opts.Launcher
	if l == nil {
		l = launcher.For(spec)
	}

	proc, err := l.Prepare(ctx, spec)
	if err != nil {
		return result.Launch{}, fmt.Errorf("preparing process: %w", err)
	}
	defer proc.Close()

	signal := func(sig diagnoser.Signal) bool {
		if diag == nil {
			return false
		}
		sctx := ctx
		if sig == diagnoser.AfterProcessExit {
			// Capture teardown runs even when the run was interrupted.
			sctx = context.WithoutCancel(ctx)
		}
		if err := diag.HandleSignal(sctx, sig, b.Name, *params); err != nil {
			diagFailed(err)
			return false
		}
		return true
	}

	params.Pid = proc.Pid()
	capturing := signal(diagnoser.BeforeProcessStart)
	if !capturing {
		diag = nil
	}

	if err := proc.Release(); err != nil {
		if capturing {
			signal(diagnoser.AfterProcessExit)
		}
		return result.Launch{}, fmt.Errorf("releasing process: %w", err)
	}
	signal(diagnoser.BeforeActualRun)
	st, err := proc.Wait(ctx)
	signal(diagnoser.AfterActualRun)
	if capturing {
		signal(diagnoser.AfterProcessExit)
	}
	if err != nil {
		return result.Launch{}, err
	}
	return result.Launch{
		DurationNS: st.Duration.Nanoseconds(),
		ExitCode:   st.Code,
		ExitReason: ExitReasonFromCode(st.Code, st.TimedOut),
	}, nil
}

func collectDiagnostics(meta *result.BenchmarkMeta, unit string, diag Diagnoser, diagFailed func(error)) {
	path, descs, ok := diag.Artifact(unit)
	if !ok {
		return
	}
	meta.Artifact = path
	meta.Counters = descs
	metrics, err := diag.Metrics(unit)
	if err != nil {
		diagFailed(fmt.Errorf("extracting metrics: %w", err))
		return
	}
	if meta.Operations > 0 {
		metrics = append(metrics, trace.PerOperation(metrics, meta.Operations)...)
	}
	meta.Metrics = metrics
}
