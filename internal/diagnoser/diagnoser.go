// Package diagnoser binds benchmark lifecycle signals to capture sessions
// and keeps the per-unit artifacts they produce.
package diagnoser

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalnine/benchtrace/internal/counters"
	"github.com/signalnine/benchtrace/internal/logutil"
	"github.com/signalnine/benchtrace/internal/session"
	"github.com/signalnine/benchtrace/internal/trace"
	"go.uber.org/zap"
)

type Options struct {
	Catalog         *counters.Catalog
	Env             counters.Environment
	KernelProviders []string
	UserProviders   []string
	OutputDir       string
	ExtraRun        bool
}

// Params is what the harness knows about a unit when it signals.
type Params struct {
	Pid       int
	Counters  []counters.ID
	Overrides map[counters.ID]counters.Resolver
}

type Diagnoser struct {
	opts   Options
	coord  *session.Coordinator
	armer  counters.Armer
	parser trace.Parser
	reg    *Registry
}

// New wires a diagnoser. A nil catalog selects the built-in one and a nil
// parser selects trace.DefaultParser.
func New(opts Options, factory session.Factory, armer counters.Armer, parser trace.Parser) *Diagnoser {
	if opts.Catalog == nil {
		opts.Catalog = counters.DefaultCatalog()
	}
	if parser == nil {
		parser = trace.DefaultParser
	}
	return &Diagnoser{
		opts:   opts,
		coord:  session.NewCoordinator(factory),
		armer:  armer,
		parser: parser,
		reg:    NewRegistry(),
	}
}

func (d *Diagnoser) RunMode() RunMode {
	if d.opts.ExtraRun {
		return ExtraRun
	}
	return NoOverhead
}

func (d *Diagnoser) Registry() *Registry { return d.reg }

// Artifact returns the artifact path and armed descriptors of unit.
func (d *Diagnoser) Artifact(unit string) (string, []counters.Descriptor, bool) {
	return d.reg.Artifact(unit)
}

// HandleSignal reacts to BeforeProcessStart and AfterProcessExit. Every
// other signal is ignored. A cancelled ctx refuses new captures but never
// blocks AfterProcessExit, which must stop and dispose what was started.
func (d *Diagnoser) HandleSignal(ctx context.Context, sig Signal, unit string, p Params) error {
	switch sig {
	case BeforeProcessStart:
		if err := ctx.Err(); err != nil {
			return err
		}
		return d.start(unit, p)
	case AfterProcessExit:
		return d.stop(unit)
	default:
		return nil
	}
}

func (d *Diagnoser) start(unit string, p Params) error {
	sources := d.opts.Catalog.Sources(d.opts.Env.Vendor)
	descs, err := counters.Resolve(p.Counters, p.Overrides, sources)
	if err != nil {
		return fmt.Errorf("resolving counters for %s: %w", unit, err)
	}
	if err := counters.Arm(d.armer, descs); err != nil {
		return fmt.Errorf("%s: %w", unit, err)
	}
	d.reg.setCounters(unit, descs)

	err = d.coord.Start(unit, session.Config{
		Pid:             p.Pid,
		Counters:        descs,
		KernelProviders: d.opts.KernelProviders,
		UserProviders:   d.opts.UserProviders,
		OutputDir:       d.opts.OutputDir,
	})
	if err != nil {
		return fmt.Errorf("starting capture for %s: %w", unit, err)
	}
	logutil.L().Debug("capture started", zap.String("unit", unit), zap.Int("pid", p.Pid), zap.Int("counters", len(descs)))
	return nil
}

func (d *Diagnoser) stop(unit string) error {
	log := logutil.L().With(zap.String("unit", unit))
	path, err := d.coord.Stop(unit)
	if errors.Is(err, session.ErrNotStarted) {
		log.Debug("exit signal for unit without capture")
		return nil
	}
	if path != "" {
		d.reg.setArtifact(unit, path)
		log.Info("trace artifact recorded", zap.String("path", path))
	} else {
		d.reg.dropPending(unit)
	}
	if err != nil {
		return fmt.Errorf("stopping capture for %s: %w", unit, err)
	}
	return nil
}

// Metrics parses the unit's artifact. A unit without an artifact yields an
// empty slice and no error.
func (d *Diagnoser) Metrics(unit string) ([]trace.Metric, error) {
	path, descs, ok := d.reg.Artifact(unit)
	if !ok {
		return []trace.Metric{}, nil
	}
	return d.parser.Parse(path, descs)
}

// DisplaySummary describes the exported artifacts, or returns "" when there
// are none.
func (d *Diagnoser) DisplaySummary() string {
	n := d.reg.Count()
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("Exported %d trace file(s). Example:\n%s", n, d.reg.Example())
}

// Validate reports why the requested counters or the configured providers
// cannot be captured here. It never fails on an empty request.
func (d *Diagnoser) Validate(requested []counters.ID) []counters.ValidationError {
	return d.validate(requested, false)
}

// ValidateMandatory is Validate for callers that require counters.
func (d *Diagnoser) ValidateMandatory(requested []counters.ID) []counters.ValidationError {
	return d.validate(requested, true)
}

func (d *Diagnoser) validate(requested []counters.ID, mandatory bool) []counters.ValidationError {
	errs := counters.Validate(requested, d.opts.Catalog, d.opts.Env, mandatory)
	if len(d.opts.KernelProviders) > 0 && !d.opts.Env.CanTraceSystem() {
		errs = append(errs, counters.ValidationError{
			Message: fmt.Sprintf("perf_event_paranoid is %d; system-wide providers need <= 0 or CAP_PERFMON", d.opts.Env.Paranoid),
		})
	}
	return errs
}
