package perfsession

import (
	"fmt"
	"os"

	"github.com/elastic/go-perf"
	"github.com/google/uuid"
	"github.com/signalnine/benchtrace/internal/counters"
	"github.com/signalnine/benchtrace/internal/logutil"
	"github.com/signalnine/benchtrace/internal/session"
	"github.com/signalnine/benchtrace/internal/trace"
	"go.uber.org/zap"
)

// Backend creates perf_event capture sessions and arms hardware counters.
type Backend struct {
	opts Options
}

func New(opts Options) (*Backend, error) {
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}
	return &Backend{opts: opts}, nil
}

// ArmCounters opens each counter once on the calling thread with its
// resolved period, so an unsupported counter or period fails here rather
// than after the privileged session is already capturing.
func (b *Backend) ArmCounters(descs []counters.Descriptor) error {
	log := logutil.L()
	for _, d := range descs {
		attr, err := sampleAttr(d)
		if err != nil {
			return err
		}
		ev, err := perf.Open(attr, 0, -1, nil)
		if err != nil {
			return fmt.Errorf("arming %s at interval %d: %w", d.ID, d.Interval, err)
		}
		if err := ev.Close(); err != nil {
			return fmt.Errorf("releasing probe for %s: %w", d.ID, err)
		}
		log.Debug("hardware counter armed", zap.String("counter", string(d.ID)), zap.Uint64("interval", d.Interval))
	}
	return nil
}

func (b *Backend) NewPrivilegedSession(cfg *session.Config) (session.Session, error) {
	dir, err := b.outputDir(cfg)
	if err != nil {
		return nil, err
	}
	for _, p := range cfg.KernelProviders {
		if _, ok := softwareCounters[p]; !ok {
			return nil, fmt.Errorf("unknown kernel provider %q", p)
		}
	}
	return &privilegedSession{
		name:    sessionName(trace.ScopeSystem),
		cfg:     *cfg,
		cpus:    b.opts.CPUs,
		logPath: trace.LogPath(dir, cfg.Unit, trace.ScopeSystem),
	}, nil
}

func (b *Backend) NewProcessSession(cfg *session.Config) (session.ProcessSession, error) {
	if cfg.Pid <= 0 {
		return nil, fmt.Errorf("process session for %s needs a target pid, got %d", cfg.Unit, cfg.Pid)
	}
	dir, err := b.outputDir(cfg)
	if err != nil {
		return nil, err
	}
	for _, p := range cfg.UserProviders {
		if _, ok := softwareCounters[p]; !ok {
			return nil, fmt.Errorf("unknown user provider %q", p)
		}
	}
	return &processSession{
		name:       sessionName(trace.ScopeProcess),
		cfg:        *cfg,
		cpus:       b.opts.CPUs,
		ringPages:  b.opts.RingPages,
		drainGrace: b.opts.DrainGrace,
		dir:        dir,
		logPath:    trace.LogPath(dir, cfg.Unit, trace.ScopeProcess),
	}, nil
}

func (b *Backend) outputDir(cfg *session.Config) (string, error) {
	dir := cfg.OutputDir
	if dir == "" {
		dir = b.opts.OutputDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating trace dir: %w", err)
	}
	return dir, nil
}

func sessionName(scope trace.Scope) string {
	return fmt.Sprintf("benchtrace-%s-%s", scope, uuid.NewString()[:8])
}
