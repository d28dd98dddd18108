package session

import (
	"fmt"
	"sync"

	"github.com/signalnine/benchtrace/internal/logutil"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type pair struct {
	privileged Session
	process    ProcessSession
}

// Coordinator owns the session pair of every execution unit in flight.
// Units are independent; the mutex only guards the map.
type Coordinator struct {
	factory Factory

	mu     sync.Mutex
	active map[string]*pair
}

func NewCoordinator(f Factory) *Coordinator {
	return &Coordinator{
		factory: f,
		active:  make(map[string]*pair),
	}
}

// Start creates and enables the privileged session, then the
// process-scoped one. On failure every session created so far is disposed.
func (c *Coordinator) Start(unit string, cfg Config) error {
	log := logutil.L().With(zap.String("unit", unit))
	cfg.Unit = unit

	priv, err := c.factory.NewPrivilegedSession(&cfg)
	if err != nil {
		return fmt.Errorf("creating privileged session: %w", err)
	}
	if err := priv.EnableProviders(); err != nil {
		return multierr.Append(fmt.Errorf("enabling privileged session: %w", err), dispose(priv))
	}
	log.Debug("privileged session enabled", zap.String("session", priv.Name()))

	proc, err := c.factory.NewProcessSession(&cfg)
	if err != nil {
		return multierr.Append(fmt.Errorf("creating process session: %w", err), dispose(priv))
	}
	if err := proc.EnableProviders(); err != nil {
		return multierr.Combine(fmt.Errorf("enabling process session: %w", err), dispose(proc), dispose(priv))
	}
	log.Debug("process session enabled", zap.String("session", proc.Name()), zap.Int("pid", cfg.Pid))

	c.mu.Lock()
	stale := c.active[unit]
	c.active[unit] = &pair{privileged: priv, process: proc}
	c.mu.Unlock()

	if stale != nil {
		log.Warn("unit started twice, discarding earlier sessions")
		if err := multierr.Combine(dispose(stale.process), dispose(stale.privileged)); err != nil {
			log.Warn("disposing stale sessions", zap.Error(err))
		}
	}
	return nil
}

// Stop stops the process-scoped session, then the privileged one, and
// merges them. Both sessions are disposed on every path. When only disposal
// fails the artifact path is returned together with the disposal error.
func (c *Coordinator) Stop(unit string) (path string, err error) {
	c.mu.Lock()
	p, ok := c.active[unit]
	delete(c.active, unit)
	c.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotStarted, unit)
	}

	defer func() { err = multierr.Append(err, dispose(p.privileged)) }()
	defer func() { err = multierr.Append(err, dispose(p.process)) }()

	if err := p.process.Stop(); err != nil {
		return "", fmt.Errorf("stopping process session: %w", err)
	}
	if err := p.privileged.Stop(); err != nil {
		return "", fmt.Errorf("stopping privileged session: %w", err)
	}
	path, err = p.process.MergeFiles(p.privileged)
	if err != nil {
		return "", fmt.Errorf("merging sessions: %w", err)
	}
	logutil.L().Debug("sessions merged", zap.String("unit", unit), zap.String("path", path))
	return path, nil
}

// Active reports how many units currently hold a session pair.
func (c *Coordinator) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

func dispose(s Session) error {
	if err := s.Dispose(); err != nil {
		return fmt.Errorf("disposing %s: %w", s.Name(), err)
	}
	return nil
}
