package perfsession

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/signalnine/benchtrace/internal/counters"
	"github.com/signalnine/benchtrace/internal/logutil"
	"github.com/signalnine/benchtrace/internal/session"
	"github.com/signalnine/benchtrace/internal/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// logSource is implemented by sessions that leave a record log behind.
type logSource interface {
	LogPath() string
}

// processSession counts user providers on the target pid and samples the
// armed hardware counters on it.
type processSession struct {
	name       string
	cfg        session.Config
	cpus       []int
	ringPages  int
	drainGrace time.Duration
	dir        string
	logPath    string

	lc      session.Lifecycle
	set     eventSet
	cancel  context.CancelFunc
	g       *errgroup.Group
	started time.Time
	stopped time.Time
}

func (s *processSession) Name() string { return s.name }

func (s *processSession) LogPath() string { return s.logPath }

func (s *processSession) EnableProviders() error {
	pid := s.cfg.Pid
	for _, p := range s.cfg.UserProviders {
		attr, err := countAttr(p, softwareCounters[p])
		if err != nil {
			return err
		}
		attr.Options.Inherit = true
		if _, err := s.set.open(attr, trace.ScopeProcess, trace.KindCount, pid, -1, 0); err != nil {
			return err
		}
	}

	var sampling []*event
	for _, d := range s.cfg.Counters {
		for _, cpu := range s.cpus {
			attr, err := sampleAttr(d)
			if err != nil {
				return err
			}
			attr.Options.Inherit = true
			e, err := s.set.open(attr, trace.ScopeProcess, trace.KindSample, pid, cpu, d.Interval)
			if err != nil {
				return err
			}
			if err := e.ev.MapRing(); err != nil {
				return fmt.Errorf("mapping ring for %s on cpu %d: %w", d.ID, cpu, err)
			}
			sampling = append(sampling, e)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range sampling {
		g.Go(func() error { return e.drain(gctx) })
	}
	s.cancel, s.g = cancel, g

	if err := s.set.enable(); err != nil {
		return err
	}
	s.started = time.Now()
	return s.lc.Advance(session.StateCreated, session.StateStarted)
}

func (s *processSession) Stop() error {
	if err := s.lc.Advance(session.StateStarted, session.StateStopped); err != nil {
		return err
	}
	err := s.set.disable()
	s.stopped = time.Now()
	if err != nil {
		return fmt.Errorf("disabling %s: %w", s.name, err)
	}
	s.stopReaders(s.drainGrace)

	records, err := s.set.records()
	if err != nil {
		return err
	}
	return trace.WriteLog(s.logPath, &trace.Log{
		Session: s.name,
		Scope:   trace.ScopeProcess,
		Started: s.started,
		Stopped: s.stopped,
		Records: records,
	})
}

// stopReaders lets the rings drain for grace and then waits for every
// reader to return.
func (s *processSession) stopReaders(grace time.Duration) {
	if s.cancel == nil {
		return
	}
	t := time.AfterFunc(grace, s.cancel)
	defer t.Stop()
	if grace == 0 {
		s.cancel()
	}
	if err := s.g.Wait(); err != nil {
		logutil.L().Warn("sampling ring reader failed",
			zap.String("session", s.name), zap.Error(err))
	}
	s.cancel()
	s.cancel = nil
}

// MergeFiles folds this session's log and other's log into the unit's
// trace artifact. Both logs are removed once the artifact is written.
func (s *processSession) MergeFiles(other session.Session) (string, error) {
	if s.lc.State() != session.StateStopped {
		return "", fmt.Errorf("%w: merge of %s while %s", session.ErrInvalidTransition, s.name, s.lc.State())
	}
	src, ok := other.(logSource)
	if !ok {
		return "", fmt.Errorf("session %s has no record log to merge", other.Name())
	}

	own, err := trace.ReadLog(s.logPath)
	if err != nil {
		return "", fmt.Errorf("reading %s log: %w", s.name, err)
	}
	sys, err := trace.ReadLog(src.LogPath())
	if err != nil {
		return "", fmt.Errorf("reading %s log: %w", other.Name(), err)
	}

	host, _ := os.Hostname()
	a := &trace.Artifact{
		Header: trace.Header{
			Version:  trace.Version,
			Unit:     s.cfg.Unit,
			Pid:      s.cfg.Pid,
			Host:     host,
			Vendor:   counters.DetectVendor(),
			Model:    counters.DetectModel(),
			Started:  earliest(own.Started, sys.Started),
			Stopped:  latest(own.Stopped, sys.Stopped),
			Sessions: []string{own.Session, sys.Session},
			Counters: s.cfg.Counters,
		},
		Records: append(append([]trace.Record{}, own.Records...), sys.Records...),
	}

	path := trace.ArtifactPath(s.dir, s.cfg.Unit)
	if err := trace.WriteArtifact(path, a); err != nil {
		return "", err
	}
	if err := multierr.Combine(removeLog(s.logPath), removeLog(src.LogPath())); err != nil {
		logutil.L().Warn("leftover session logs", zap.String("unit", s.cfg.Unit), zap.Error(err))
	}
	return path, nil
}

func (s *processSession) Dispose() error {
	if _, err := s.lc.Dispose(); err != nil {
		return err
	}
	s.stopReaders(0)
	return s.set.close()
}

func removeLog(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func earliest(a, b time.Time) time.Time {
	if b.IsZero() || (!a.IsZero() && a.Before(b)) {
		return a
	}
	return b
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
