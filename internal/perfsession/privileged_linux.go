package perfsession

import (
	"fmt"
	"time"

	"github.com/elastic/go-perf"
	"github.com/signalnine/benchtrace/internal/session"
	"github.com/signalnine/benchtrace/internal/trace"
)

// privilegedSession counts kernel providers on every CPU for all tasks.
type privilegedSession struct {
	name    string
	cfg     session.Config
	cpus    []int
	logPath string

	lc      session.Lifecycle
	set     eventSet
	started time.Time
}

func (s *privilegedSession) Name() string { return s.name }

func (s *privilegedSession) LogPath() string { return s.logPath }

func (s *privilegedSession) EnableProviders() error {
	for _, p := range s.cfg.KernelProviders {
		for _, cpu := range s.cpus {
			attr, err := countAttr(p, softwareCounters[p])
			if err != nil {
				return err
			}
			if _, err := s.set.open(attr, trace.ScopeSystem, trace.KindCount, perf.AllThreads, cpu, 0); err != nil {
				return err
			}
		}
	}
	if err := s.set.enable(); err != nil {
		return err
	}
	s.started = time.Now()
	return s.lc.Advance(session.StateCreated, session.StateStarted)
}

func (s *privilegedSession) Stop() error {
	if err := s.lc.Advance(session.StateStarted, session.StateStopped); err != nil {
		return err
	}
	if err := s.set.disable(); err != nil {
		return fmt.Errorf("disabling %s: %w", s.name, err)
	}
	records, err := s.set.records()
	if err != nil {
		return err
	}
	return trace.WriteLog(s.logPath, &trace.Log{
		Session: s.name,
		Scope:   trace.ScopeSystem,
		Started: s.started,
		Stopped: time.Now(),
		Records: records,
	})
}

func (s *privilegedSession) Dispose() error {
	if _, err := s.lc.Dispose(); err != nil {
		return err
	}
	return s.set.close()
}
