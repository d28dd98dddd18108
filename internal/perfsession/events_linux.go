package perfsession

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/elastic/go-perf"
	"github.com/signalnine/benchtrace/internal/counters"
	"github.com/signalnine/benchtrace/internal/trace"
	"go.uber.org/multierr"
)

var hardwareCounters = map[counters.ID]perf.HardwareCounter{
	counters.CPUCycles:             perf.CPUCycles,
	counters.Instructions:          perf.Instructions,
	counters.CacheReferences:       perf.CacheReferences,
	counters.CacheMisses:           perf.CacheMisses,
	counters.BranchInstructions:    perf.BranchInstructions,
	counters.BranchMisses:          perf.BranchMisses,
	counters.BusCycles:             perf.BusCycles,
	counters.RefCycles:             perf.RefCPUCycles,
	counters.StalledCyclesFrontend: perf.StalledCyclesFrontend,
	counters.StalledCyclesBackend:  perf.StalledCyclesBackend,
}

var softwareCounters = map[string]perf.SoftwareCounter{
	CPUClock:        perf.CPUClock,
	TaskClock:       perf.TaskClock,
	PageFaults:      perf.PageFaults,
	ContextSwitches: perf.ContextSwitches,
	CPUMigrations:   perf.CPUMigrations,
	MinorFaults:     perf.MinorPageFaults,
	MajorFaults:     perf.MajorPageFaults,
}

type event struct {
	scope  trace.Scope
	source string
	kind   trace.Kind
	cpu    int
	period uint64
	ev     *perf.Event

	samples atomic.Uint64
	lost    atomic.Uint64
}

// eventSet owns a group of perf events. close is idempotent.
type eventSet struct {
	events []*event
	closed bool
}

func countAttr(source string, cfg perf.Configurator) (*perf.Attr, error) {
	attr := new(perf.Attr)
	if err := cfg.Configure(attr); err != nil {
		return nil, fmt.Errorf("configuring %s: %w", source, err)
	}
	attr.Label = source
	attr.CountFormat = perf.CountFormat{Enabled: true, Running: true}
	attr.Options.Disabled = true
	attr.Options.ExcludeHypervisor = true
	return attr, nil
}

func sampleAttr(d counters.Descriptor) (*perf.Attr, error) {
	hw, ok := hardwareCounters[d.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", counters.ErrUnknownCounter, d.ID)
	}
	attr, err := countAttr(string(d.ID), hw)
	if err != nil {
		return nil, err
	}
	attr.SetSamplePeriod(d.Interval)
	attr.SampleFormat = perf.SampleFormat{Tid: true, Time: true, CPU: true, Period: true}
	attr.SetWakeupEvents(1)
	return attr, nil
}

func (s *eventSet) open(attr *perf.Attr, scope trace.Scope, kind trace.Kind, pid, cpu int, period uint64) (*event, error) {
	ev, err := perf.Open(attr, pid, cpu, nil)
	if err != nil {
		return nil, fmt.Errorf("opening %s on cpu %d: %w", attr.Label, cpu, err)
	}
	e := &event{scope: scope, source: attr.Label, kind: kind, cpu: cpu, period: period, ev: ev}
	s.events = append(s.events, e)
	return e, nil
}

func (s *eventSet) enable() error {
	for _, e := range s.events {
		if err := e.ev.Enable(); err != nil {
			return fmt.Errorf("enabling %s on cpu %d: %w", e.source, e.cpu, err)
		}
	}
	return nil
}

func (s *eventSet) disable() error {
	var err error
	for _, e := range s.events {
		err = multierr.Append(err, e.ev.Disable())
	}
	return err
}

func (s *eventSet) records() ([]trace.Record, error) {
	records := make([]trace.Record, 0, len(s.events))
	for _, e := range s.events {
		c, err := e.ev.ReadCount()
		if err != nil {
			return nil, fmt.Errorf("reading %s on cpu %d: %w", e.source, e.cpu, err)
		}
		records = append(records, trace.Record{
			Scope:   e.scope,
			Source:  e.source,
			Kind:    e.kind,
			CPU:     e.cpu,
			Value:   c.Value,
			Enabled: c.Enabled,
			Running: c.Running,
			Samples: e.samples.Load(),
			Lost:    e.lost.Load(),
			Period:  e.period,
		})
	}
	return records, nil
}

func (s *eventSet) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	for _, e := range s.events {
		err = multierr.Append(err, e.ev.Close())
	}
	return err
}

// drain counts sample and lost records until ctx is done.
func (e *event) drain(ctx context.Context) error {
	for {
		rec, err := e.ev.ReadRecord(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("draining %s on cpu %d: %w", e.source, e.cpu, err)
		}
		switch r := rec.(type) {
		case *perf.SampleRecord:
			e.samples.Add(1)
		case *perf.LostRecord:
			e.lost.Add(r.Lost)
		}
	}
}
