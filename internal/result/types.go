package result

import (
	"time"

	"github.com/signalnine/benchtrace/internal/counters"
	"github.com/signalnine/benchtrace/internal/trace"
)

type BenchmarkMeta struct {
	Benchmark  string    `json:"benchmark"`
	RunMode    string    `json:"run_mode"`
	Operations int64     `json:"operations,omitempty"`
	Revision   string    `json:"revision,omitempty"`
	Started    time.Time `json:"started"`
	Launches   []Launch  `json:"launches"`

	Counters        []counters.Descriptor `json:"counters,omitempty"`
	Metrics         []trace.Metric        `json:"metrics,omitempty"`
	Artifact        string                `json:"artifact,omitempty"`
	DiagnosticError string                `json:"diagnostic_error,omitempty"`
}

type Launch struct {
	Index      int    `json:"index"`
	Diagnosed  bool   `json:"diagnosed"`
	DurationNS int64  `json:"duration_ns"`
	ExitCode   int    `json:"exit_code"`
	ExitReason string `json:"exit_reason"`
}

// TimingLaunches returns the launches whose durations count towards
// timings. An extra diagnosed launch is excluded.
func (m *BenchmarkMeta) TimingLaunches() []Launch {
	var out []Launch
	for _, l := range m.Launches {
		if l.Diagnosed && m.RunMode == "extra-run" {
			continue
		}
		out = append(out, l)
	}
	return out
}

// MeanDuration averages the timing launches.
func (m *BenchmarkMeta) MeanDuration() time.Duration {
	launches := m.TimingLaunches()
	if len(launches) == 0 {
		return 0
	}
	var total int64
	for _, l := range launches {
		total += l.DurationNS
	}
	return time.Duration(total / int64(len(launches)))
}

// Passed reports whether every launch completed.
func (m *BenchmarkMeta) Passed() bool {
	if len(m.Launches) == 0 {
		return false
	}
	for _, l := range m.Launches {
		if l.ExitReason != "completed" {
			return false
		}
	}
	return true
}
