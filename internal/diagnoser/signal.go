package diagnoser

import "fmt"

// Signal is a point in a benchmark launch the harness reports to the
// diagnoser.
type Signal int

const (
	BeforeAnythingElse Signal = iota
	BeforeProcessStart
	BeforeActualRun
	AfterActualRun
	AfterProcessExit
	AfterAll
)

func (s Signal) String() string {
	switch s {
	case BeforeAnythingElse:
		return "before-anything-else"
	case BeforeProcessStart:
		return "before-process-start"
	case BeforeActualRun:
		return "before-actual-run"
	case AfterActualRun:
		return "after-actual-run"
	case AfterProcessExit:
		return "after-process-exit"
	case AfterAll:
		return "after-all"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// RunMode tells the harness which launch the diagnoser observes.
type RunMode int

const (
	// NoOverhead attaches to the last timing launch.
	NoOverhead RunMode = iota
	// ExtraRun attaches to one additional launch after the timing launches,
	// keeping capture overhead out of the timings.
	ExtraRun
)

func (m RunMode) String() string {
	if m == ExtraRun {
		return "extra-run"
	}
	return "no-overhead"
}
