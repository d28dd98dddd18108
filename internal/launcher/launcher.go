// Package launcher starts benchmark processes held at a gate, so capture
// sessions can attach to the pid before any benchmark code runs.
package launcher

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrGateTimeout = errors.New("timed out waiting for the process gate")
	ErrUnsupported = errors.New("gated launch is not supported on this platform")

	errReleased = errors.New("process already released")
)

// TimeoutExitCode is reported for processes killed at their deadline.
const TimeoutExitCode = 124

type Spec struct {
	Name    string
	Command []string
	Dir     string
	Env     map[string]string
	// Image selects a docker launch when non-empty.
	Image   string
	Timeout time.Duration
	// Output receives the process' stdout and stderr; nil discards them.
	Output io.Writer
}

type ExitStatus struct {
	Code     int
	TimedOut bool
	Duration time.Duration
}

// Process is a prepared process that has not yet run user code until
// Release is called.
type Process interface {
	Pid() int
	Release() error
	Wait(ctx context.Context) (ExitStatus, error)
	// Close kills the process if it is still around and frees the gate.
	Close() error
}

type Launcher interface {
	Prepare(ctx context.Context, spec *Spec) (Process, error)
}

// For picks the launcher for spec.
func For(spec *Spec) Launcher {
	if spec.Image != "" {
		return Docker{}
	}
	return Local{}
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
