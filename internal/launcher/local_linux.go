package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Local runs the command on the host. The child is started under ptrace so
// it stops at exec; Release detaches and lets it run.
type Local struct{}

type localProcess struct {
	cmd     *exec.Cmd
	timeout time.Duration

	release  chan bool
	released chan error
	once     sync.Once
	start    time.Time
	waited   bool
}

type startResult struct {
	cmd *exec.Cmd
	err error
}

func (Local) Prepare(ctx context.Context, spec *Spec) (Process, error) {
	if len(spec.Command) == 0 {
		return nil, errors.New("empty command")
	}
	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), envSlice(spec.Env)...)
	out := spec.Output
	if out == nil {
		out = io.Discard
	}
	cmd.Stdout, cmd.Stderr = out, out
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true, Setpgid: true}

	p := &localProcess{
		cmd:      cmd,
		timeout:  spec.Timeout,
		release:  make(chan bool),
		released: make(chan error, 1),
	}
	started := make(chan startResult, 1)

	// ptrace requests must come from the thread that started the child, so
	// one locked goroutine owns the tracee until it is detached.
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		if err := cmd.Start(); err != nil {
			started <- startResult{err: fmt.Errorf("starting %s: %w", spec.Command[0], err)}
			return
		}
		var ws unix.WaitStatus
		if _, err := unix.Wait4(cmd.Process.Pid, &ws, 0, nil); err != nil {
			_ = cmd.Process.Kill()
			started <- startResult{err: fmt.Errorf("waiting for exec stop: %w", err)}
			return
		}
		if !ws.Stopped() {
			started <- startResult{err: fmt.Errorf("%s exited before the gate (status %v)", spec.Command[0], ws)}
			return
		}
		started <- startResult{cmd: cmd}

		run := <-p.release
		if !run {
			_ = cmd.Process.Kill()
		}
		p.released <- unix.PtraceDetach(cmd.Process.Pid)
	}()

	select {
	case res := <-started:
		if res.err != nil {
			return nil, res.err
		}
		return p, nil
	case <-ctx.Done():
		// The child may already sit at its exec stop; reap it and free the
		// locked goroutine before giving up.
		if res := <-started; res.err == nil {
			_ = p.Close()
		}
		return nil, ctx.Err()
	}
}

func (p *localProcess) Pid() int { return p.cmd.Process.Pid }

func (p *localProcess) Release() error {
	err := errReleased
	p.once.Do(func() {
		p.start = time.Now()
		p.release <- true
		err = <-p.released
		if err != nil {
			err = fmt.Errorf("detaching from %d: %w", p.Pid(), err)
		}
	})
	return err
}

func (p *localProcess) Wait(ctx context.Context) (ExitStatus, error) {
	parent := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()

	select {
	case err := <-done:
		p.waited = true
		st := ExitStatus{Code: p.cmd.ProcessState.ExitCode(), Duration: time.Since(p.start)}
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			return st, fmt.Errorf("waiting for %d: %w", p.Pid(), err)
		}
		return st, nil
	case <-ctx.Done():
		_ = syscall.Kill(-p.Pid(), syscall.SIGKILL)
		<-done
		p.waited = true
		if err := parent.Err(); err != nil {
			return ExitStatus{Duration: time.Since(p.start)}, fmt.Errorf("waiting for %d: %w", p.Pid(), err)
		}
		return ExitStatus{Code: TimeoutExitCode, TimedOut: true, Duration: time.Since(p.start)}, nil
	}
}

func (p *localProcess) Close() error {
	p.once.Do(func() {
		p.release <- false
		<-p.released
	})
	if p.waited {
		return nil
	}
	_ = syscall.Kill(-p.Pid(), syscall.SIGKILL)
	_ = p.cmd.Wait()
	p.waited = true
	return nil
}
