//go:build unix

package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"
	"github.com/signalnine/benchtrace/internal/logutil"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	gateDir = "/run/benchtrace"
	// gateScript blocks on the gate FIFO, then execs the benchmark in place
	// so the container's init pid becomes the benchmark's pid.
	gateScript = `read _ < ` + gateDir + `/gate; exec "$0" "$@"`
)

// GateWait bounds how long Release waits for the container to open its
// end of the gate.
var GateWait = 10 * time.Second

// Docker runs the command in a container whose entrypoint waits on a FIFO
// bind-mounted from the host.
type Docker struct{}

type dockerProcess struct {
	cli     *client.Client
	id      string
	pid     int
	gate    string
	timeout time.Duration
	output  io.Writer

	once  sync.Once
	start time.Time
}

func (Docker) Prepare(ctx context.Context, spec *Spec) (Process, error) {
	if len(spec.Command) == 0 {
		return nil, errors.New("empty command")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	p := &dockerProcess{cli: cli, timeout: spec.Timeout, output: spec.Output}

	p.gate, err = os.MkdirTemp("", "benchtrace-gate-")
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("creating gate dir: %w", err)
	}
	if err := os.Chmod(p.gate, 0o755); err != nil {
		p.Close()
		return nil, err
	}
	if err := unix.Mkfifo(filepath.Join(p.gate, "gate"), 0o666); err != nil {
		p.Close()
		return nil, fmt.Errorf("creating gate fifo: %w", err)
	}

	mounts := []mount.Mount{{
		Type:     mount.TypeBind,
		Source:   p.gate,
		Target:   gateDir,
		ReadOnly: true,
	}}
	workDir := ""
	if spec.Dir != "" {
		abs, err := filepath.Abs(spec.Dir)
		if err != nil {
			p.Close()
			return nil, err
		}
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: abs, Target: "/workspace"})
		workDir = "/workspace"
	}

	cmd := append([]string{"sh", "-c", gateScript}, spec.Command...)
	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config: &container.Config{
			Image:      spec.Image,
			Cmd:        cmd,
			Env:        envSlice(spec.Env),
			WorkingDir: workDir,
			Labels:     map[string]string{"benchtrace": "true", "benchtrace.benchmark": spec.Name},
		},
		HostConfig: &container.HostConfig{Mounts: mounts},
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("creating container: %w", err)
	}
	p.id = createResp.ID

	if _, err := cli.ContainerStart(ctx, p.id, client.ContainerStartOptions{}); err != nil {
		p.Close()
		return nil, fmt.Errorf("starting container: %w", err)
	}
	inspect, err := cli.ContainerInspect(ctx, p.id, client.ContainerInspectOptions{})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("inspecting container: %w", err)
	}
	if inspect.Container.State == nil || inspect.Container.State.Pid == 0 {
		p.Close()
		return nil, fmt.Errorf("container %s has no host pid", p.id[:12])
	}
	p.pid = inspect.Container.State.Pid
	logutil.L().Debug("container gated", zap.String("container", p.id[:12]), zap.Int("pid", p.pid))
	return p, nil
}

func (p *dockerProcess) Pid() int { return p.pid }

// Release opens the gate. The container may not have opened the FIFO for
// reading yet, in which case opening the write end fails with ENXIO.
func (p *dockerProcess) Release() error {
	err := errReleased
	p.once.Do(func() {
		err = p.openGate()
		p.start = time.Now()
	})
	return err
}

func (p *dockerProcess) openGate() error {
	path := filepath.Join(p.gate, "gate")
	deadline := time.Now().Add(GateWait)
	for {
		fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err == nil {
			_, werr := unix.Write(fd, []byte("go\n"))
			return multierr.Combine(werr, unix.Close(fd))
		}
		if !errors.Is(err, unix.ENXIO) {
			return fmt.Errorf("opening gate: %w", err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: container %s", ErrGateTimeout, p.id[:12])
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (p *dockerProcess) Wait(ctx context.Context) (ExitStatus, error) {
	timeoutCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		timeoutCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	waitResult := p.cli.ContainerWait(timeoutCtx, p.id, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
	for {
		select {
		case err := <-waitResult.Error:
			if err != nil {
				p.cli.ContainerKill(context.Background(), p.id, client.ContainerKillOptions{Signal: "SIGKILL"})
				p.copyLogs()
				elapsed := time.Since(p.start)
				if cerr := ctx.Err(); cerr != nil {
					return ExitStatus{Duration: elapsed}, fmt.Errorf("waiting for container: %w", cerr)
				}
				if timeoutCtx.Err() == nil {
					return ExitStatus{Duration: elapsed}, fmt.Errorf("waiting for container: %w", err)
				}
				return ExitStatus{Code: TimeoutExitCode, TimedOut: true, Duration: elapsed}, nil
			}
		case status := <-waitResult.Result:
			p.copyLogs()
			return ExitStatus{Code: int(status.StatusCode), Duration: time.Since(p.start)}, nil
		}
	}
}

func (p *dockerProcess) copyLogs() {
	if p.output == nil {
		return
	}
	logReader, err := p.cli.ContainerLogs(context.Background(), p.id, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true, Tail: "100"})
	if err != nil {
		logutil.L().Debug("reading container logs", zap.String("container", p.id[:12]), zap.Error(err))
		return
	}
	defer logReader.Close()
	io.Copy(p.output, logReader)
}

func (p *dockerProcess) Close() error {
	var err error
	if p.id != "" {
		_, rerr := p.cli.ContainerRemove(context.Background(), p.id, client.ContainerRemoveOptions{Force: true})
		if rerr != nil {
			err = fmt.Errorf("removing container: %w", rerr)
		}
	}
	if p.gate != "" {
		err = multierr.Append(err, os.RemoveAll(p.gate))
	}
	return multierr.Append(err, p.cli.Close())
}
