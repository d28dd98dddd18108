package launcher_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/signalnine/benchtrace/internal/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForPicksLauncher(t *testing.T) {
	assert.IsType(t, launcher.Local{}, launcher.For(&launcher.Spec{Command: []string{"true"}}))
	assert.IsType(t, launcher.Docker{}, launcher.For(&launcher.Spec{Image: "alpine:latest"}))
}

func TestDockerGate(t *testing.T) {
	if os.Getenv("BENCHTRACE_DOCKER_TESTS") == "" {
		t.Skip("set BENCHTRACE_DOCKER_TESTS=1 to run Docker tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	p, err := launcher.Docker{}.Prepare(ctx, &launcher.Spec{
		Name:    "gate",
		Image:   "alpine:latest",
		Command: []string{"sh", "-c", "exit 7"},
		Timeout: 30 * time.Second,
	})
	require.NoError(t, err)
	defer p.Close()
	assert.Positive(t, p.Pid())

	require.NoError(t, p.Release())
	st, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, st.Code)
	assert.False(t, st.TimedOut)
}

func TestDockerTimeout(t *testing.T) {
	if os.Getenv("BENCHTRACE_DOCKER_TESTS") == "" {
		t.Skip("set BENCHTRACE_DOCKER_TESTS=1 to run Docker tests")
	}
	ctx := context.Background()
	p, err := launcher.Docker{}.Prepare(ctx, &launcher.Spec{
		Image:   "alpine:latest",
		Command: []string{"sleep", "300"},
		Timeout: 2 * time.Second,
	})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Release())
	st, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, st.TimedOut)
	assert.Equal(t, launcher.TimeoutExitCode, st.Code)
}

func TestDockerInterruptedIsNotTimeout(t *testing.T) {
	if os.Getenv("BENCHTRACE_DOCKER_TESTS") == "" {
		t.Skip("set BENCHTRACE_DOCKER_TESTS=1 to run Docker tests")
	}
	p, err := launcher.Docker{}.Prepare(context.Background(), &launcher.Spec{
		Image:   "alpine:latest",
		Command: []string{"sleep", "300"},
		Timeout: time.Minute,
	})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Release())
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(time.Second, cancel)
	st, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, st.TimedOut)
}
