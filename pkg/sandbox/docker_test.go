package sandbox

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDockerSandbox_NotRunning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Runtime = RuntimeDocker

	sb, err := NewDockerSandbox(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, sb.IsRunning())

	_, err = sb.Execute(context.Background(), ExecuteRequest{Command: "echo"})
	assert.ErrorIs(t, err, ErrSandboxNotRunning)
	assert.ErrorIs(t, sb.Stop(context.Background()), ErrSandboxNotRunning)
}

func TestBuildDockerRunArgs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Runtime = RuntimeDocker
	cfg.Docker.Image = "busybox:1.36"
	cfg.Docker.ExtraArgs = []string{"--label", "recap=1"}

	args := buildDockerRunArgs(cfg, ExecuteRequest{
		Command:    "/bin/sh",
		Args:       []string{"-c", "ls"},
		WorkingDir: "/tmp/recap-snapshot-1",
		Env:        map[string]string{"B": "2", "A": "1"},
	})

	assert.Equal(t, []string{"run", "--rm", "--init", "--network", "none", "--read-only"}, args[:6])
	assert.Contains(t, args, "--cpus")
	assert.Contains(t, args, "0.50")
	assert.Contains(t, args, "256m")
	assert.Contains(t, args, "--pids-limit")
	assert.Contains(t, args, "65534:65534")
	assert.Contains(t, args, "no-new-privileges")
	assert.Contains(t, args, "recap=1")
	assert.Contains(t, args, "/tmp/recap-snapshot-1:"+ContainerWorkdir+":ro")

	// env is sorted, image comes right before the command
	assert.Equal(t, []string{"-e", "A=1", "-e", "B=2", "busybox:1.36", "/bin/sh", "-c", "ls"}, args[len(args)-8:])
}

func TestBuildDockerRunArgs_NoWorkingDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Docker.Image = ""
	cfg.ResourceLimits = ResourceLimits{}

	args := buildDockerRunArgs(cfg, ExecuteRequest{Command: "true"})

	assert.NotContains(t, args, "-v")
	assert.NotContains(t, args, "--cpus")
	assert.Equal(t, []string{DefaultConfig().Docker.Image, "true"}, args[len(args)-2:])
}
