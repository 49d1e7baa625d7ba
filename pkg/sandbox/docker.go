package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ContainerWorkdir is where the working directory is mounted inside the container
const ContainerWorkdir = "/snapshot"

// CheckDocker verifies that the Docker daemon is available and responsive.
func CheckDocker(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "ps", "-q")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker is not available or not running: %w", err)
	}
	return nil
}

// DockerSandbox runs every command in an ephemeral, network-less container
// with the working directory mounted read-only.
type DockerSandbox struct {
	config  Config
	logger  zerolog.Logger
	running bool
	mu      sync.RWMutex
}

// NewDockerSandbox creates a new Docker-based sandbox.
func NewDockerSandbox(config Config, logger zerolog.Logger) (*DockerSandbox, error) {
	if config.Runtime == "" {
		config.Runtime = RuntimeDocker
	}
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &DockerSandbox{
		config: config,
		logger: logger.With().Str("component", "sandbox").Str("runtime", string(RuntimeDocker)).Logger(),
	}, nil
}

// Start checks the daemon and marks the sandbox as running.
func (d *DockerSandbox) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return ErrSandboxAlreadyRunning
	}
	if err := CheckDocker(ctx); err != nil {
		return err
	}

	d.logger.Info().Str("image", d.config.Docker.Image).Msg("Starting docker sandbox")

	d.running = true
	return nil
}

// Stop marks the Docker sandbox as stopped.
func (d *DockerSandbox) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return ErrSandboxNotRunning
	}

	d.logger.Debug().Msg("Stopping docker sandbox")
	d.running = false
	return nil
}

// IsRunning returns whether the sandbox is currently running.
func (d *DockerSandbox) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Execute runs a command inside an ephemeral Docker container.
func (d *DockerSandbox) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	d.mu.RLock()
	if !d.running {
		d.mu.RUnlock()
		return ExecuteResult{}, ErrSandboxNotRunning
	}
	cfg := d.config
	d.mu.RUnlock()

	if strings.TrimSpace(req.Command) == "" {
		return ExecuteResult{}, ErrEmptyCommand
	}
	if err := checkWorkingDir(req.WorkingDir); err != nil {
		return ExecuteResult{}, err
	}

	execCtx, cancel := context.WithTimeout(ctx, effectiveTimeout(req, cfg))
	defer cancel()

	cmd := exec.CommandContext(execCtx, "docker", buildDockerRunArgs(cfg, req)...)
	result, err := runProcess(execCtx, cmd)

	d.logger.Debug().
		Str("image", cfg.Docker.Image).
		Str("command", req.Command).
		Strs("args", req.Args).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("Command executed in docker sandbox")

	return result, err
}

func buildDockerRunArgs(cfg Config, req ExecuteRequest) []string {
	args := []string{"run", "--rm", "--init", "--network", "none", "--read-only"}

	if cfg.ResourceLimits.MaxCPU > 0 {
		cpus := float64(cfg.ResourceLimits.MaxCPU) / 100.0
		args = append(args, "--cpus", strconv.FormatFloat(cpus, 'f', 2, 64))
	}
	if cfg.ResourceLimits.MaxMemoryMB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", cfg.ResourceLimits.MaxMemoryMB))
	}
	if cfg.ResourceLimits.MaxProcesses > 0 {
		args = append(args, "--pids-limit", strconv.Itoa(cfg.ResourceLimits.MaxProcesses))
	}

	if user := strings.TrimSpace(cfg.Docker.User); user != "" {
		args = append(args, "--user", user)
	}
	for _, secOpt := range cfg.Docker.SecurityOpt {
		if trimmed := strings.TrimSpace(secOpt); trimmed != "" {
			args = append(args, "--security-opt", trimmed)
		}
	}
	for _, cap := range cfg.Docker.CapDrop {
		if trimmed := strings.TrimSpace(cap); trimmed != "" {
			args = append(args, "--cap-drop", trimmed)
		}
	}
	args = append(args, cfg.Docker.ExtraArgs...)

	if wd := strings.TrimSpace(req.WorkingDir); wd != "" {
		args = append(args,
			"-v", fmt.Sprintf("%s:%s:ro", wd, ContainerWorkdir),
			"-w", ContainerWorkdir,
		)
	}

	envKeys := make([]string, 0, len(req.Env))
	for key := range req.Env {
		envKeys = append(envKeys, key)
	}
	sort.Strings(envKeys)
	for _, key := range envKeys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", key, req.Env[key]))
	}

	image := strings.TrimSpace(cfg.Docker.Image)
	if image == "" {
		image = DefaultConfig().Docker.Image
	}
	args = append(args, image, req.Command)
	args = append(args, req.Args...)

	return args
}
