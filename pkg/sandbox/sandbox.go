package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Runtime selects how commands are isolated
type Runtime string

const (
	// RuntimeVirtual interprets commands in process against the snapshot only
	RuntimeVirtual Runtime = "virtual"
	// RuntimeHost runs commands as host processes with a minimal environment.
	// Commands see the whole host filesystem and network; it needs AllowHost.
	RuntimeHost Runtime = "host"
	// RuntimeDocker runs every command in an ephemeral container
	RuntimeDocker Runtime = "docker"
)

// Config defines sandbox configuration
type Config struct {
	// Runtime selects the isolation backend (virtual, docker, host)
	Runtime Runtime `json:"runtime" mapstructure:"runtime"`

	// AllowHost opts in to the unisolated host runtime
	AllowHost bool `json:"allow_host" mapstructure:"allow_host"`

	// ResourceLimits defines resource constraints
	ResourceLimits ResourceLimits `json:"resource_limits" mapstructure:"resource_limits"`

	// Docker holds settings used only by the docker runtime
	Docker DockerConfig `json:"docker" mapstructure:"docker"`
}

// ResourceLimits defines resource constraints for sandboxed execution.
// CPU, memory and process limits are enforced by the docker runtime only;
// every runtime enforces the timeout.
type ResourceLimits struct {
	// MaxCPU limits CPU usage (percentage, 0-100)
	MaxCPU int `json:"max_cpu" mapstructure:"max_cpu"`

	// MaxMemoryMB limits memory usage in megabytes
	MaxMemoryMB int `json:"max_memory_mb" mapstructure:"max_memory_mb"`

	// MaxProcesses limits number of processes
	MaxProcesses int `json:"max_processes" mapstructure:"max_processes"`

	// Timeout limits execution time of one command
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// DockerConfig configures the docker runtime
type DockerConfig struct {
	Image       string   `json:"image" mapstructure:"image"`
	User        string   `json:"user" mapstructure:"user"`
	SecurityOpt []string `json:"security_opt" mapstructure:"security_opt"`
	CapDrop     []string `json:"cap_drop" mapstructure:"cap_drop"`
	ExtraArgs   []string `json:"extra_args" mapstructure:"extra_args"`
}

// ExecuteRequest represents a sandbox execution request
type ExecuteRequest struct {
	// Command is the command to execute
	Command string `json:"command"`

	// Args are the command arguments
	Args []string `json:"args"`

	// Env are extra environment variables
	Env map[string]string `json:"env"`

	// WorkingDir is the working directory, exposed read-only
	WorkingDir string `json:"working_dir"`

	// Timeout overrides the configured timeout when non-zero
	Timeout time.Duration `json:"timeout"`
}

// ExecuteResult represents a sandbox execution result
type ExecuteResult struct {
	Stdout   []byte        `json:"stdout"`
	Stderr   []byte        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`

	// Error is set when the process could not run to an exit code
	Error error `json:"error,omitempty"`
}

// Sandbox defines the interface for sandboxed execution
type Sandbox interface {
	// Execute runs a command in the sandbox
	Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)

	// Start initializes the sandbox
	Start(ctx context.Context) error

	// Stop cleans up the sandbox
	Stop(ctx context.Context) error

	// IsRunning returns whether the sandbox is running
	IsRunning() bool
}

// DefaultConfig returns a default sandbox configuration
func DefaultConfig() Config {
	return Config{
		Runtime: RuntimeVirtual,
		ResourceLimits: ResourceLimits{
			MaxCPU:       50,
			MaxMemoryMB:  256,
			MaxProcesses: 32,
			Timeout:      15 * time.Second,
		},
		Docker: DockerConfig{
			Image:   "alpine:3.20",
			User:    "65534:65534",
			CapDrop: []string{"ALL"},
			SecurityOpt: []string{
				"no-new-privileges",
			},
		},
	}
}

// ValidateConfig validates a sandbox configuration
func ValidateConfig(cfg Config) error {
	switch cfg.Runtime {
	case RuntimeVirtual:
	case RuntimeHost:
		if !cfg.AllowHost {
			return ErrHostRuntimeNotAllowed
		}
	case RuntimeDocker:
		if strings.TrimSpace(cfg.Docker.Image) == "" {
			return ErrDockerImageRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRuntime, cfg.Runtime)
	}

	if cfg.ResourceLimits.MaxCPU < 0 || cfg.ResourceLimits.MaxCPU > 100 {
		return ErrInvalidCPULimit
	}

	if cfg.ResourceLimits.MaxMemoryMB < 0 {
		return ErrInvalidMemoryLimit
	}

	if cfg.ResourceLimits.MaxProcesses < 0 {
		return ErrInvalidProcessLimit
	}

	if cfg.ResourceLimits.Timeout < 0 {
		return ErrInvalidTimeout
	}

	return nil
}

// New creates the sandbox for the configured runtime
func New(cfg Config, logger zerolog.Logger) (Sandbox, error) {
	switch cfg.Runtime {
	case RuntimeDocker:
		return NewDockerSandbox(cfg, logger)
	case RuntimeHost:
		return NewHostSandbox(cfg, logger)
	default:
		return NewVirtualSandbox(cfg, logger)
	}
}

// runProcess runs cmd to completion and collects its output. The command must
// have been created with execCtx.
func runProcess(execCtx context.Context, cmd *exec.Cmd) (ExecuteResult, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// children of a killed shell can hold the pipes open
	cmd.WaitDelay = 500 * time.Millisecond

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return ExecuteResult{
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
			ExitCode: -1,
			Duration: duration,
			Error:    ErrExecutionTimeout,
		}, ErrExecutionTimeout
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
	}

	result := ExecuteResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
		Duration: duration,
	}
	if err != nil && exitCode == 0 {
		result.Error = err
	}
	return result, nil
}

func effectiveTimeout(req ExecuteRequest, cfg Config) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	if cfg.ResourceLimits.Timeout > 0 {
		return cfg.ResourceLimits.Timeout
	}
	return DefaultConfig().ResourceLimits.Timeout
}
