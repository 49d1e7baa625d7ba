package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// HostSandbox runs commands as host processes with a minimal environment.
// Only the working directory is read-only: commands keep the user's file and
// network access and no resource limit besides the timeout applies.
type HostSandbox struct {
	config  Config
	logger  zerolog.Logger
	running bool
	mu      sync.RWMutex
}

// NewHostSandbox creates a new host-based sandbox
func NewHostSandbox(config Config, logger zerolog.Logger) (*HostSandbox, error) {
	config.Runtime = RuntimeHost
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &HostSandbox{
		config: config,
		logger: logger.With().Str("component", "sandbox").Str("runtime", string(RuntimeHost)).Logger(),
	}, nil
}

// Start initializes the sandbox
func (h *HostSandbox) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrSandboxAlreadyRunning
	}

	h.logger.Warn().Dur("timeout", h.config.ResourceLimits.Timeout).Msg("Starting host sandbox; commands are not isolated from the host")

	h.running = true
	return nil
}

// Stop cleans up the sandbox
func (h *HostSandbox) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrSandboxNotRunning
	}

	h.logger.Debug().Msg("Stopping host sandbox")

	h.running = false
	return nil
}

// IsRunning returns whether the sandbox is running
func (h *HostSandbox) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Execute runs a command in the sandbox
func (h *HostSandbox) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ExecuteResult{}, ErrSandboxNotRunning
	}
	cfg := h.config
	h.mu.RUnlock()

	if strings.TrimSpace(req.Command) == "" {
		return ExecuteResult{}, ErrEmptyCommand
	}
	if err := checkWorkingDir(req.WorkingDir); err != nil {
		return ExecuteResult{}, err
	}

	execCtx, cancel := context.WithTimeout(ctx, effectiveTimeout(req, cfg))
	defer cancel()

	cmd := exec.CommandContext(execCtx, req.Command, req.Args...)
	cmd.Dir = req.WorkingDir
	cmd.Env = buildEnvironment(req.Env)

	result, err := runProcess(execCtx, cmd)

	h.logger.Debug().
		Str("command", req.Command).
		Strs("args", req.Args).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("Command executed in sandbox")

	return result, err
}

// checkWorkingDir requires an existing absolute directory when one is given
func checkWorkingDir(path string) error {
	if path == "" {
		return nil
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %s is not absolute", ErrInvalidWorkingDir, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWorkingDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidWorkingDir, path)
	}
	return nil
}

// buildEnvironment builds the environment variables for the command
func buildEnvironment(env map[string]string) []string {
	result := []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=/tmp",
		"LC_ALL=C",
	}

	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		result = append(result, fmt.Sprintf("%s=%s", key, env[key]))
	}

	return result
}
