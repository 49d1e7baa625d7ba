package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// maxCapturedBytes bounds what one command keeps of each output stream
const maxCapturedBytes = 1 << 20

// VirtualSandbox interprets sh scripts in process. Every path resolves inside
// the request's working directory, nothing can be written, and only the
// read-only commands in snapshotCommands can run. No host process is started.
type VirtualSandbox struct {
	config  Config
	logger  zerolog.Logger
	running bool
	mu      sync.RWMutex
}

// NewVirtualSandbox creates a new in-process sandbox
func NewVirtualSandbox(config Config, logger zerolog.Logger) (*VirtualSandbox, error) {
	if config.Runtime == "" {
		config.Runtime = RuntimeVirtual
	}
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &VirtualSandbox{
		config: config,
		logger: logger.With().Str("component", "sandbox").Str("runtime", string(RuntimeVirtual)).Logger(),
	}, nil
}

// Start initializes the sandbox
func (v *VirtualSandbox) Start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.running {
		return ErrSandboxAlreadyRunning
	}

	v.logger.Debug().Dur("timeout", v.config.ResourceLimits.Timeout).Msg("Starting virtual sandbox")

	v.running = true
	return nil
}

// Stop cleans up the sandbox
func (v *VirtualSandbox) Stop(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.running {
		return ErrSandboxNotRunning
	}

	v.logger.Debug().Msg("Stopping virtual sandbox")

	v.running = false
	return nil
}

// IsRunning returns whether the sandbox is running
func (v *VirtualSandbox) IsRunning() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.running
}

// Execute interprets the request's script with the working directory as the
// only visible file tree. The request is either `sh -c <script>` or a bare
// script in Command.
func (v *VirtualSandbox) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	v.mu.RLock()
	if !v.running {
		v.mu.RUnlock()
		return ExecuteResult{}, ErrSandboxNotRunning
	}
	cfg := v.config
	v.mu.RUnlock()

	script, err := shellScript(req)
	if err != nil {
		return ExecuteResult{}, err
	}
	if req.WorkingDir == "" {
		return ExecuteResult{}, fmt.Errorf("%w: the virtual runtime needs a root directory", ErrInvalidWorkingDir)
	}
	if err := checkWorkingDir(req.WorkingDir); err != nil {
		return ExecuteResult{}, err
	}

	execCtx, cancel := context.WithTimeout(ctx, effectiveTimeout(req, cfg))
	defer cancel()

	stdout := &cappedBuffer{limit: maxCapturedBytes}
	stderr := &cappedBuffer{limit: maxCapturedBytes}

	start := time.Now()
	exitCode, runErr := runScript(execCtx, script, filepath.Clean(req.WorkingDir), req.Env, stdout, stderr)
	result := ExecuteResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
		Duration: time.Since(start),
	}

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		result.ExitCode = -1
		result.Error = ErrExecutionTimeout
		return result, ErrExecutionTimeout
	}
	if runErr != nil {
		result.Error = runErr
	}

	v.logger.Debug().
		Str("script", script).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("Script interpreted in sandbox")

	return result, nil
}

func shellScript(req ExecuteRequest) (string, error) {
	if strings.TrimSpace(req.Command) == "" {
		return "", ErrEmptyCommand
	}
	if len(req.Args) == 0 {
		return req.Command, nil
	}
	switch filepath.Base(req.Command) {
	case "sh", "bash":
		if len(req.Args) == 2 && req.Args[0] == "-c" {
			return req.Args[1], nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedCommand, req.Command)
}

// runScript returns the script's exit status. Errors are reserved for
// failures of the interpreter itself.
func runScript(ctx context.Context, script, root string, env map[string]string, stdout, stderr io.Writer) (int, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(script), "")
	if err != nil {
		fmt.Fprintf(stderr, "sh: %v\n", err)
		return 2, nil
	}

	shell := &snapshotShell{root: root}
	runner, err := interp.New(
		interp.StdIO(strings.NewReader(""), stdout, stderr),
		interp.Dir(root),
		interp.Env(expand.ListEnviron(scriptEnv(root, env)...)),
		interp.CallHandler(shell.confineCall),
		interp.OpenHandler(shell.open),
		interp.ReadDirHandler(shell.readDir),
		interp.ExecHandlers(func(interp.ExecHandlerFunc) interp.ExecHandlerFunc {
			return shell.exec
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("create interpreter: %w", err)
	}
	shell.runner = runner

	err = runner.Run(ctx, file)
	if status, ok := interp.IsExitStatus(err); ok {
		return int(status), nil
	}
	if err != nil {
		return 1, err
	}
	return 0, nil
}

func scriptEnv(root string, extra map[string]string) []string {
	env := []string{
		"HOME=" + root,
		"LC_ALL=C",
		"PATH=/bin",
	}

	keys := make([]string, 0, len(extra))
	for key := range extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env = append(env, key+"="+extra[key])
	}
	return env
}

// snapshotShell maps every path the interpreter touches into root
type snapshotShell struct {
	root   string
	runner *interp.Runner
}

func (s *snapshotShell) dir() string {
	if s.runner == nil || s.runner.Dir == "" {
		return s.root
	}
	return s.runner.Dir
}

// resolve maps name, relative to dir, to a path inside root. The tree is
// seen as if root were "/": ".." stops at root and "/INDEX.md" is
// root/INDEX.md. Absolute paths already inside root are kept.
func (s *snapshotShell) resolve(dir, name string) string {
	if filepath.IsAbs(name) {
		name = filepath.Clean(name)
		if s.contains(name) {
			return name
		}
		return filepath.Join(s.root, name)
	}

	virtual := path.Join(s.virtualDir(dir), filepath.ToSlash(name))
	return filepath.Join(s.root, filepath.FromSlash(virtual))
}

func (s *snapshotShell) contains(p string) bool {
	return p == s.root || strings.HasPrefix(p, s.root+string(filepath.Separator))
}

func (s *snapshotShell) virtualDir(dir string) string {
	dir = filepath.Clean(dir)
	if !s.contains(dir) {
		return "/"
	}
	rel, err := filepath.Rel(s.root, dir)
	if err != nil {
		return "/"
	}
	return path.Join("/", filepath.ToSlash(rel))
}

// fileTests are the test(1) operators whose operand is a path
var fileTests = map[string]bool{
	"-e": true, "-f": true, "-d": true, "-r": true, "-s": true,
	"-w": true, "-x": true, "-L": true, "-h": true,
}

// confineCall rewrites path operands of builtins that would otherwise
// stat the host directly.
func (s *snapshotShell) confineCall(ctx context.Context, args []string) ([]string, error) {
	if len(args) < 2 {
		return args, nil
	}

	out := append([]string(nil), args...)
	switch args[0] {
	case "cd", "pushd":
		for i := 1; i < len(out); i++ {
			if !strings.HasPrefix(out[i], "-") {
				out[i] = s.resolve(s.dir(), out[i])
			}
		}
	case "test", "[":
		for i := 1; i < len(out)-1; i++ {
			if fileTests[out[i]] {
				out[i+1] = s.resolve(s.dir(), out[i+1])
				i++
			}
		}
	}
	return out, nil
}

func (s *snapshotShell) open(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == os.DevNull {
		return devNull{}, nil
	}
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, &fs.PathError{Op: "open", Path: path, Err: ErrReadOnlySnapshot}
	}

	dir := interp.HandlerCtx(ctx).Dir
	f, err := os.Open(s.resolve(dir, path))
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			pathErr.Path = path
		}
		return nil, err
	}
	return f, nil
}

func (s *snapshotShell) readDir(ctx context.Context, path string) ([]os.FileInfo, error) {
	entries, err := os.ReadDir(s.resolve(s.dir(), path))
	if err != nil {
		return nil, err
	}

	infos := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (s *snapshotShell) exec(ctx context.Context, args []string) error {
	hc := interp.HandlerCtx(ctx)

	name := filepath.Base(args[0])
	run, ok := snapshotCommands[name]
	if !ok {
		fmt.Fprintf(hc.Stderr, "%s: command not found (available: %s)\n", args[0], strings.Join(commandNames(), " "))
		return interp.NewExitStatus(127)
	}

	var stdin io.Reader = strings.NewReader("")
	if hc.Stdin != nil {
		stdin = hc.Stdin
	}

	return run(&commandEnv{
		ctx:    ctx,
		shell:  s,
		dir:    hc.Dir,
		name:   name,
		stdin:  stdin,
		stdout: hc.Stdout,
		stderr: hc.Stderr,
	}, args[1:])
}

type devNull struct{}

func (devNull) Read([]byte) (int, error)    { return 0, io.EOF }
func (devNull) Write(p []byte) (int, error) { return len(p), nil }
func (devNull) Close() error                { return nil }

// cappedBuffer keeps the first limit bytes written and discards the rest
type cappedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}
