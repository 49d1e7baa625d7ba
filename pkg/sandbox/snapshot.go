package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/harun/recap/pkg/conversation"
	"github.com/rs/zerolog"
)

// DefaultMaxOutputChars bounds the text returned for one command
const DefaultMaxOutputChars = 20000

const (
	fileMode     fs.FileMode = 0o444
	dirMode      fs.FileMode = 0o555
	writableMode fs.FileMode = 0o755
)

// ToolOutput is the text handed back to the model for one command
type ToolOutput struct {
	Text    string
	IsError bool
}

// ExecutorConfig configures a SnapshotExecutor
type ExecutorConfig struct {
	// Sandbox runs the commands; it must be started by the caller
	Sandbox Sandbox

	// MaxOutputChars truncates command output (0 = DefaultMaxOutputChars)
	MaxOutputChars int

	// Timeout overrides the sandbox timeout per command when non-zero
	Timeout time.Duration

	Logger zerolog.Logger
}

// SnapshotExecutor runs shell commands against a conversation snapshot
// materialized read-only into a private directory.
type SnapshotExecutor struct {
	config ExecutorConfig
	root   string
	mu     sync.RWMutex
	closed bool
}

// NewSnapshotExecutor materializes snap and returns an executor rooted at it.
// Close removes the materialized files.
func NewSnapshotExecutor(cfg ExecutorConfig, snap conversation.Snapshot) (*SnapshotExecutor, error) {
	if cfg.Sandbox == nil {
		return nil, fmt.Errorf("sandbox is required")
	}
	if cfg.MaxOutputChars <= 0 {
		cfg.MaxOutputChars = DefaultMaxOutputChars
	}

	root, err := Materialize(snap)
	if err != nil {
		return nil, err
	}

	cfg.Logger.Debug().Str("root", root).Int("files", snap.Len()).Msg("Snapshot materialized")

	return &SnapshotExecutor{config: cfg, root: root}, nil
}

// Root returns the directory commands run in
func (e *SnapshotExecutor) Root() string {
	return e.root
}

// Run executes command with /bin/sh in the snapshot root. Failures are
// reported through ToolOutput.IsError, never as a Go error.
func (e *SnapshotExecutor) Run(ctx context.Context, command string) ToolOutput {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return errorOutput(ErrExecutorClosed)
	}
	if strings.TrimSpace(command) == "" {
		return errorOutput(ErrEmptyCommand)
	}

	result, err := e.config.Sandbox.Execute(ctx, ExecuteRequest{
		Command:    "/bin/sh",
		Args:       []string{"-c", command},
		WorkingDir: e.root,
		Timeout:    e.config.Timeout,
	})
	if err != nil {
		if errors.Is(err, ErrExecutionTimeout) {
			result.Error = nil
			out := FormatResult(result, e.config.MaxOutputChars)
			if out.Text == "(no output)" {
				out.Text = ""
			}
			out.Text = strings.TrimPrefix(out.Text+"\n[command timed out]", "\n")
			out.IsError = true
			return out
		}
		return errorOutput(err)
	}

	return FormatResult(result, e.config.MaxOutputChars)
}

// Close removes the materialized snapshot
func (e *SnapshotExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	return removeTree(e.root)
}

// FormatResult renders an execution result as tool output: stdout, then a
// [stderr] section, then a non-zero exit code, truncated to maxChars.
func FormatResult(res ExecuteResult, maxChars int) ToolOutput {
	if res.Error != nil {
		return errorOutput(res.Error)
	}

	text := string(res.Stdout)
	if len(res.Stderr) > 0 {
		text += "\n[stderr]\n" + string(res.Stderr)
	}
	text = truncate(text, maxChars)

	out := ToolOutput{Text: text}
	if res.ExitCode != 0 {
		out.IsError = true
		out.Text += fmt.Sprintf("\n[exit code: %d]", res.ExitCode)
	}
	if out.Text == "" {
		out.Text = "(no output)"
	}
	return out
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxChars]) + "\n[output truncated]"
}

func errorOutput(err error) ToolOutput {
	return ToolOutput{Text: "error: " + err.Error(), IsError: true}
}

// Materialize writes snap into a new temporary directory with read-only
// files and directories and returns its path.
func Materialize(snap conversation.Snapshot) (string, error) {
	root, err := os.MkdirTemp("", "recap-snapshot-*")
	if err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	if err := writeFiles(root, snap); err != nil {
		_ = removeTree(root)
		return "", err
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return os.Chmod(path, dirMode)
		}
		return nil
	})
	if err != nil {
		_ = removeTree(root)
		return "", fmt.Errorf("seal snapshot dir: %w", err)
	}

	return root, nil
}

func writeFiles(root string, snap conversation.Snapshot) error {
	for _, name := range snap.Paths() {
		rel := filepath.FromSlash(strings.TrimPrefix(name, "/"))
		if !filepath.IsLocal(rel) {
			return fmt.Errorf("%w: %s", ErrUnsafeSnapshotPath, name)
		}

		content, _ := snap.Read(name)
		target := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(target), writableMode); err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		if err := os.WriteFile(target, []byte(content), fileMode); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// removeTree restores write permission on directories so the tree can be removed
func removeTree(root string) error {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			_ = os.Chmod(path, writableMode)
		}
		return nil
	})
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("remove snapshot dir: %w", err)
	}
	return nil
}
