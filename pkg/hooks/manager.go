package hooks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Events fired by the compaction pipeline
const (
	EventCompactionInfo      = "compaction:info"
	EventCompactionWarning   = "compaction:warning"
	EventCompactionCompleted = "compaction:completed"
)

// DefaultTimeout applies to hooks without an explicit timeout
const DefaultTimeout = 10 * time.Second

// Hook defines a shell script run for an event.
type Hook struct {
	ID      string        `json:"id" mapstructure:"id"`
	Event   string        `json:"event" mapstructure:"event"`
	Script  string        `json:"script" mapstructure:"script"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	Enabled bool          `json:"enabled" mapstructure:"enabled"`
}

// Config configures a Hook manager.
type Config struct {
	Enabled bool
	Hooks   []Hook
	Logger  zerolog.Logger
}

// Manager executes configured hooks for events.
type Manager struct {
	enabled bool
	logger  zerolog.Logger

	mu           sync.RWMutex
	hooksByEvent map[string][]Hook

	pending sync.WaitGroup
}

// NewManager creates a hook manager.
func NewManager(cfg Config) (*Manager, error) {
	manager := &Manager{
		enabled:      cfg.Enabled,
		logger:       cfg.Logger.With().Str("component", "hooks").Logger(),
		hooksByEvent: make(map[string][]Hook),
	}

	if !cfg.Enabled {
		return manager, nil
	}

	for _, hook := range cfg.Hooks {
		if !hook.Enabled {
			continue
		}
		if err := ValidateHook(hook); err != nil {
			return nil, err
		}
		event := strings.TrimSpace(hook.Event)
		if hook.Timeout <= 0 {
			hook.Timeout = DefaultTimeout
		}
		manager.hooksByEvent[event] = append(manager.hooksByEvent[event], hook)
	}

	return manager, nil
}

// ValidateHook checks that a hook names an event and a script.
func ValidateHook(hook Hook) error {
	event := strings.TrimSpace(hook.Event)
	if event == "" {
		return fmt.Errorf("hook event is required")
	}
	if strings.TrimSpace(hook.Script) == "" {
		return fmt.Errorf("hook script is required for event %q", event)
	}
	if hook.Timeout < 0 {
		return fmt.Errorf("hook timeout cannot be negative for event %q", event)
	}
	return nil
}

// Trigger executes hooks registered for an event.
func (m *Manager) Trigger(ctx context.Context, event string, data map[string]interface{}) error {
	if m == nil || !m.enabled {
		return nil
	}
	event = strings.TrimSpace(event)
	if event == "" {
		return fmt.Errorf("event is required")
	}

	m.mu.RLock()
	hooks := append([]Hook(nil), m.hooksByEvent[event]...)
	m.mu.RUnlock()
	if len(hooks) == 0 {
		return nil
	}

	var errs []error
	for _, hook := range hooks {
		if err := m.executeHook(ctx, event, hook, data); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// HasHooks reports whether any hook is registered for event.
func (m *Manager) HasHooks(event string) bool {
	if m == nil || !m.enabled {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hooksByEvent[strings.TrimSpace(event)]) > 0
}

// TriggerAsync runs the hooks for event in the background and logs failures.
// Wait blocks until every background trigger has finished.
func (m *Manager) TriggerAsync(ctx context.Context, event string, data map[string]interface{}) {
	if !m.HasHooks(event) {
		return
	}

	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		if err := m.Trigger(ctx, event, data); err != nil {
			m.logger.Warn().Err(err).Str("event", event).Msg("Hook failed")
		}
	}()
}

// Wait blocks until all TriggerAsync calls have completed.
func (m *Manager) Wait() {
	if m == nil {
		return
	}
	m.pending.Wait()
}

func (m *Manager) executeHook(ctx context.Context, event string, hook Hook, data map[string]interface{}) error {
	if ctx == nil {
		ctx = context.Background()
	}

	hookID := hook.ID
	if strings.TrimSpace(hookID) == "" {
		hookID = event
	}

	runCtx := ctx
	cancel := func() {}
	if hook.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, hook.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", hook.Script)
	cmd.Env = buildHookEnvironment(event, data)
	cmd.WaitDelay = time.Second

	output, err := cmd.CombinedOutput()
	outputText := strings.TrimSpace(string(output))
	if err != nil {
		if outputText != "" {
			return fmt.Errorf("hook %s failed: %w: %s", hookID, err, outputText)
		}
		return fmt.Errorf("hook %s failed: %w", hookID, err)
	}

	if outputText != "" {
		m.logger.Debug().
			Str("event", event).
			Str("hook_id", hookID).
			Str("output", outputText).
			Msg("Hook executed")
	}

	return nil
}

func buildHookEnvironment(event string, data map[string]interface{}) []string {
	env := append([]string{}, os.Environ()...)
	env = append(env, "RECAP_HOOK_EVENT="+event)

	if len(data) == 0 {
		return env
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		envKey := "RECAP_HOOK_DATA_" + normalizeEnvKey(key)
		env = append(env, envKey+"="+fmt.Sprintf("%v", data[key]))
	}
	return env
}

func normalizeEnvKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "UNKNOWN"
	}

	upper := strings.ToUpper(key)
	builder := strings.Builder{}
	builder.Grow(len(upper))
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			builder.WriteRune(r)
			continue
		}
		builder.WriteRune('_')
	}
	return builder.String()
}

