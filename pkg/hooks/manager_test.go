package hooks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerTriggerExecutesHookScript(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "info.txt")
	hookScript := "echo started > " + outputPath

	manager, err := NewManager(Config{
		Enabled: true,
		Logger:  zerolog.Nop(),
		Hooks: []Hook{
			{
				ID:      "startup",
				Event:   EventCompactionInfo,
				Script:  hookScript,
				Enabled: true,
			},
		},
	})
	require.NoError(t, err)

	require.NoError(t, manager.Trigger(context.Background(), EventCompactionInfo, nil))

	content, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, "started\n", string(content))
}

func TestManagerTriggerInjectsEventDataIntoEnvironment(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "env.txt")
	hookScript := "echo \"$RECAP_HOOK_EVENT:$RECAP_HOOK_DATA_SESSION_KEY\" > " + outputPath

	manager, err := NewManager(Config{
		Enabled: true,
		Logger:  zerolog.Nop(),
		Hooks: []Hook{
			{
				ID:      "command",
				Event:   EventCompactionCompleted,
				Script:  hookScript,
				Enabled: true,
			},
		},
	})
	require.NoError(t, err)

	require.NoError(t, manager.Trigger(context.Background(), EventCompactionCompleted, map[string]interface{}{
		"session_key": "sess-42",
	}))

	content, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, "compaction:completed:sess-42\n", string(content))
}

func TestManagerTriggerReturnsJoinedErrors(t *testing.T) {
	manager, err := NewManager(Config{
		Enabled: true,
		Logger:  zerolog.Nop(),
		Hooks: []Hook{
			{
				ID:      "fail-1",
				Event:   EventCompactionWarning,
				Script:  "exit 2",
				Enabled: true,
			},
			{
				ID:      "fail-2",
				Event:   EventCompactionWarning,
				Script:  "exit 3",
				Enabled: true,
			},
		},
	})
	require.NoError(t, err)

	err = manager.Trigger(context.Background(), EventCompactionWarning, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook fail-1 failed")
	assert.Contains(t, err.Error(), "hook fail-2 failed")
}

func TestManagerTriggerRespectsTimeout(t *testing.T) {
	manager, err := NewManager(Config{
		Enabled: true,
		Logger:  zerolog.Nop(),
		Hooks: []Hook{
			{
				ID:      "timeout",
				Event:   EventCompactionInfo,
				Script:  "sleep 1",
				Enabled: true,
				Timeout: 30 * time.Millisecond,
			},
		},
	})
	require.NoError(t, err)

	err = manager.Trigger(context.Background(), EventCompactionInfo, nil)
	require.Error(t, err)
	assert.True(t,
		strings.Contains(err.Error(), "deadline exceeded") || strings.Contains(err.Error(), "signal: killed"),
		"expected timeout-related error, got: %v",
		err,
	)
}

func TestManagerTriggerAsync(t *testing.T) {
	dir := t.TempDir()
	manager, err := NewManager(Config{
		Enabled: true,
		Logger:  zerolog.Nop(),
		Hooks: []Hook{
			{ID: "notify", Event: EventCompactionWarning, Script: "echo \"$RECAP_HOOK_DATA_MESSAGE\" > " + filepath.Join(dir, "warn.txt"), Enabled: true},
			{ID: "disabled", Event: EventCompactionInfo, Script: "exit 1", Enabled: false},
		},
	})
	require.NoError(t, err)

	assert.True(t, manager.HasHooks(EventCompactionWarning))
	assert.False(t, manager.HasHooks(EventCompactionInfo))

	manager.TriggerAsync(context.Background(), EventCompactionWarning, map[string]interface{}{"message": "summary too short"})
	manager.TriggerAsync(context.Background(), EventCompactionInfo, nil)
	manager.Wait()

	content, err := os.ReadFile(filepath.Join(dir, "warn.txt"))
	require.NoError(t, err)
	assert.Equal(t, "summary too short\n", string(content))
}

func TestNewManagerValidatesHooks(t *testing.T) {
	_, err := NewManager(Config{Enabled: true, Hooks: []Hook{{Event: EventCompactionInfo, Enabled: true}}})
	assert.Error(t, err)

	_, err = NewManager(Config{Enabled: true, Hooks: []Hook{{Script: "true", Enabled: true}}})
	assert.Error(t, err)

	var nilManager *Manager
	assert.NoError(t, nilManager.Trigger(context.Background(), EventCompactionInfo, nil))
	nilManager.Wait()
}
