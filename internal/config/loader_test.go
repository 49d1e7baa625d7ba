package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/recap/pkg/diagnostics"
	"github.com/harun/recap/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/recap.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/recap.json", loader.GetConfigPath())
}

func TestLoaderLoad(t *testing.T) {
	t.Run("defaults when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("RECAP_DATA_DIR", tmpDir)

		cfg, err := NewLoader(filepath.Join(tmpDir, "missing.json")).Load()

		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().Models.Candidates, cfg.Models.Candidates)
		assert.Equal(t, tmpDir, cfg.DataDir)
		assert.Equal(t, filepath.Join(tmpDir, "sessions"), cfg.SessionsDir)
		assert.Equal(t, filepath.Join(tmpDir, "diagnostics"), cfg.Diagnostics.Dir)
		assert.Equal(t, filepath.Join(tmpDir, "diagnostics.db"), cfg.Diagnostics.DBPath)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "recap.json")

		testConfig := `{
			"data_dir": "` + tmpDir + `",
			"models": {
				"candidates": [{"provider": "openai", "id": "gpt-5", "thinking_level": "low"}],
				"session_default": "openai/gpt-5-mini"
			},
			"compaction": {"keep_recent_messages": 6, "include_temp_files": true},
			"sandbox": {"resource_limits": {"timeout": "30s"}},
			"diagnostics": {"backend": "sqlite"},
			"hooks": {
				"enabled": true,
				"entries": [{"id": "notify", "event": "compaction:completed", "script": "echo done", "enabled": true}]
			}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)

		require.Len(t, cfg.Models.Candidates, 1)
		assert.Equal(t, "gpt-5", cfg.Models.Candidates[0].ID)
		require.NotNil(t, cfg.Models.Candidates[0].ThinkingLevel)
		assert.Equal(t, models.ThinkingLow, *cfg.Models.Candidates[0].ThinkingLevel)
		assert.Equal(t, "openai/gpt-5-mini", cfg.Models.SessionDefault)

		assert.Equal(t, 6, cfg.Compaction.KeepRecentMessages)
		assert.True(t, cfg.Compaction.IncludeTempFiles)
		// untouched keys keep their defaults
		assert.Equal(t, 4, cfg.Compaction.ToolConcurrency)

		assert.Equal(t, 30*time.Second, cfg.Sandbox.ResourceLimits.Timeout)
		assert.Equal(t, diagnostics.BackendSQLite, cfg.Diagnostics.Backend)
		require.Len(t, cfg.Hooks.Entries, 1)
		assert.Equal(t, "echo done", cfg.Hooks.Entries[0].Script)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("environment overrides file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "recap.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"logging": {"level": "warn"}}`), 0644))

		t.Setenv("RECAP_DATA_DIR", tmpDir)
		t.Setenv("RECAP_LOGGING_LEVEL", "debug")
		t.Setenv("RECAP_COMPACTION_MAX_TURNS", "7")

		cfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, 7, cfg.Compaction.MaxTurns)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "recap.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{not json`), 0644))

		_, err := NewLoader(configPath).Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "recap.json")

	cfg := DefaultConfig()
	cfg.DataDir = tmpDir
	cfg.Models.SessionDefault = "openai/gpt-5"
	cfg.Compaction.MinSummaryChars = 50

	loader := NewLoader(configPath)
	require.NoError(t, loader.Save(cfg))
	assert.FileExists(t, configPath)

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-5", loaded.Models.SessionDefault)
	assert.Equal(t, 50, loaded.Compaction.MinSummaryChars)
	assert.Equal(t, cfg.Models.Candidates, loaded.Models.Candidates)
	assert.Equal(t, cfg.Sandbox.ResourceLimits.Timeout, loaded.Sandbox.ResourceLimits.Timeout)
}

func TestLoadConvenience(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("RECAP_DATA_DIR", tmpDir)

	cfg, err := Load(filepath.Join(tmpDir, "recap.json"))
	require.NoError(t, err)
	assert.Equal(t, tmpDir, cfg.DataDir)
}
