package config

import (
	"testing"

	"github.com/harun/recap/pkg/hooks"
	"github.com/harun/recap/pkg/models"
	"github.com/harun/recap/pkg/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name     string
		key      string
		provider string
		wantErr  bool
	}{
		{"valid anthropic", "sk-ant-api03-abc", "anthropic", false},
		{"anthropic without prefix", "sk-abc", "anthropic", true},
		{"valid openai", "sk-proj-abc", "openai", false},
		{"openai without prefix", "abc", "openai", true},
		{"empty", "", "openai", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateAPIKey(tt.key, tt.provider)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateModelRef(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateModelRef("anthropic/claude-haiku-4-5"))
	assert.NoError(t, v.ValidateModelRef("openai/gpt-5.1"))
	assert.Error(t, v.ValidateModelRef("mistral/large"))
	assert.Error(t, v.ValidateModelRef("openai/gpt 5"))
	assert.Error(t, v.ValidateModelRef("gpt-5"))
}

func TestValidateThinkingLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"", "off", "minimal", "low", "medium", "high"} {
		assert.NoError(t, v.ValidateThinkingLevel(level), level)
	}
	assert.Error(t, v.ValidateThinkingLevel("extreme"))
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level))
	}
	assert.Error(t, v.ValidateLogLevel("trace"))
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("defaults are valid", func(t *testing.T) {
		assert.Empty(t, v.ValidateConfig(DefaultConfig()))
	})

	t.Run("collects every problem", func(t *testing.T) {
		bad := models.ThinkingLevel("ultra")
		cfg := DefaultConfig()
		cfg.AI.Profiles = append(cfg.AI.Profiles,
			AIProfile{ID: "inline", Provider: "anthropic", APIKey: "not-a-key"},
			AIProfile{ID: "other", Provider: "cohere"},
		)
		cfg.Models.Candidates = append(cfg.Models.Candidates, models.Candidate{Provider: "openai", ID: "gpt-5", ThinkingLevel: &bad})
		cfg.Models.SessionDefault = "nope"
		cfg.Models.DefaultThinking = "huge"
		cfg.Compaction.ToolConcurrency = -1
		cfg.Sandbox.Runtime = "vm"
		cfg.Diagnostics.Backend = "postgres"
		cfg.Hooks.Enabled = true
		cfg.Hooks.Entries = []hooks.Hook{{Event: "compaction:completed", Enabled: true}}
		cfg.Logging.Level = "loud"

		errs := v.ValidateConfig(cfg)
		require.Len(t, errs, 10)

		joined := cfg.Validate().Error()
		for _, want := range []string{
			`ai profile "inline"`,
			`ai profile "other"`,
			"models.candidates[2]",
			"models.session_default",
			"models.default_thinking",
			"compaction.tool_concurrency",
			"sandbox:",
			"diagnostics:",
			"hooks.entries[0]",
			"invalid log level",
		} {
			assert.Contains(t, joined, want)
		}
	})

	t.Run("disabled hooks are not checked", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Hooks.Entries = []hooks.Hook{{Enabled: true}}
		assert.Empty(t, v.ValidateConfig(cfg))
	})

	t.Run("host runtime needs opt-in", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Sandbox.Runtime = sandbox.RuntimeHost
		errs := v.ValidateConfig(cfg)
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], sandbox.ErrHostRuntimeNotAllowed)

		cfg.Sandbox.AllowHost = true
		assert.Empty(t, v.ValidateConfig(cfg))
	})

	t.Run("trace sample ratio", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Metrics.TraceSampleRatio = 0.25
		assert.Empty(t, v.ValidateConfig(cfg))

		cfg.Metrics.TraceSampleRatio = 1.5
		errs := v.ValidateConfig(cfg)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Error(), "metrics.trace_sample_ratio")
	})
}
