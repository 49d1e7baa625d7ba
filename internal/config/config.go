package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/harun/recap/pkg/diagnostics"
	"github.com/harun/recap/pkg/hooks"
	"github.com/harun/recap/pkg/models"
	"github.com/harun/recap/pkg/sandbox"
)

// Config represents the main recap configuration
type Config struct {
	// AI credentials
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Model selection
	Models ModelsConfig `json:"models" mapstructure:"models"`

	// Compaction tuning
	Compaction CompactionConfig `json:"compaction" mapstructure:"compaction"`

	// Command sandbox used by the exploring agent
	Sandbox sandbox.Config `json:"sandbox" mapstructure:"sandbox"`

	// Diagnostics for failed or rejected runs
	Diagnostics diagnostics.Config `json:"diagnostics" mapstructure:"diagnostics"`

	// Hooks fired on compaction events
	Hooks HooksConfig `json:"hooks" mapstructure:"hooks"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics and audit
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Session files; defaults to <data_dir>/sessions
	SessionsDir string `json:"sessions_dir" mapstructure:"sessions_dir"`

	// .env files consulted for provider keys
	EnvFiles []string `json:"env_files" mapstructure:"env_files"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile represents an AI provider credential source
type AIProfile struct {
	ID        string `json:"id" mapstructure:"id"`
	Provider  string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	APIKeyEnv string `json:"api_key_env" mapstructure:"api_key_env"`
	Priority  int    `json:"priority" mapstructure:"priority"`
}

// ModelsConfig holds model selection settings
type ModelsConfig struct {
	// Candidates are tried in order
	Candidates []models.Candidate `json:"candidates" mapstructure:"candidates"`

	// SessionDefault is "provider/id", tried when no candidate qualifies
	SessionDefault string `json:"session_default" mapstructure:"session_default"`

	// DefaultThinking applies to candidates without their own level
	DefaultThinking string `json:"default_thinking" mapstructure:"default_thinking"`

	// Known lists the models the registry serves
	Known []models.Descriptor `json:"known" mapstructure:"known"`
}

// CompactionConfig tunes compaction runs
type CompactionConfig struct {
	ToolConcurrency    int      `json:"tool_concurrency" mapstructure:"tool_concurrency"`
	PreviewLength      int      `json:"preview_length" mapstructure:"preview_length"`
	MaxOutputChars     int      `json:"max_output_chars" mapstructure:"max_output_chars"`
	MinSummaryChars    int      `json:"min_summary_chars" mapstructure:"min_summary_chars"`
	MaxTurns           int      `json:"max_turns" mapstructure:"max_turns"`
	MaxTokens          int      `json:"max_tokens" mapstructure:"max_tokens"`
	KeepRecentMessages int      `json:"keep_recent_messages" mapstructure:"keep_recent_messages"`
	IncludeTempFiles   bool     `json:"include_temp_files" mapstructure:"include_temp_files"`
	DeletingTools      []string `json:"deleting_tools" mapstructure:"deleting_tools"`
}

// HooksConfig holds hook settings
type HooksConfig struct {
	Enabled bool         `json:"enabled" mapstructure:"enabled"`
	Entries []hooks.Hook `json:"entries" mapstructure:"entries"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	Console   bool   `json:"console" mapstructure:"console"`
}

// MetricsConfig holds metrics and audit settings
type MetricsConfig struct {
	// Addr serves /metrics when set, e.g. ":9090"
	Addr string `json:"addr" mapstructure:"addr"`

	// AuditFile receives one JSON line per compaction when set
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`

	// Tracing enables the OpenTelemetry tracer provider; spans are logged at debug level
	Tracing bool `json:"tracing" mapstructure:"tracing"`

	// TraceSampleRatio is the fraction of runs traced (0 = all)
	TraceSampleRatio float64 `json:"trace_sample_ratio" mapstructure:"trace_sample_ratio"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			Profiles: []AIProfile{
				{ID: "anthropic-default", Provider: "anthropic", APIKeyEnv: "ANTHROPIC_API_KEY", Priority: 1},
				{ID: "openai-default", Provider: "openai", APIKeyEnv: "OPENAI_API_KEY", Priority: 2},
			},
		},
		Models: ModelsConfig{
			Candidates: []models.Candidate{
				{Provider: "anthropic", ID: "claude-haiku-4-5"},
				{Provider: "openai", ID: "gpt-5-mini"},
			},
			SessionDefault:  "anthropic/claude-sonnet-4-5",
			DefaultThinking: string(models.ThinkingOff),
			Known: []models.Descriptor{
				{Provider: "anthropic", ID: "claude-haiku-4-5", Name: "Claude Haiku 4.5"},
				{Provider: "anthropic", ID: "claude-sonnet-4-5", Name: "Claude Sonnet 4.5"},
				{Provider: "openai", ID: "gpt-5-mini", Name: "GPT-5 mini"},
				{Provider: "openai", ID: "gpt-5", Name: "GPT-5"},
			},
		},
		Compaction: CompactionConfig{
			ToolConcurrency:    4,
			PreviewLength:      80,
			MaxOutputChars:     sandbox.DefaultMaxOutputChars,
			MinSummaryChars:    200,
			MaxTurns:           40,
			MaxTokens:          8192,
			KeepRecentMessages: 20,
			IncludeTempFiles:   false,
			DeletingTools:      []string{},
		},
		Sandbox: sandbox.DefaultConfig(),
		Diagnostics: diagnostics.Config{
			Enabled: true,
			Backend: diagnostics.BackendFile,
		},
		Hooks: HooksConfig{
			Enabled: false,
			Entries: []hooks.Hook{},
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
			Console:   true,
		},
		Metrics: MetricsConfig{},
		EnvFiles: []string{".env"},
	}
}

// String returns a JSON representation of the config with inline keys masked
func (c *Config) String() string {
	masked := *c
	masked.AI.Profiles = make([]AIProfile, len(c.AI.Profiles))
	for i, p := range c.AI.Profiles {
		if p.APIKey != "" {
			p.APIKey = "***"
		}
		masked.AI.Profiles[i] = p
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// SessionDefaultModel parses models.session_default; nil when unset
func (c *Config) SessionDefaultModel() (*models.Descriptor, error) {
	ref := strings.TrimSpace(c.Models.SessionDefault)
	if ref == "" {
		return nil, nil
	}
	provider, id, err := ParseModelRef(ref)
	if err != nil {
		return nil, err
	}
	for _, known := range c.Models.Known {
		if known.Provider == provider && known.ID == id {
			d := known
			return &d, nil
		}
	}
	return &models.Descriptor{Provider: provider, ID: id}, nil
}

// ParseModelRef splits "provider/id"
func ParseModelRef(ref string) (provider, id string, err error) {
	provider, id, ok := strings.Cut(strings.TrimSpace(ref), "/")
	if !ok || provider == "" || id == "" {
		return "", "", fmt.Errorf("invalid model reference %q (want provider/id)", ref)
	}
	return provider, id, nil
}

// Profiles converts the AI profiles for the model registry
func (c *Config) Profiles() []models.Profile {
	out := make([]models.Profile, 0, len(c.AI.Profiles))
	for _, p := range c.AI.Profiles {
		out = append(out, models.Profile{
			ID:        p.ID,
			Provider:  p.Provider,
			APIKey:    p.APIKey,
			APIKeyEnv: p.APIKeyEnv,
			Priority:  p.Priority,
		})
	}
	return out
}

// DefaultThinking parses models.default_thinking
func (c *Config) DefaultThinking() models.ThinkingLevel {
	level, err := models.ParseThinkingLevel(c.Models.DefaultThinking)
	if err != nil {
		return models.ThinkingOff
	}
	return level
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	return errors.Join(NewValidator().ValidateConfig(c)...)
}
