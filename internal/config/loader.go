package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. RECAP_LOGGING_LEVEL
const EnvPrefix = "RECAP"

// envKeys are the scalar settings that can be overridden from the environment
var envKeys = []string{
	"data_dir",
	"sessions_dir",
	"models.session_default",
	"models.default_thinking",
	"compaction.tool_concurrency",
	"compaction.preview_length",
	"compaction.max_output_chars",
	"compaction.min_summary_chars",
	"compaction.max_turns",
	"compaction.max_tokens",
	"compaction.keep_recent_messages",
	"compaction.include_temp_files",
	"sandbox.runtime",
	"sandbox.allow_host",
	"sandbox.resource_limits.timeout",
	"sandbox.docker.image",
	"diagnostics.enabled",
	"diagnostics.backend",
	"diagnostics.dir",
	"diagnostics.db_path",
	"hooks.enabled",
	"logging.level",
	"logging.file",
	"logging.console",
	"metrics.addr",
	"metrics.audit_file",
	"metrics.tracing",
	"metrics.trace_sample_ratio",
}

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file over the defaults, applies RECAP_* environment
// overrides and fills derived paths. A missing file is not an error.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := DefaultConfig()
	resetListedDefaults(v, cfg)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyPaths(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resetListedDefaults drops default lists the file sets, so a shorter list
// replaces the default instead of being merged into it element by element.
func resetListedDefaults(v *viper.Viper, cfg *Config) {
	if v.IsSet("ai.profiles") {
		cfg.AI.Profiles = nil
	}
	if v.IsSet("models.candidates") {
		cfg.Models.Candidates = nil
	}
	if v.IsSet("models.known") {
		cfg.Models.Known = nil
	}
	if v.IsSet("compaction.deleting_tools") {
		cfg.Compaction.DeletingTools = nil
	}
	if v.IsSet("sandbox.docker.security_opt") {
		cfg.Sandbox.Docker.SecurityOpt = nil
	}
	if v.IsSet("sandbox.docker.cap_drop") {
		cfg.Sandbox.Docker.CapDrop = nil
	}
	if v.IsSet("hooks.entries") {
		cfg.Hooks.Entries = nil
	}
	if v.IsSet("env_files") {
		cfg.EnvFiles = nil
	}
}

func applyPaths(cfg *Config) error {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".recap")
	}
	if cfg.SessionsDir == "" {
		cfg.SessionsDir = filepath.Join(cfg.DataDir, "sessions")
	}
	if cfg.Diagnostics.Dir == "" {
		cfg.Diagnostics.Dir = filepath.Join(cfg.DataDir, "diagnostics")
	}
	if cfg.Diagnostics.DBPath == "" {
		cfg.Diagnostics.DBPath = filepath.Join(cfg.DataDir, "diagnostics.db")
	}
	return nil
}

// Save writes cfg as JSON to the loader's path
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("config path is unknown")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("ai", cfg.AI)
	v.Set("models", cfg.Models)
	v.Set("compaction", cfg.Compaction)
	v.Set("sandbox", cfg.Sandbox)
	v.Set("diagnostics", cfg.Diagnostics)
	v.Set("hooks", cfg.Hooks)
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("data_dir", cfg.DataDir)
	v.Set("sessions_dir", cfg.SessionsDir)
	v.Set("env_files", cfg.EnvFiles)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".recap", "recap.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
