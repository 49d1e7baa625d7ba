package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/harun/recap/pkg/diagnostics"
	"github.com/harun/recap/pkg/hooks"
	"github.com/harun/recap/pkg/models"
	"github.com/harun/recap/pkg/sandbox"
)

var modelIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)

var knownProviders = []string{"anthropic", "openai"}

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateProvider validates a provider name
func (v *Validator) ValidateProvider(provider string) error {
	for _, known := range knownProviders {
		if provider == known {
			return nil
		}
	}
	return fmt.Errorf("unknown provider: %q (must be one of: %s)", provider, strings.Join(knownProviders, ", "))
}

// ValidateModelRef validates a "provider/id" reference
func (v *Validator) ValidateModelRef(ref string) error {
	provider, id, err := ParseModelRef(ref)
	if err != nil {
		return err
	}
	if err := v.ValidateProvider(provider); err != nil {
		return err
	}
	if !modelIDPattern.MatchString(id) {
		return fmt.Errorf("invalid model id: %q", id)
	}
	return nil
}

// ValidateThinkingLevel validates a thinking level; empty means off
func (v *Validator) ValidateThinkingLevel(level string) error {
	if level == "" {
		return nil
	}
	_, err := models.ParseThinkingLevel(level)
	return err
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateCompaction validates compaction tuning
func (v *Validator) ValidateCompaction(c CompactionConfig) []error {
	var errs []error
	if c.ToolConcurrency < 0 {
		errs = append(errs, fmt.Errorf("compaction.tool_concurrency cannot be negative, got %d", c.ToolConcurrency))
	}
	if c.PreviewLength < 0 {
		errs = append(errs, fmt.Errorf("compaction.preview_length cannot be negative, got %d", c.PreviewLength))
	}
	if c.MaxOutputChars < 0 {
		errs = append(errs, fmt.Errorf("compaction.max_output_chars cannot be negative, got %d", c.MaxOutputChars))
	}
	if c.MinSummaryChars < 0 {
		errs = append(errs, fmt.Errorf("compaction.min_summary_chars cannot be negative, got %d", c.MinSummaryChars))
	}
	if c.MaxTurns < 0 {
		errs = append(errs, fmt.Errorf("compaction.max_turns cannot be negative, got %d", c.MaxTurns))
	}
	if c.MaxTokens < 0 || c.MaxTokens > 200000 {
		errs = append(errs, fmt.Errorf("compaction.max_tokens must be between 0 and 200000, got %d", c.MaxTokens))
	}
	if c.KeepRecentMessages < 0 {
		errs = append(errs, fmt.Errorf("compaction.keep_recent_messages cannot be negative, got %d", c.KeepRecentMessages))
	}
	return errs
}

// ValidateConfig validates the entire configuration
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	for _, p := range cfg.AI.Profiles {
		if err := v.ValidateProvider(p.Provider); err != nil {
			errs = append(errs, fmt.Errorf("ai profile %q: %w", p.ID, err))
			continue
		}
		// keys from the environment are checked when used
		if p.APIKey != "" {
			if err := v.ValidateAPIKey(p.APIKey, p.Provider); err != nil {
				errs = append(errs, fmt.Errorf("ai profile %q: %w", p.ID, err))
			}
		}
	}

	for i, c := range cfg.Models.Candidates {
		if err := v.ValidateModelRef(c.Provider + "/" + c.ID); err != nil {
			errs = append(errs, fmt.Errorf("models.candidates[%d]: %w", i, err))
		}
		if c.ThinkingLevel != nil {
			if err := v.ValidateThinkingLevel(string(*c.ThinkingLevel)); err != nil {
				errs = append(errs, fmt.Errorf("models.candidates[%d]: %w", i, err))
			}
		}
	}

	if cfg.Models.SessionDefault != "" {
		if err := v.ValidateModelRef(cfg.Models.SessionDefault); err != nil {
			errs = append(errs, fmt.Errorf("models.session_default: %w", err))
		}
	}

	if err := v.ValidateThinkingLevel(cfg.Models.DefaultThinking); err != nil {
		errs = append(errs, fmt.Errorf("models.default_thinking: %w", err))
	}

	errs = append(errs, v.ValidateCompaction(cfg.Compaction)...)

	if err := sandbox.ValidateConfig(cfg.Sandbox); err != nil {
		errs = append(errs, fmt.Errorf("sandbox: %w", err))
	}

	switch cfg.Diagnostics.Backend {
	case "", diagnostics.BackendFile, diagnostics.BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("diagnostics: %w: %q", diagnostics.ErrInvalidBackend, cfg.Diagnostics.Backend))
	}

	if cfg.Hooks.Enabled {
		for i, h := range cfg.Hooks.Entries {
			if err := hooks.ValidateHook(h); err != nil {
				errs = append(errs, fmt.Errorf("hooks.entries[%d]: %w", i, err))
			}
		}
	}

	if r := cfg.Metrics.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("metrics.trace_sample_ratio must be between 0 and 1, got %g", r))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	return errs
}
