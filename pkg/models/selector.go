// Package models resolves which model and credential a compaction run uses.
//
// Select walks the configured candidates in order and falls back to the
// session default. Finding nothing is a normal outcome, reported via ok=false.
package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ThinkingLevel controls how much reasoning budget a model receives
type ThinkingLevel string

const (
	ThinkingOff     ThinkingLevel = "off"
	ThinkingMinimal ThinkingLevel = "minimal"
	ThinkingLow     ThinkingLevel = "low"
	ThinkingMedium  ThinkingLevel = "medium"
	ThinkingHigh    ThinkingLevel = "high"
)

// ParseThinkingLevel validates a thinking level string
func ParseThinkingLevel(s string) (ThinkingLevel, error) {
	level := ThinkingLevel(strings.ToLower(strings.TrimSpace(s)))
	switch level {
	case ThinkingOff, ThinkingMinimal, ThinkingLow, ThinkingMedium, ThinkingHigh:
		return level, nil
	}
	return "", fmt.Errorf("invalid thinking level: %q", s)
}

// Descriptor identifies a model known to the registry
type Descriptor struct {
	Provider string `json:"provider" mapstructure:"provider"`
	ID       string `json:"id" mapstructure:"id"`
	Name     string `json:"name,omitempty" mapstructure:"name"`
	BaseURL  string `json:"base_url,omitempty" mapstructure:"base_url"`
}

// String returns provider/id
func (d Descriptor) String() string {
	return d.Provider + "/" + d.ID
}

// Credential is the secret used to call a provider
type Credential struct {
	APIKey    string
	ProfileID string
}

// Candidate is one configured model to try
type Candidate struct {
	Provider      string         `json:"provider" mapstructure:"provider"`
	ID            string         `json:"id" mapstructure:"id"`
	ThinkingLevel *ThinkingLevel `json:"thinking_level,omitempty" mapstructure:"thinking_level"`
}

// Selection is the resolved model for a run
type Selection struct {
	Model         Descriptor
	Credential    Credential
	ThinkingLevel ThinkingLevel
}

// Registry exposes the known models and their credentials
type Registry interface {
	ListKnown() []Descriptor

	// CredentialFor returns ok=false when no credential is configured.
	CredentialFor(ctx context.Context, model Descriptor) (Credential, bool, error)
}

// SelectInput holds the inputs of Select
type SelectInput struct {
	Candidates      []Candidate
	Registry        Registry
	SessionDefault  *Descriptor
	DefaultThinking ThinkingLevel
	Logger          zerolog.Logger
}

// Select returns the first candidate, in listed order, that the registry knows
// and holds a credential for. If none qualifies, the session default is tried
// with the default thinking level. ok=false means no usable model.
func Select(ctx context.Context, in SelectInput) (Selection, bool) {
	if in.Registry == nil {
		return Selection{}, false
	}
	known := in.Registry.ListKnown()

	for _, candidate := range in.Candidates {
		model, found := findModel(known, candidate.Provider, candidate.ID)
		if !found {
			in.Logger.Debug().
				Str("provider", candidate.Provider).
				Str("model", candidate.ID).
				Msg("Skipping candidate not in registry")
			continue
		}

		cred, ok := credentialFor(ctx, in.Registry, model, in.Logger)
		if !ok {
			continue
		}

		thinking := in.DefaultThinking
		if candidate.ThinkingLevel != nil {
			thinking = *candidate.ThinkingLevel
		}
		return Selection{Model: model, Credential: cred, ThinkingLevel: thinking}, true
	}

	if in.SessionDefault == nil {
		return Selection{}, false
	}
	cred, ok := credentialFor(ctx, in.Registry, *in.SessionDefault, in.Logger)
	if !ok {
		return Selection{}, false
	}
	return Selection{Model: *in.SessionDefault, Credential: cred, ThinkingLevel: in.DefaultThinking}, true
}

func findModel(known []Descriptor, provider, id string) (Descriptor, bool) {
	for _, d := range known {
		if d.Provider == provider && d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

func credentialFor(ctx context.Context, registry Registry, model Descriptor, logger zerolog.Logger) (Credential, bool) {
	cred, ok, err := registry.CredentialFor(ctx, model)
	if err != nil {
		logger.Warn().Err(err).Str("model", model.String()).Msg("Credential lookup failed")
		return Credential{}, false
	}
	if !ok {
		logger.Debug().Str("model", model.String()).Msg("No credential for model")
		return Credential{}, false
	}
	return cred, true
}
