package models

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// Profile is a credential source for one provider
type Profile struct {
	ID        string
	Provider  string
	APIKey    string
	APIKeyEnv string
	Priority  int // lower = tried first
}

// defaultKeyEnv is consulted when a profile has neither APIKey nor APIKeyEnv
var defaultKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
}

// ConfigRegistry serves models and credentials from static configuration.
// Environment lookups see the process environment first, then .env files,
// so a .env file never overrides a variable that is already set.
type ConfigRegistry struct {
	known    []Descriptor
	profiles []Profile
	dotenv   map[string]string
	getenv   func(string) (string, bool)
}

// NewConfigRegistry builds a registry. Missing env files are ignored, and
// values already in the process environment take precedence over them.
func NewConfigRegistry(known []Descriptor, profiles []Profile, envFiles ...string) (*ConfigRegistry, error) {
	dotenv := make(map[string]string)
	for _, path := range envFiles {
		if path == "" {
			continue
		}
		values, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
		}
		for k, v := range values {
			if _, exists := dotenv[k]; !exists {
				dotenv[k] = v
			}
		}
	}

	sorted := append([]Profile(nil), profiles...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	return &ConfigRegistry{
		known:    append([]Descriptor(nil), known...),
		profiles: sorted,
		dotenv:   dotenv,
		getenv:   os.LookupEnv,
	}, nil
}

// ListKnown returns the configured models
func (r *ConfigRegistry) ListKnown() []Descriptor {
	return append([]Descriptor(nil), r.known...)
}

// CredentialFor returns the highest-priority profile key for the model's provider
func (r *ConfigRegistry) CredentialFor(ctx context.Context, model Descriptor) (Credential, bool, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, false, err
	}

	for _, profile := range r.profiles {
		if profile.Provider != model.Provider {
			continue
		}
		if key := r.resolveKey(profile); key != "" {
			return Credential{APIKey: key, ProfileID: profile.ID}, true, nil
		}
	}

	// no profile configured: fall back to the provider's conventional variable
	if env, ok := defaultKeyEnv[model.Provider]; ok {
		if key := r.lookup(env); key != "" {
			return Credential{APIKey: key, ProfileID: "env:" + env}, true, nil
		}
	}
	return Credential{}, false, nil
}

func (r *ConfigRegistry) resolveKey(p Profile) string {
	if key := strings.TrimSpace(p.APIKey); key != "" {
		return key
	}
	env := p.APIKeyEnv
	if env == "" {
		env = defaultKeyEnv[p.Provider]
	}
	if env == "" {
		return ""
	}
	return r.lookup(env)
}

func (r *ConfigRegistry) lookup(name string) string {
	if r.getenv != nil {
		if v, ok := r.getenv(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return strings.TrimSpace(r.dotenv[name])
}
