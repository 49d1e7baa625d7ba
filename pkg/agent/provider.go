package agent

import (
	"context"
	"fmt"

	"github.com/harun/recap/pkg/models"
)

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes one completion request
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// LLMRequest contains the request parameters for one completion
type LLMRequest struct {
	Model        string
	SystemPrompt string
	Messages     []AgentMessage
	Tools        []ToolSpec
	MaxTokens    int
	Thinking     models.ThinkingLevel
}

// LLMResponse contains the response from LLM
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall
	Thinking  []ThinkingBlock
	Usage     *TokenUsage
}

// ProviderCreator creates LLM providers from a model selection
type ProviderCreator interface {
	NewProvider(selection models.Selection) (LLMProvider, error)
}

// ProviderFactory creates the SDK-backed providers
type ProviderFactory struct{}

// NewProvider creates a provider for the selected model and credential
func (f *ProviderFactory) NewProvider(selection models.Selection) (LLMProvider, error) {
	apiKey := selection.Credential.APIKey
	baseURL := selection.Model.BaseURL

	switch selection.Model.Provider {
	case "anthropic":
		return NewAnthropicProvider(apiKey, baseURL), nil
	case "openai":
		return NewOpenAIProvider(apiKey, baseURL), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, selection.Model.Provider)
	}
}

// thinkingBudget maps a thinking level to a reasoning token budget; 0 disables thinking
func thinkingBudget(level models.ThinkingLevel) int {
	switch level {
	case models.ThinkingMinimal:
		return 1024
	case models.ThinkingLow:
		return 2048
	case models.ThinkingMedium:
		return 8192
	case models.ThinkingHigh:
		return 16384
	default:
		return 0
	}
}
