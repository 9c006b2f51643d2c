package provider

import (
	"context"
	"errors"

	"github.com/planscribe/planscribe/config"
	openai_provider "github.com/planscribe/planscribe/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
)

// Provider is the language-model collaborator contract. Complete is the
// single-shot mode; CompleteStream delivers chunks incrementally through
// onChunk and returns the same final text, so streaming never changes
// the parsed result.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteStream(ctx context.Context, systemPrompt, userPrompt string, onChunk func(chunk string)) (string, error)
}

// NewProvider creates an LLM client from configuration
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch Client(cfg.Provider) {
	case OpenAI, "":
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key not set")
		}
		return openai_provider.NewOpenAIClient(
			cfg.APIKey,
			cfg.Model,
			cfg.Temperature,
			cfg.MaxTokens,
			cfg.Timeout,
		), nil
	case Anthropic:
		return nil, errors.New("anthropic client not implemented yet")
	default:
		return nil, errors.New("unsupported LLM provider")
	}
}
