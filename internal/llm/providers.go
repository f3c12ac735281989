package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"

	"storyforge/internal/config"
	"storyforge/internal/volc"
)

// NewBackend builds the chat model selected by cfg.LLMProvider.
func NewBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.LLMProvider {
	case config.ProviderArk:
		chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			APIKey:     cfg.ArkAPIKey,
			BaseURL:    cfg.ArkBaseURL,
			Region:     cfg.ArkRegion,
			Model:      cfg.ArkModel,
			HTTPClient: &http.Client{Timeout: cfg.LLMTimeout},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create ark chat model: %w", err)
		}
		return chatModel, nil

	case config.ProviderOpenAI:
		chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.LLMTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create openai chat model: %w", err)
		}
		return chatModel, nil

	case config.ProviderVolc:
		return volc.NewArkClient(volc.Options{
			BaseURL: cfg.ArkBaseURL,
			APIKey:  cfg.ArkAPIKey,
			Model:   cfg.ArkModel,
			Timeout: cfg.LLMTimeout,
			Mock:    cfg.ArkMock,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}

// NewClientFromConfig builds the backend and wraps it in a Client with the configured
// retry policy.
func NewClientFromConfig(ctx context.Context, cfg *config.Config) (*Client, error) {
	backend, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(ctx, backend,
		WithProvider(cfg.LLMProvider),
		WithTimeout(cfg.LLMTimeout),
		WithRetry(RetryConfig{
			MaxRetries:      uint64(cfg.LLMMaxRetries),
			InitialInterval: cfg.LLMRetryInitial,
			MaxInterval:     cfg.LLMRetryMax,
		}),
	)
}
