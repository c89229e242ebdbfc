package nlu

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/ollama/ollama/api"

	"erpbot/internal/config"
)

// NewChatModel builds the chat-model backend from config. Ollama is the
// default; "openai" covers any OpenAI-compatible endpoint.
func NewChatModel(ctx context.Context, cfg config.LLMConfig) (model.BaseChatModel, error) {
	switch cfg.Backend {
	case "openai":
		maxTokens := cfg.MaxTokens
		temperature := float32(cfg.Temperature)
		m, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating openai chat model: %w", err)
		}
		return m, nil
	case "ollama", "":
		m, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout(),
			Model:   cfg.Model,
			Options: &api.Options{
				Temperature: float32(cfg.Temperature),
				NumPredict:  cfg.MaxTokens,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("error creating ollama chat model: %w", err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
}
