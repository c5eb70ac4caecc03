package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/aegisdash/internal/config"
)

// apiStrategy builds the request payload and extracts the response text for
// one backend variant.
type apiStrategy interface {
	buildRequest(src config.SourceConfig, system, prompt string) (payload any, headers map[string]string)
	extractText(body []byte) (string, error)
}

func strategyFor(t APIType) apiStrategy {
	if t == APITypeChatCompletion {
		return chatStrategy{}
	}
	return simpleStrategy{}
}

// simpleStrategy is the ollama-style single-prompt completion API.
type simpleStrategy struct{}

func (simpleStrategy) buildRequest(src config.SourceConfig, system, prompt string) (any, map[string]string) {
	combined := fmt.Sprintf("System: %s\n\nUser: %s", system, prompt)
	return map[string]any{
		"model":  src.Model,
		"prompt": combined,
		"stream": false,
	}, nil
}

func (simpleStrategy) extractText(body []byte) (string, error) {
	var result struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	return result.Response, nil
}

// chatStrategy is the chat-completion messages API with bearer auth.
type chatStrategy struct{}

func (chatStrategy) buildRequest(src config.SourceConfig, system, prompt string) (any, map[string]string) {
	payload := map[string]any{
		"model": src.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.7,
		"stream":      false,
	}
	var headers map[string]string
	if src.APIKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + src.APIKey}
	}
	return payload, headers
}

func (chatStrategy) extractText(body []byte) (string, error) {
	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode chat completion: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("engine error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return result.Choices[0].Message.Content, nil
}

// Dispatcher resolves a source key to a configured backend and runs a
// completion against it. Unknown or inactive sources fail before any
// network call.
type Dispatcher struct {
	sources map[string]config.SourceConfig
	timeout time.Duration
	logger  zerolog.Logger
}

// NewDispatcher creates a dispatcher over the configured source map.
func NewDispatcher(sources map[string]config.SourceConfig, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sources: sources,
		timeout: timeout,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Resolve looks up a backend by source key.
func (d *Dispatcher) Resolve(sourceKey string) (config.SourceConfig, error) {
	src, ok := d.sources[sourceKey]
	if !ok {
		return config.SourceConfig{}, fmt.Errorf("%w: %q", ErrSourceNotFound, sourceKey)
	}
	if !src.Active {
		return config.SourceConfig{}, fmt.Errorf("%w: %q", ErrUnauthorizedSource, sourceKey)
	}
	return src, nil
}

// Complete resolves the backend for sourceKey and returns the raw response
// text for the given prompt.
func (d *Dispatcher) Complete(ctx context.Context, sourceKey, system, prompt string) (string, config.SourceConfig, error) {
	src, err := d.Resolve(sourceKey)
	if err != nil {
		return "", config.SourceConfig{}, err
	}

	engine := NewEngine(src, d.timeout, d.logger)
	text, err := engine.Complete(ctx, system, prompt)
	if err != nil {
		return "", src, err
	}

	d.logger.Info().Str("sourceKey", sourceKey).Str("model", src.Model).Msg("Dispatched completion")
	return text, src, nil
}
