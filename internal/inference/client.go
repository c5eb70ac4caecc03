package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/aegisdash/internal/config"
)

// Engine invokes one configured text-generation backend and decodes its
// output as structured JSON. All failures are normalized to *InferenceError.
type Engine struct {
	source   config.SourceConfig
	strategy apiStrategy
	client   *http.Client
	logger   zerolog.Logger
}

// NewEngine creates an engine bound to a source configuration.
func NewEngine(src config.SourceConfig, timeout time.Duration, logger zerolog.Logger) *Engine {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Engine{
		source:   src,
		strategy: strategyFor(ParseAPIType(src.APIType)),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "inference").Str("source", src.Name).Logger(),
	}
}

// Source returns the backend configuration the engine is bound to.
func (e *Engine) Source() config.SourceConfig {
	return e.source
}

// Complete sends a prompt to the engine and returns the raw response text.
func (e *Engine) Complete(ctx context.Context, system, prompt string) (string, error) {
	if !e.source.Active {
		return "", ErrUnauthorizedSource
	}

	if e.source.Mock {
		return e.mockResponse(ctx, prompt)
	}

	payload, headers := e.strategy.buildRequest(e.source, system, prompt)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", inferenceErrorf("marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.source.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", inferenceErrorf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", inferenceErrorf("engine unreachable: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", inferenceErrorf("read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		e.logger.Error().
			Int("status", resp.StatusCode).
			Str("body", truncateForLog(string(respBody), 300)).
			Msg("Engine request failed")
		return "", inferenceErrorf("engine error (%d): %s", resp.StatusCode, truncateForLog(string(respBody), 300))
	}

	text, err := e.strategy.extractText(respBody)
	if err != nil {
		return "", inferenceErrorf("extract response: %v", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", inferenceErrorf("%v", ErrEmptyResponse)
	}

	e.logger.Debug().Int("responseLen", len(text)).Msg("Engine completion received")
	return text, nil
}

// GenerateJSON runs Complete, strips an optional fenced code block and
// decodes the remainder into out.
func (e *Engine) GenerateJSON(ctx context.Context, system, prompt string, out any) error {
	text, err := e.Complete(ctx, system, prompt)
	if err != nil {
		if infErr, ok := err.(*InferenceError); ok {
			return infErr
		}
		return inferenceErrorf("%v", err)
	}

	cleaned := StripFence(text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		e.logger.Error().Err(err).Str("payload", truncateForLog(cleaned, 300)).Msg("Engine returned non-JSON payload")
		return inferenceErrorf("malformed JSON payload: %v", err)
	}
	return nil
}

// mockResponse synthesizes a deterministic placeholder result so the rest of
// the system can be exercised without live credentials.
func (e *Engine) mockResponse(ctx context.Context, prompt string) (string, error) {
	select {
	case <-time.After(300 * time.Millisecond):
	case <-ctx.Done():
		return "", inferenceErrorf("mock cancelled: %v", ctx.Err())
	}
	return fmt.Sprintf(
		"[DISPLAY]### [SIMULATION] %s engine\n\nSimulated answer for **%s**.[VOICE]This is a simulated answer from the %s engine.",
		e.source.Name, prompt, e.source.Name,
	), nil
}

// StripFence removes a single optional leading/trailing fenced code block
// wrapper, accepting bare ``` fences or fences tagged json.
func StripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	body := strings.TrimPrefix(text, "```")
	body = strings.TrimPrefix(body, "json")
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
