package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPProvider implements TTS against a neural-TTS HTTP sidecar that takes
// text plus voice parameters and returns mp3 bytes.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
}

// NewHTTPProvider creates a provider for the given synthesis endpoint.
func NewHTTPProvider(endpoint string, timeout time.Duration, logger zerolog.Logger) *HTTPProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("provider", "http-tts").Logger(),
	}
}

// Name returns the provider identifier
func (p *HTTPProvider) Name() string {
	return "http"
}

// Synthesize converts text to audio via the sidecar
func (p *HTTPProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}

	startTime := time.Now()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		p.logger.Error().
			Int("status", resp.StatusCode).
			Str("body", string(respBody)).
			Msg("TTS request failed")
		return nil, fmt.Errorf("TTS error (%d): %s", resp.StatusCode, string(respBody))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	p.logger.Debug().
		Str("voice", req.VoiceID).
		Int("audioBytes", len(audioData)).
		Dur("processingTime", time.Since(startTime)).
		Msg("Synthesis complete")

	return &SynthesizeResponse{
		Audio:    audioData,
		Format:   "mp3",
		VoiceID:  req.VoiceID,
		Provider: p.Name(),
	}, nil
}
