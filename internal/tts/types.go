// Package tts provides text-to-speech synthesis with a content-addressed
// on-disk cache.
package tts

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrProviderUnavailable = errors.New("TTS provider unavailable")
	ErrEmptyText           = errors.New("no text to synthesize")
)

// SynthesisError normalizes speech-engine failures. Callers must treat the
// absence of an audio URL as a valid state, not a fatal one.
type SynthesisError struct {
	Message string
}

func (e *SynthesisError) Error() string {
	return "synthesis: " + e.Message
}

// Provider is the interface all TTS providers must implement
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// Synthesize converts text to audio
	Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error)
}

// SynthesizeRequest represents a synthesis request
type SynthesizeRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
	Pitch   string `json:"pitch,omitempty"`  // e.g. "+20Hz"
	Rate    string `json:"rate,omitempty"`   // e.g. "+10%"
	Volume  string `json:"volume,omitempty"` // e.g. "+0%"
}

// SynthesizeResponse represents a synthesis result
type SynthesizeResponse struct {
	Audio    []byte `json:"audio"`    // Raw audio data
	Format   string `json:"format"`   // Audio format
	VoiceID  string `json:"voice_id"` // Voice used
	Provider string `json:"provider"` // Provider name
}
