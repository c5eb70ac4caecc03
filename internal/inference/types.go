// Package inference wraps the external text-generation engines used by the
// briefing pipeline: a single configured engine for structured generation and
// a source-keyed dispatcher for external hub queries.
package inference

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrSourceNotFound     = errors.New("generative source not found")
	ErrUnauthorizedSource = errors.New("generative source not active")
	ErrEmptyResponse      = errors.New("empty response from engine")
)

// InferenceError normalizes every engine failure (network, non-2xx, empty
// body, malformed payload) into one caller-facing type.
type InferenceError struct {
	Message string
}

func (e *InferenceError) Error() string {
	return "inference: " + e.Message
}

func inferenceErrorf(format string, args ...any) *InferenceError {
	return &InferenceError{Message: fmt.Sprintf(format, args...)}
}

// APIType selects the request/response shape for a backend.
type APIType int

const (
	// APITypeSimple is the ollama-style single-prompt completion API.
	APITypeSimple APIType = iota
	// APITypeChatCompletion is the chat-completion messages API.
	APITypeChatCompletion
)

// ParseAPIType maps the configured api_type string to a variant.
// Unknown values default to APITypeSimple.
func ParseAPIType(s string) APIType {
	switch s {
	case "openai", "chat", "chat_completion":
		return APITypeChatCompletion
	default:
		return APITypeSimple
	}
}

// BriefingResult is the structured result the engine is asked to emit for
// briefings and proactive reactions.
type BriefingResult struct {
	Briefing   string `json:"briefing"`
	Text       string `json:"text,omitempty"`
	Sentiment  string `json:"sentiment"`
	VisualType string `json:"visual_type"`
}

// CommandResult is the structured result for parsed user commands.
type CommandResult struct {
	Response  string `json:"response"`
	Action    string `json:"action"`
	Target    string `json:"target"`
	Sentiment string `json:"sentiment"`
}
