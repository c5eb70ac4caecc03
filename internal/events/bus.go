// Package events implements the authenticated external event bus: a bounded
// FIFO queue of avatar-control events injected by external systems and
// polled (or streamed) by avatar clients.
package events

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/aegisdash/internal/inference"
	"github.com/normanking/aegisdash/internal/parse"
	"github.com/normanking/aegisdash/internal/prompt"
	"github.com/normanking/aegisdash/internal/tts"
)

// MaxQueueSize caps the queue; the oldest event is evicted first.
const MaxQueueSize = 50

// ErrUnauthorized is returned for unknown or missing API keys.
var ErrUnauthorized = errors.New("unauthorized source")

// ValidationError rejects malformed caller input with a descriptive message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Message
}

// Event is one avatar-control command. Immutable once enqueued.
type Event struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Command     string    `json:"command"`
	Text        string    `json:"text"`
	DisplayText string    `json:"display_text,omitempty"`
	Motion      string    `json:"motion"`
	AudioURL    string    `json:"audio_url,omitempty"`
	Interrupt   bool      `json:"interrupt"`
	Timestamp   time.Time `json:"timestamp"`
}

// InteractPayload is the caller-supplied body of an interact request.
type InteractPayload struct {
	Text      string `json:"text"`
	AudioURL  string `json:"audio_url,omitempty"`
	Motion    string `json:"motion,omitempty"`
	Interrupt bool   `json:"interrupt,omitempty"`
}

// QueryResult combines a generative answer with its auto-enqueued event.
type QueryResult struct {
	Answer   string `json:"answer"`   // display channel
	Briefing string `json:"briefing"` // voice channel
	Model    string `json:"model"`
	EventID  string `json:"event_id"`
}

// greetingKeywords select the "joy" motion for friendly prompts.
var greetingKeywords = []string{"안녕", "반가워", "고마워", "hello", "thank"}

// Bus is the external event bus. Queue mutation is atomic; reads return
// snapshot copies. Events are held in memory only: delivery is best-effort,
// at-most-once, and a restart drops undelivered events.
type Bus struct {
	keys       map[string]string // source name -> API key
	synth      *tts.Synthesizer
	dispatcher *inference.Dispatcher
	resolver   *prompt.Resolver
	language   string
	logger     zerolog.Logger

	mu    sync.RWMutex
	queue []Event

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// NewBus creates a bus authenticating against the configured key pairs.
func NewBus(keys map[string]string, synth *tts.Synthesizer, dispatcher *inference.Dispatcher, resolver *prompt.Resolver, language string, logger zerolog.Logger) *Bus {
	return &Bus{
		keys:       keys,
		synth:      synth,
		dispatcher: dispatcher,
		resolver:   resolver,
		language:   language,
		logger:     logger.With().Str("component", "event-bus").Logger(),
		subs:       make(map[int]chan Event),
	}
}

// Authenticate resolves an API key to its source identity. The first
// matching key wins.
func (b *Bus) Authenticate(apiKey string) (string, bool) {
	if apiKey == "" {
		return "", false
	}
	for source, key := range b.keys {
		if key == apiKey {
			return source, true
		}
	}
	return "", false
}

// Interact validates the caller, materializes audio for text-only payloads
// and enqueues the resulting event. Returns the assigned event ID.
func (b *Bus) Interact(ctx context.Context, apiKey, command string, payload InteractPayload) (string, error) {
	source, ok := b.Authenticate(apiKey)
	if !ok {
		return "", ErrUnauthorized
	}

	if command == "" {
		command = "speak"
	}
	motion := payload.Motion
	if motion == "" {
		motion = "idle"
	}

	audioURL := payload.AudioURL
	if audioURL == "" && payload.Text != "" {
		url, err := b.synth.SpeakCached(ctx, payload.Text, source)
		if err != nil {
			// Missing audio is a valid state; the avatar still shows text.
			b.logger.Warn().Err(err).Str("source", source).Msg("Interact TTS failed")
		} else {
			audioURL = url
		}
	}

	event := b.enqueue(Event{
		Source:    source,
		Command:   command,
		Text:      payload.Text,
		Motion:    motion,
		AudioURL:  audioURL,
		Interrupt: payload.Interrupt,
	})

	b.logger.Info().Str("source", source).Str("command", command).Str("eventId", event.ID).Msg("External event enqueued")
	return event.ID, nil
}

// Query sends a prompt to the caller's configured backend, splits the answer
// into display and voice channels, voices it and auto-enqueues a speak event.
func (b *Bus) Query(ctx context.Context, apiKey, promptText string) (*QueryResult, error) {
	source, ok := b.Authenticate(apiKey)
	if !ok {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(promptText) == "" {
		return nil, &ValidationError{Message: "no prompt provided"}
	}

	system := b.resolver.SystemInstruction(b.language, source)
	raw, src, err := b.dispatcher.Complete(ctx, source, system, promptText)
	if err != nil {
		return nil, err
	}

	channels := parse.Split(raw)

	audioURL, synthErr := b.synth.SpeakCached(ctx, channels.Voice, "query_"+source)
	if synthErr != nil {
		b.logger.Warn().Err(synthErr).Str("source", source).Msg("Query TTS failed")
		audioURL = ""
	}

	event := b.enqueue(Event{
		Source:      source,
		Command:     "speak",
		Text:        channels.Voice,
		DisplayText: channels.Display,
		Motion:      motionFor(promptText),
		AudioURL:    audioURL,
		Interrupt:   true,
	})

	return &QueryResult{
		Answer:   channels.Display,
		Briefing: channels.Voice,
		Model:    src.Model,
		EventID:  event.ID,
	}, nil
}

// enqueue assigns an ID and timestamp, appends, evicts past the cap and
// fans the event out to subscribers.
func (b *Bus) enqueue(event Event) Event {
	event.ID = strings.ReplaceAll(uuid.NewString(), "-", "")
	event.Timestamp = time.Now()

	b.mu.Lock()
	b.queue = append(b.queue, event)
	if len(b.queue) > MaxQueueSize {
		b.queue = b.queue[len(b.queue)-MaxQueueSize:]
	}
	b.mu.Unlock()

	b.subMu.Lock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default: // slow subscriber, drop
		}
	}
	b.subMu.Unlock()

	return event
}

// Events returns a snapshot copy of the queue in insertion order. Polling is
// a broadcast read: previously returned events appear again.
func (b *Bus) Events() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, len(b.queue))
	copy(out, b.queue)
	return out
}

// Len returns the current queue length.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.queue)
}

// Subscribe registers a best-effort live feed of newly enqueued events.
// The returned cancel func must be called to release the subscription.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	b.subMu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.subMu.Unlock()

	cancel := func() {
		b.subMu.Lock()
		delete(b.subs, id)
		b.subMu.Unlock()
	}
	return ch, cancel
}

func motionFor(promptText string) string {
	lower := strings.ToLower(promptText)
	for _, kw := range greetingKeywords {
		if strings.Contains(lower, kw) {
			return "joy"
		}
	}
	return "idle"
}
