// Package briefing generates, caches and voices situational briefings.
package briefing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/normanking/aegisdash/internal/datasource"
	"github.com/normanking/aegisdash/internal/inference"
	"github.com/normanking/aegisdash/internal/prompt"
	"github.com/normanking/aegisdash/internal/tts"
)

const (
	briefingTextFile  = "last_briefing.json"
	briefingAudioFile = "last_briefing.mp3"
)

// Result is a renderable briefing: display text, sentiment cue for the
// avatar, optional visual hint and the URL of the voiced audio.
type Result struct {
	Briefing   string `json:"briefing"`
	Sentiment  string `json:"sentiment"`
	VisualType string `json:"visual_type,omitempty"`
	AudioURL   string `json:"audio_url,omitempty"`
}

// Manager owns the briefing cache: one text/audio pair per logical key,
// last-writer-wins, with at most one generation in flight per key.
type Manager struct {
	resolver *prompt.Resolver
	engine   *inference.Engine
	synth    *tts.Synthesizer
	language string
	cacheDir string
	urlBase  string
	logger   zerolog.Logger
	group    singleflight.Group
}

// NewManager creates a briefing manager caching under cacheDir. Audio files
// are addressable by clients at urlBase/<filename>.
func NewManager(resolver *prompt.Resolver, engine *inference.Engine, synth *tts.Synthesizer, language, cacheDir, urlBase string, logger zerolog.Logger) *Manager {
	return &Manager{
		resolver: resolver,
		engine:   engine,
		synth:    synth,
		language: language,
		cacheDir: cacheDir,
		urlBase:  urlBase,
		logger:   logger.With().Str("component", "briefing").Logger(),
	}
}

// GetBriefing returns the tactical briefing. When regenerate is false and a
// complete cached text/audio pair exists, the cached result is served with a
// cache-busting token derived from the audio file's mtime. Otherwise a fresh
// briefing is generated, persisted and voiced. Concurrent calls for the same
// key are coalesced into one generation. GetBriefing always returns a
// renderable result; engine failures degrade to a fallback briefing.
func (m *Manager) GetBriefing(ctx context.Context, snap *datasource.Snapshot, regenerate bool) *Result {
	v, _, _ := m.group.Do("tactical", func() (any, error) {
		return m.getBriefing(ctx, snap, regenerate), nil
	})
	return v.(*Result)
}

func (m *Manager) getBriefing(ctx context.Context, snap *datasource.Snapshot, regenerate bool) *Result {
	textPath := filepath.Join(m.cacheDir, briefingTextFile)
	audioPath := filepath.Join(m.cacheDir, briefingAudioFile)

	if !regenerate {
		if cached := m.readCached(textPath, audioPath); cached != nil {
			return cached
		}
	}

	gen := m.generate(ctx, snap)

	if err := m.persist(textPath, gen); err != nil {
		m.logger.Error().Err(err).Str("path", textPath).Msg("Briefing cache write failed")
	}

	return m.voiced(ctx, gen, audioPath, briefingAudioFile)
}

// readCached returns the cached result when both halves of the pair exist.
func (m *Manager) readCached(textPath, audioPath string) *Result {
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil
	}
	data, err := os.ReadFile(textPath)
	if err != nil {
		return nil
	}

	var cached inference.BriefingResult
	if err := json.Unmarshal(data, &cached); err != nil {
		m.logger.Warn().Err(err).Str("path", textPath).Msg("Corrupt briefing cache, regenerating")
		return nil
	}

	m.logger.Debug().Str("path", textPath).Msg("Serving cached briefing")
	return &Result{
		Briefing:   cached.Briefing,
		Sentiment:  defaultStr(cached.Sentiment, "neutral"),
		VisualType: defaultStr(cached.VisualType, "none"),
		AudioURL:   fmt.Sprintf("%s/%s?t=%d", m.urlBase, briefingAudioFile, info.ModTime().Unix()),
	}
}

// generate resolves the briefing template and asks the engine for a
// structured result. Any failure resolves to a fallback result.
func (m *Manager) generate(ctx context.Context, snap *datasource.Snapshot) *inference.BriefingResult {
	tpl, err := m.resolver.Resolve(m.language, prompt.GroupDashboard, prompt.NameBriefing)
	if err != nil {
		m.logger.Error().Err(err).Msg("Briefing template missing")
		return fallbackBriefing(err)
	}

	contextJSON, err := json.Marshal(snap)
	if err != nil {
		return fallbackBriefing(err)
	}

	p := prompt.Render(tpl, map[string]string{"context_data": string(contextJSON)})

	// Generation survives caller abandonment so the cache is populated for
	// the next request.
	var result inference.BriefingResult
	if err := m.engine.GenerateJSON(context.WithoutCancel(ctx), "", p, &result); err != nil {
		m.logger.Error().Err(err).Msg("Briefing generation failed")
		return fallbackBriefing(err)
	}
	if result.Briefing == "" {
		result.Briefing = result.Text
	}
	return &result
}

// GetWidgetBriefing generates a briefing scoped to one widget's data. Widget
// briefings are request-driven: they never consult the cache and always
// regenerate, into a per-widget text/audio pair.
func (m *Manager) GetWidgetBriefing(ctx context.Context, widgetType string, widgetData any) *Result {
	key := "widget:" + widgetType
	v, _, _ := m.group.Do(key, func() (any, error) {
		audioFile := fmt.Sprintf("widget_%s.mp3", widgetType)
		textPath := filepath.Join(m.cacheDir, fmt.Sprintf("widget_%s.json", widgetType))

		gen := m.generateWidget(ctx, widgetType, widgetData)

		if err := m.persist(textPath, gen); err != nil {
			m.logger.Error().Err(err).Str("path", textPath).Msg("Widget cache write failed")
		}

		return m.voiced(ctx, gen, filepath.Join(m.cacheDir, audioFile), audioFile), nil
	})
	return v.(*Result)
}

func (m *Manager) generateWidget(ctx context.Context, widgetType string, widgetData any) *inference.BriefingResult {
	tpl, err := m.resolver.Resolve(m.language, prompt.GroupDashboard, prompt.NameWidgetBriefing)
	if err != nil {
		m.logger.Error().Err(err).Msg("Widget briefing template missing")
		return fallbackBriefing(err)
	}

	dataJSON, err := json.Marshal(widgetData)
	if err != nil {
		return fallbackBriefing(err)
	}

	p := prompt.Render(tpl, map[string]string{
		"widget_type": widgetType,
		"widget_data": string(dataJSON),
	})

	var result inference.BriefingResult
	if err := m.engine.GenerateJSON(context.WithoutCancel(ctx), "", p, &result); err != nil {
		m.logger.Error().Err(err).Str("widget", widgetType).Msg("Widget briefing generation failed")
		return fallbackBriefing(err)
	}
	return &result
}

// ProcessCommand parses a natural-language user command into a structured
// action/response. Engine failures degrade to a no-op action with an
// explanatory response.
func (m *Manager) ProcessCommand(ctx context.Context, command string, snap *datasource.Snapshot) *inference.CommandResult {
	tpl, err := m.resolver.Resolve(m.language, prompt.GroupCommand, prompt.NameCommandParsing)
	if err != nil {
		m.logger.Error().Err(err).Msg("Command template missing")
		return fallbackCommand(err)
	}

	contextJSON, err := json.Marshal(snap)
	if err != nil {
		return fallbackCommand(err)
	}

	p := prompt.Render(tpl, map[string]string{
		"context_data": string(contextJSON),
		"command":      command,
	})

	var result inference.CommandResult
	if err := m.engine.GenerateJSON(ctx, "", p, &result); err != nil {
		m.logger.Error().Err(err).Msg("Command parsing failed")
		return fallbackCommand(err)
	}
	if result.Sentiment == "" {
		result.Sentiment = "neutral"
	}
	return &result
}

// voiced synthesizes audio for a generated result and assembles the final
// Result. Synthesis failure omits the audio URL; the text still renders.
func (m *Manager) voiced(ctx context.Context, gen *inference.BriefingResult, audioPath, audioFile string) *Result {
	result := &Result{
		Briefing:   gen.Briefing,
		Sentiment:  defaultStr(gen.Sentiment, "neutral"),
		VisualType: defaultStr(gen.VisualType, "none"),
	}

	if err := m.synth.SpeakTo(context.WithoutCancel(ctx), gen.Briefing, audioPath); err != nil {
		m.logger.Error().Err(err).Str("path", audioPath).Msg("Briefing voice synthesis failed")
		return result
	}

	result.AudioURL = fmt.Sprintf("%s/%s?t=%d", m.urlBase, audioFile, time.Now().Unix())
	return result
}

// persist writes the structured result to the text cache path atomically.
func (m *Manager) persist(path string, result *inference.BriefingResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".briefing-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func fallbackBriefing(err error) *inference.BriefingResult {
	return &inference.BriefingResult{
		Briefing:   fmt.Sprintf("A technical problem interrupted the briefing analysis. (reason: %v)", err),
		Sentiment:  "neutral",
		VisualType: "none",
	}
}

func fallbackCommand(err error) *inference.CommandResult {
	return &inference.CommandResult{
		Response:  fmt.Sprintf("Command processing failed: %v", err),
		Action:    "none",
		Target:    "",
		Sentiment: "neutral",
	}
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
