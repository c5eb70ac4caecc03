// Package proactive evaluates threshold rules over a context snapshot and
// produces unsolicited alert briefings when a rule fires.
package proactive

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/aegisdash/internal/config"
	"github.com/normanking/aegisdash/internal/datasource"
	"github.com/normanking/aegisdash/internal/inference"
	"github.com/normanking/aegisdash/internal/prompt"
	"github.com/normanking/aegisdash/internal/tts"
)

const alertAudioFile = "proactive_alert.mp3"

// CheckResult is the outcome of one evaluation pass.
type CheckResult struct {
	Triggered  bool   `json:"triggered"`
	Text       string `json:"text,omitempty"`
	Sentiment  string `json:"sentiment,omitempty"`
	VisualType string `json:"visual_type,omitempty"`
	AudioURL   string `json:"audio_url,omitempty"`
}

// Evaluator applies the finance and calendar rules. Fired triggers are
// remembered and suppressed for the configured window so a recurring
// scheduler does not re-alert on the same condition every pass.
type Evaluator struct {
	cfg      config.ProactiveConfig
	resolver *prompt.Resolver
	engine   *inference.Engine
	synth    *tts.Synthesizer
	language string
	cacheDir string
	urlBase  string
	logger   zerolog.Logger

	mu         sync.Mutex
	lastAlerts map[string]time.Time

	now func() time.Time
}

// NewEvaluator creates an evaluator writing alert audio under cacheDir.
func NewEvaluator(cfg config.ProactiveConfig, resolver *prompt.Resolver, engine *inference.Engine, synth *tts.Synthesizer, language, cacheDir, urlBase string, logger zerolog.Logger) *Evaluator {
	if cfg.FinanceChangeAbs <= 0 {
		cfg.FinanceChangeAbs = 1.5
	}
	if cfg.CalendarLeadTimeMin <= 0 {
		cfg.CalendarLeadTimeMin = 15
	}
	if cfg.SuppressWindow <= 0 {
		cfg.SuppressWindow = time.Hour
	}
	return &Evaluator{
		cfg:        cfg,
		resolver:   resolver,
		engine:     engine,
		synth:      synth,
		language:   language,
		cacheDir:   cacheDir,
		urlBase:    urlBase,
		logger:     logger.With().Str("component", "proactive").Logger(),
		lastAlerts: make(map[string]time.Time),
		now:        time.Now,
	}
}

// Evaluate runs both rules against the snapshot. With no triggers it returns
// {Triggered: false} without any generative call. With triggers it asks the
// engine for a short situational reaction and voices it.
func (e *Evaluator) Evaluate(ctx context.Context, snap *datasource.Snapshot) *CheckResult {
	triggers := e.collectTriggers(snap)
	if len(triggers) == 0 {
		return &CheckResult{Triggered: false}
	}

	e.logger.Info().Strs("triggers", triggers).Msg("Proactive triggers fired")
	return e.react(ctx, triggers)
}

// collectTriggers applies the rules and records fired trigger keys for
// de-duplication.
func (e *Evaluator) collectTriggers(snap *datasource.Snapshot) []string {
	now := e.now()
	var triggers []string

	for name, idx := range snap.Finance {
		if math.Abs(idx.ChangePctRaw) < e.cfg.FinanceChangeAbs {
			continue
		}
		if !e.shouldAlert("finance:"+name, now) {
			continue
		}
		triggers = append(triggers, fmt.Sprintf("Market index moved: %s %+.2f%%", name, idx.ChangePctRaw))
	}

	lead := time.Duration(e.cfg.CalendarLeadTimeMin) * time.Minute
	for _, event := range snap.Calendar {
		// All-day events carry no time of day and never trigger.
		if event.IsAllDay || !strings.Contains(event.Start, "T") {
			continue
		}
		start, err := parseEventStart(event.Start)
		if err != nil {
			continue
		}
		diff := start.Sub(now)
		if diff <= 0 || diff > lead {
			continue
		}
		if !e.shouldAlert("calendar:"+event.Summary, now) {
			continue
		}
		triggers = append(triggers, fmt.Sprintf("Event starting soon: %s (in %d minutes)", event.Summary, int(diff.Minutes())))
	}

	return triggers
}

// parseEventStart accepts RFC 3339 timestamps and offset-less local times.
func parseEventStart(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", s, time.Local)
}

// shouldAlert suppresses repeats of the same trigger inside the window and
// records the fire time.
func (e *Evaluator) shouldAlert(key string, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if last, ok := e.lastAlerts[key]; ok && now.Sub(last) < e.cfg.SuppressWindow {
		return false
	}
	e.lastAlerts[key] = now
	return true
}

// react builds a single prompt embedding all trigger descriptions, asks the
// engine for a reaction and voices it. Failures degrade to a plain alert.
func (e *Evaluator) react(ctx context.Context, triggers []string) *CheckResult {
	joined := strings.Join(triggers, ", ")

	tpl, err := e.resolver.Resolve(e.language, prompt.GroupDashboard, prompt.NameProactive)
	if err != nil {
		e.logger.Error().Err(err).Msg("Proactive template missing")
		tpl = "Briefly report the following situation to the user: {{triggers}}"
	}
	p := prompt.Render(tpl, map[string]string{"triggers": joined})

	var gen inference.BriefingResult
	if err := e.engine.GenerateJSON(context.WithoutCancel(ctx), "", p, &gen); err != nil {
		e.logger.Error().Err(err).Msg("Proactive reaction generation failed")
		gen = inference.BriefingResult{Text: joined, Sentiment: "neutral", VisualType: "none"}
	}
	text := gen.Text
	if text == "" {
		text = gen.Briefing
	}

	result := &CheckResult{
		Triggered:  true,
		Text:       text,
		Sentiment:  defaultStr(gen.Sentiment, "neutral"),
		VisualType: defaultStr(gen.VisualType, "none"),
	}

	audioPath := filepath.Join(e.cacheDir, alertAudioFile)
	if err := e.synth.SpeakTo(context.WithoutCancel(ctx), text, audioPath); err != nil {
		e.logger.Error().Err(err).Msg("Alert voice synthesis failed")
		return result
	}
	result.AudioURL = fmt.Sprintf("%s/%s?t=%d", e.urlBase, alertAudioFile, e.now().Unix())
	return result
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
