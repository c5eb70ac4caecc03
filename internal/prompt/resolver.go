// Package prompt resolves localized prompt templates for the briefing pipeline.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Template groups used by the pipeline.
const (
	GroupDashboard = "DASHBOARD_INTERNAL"
	GroupCommand   = "NLP_COMMAND_ENGINE"
	GroupHub       = "EXTERNAL_AI_HUB"
)

// Template names within GroupDashboard.
const (
	NameBriefing       = "briefing"
	NameWidgetBriefing = "widget_briefing"
	NameProactive      = "proactive"
	NameCommandParsing = "command_parsing"
)

// DefaultSystemInstruction is the hard-coded fallback used only for the
// external hub system instruction when no template is configured.
const DefaultSystemInstruction = "You are the personal AI assistant 'AEGIS'. " +
	"Answer using [DISPLAY] and [VOICE] tags: [DISPLAY] holds the on-screen markdown answer, " +
	"[VOICE] holds a short plain-text spoken summary."

// ErrTemplateNotFound is returned when no template exists for a group/name pair.
var ErrTemplateNotFound = errors.New("prompt template not found")

type groupMap map[string]map[string]string

// Resolver loads prompt templates from a JSON file and resolves them by
// language, group and name with a legacy language-less fallback. The file
// is watched for changes and reloaded in place.
type Resolver struct {
	path   string
	logger zerolog.Logger

	mu        sync.RWMutex
	localized map[string]groupMap // language -> group -> name -> template
	legacy    groupMap            // group -> name -> template

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewResolver loads templates from path. A missing file is not an error;
// the resolver starts empty and picks the file up once it appears.
func NewResolver(path string, logger zerolog.Logger) (*Resolver, error) {
	r := &Resolver{
		path:      path,
		logger:    logger.With().Str("component", "prompt-resolver").Logger(),
		localized: make(map[string]groupMap),
		legacy:    make(groupMap),
		done:      make(chan struct{}),
	}

	if err := r.Reload(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return r, nil
}

// Watch starts watching the template file's directory for changes.
func (r *Resolver) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		watcher.Close()
		return err
	}

	r.watcher = watcher
	go r.watchLoop()
	return nil
}

func (r *Resolver) watchLoop() {
	for {
		select {
		case <-r.done:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Name == r.path && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				if err := r.Reload(); err != nil {
					r.logger.Error().Err(err).Msg("Prompt reload failed")
				} else {
					r.logger.Info().Str("path", r.path).Msg("Prompt templates reloaded")
				}
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error().Err(err).Msg("Prompt watcher error")
		}
	}
}

// Close stops the file watcher.
func (r *Resolver) Close() error {
	close(r.done)
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

// Reload re-reads the template file.
func (r *Resolver) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse prompt templates: %w", err)
	}

	localized := make(map[string]groupMap)
	legacy := make(groupMap)

	for key, val := range raw {
		// Legacy form: top-level key is a group whose values are strings.
		var flat map[string]string
		if err := json.Unmarshal(val, &flat); err == nil {
			legacy[key] = flat
			continue
		}
		// Localized form: top-level key is a language code.
		var groups groupMap
		if err := json.Unmarshal(val, &groups); err == nil {
			localized[key] = groups
		}
	}

	r.mu.Lock()
	r.localized = localized
	r.legacy = legacy
	r.mu.Unlock()

	return nil
}

// Resolve returns the template for (language, group, name). Lookup order:
// localized form first, then the language-less legacy form. An empty result
// is an error except for the hub system instruction, which has a built-in
// default (see SystemInstruction).
func (r *Resolver) Resolve(language, group, name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if groups, ok := r.localized[language]; ok {
		if tpl := groups[group][name]; tpl != "" {
			return tpl, nil
		}
	}
	if tpl := r.legacy[group][name]; tpl != "" {
		return tpl, nil
	}

	return "", fmt.Errorf("%w: %s/%s/%s", ErrTemplateNotFound, language, group, name)
}

// SystemInstruction resolves the hub system instruction for a source key,
// falling back to the "default" entry and finally to the built-in text.
func (r *Resolver) SystemInstruction(language, sourceKey string) string {
	if tpl, err := r.Resolve(language, GroupHub, sourceKey); err == nil {
		return tpl
	}
	if tpl, err := r.Resolve(language, GroupHub, "default"); err == nil {
		return tpl
	}
	return DefaultSystemInstruction
}

// Render substitutes {{token}} placeholders with their values. Substitution
// is literal: values must be pre-serialized by the caller.
func Render(template string, tokens map[string]string) string {
	out := template
	for key, val := range tokens {
		out = strings.ReplaceAll(out, "{{"+key+"}}", val)
	}
	return out
}
