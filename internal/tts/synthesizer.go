package tts

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/normanking/aegisdash/internal/config"
)

// Synthesizer wraps a Provider with a content-addressed on-disk cache.
// Identical text within a namespace is synthesized at most once; concurrent
// requests for the same key are coalesced into a single provider call.
type Synthesizer struct {
	provider Provider
	profile  config.VoiceProfile
	cacheDir string
	urlBase  string
	logger   zerolog.Logger
	group    singleflight.Group
}

// NewSynthesizer creates a synthesizer caching under cacheDir. Cached files
// are addressable by callers at urlBase/<filename>.
func NewSynthesizer(provider Provider, profile config.VoiceProfile, cacheDir, urlBase string, logger zerolog.Logger) *Synthesizer {
	return &Synthesizer{
		provider: provider,
		profile:  profile,
		cacheDir: cacheDir,
		urlBase:  urlBase,
		logger:   logger.With().Str("component", "tts").Logger(),
	}
}

// CacheKey returns the content-addressed filename for text in a namespace.
func CacheKey(text, prefix string) string {
	sum := md5.Sum([]byte(text))
	if prefix == "" {
		prefix = "tts"
	}
	return fmt.Sprintf("%s_%s.mp3", prefix, hex.EncodeToString(sum[:]))
}

// SpeakCached synthesizes text into the content-addressed cache and returns
// the URL of the cached file. A cache hit returns without a provider call.
func (s *Synthesizer) SpeakCached(ctx context.Context, text, prefix string) (string, error) {
	if text == "" {
		return "", &SynthesisError{Message: ErrEmptyText.Error()}
	}

	filename := CacheKey(text, prefix)
	path := filepath.Join(s.cacheDir, filename)

	_, err, _ := s.group.Do(filename, func() (any, error) {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, nil
		}
		return nil, s.synthesizeTo(ctx, text, path)
	})
	if err != nil {
		return "", err
	}

	return s.urlBase + "/" + filename, nil
}

// SpeakTo synthesizes text directly to an explicit path, replacing any
// previous file. Used for the last-writer-wins briefing audio slots.
func (s *Synthesizer) SpeakTo(ctx context.Context, text, path string) error {
	if text == "" {
		return &SynthesisError{Message: ErrEmptyText.Error()}
	}
	_, err, _ := s.group.Do(path, func() (any, error) {
		return nil, s.synthesizeTo(ctx, text, path)
	})
	return err
}

func (s *Synthesizer) synthesizeTo(ctx context.Context, text, path string) error {
	resp, err := s.provider.Synthesize(ctx, &SynthesizeRequest{
		Text:    text,
		VoiceID: s.profile.VoiceID,
		Pitch:   s.profile.Pitch,
		Rate:    s.profile.Rate,
		Volume:  s.profile.Volume,
	})
	if err != nil {
		s.logger.Error().Err(err).Int("textLen", len(text)).Msg("Synthesis failed")
		return &SynthesisError{Message: err.Error()}
	}

	if err := writeFileAtomic(path, resp.Audio); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("Failed to write audio file")
		return &SynthesisError{Message: err.Error()}
	}

	s.logger.Info().Str("path", path).Int("audioBytes", len(resp.Audio)).Msg("Audio cached")
	return nil
}

// writeFileAtomic writes via a temp file and rename so readers never observe
// a partially written audio file.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tts-*")
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
