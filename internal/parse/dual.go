// Package parse splits raw model output into display and voice channels.
package parse

import (
	"regexp"
	"strings"
)

// Channels holds the two delivery streams derived from one model response.
// Display may contain markdown; Voice is plain speakable text.
type Channels struct {
	Display string `json:"display"`
	Voice   string `json:"voice"`
}

var (
	displayPattern  = regexp.MustCompile(`(?is)\[DISPLAY\](.*?)\[VOICE\]`)
	voicePattern    = regexp.MustCompile(`(?is)\[VOICE\](.*)`)
	markerPattern   = regexp.MustCompile(`(?i)\[(?:DISPLAY|VOICE)\]`)
	markdownPattern = regexp.MustCompile("[#*`\\-_]")
	bracketPattern  = regexp.MustCompile(`\[.*?\]`)
)

// Split extracts the [DISPLAY] and [VOICE] sections from raw model text.
// It never fails: if the markers are missing or malformed it degrades
// through fallbacks so that Display is never empty for non-empty input and
// Voice is always speakable plain text.
func Split(raw string) Channels {
	var display, voice string

	upper := strings.ToUpper(raw)
	if strings.Contains(upper, "[DISPLAY]") && strings.Contains(upper, "[VOICE]") {
		if m := displayPattern.FindStringSubmatch(raw); m != nil {
			display = strings.TrimSpace(m[1])
		}
		if m := voicePattern.FindStringSubmatch(raw); m != nil {
			voice = strings.TrimSpace(m[1])
		}
	}

	if display == "" {
		display = strings.TrimSpace(markerPattern.ReplaceAllString(raw, ""))
	}
	if voice == "" {
		voice = Speakable(display)
	}

	return Channels{Display: display, Voice: voice}
}

// Speakable strips markdown emphasis, heading and list characters plus
// bracketed annotations, leaving plain text for the voice channel.
func Speakable(text string) string {
	text = markdownPattern.ReplaceAllString(text, "")
	text = bracketPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
