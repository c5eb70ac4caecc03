package briefing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/aegisdash/internal/config"
	"github.com/normanking/aegisdash/internal/datasource"
	"github.com/normanking/aegisdash/internal/inference"
	"github.com/normanking/aegisdash/internal/prompt"
	"github.com/normanking/aegisdash/internal/tts"
)

const testTemplates = `{
	"DASHBOARD_INTERNAL": {
		"briefing": "Brief the user on: {{context_data}}",
		"widget_briefing": "Summarize {{widget_type}}: {{widget_data}}"
	},
	"NLP_COMMAND_ENGINE": {
		"command_parsing": "Parse {{command}} against {{context_data}}"
	}
}`

type silentProvider struct {
	calls atomic.Int32
}

func (p *silentProvider) Name() string { return "silent" }

func (p *silentProvider) Synthesize(ctx context.Context, req *tts.SynthesizeRequest) (*tts.SynthesizeResponse, error) {
	p.calls.Add(1)
	return &tts.SynthesizeResponse{Audio: []byte("audio"), Format: "mp3"}, nil
}

func newTestResolver(t *testing.T) *prompt.Resolver {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompts.json")
	require.NoError(t, os.WriteFile(path, []byte(testTemplates), 0644))
	r, err := prompt.NewResolver(path, zerolog.Nop())
	require.NoError(t, err)
	return r
}

// engineServer serves a fixed structured briefing and counts calls.
func engineServer(t *testing.T, result map[string]string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		payload, err := json.Marshal(result)
		require.NoError(t, err)
		json.NewEncoder(w).Encode(map[string]string{"response": string(payload)})
	}))
}

func newTestManager(t *testing.T, engineURL string) (*Manager, string) {
	t.Helper()
	cacheDir := t.TempDir()

	src := config.SourceConfig{Name: "Test", BaseURL: engineURL, Model: "m", APIType: "ollama", Active: true}
	engine := inference.NewEngine(src, 5*time.Second, zerolog.Nop())
	synth := tts.NewSynthesizer(&silentProvider{}, config.VoiceProfile{VoiceID: "v"}, filepath.Join(cacheDir, "tts_cache"), "/cache/tts_cache", zerolog.Nop())

	return NewManager(newTestResolver(t), engine, synth, "ko", cacheDir, "/cache", zerolog.Nop()), cacheDir
}

func testSnapshot() *datasource.Snapshot {
	return &datasource.Snapshot{
		Weather: &datasource.Weather{Status: "SUNNY", Temp: "20.0°C", City: "Seoul"},
		Finance: map[string]datasource.Index{"KOSPI": {ChangePctRaw: 0.3}},
	}
}

func TestGetBriefing_GeneratesAndCaches(t *testing.T) {
	var calls atomic.Int32
	srv := engineServer(t, map[string]string{
		"briefing":    "Good morning, markets are calm.",
		"sentiment":   "positive",
		"visual_type": "chart",
	}, &calls)
	defer srv.Close()

	m, cacheDir := newTestManager(t, srv.URL)

	first := m.GetBriefing(context.Background(), testSnapshot(), false)
	assert.Equal(t, "Good morning, markets are calm.", first.Briefing)
	assert.Equal(t, "positive", first.Sentiment)
	assert.Equal(t, "chart", first.VisualType)
	assert.Contains(t, first.AudioURL, "/cache/last_briefing.mp3?t=")

	// Second call must serve the cached pair without another engine call.
	second := m.GetBriefing(context.Background(), testSnapshot(), false)
	assert.Equal(t, first.Briefing, second.Briefing)
	assert.Equal(t, first.Sentiment, second.Sentiment)
	assert.Equal(t, first.VisualType, second.VisualType)
	assert.Equal(t, int32(1), calls.Load())

	// Text cache holds the full structured result.
	data, err := os.ReadFile(filepath.Join(cacheDir, "last_briefing.json"))
	require.NoError(t, err)
	var cached inference.BriefingResult
	require.NoError(t, json.Unmarshal(data, &cached))
	assert.Equal(t, "Good morning, markets are calm.", cached.Briefing)
}

func TestGetBriefing_RegenerateBypassesCache(t *testing.T) {
	var calls atomic.Int32
	srv := engineServer(t, map[string]string{"briefing": "fresh", "sentiment": "neutral", "visual_type": "none"}, &calls)
	defer srv.Close()

	m, _ := newTestManager(t, srv.URL)

	m.GetBriefing(context.Background(), testSnapshot(), false)
	m.GetBriefing(context.Background(), testSnapshot(), true)

	assert.Equal(t, int32(2), calls.Load())
}

func TestGetBriefing_EngineUnreachable_Fallback(t *testing.T) {
	m, _ := newTestManager(t, "http://127.0.0.1:1")

	result := m.GetBriefing(context.Background(), testSnapshot(), true)

	assert.NotEmpty(t, result.Briefing)
	assert.Equal(t, "neutral", result.Sentiment)
	assert.Equal(t, "none", result.VisualType)
}

func TestGetBriefing_SendsContextData(t *testing.T) {
	var sawContext atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if strings.Contains(req.Prompt, `"SUNNY"`) && strings.Contains(req.Prompt, "Brief the user on:") {
			sawContext.Store(true)
		}
		json.NewEncoder(w).Encode(map[string]string{"response": `{"briefing":"ok","sentiment":"neutral","visual_type":"none"}`})
	}))
	defer srv.Close()

	m, _ := newTestManager(t, srv.URL)
	m.GetBriefing(context.Background(), testSnapshot(), true)

	assert.True(t, sawContext.Load(), "expected serialized snapshot substituted into the template")
}

func TestGetWidgetBriefing_AlwaysRegenerates(t *testing.T) {
	var calls atomic.Int32
	srv := engineServer(t, map[string]string{"briefing": "widget summary", "sentiment": "neutral"}, &calls)
	defer srv.Close()

	m, _ := newTestManager(t, srv.URL)

	first := m.GetWidgetBriefing(context.Background(), "finance", map[string]string{"KOSPI": "+2%"})
	second := m.GetWidgetBriefing(context.Background(), "finance", map[string]string{"KOSPI": "+2%"})

	assert.Equal(t, "widget summary", first.Briefing)
	assert.Contains(t, first.AudioURL, "/cache/widget_finance.mp3?t=")
	assert.Equal(t, "widget summary", second.Briefing)
	assert.Equal(t, int32(2), calls.Load(), "widget briefings never serve from cache")
}

func TestProcessCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"response": `{"response":"Opening the news panel.","action":"open_widget","target":"news","sentiment":"joy"}`,
		})
	}))
	defer srv.Close()

	m, _ := newTestManager(t, srv.URL)

	result := m.ProcessCommand(context.Background(), "show me the news", testSnapshot())

	assert.Equal(t, "open_widget", result.Action)
	assert.Equal(t, "news", result.Target)
	assert.Equal(t, "joy", result.Sentiment)
}

func TestProcessCommand_EngineFailure_Fallback(t *testing.T) {
	m, _ := newTestManager(t, "http://127.0.0.1:1")

	result := m.ProcessCommand(context.Background(), "show me the news", testSnapshot())

	assert.Equal(t, "none", result.Action)
	assert.Equal(t, "neutral", result.Sentiment)
	assert.NotEmpty(t, result.Response)
}
