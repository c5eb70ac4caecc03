package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/aegisdash/internal/briefing"
	"github.com/normanking/aegisdash/internal/config"
	"github.com/normanking/aegisdash/internal/datasource"
	"github.com/normanking/aegisdash/internal/events"
	"github.com/normanking/aegisdash/internal/inference"
	"github.com/normanking/aegisdash/internal/proactive"
	"github.com/normanking/aegisdash/internal/tts"
)

const apiKeyHeader = "X-AEGIS-API-KEY"

// server is the thin HTTP facade over the briefing core. Handlers only
// translate HTTP to core calls; all pipeline behavior lives in internal/.
type server struct {
	cfg        *config.Config
	aggregator *datasource.Aggregator
	manager    *briefing.Manager
	evaluator  *proactive.Evaluator
	bus        *events.Bus
	synth      *tts.Synthesizer
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

func newServer(cfg *config.Config, aggregator *datasource.Aggregator, manager *briefing.Manager, evaluator *proactive.Evaluator, bus *events.Bus, synth *tts.Synthesizer, logger zerolog.Logger) *server {
	return &server{
		cfg:        cfg,
		aggregator: aggregator,
		manager:    manager,
		evaluator:  evaluator,
		bus:        bus,
		synth:      synth,
		upgrader:   websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		logger:     logger.With().Str("component", "http").Logger(),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/briefing", s.handleBriefing)
		r.Get("/widget_briefing/{type}", s.handleWidgetBriefing)
		r.Get("/proactive_check", s.handleProactiveCheck)
		r.Post("/command", s.handleCommand)
		r.Post("/speak", s.handleSpeak)
	})

	r.Route("/api/v1/external", func(r chi.Router) {
		r.Post("/interact", s.handleInteract)
		r.Get("/events", s.handleEvents)
		r.Post("/query", s.handleQuery)
		r.Get("/config", s.handleExternalConfig)
	})

	r.Get("/ws/events", s.handleEventStream)

	fileServer := http.StripPrefix("/cache/", http.FileServer(http.Dir(s.cfg.General.CacheDir)))
	r.Get("/cache/*", fileServer.ServeHTTP)

	return r
}

func (s *server) handleBriefing(w http.ResponseWriter, r *http.Request) {
	regenerate := r.URL.Query().Get("regenerate") == "true" && !s.cfg.General.TestMode
	snap := s.aggregator.Collect(r.Context())
	result := s.manager.GetBriefing(r.Context(), snap, regenerate)
	respondJSON(w, http.StatusOK, result)
}

func (s *server) handleWidgetBriefing(w http.ResponseWriter, r *http.Request) {
	widgetType := chi.URLParam(r, "type")
	snap := s.aggregator.Collect(r.Context())

	var widgetData any
	switch widgetType {
	case "weather":
		widgetData = snap.Weather
	case "finance":
		widgetData = snap.Finance
	case "news":
		widgetData = snap.News
	case "calendar":
		widgetData = snap.Calendar
	}
	if widgetData == nil {
		respondError(w, http.StatusNotFound, "no data for "+widgetType)
		return
	}

	result := s.manager.GetWidgetBriefing(r.Context(), widgetType, widgetData)
	respondJSON(w, http.StatusOK, result)
}

func (s *server) handleProactiveCheck(w http.ResponseWriter, r *http.Request) {
	snap := s.aggregator.Collect(r.Context())
	result := s.evaluator.Evaluate(r.Context(), snap)
	respondJSON(w, http.StatusOK, result)
}

func (s *server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Command) == "" {
		respondError(w, http.StatusBadRequest, "no command provided")
		return
	}

	snap := s.aggregator.Collect(r.Context())
	result := s.manager.ProcessCommand(r.Context(), req.Command, snap)
	respondJSON(w, http.StatusOK, result)
}

func (s *server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "no text provided")
		return
	}

	audioURL, err := s.synth.SpeakCached(r.Context(), req.Text, "tts")
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "success", "audio_url": audioURL})
}

func (s *server) handleInteract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string                 `json:"command"`
		Payload events.InteractPayload `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	eventID, err := s.bus.Interact(r.Context(), r.Header.Get(apiKeyHeader), req.Command, req.Payload)
	if err != nil {
		s.writeBusError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "success", "event_id": eventID})
}

func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "success", "events": s.bus.Events()})
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	result, err := s.bus.Query(r.Context(), r.Header.Get(apiKeyHeader), req.Prompt)
	if err != nil {
		s.writeBusError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"answer":   result.Answer,
		"briefing": result.Briefing,
		"model":    result.Model,
		"event_id": result.EventID,
	})
}

// handleExternalConfig reports the caller's backend configuration without
// exposing any credentials.
func (s *server) handleExternalConfig(w http.ResponseWriter, r *http.Request) {
	source, ok := s.bus.Authenticate(r.Header.Get(apiKeyHeader))
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	src, found := s.cfg.Sources[source]
	if !found {
		respondJSON(w, http.StatusOK, map[string]any{"status": "success", "source": source, "configured": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"source":     source,
		"configured": true,
		"name":       src.Name,
		"model":      src.Model,
		"api_type":   src.APIType,
		"active":     src.Active,
		"mock":       src.Mock,
	})
}

// handleEventStream pushes newly enqueued bus events over a websocket as an
// alternative to polling /api/v1/external/events.
func (s *server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch, cancel := s.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}

func (s *server) writeBusError(w http.ResponseWriter, err error) {
	var validationErr *events.ValidationError
	switch {
	case errors.Is(err, events.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.As(err, &validationErr):
		respondError(w, http.StatusBadRequest, validationErr.Message)
	case errors.Is(err, inference.ErrSourceNotFound), errors.Is(err, inference.ErrUnauthorizedSource):
		respondError(w, http.StatusForbidden, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"status": "error", "message": msg})
}
