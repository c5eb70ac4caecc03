// AegisDash - situational briefing daemon for the AEGIS avatar dashboard.
package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/normanking/aegisdash/internal/briefing"
	"github.com/normanking/aegisdash/internal/config"
	"github.com/normanking/aegisdash/internal/datasource"
	"github.com/normanking/aegisdash/internal/events"
	"github.com/normanking/aegisdash/internal/inference"
	"github.com/normanking/aegisdash/internal/logging"
	"github.com/normanking/aegisdash/internal/proactive"
	"github.com/normanking/aegisdash/internal/prompt"
	"github.com/normanking/aegisdash/internal/tts"
)

func main() {
	logger, err := logging.New(nil)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logger.Close()
	zlog := logger.Zerolog()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	resolver, err := prompt.NewResolver(cfg.General.PromptsPath, logger.Zerolog())
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load prompt templates")
	}
	if err := resolver.Watch(); err != nil {
		zlog.Warn().Err(err).Msg("Prompt hot-reload unavailable")
	}
	defer resolver.Close()

	lang := cfg.General.Language
	cacheDir := cfg.General.CacheDir

	// Data sources. Calendar and email providers plug in here once their
	// credentials plumbing lands; the aggregator degrades without them.
	var weather datasource.WeatherProvider
	if cfg.Weather.APIKey != "" {
		weather = datasource.NewOpenWeatherClient(cfg.Weather.APIKey, cfg.Weather.City, cfg.Weather.Timeout, logger.Zerolog())
	}
	var finance datasource.FinanceProvider
	if cfg.Finance.QuoteURL != "" {
		finance = datasource.NewMarketClient(cfg.Finance.QuoteURL, cfg.Finance.Tickers, cfg.Finance.Timeout, logger.Zerolog())
	}
	var news datasource.NewsProvider
	if len(cfg.News.Feeds) > 0 {
		news = datasource.NewRSSClient(cfg.News.Feeds, cfg.News.MaxItems, cfg.News.Timeout, logger.Zerolog())
	}
	aggregator := datasource.NewAggregator(weather, finance, news, nil, nil, logger.Zerolog())

	// Generative engine for internal briefings plus the source-keyed
	// dispatcher for external hub queries.
	briefingSource, ok := cfg.Sources[cfg.General.BriefingSource]
	if !ok {
		zlog.Fatal().Str("source", cfg.General.BriefingSource).Msg("Briefing source not configured")
	}
	engine := inference.NewEngine(briefingSource, cfg.Server.RequestTimeout, logger.Zerolog())
	dispatcher := inference.NewDispatcher(cfg.Sources, cfg.Server.RequestTimeout, logger.Zerolog())

	provider := tts.NewHTTPProvider(cfg.Voice.EngineURL, cfg.Voice.Timeout, logger.Zerolog())
	synth := tts.NewSynthesizer(provider, cfg.VoiceProfileFor(lang), filepath.Join(cacheDir, "tts_cache"), "/cache/tts_cache", logger.Zerolog())

	manager := briefing.NewManager(resolver, engine, synth, lang, cacheDir, "/cache", logger.Zerolog())
	evaluator := proactive.NewEvaluator(cfg.Proactive, resolver, engine, synth, lang, cacheDir, "/cache", logger.Zerolog())
	bus := events.NewBus(cfg.External.APIKeys, synth, dispatcher, resolver, lang, logger.Zerolog())

	srv := newServer(cfg, aggregator, manager, evaluator, bus, synth, logger.Zerolog())

	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.routes(),
	}

	go func() {
		zlog.Info().Str("addr", cfg.Server.Addr).Msg("AegisDash listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	zlog.Info().Msg("Shutting down")
	httpSrv.Close()
}
