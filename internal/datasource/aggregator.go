package datasource

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Aggregator fans out to all configured providers and assembles a Snapshot.
// It holds no cache of its own; caching lives one layer up.
type Aggregator struct {
	weather  WeatherProvider
	finance  FinanceProvider
	news     NewsProvider
	calendar CalendarProvider
	email    EmailProvider
	logger   zerolog.Logger
}

// NewAggregator creates an aggregator. Any provider may be nil; its field
// is simply omitted from snapshots.
func NewAggregator(weather WeatherProvider, finance FinanceProvider, news NewsProvider, calendar CalendarProvider, email EmailProvider, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		weather:  weather,
		finance:  finance,
		news:     news,
		calendar: calendar,
		email:    email,
		logger:   logger.With().Str("component", "aggregator").Logger(),
	}
}

// Collect gathers all sources concurrently. Per-source failures are logged
// and degrade that field to absent; Collect itself never fails.
func (a *Aggregator) Collect(ctx context.Context) *Snapshot {
	snap := &Snapshot{
		Calendar: []CalendarEvent{},
		Emails:   []Email{},
	}

	var wg sync.WaitGroup

	if a.weather != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := a.weather.CurrentWeather(ctx)
			if err != nil {
				a.logger.Warn().Err(err).Msg("Weather source unavailable")
				return
			}
			snap.Weather = w
		}()
	}

	if a.finance != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			indices, err := a.finance.MarketIndices(ctx)
			if err != nil {
				a.logger.Warn().Err(err).Msg("Finance source unavailable")
				return
			}
			snap.Finance = indices
		}()
	}

	if a.news != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, err := a.news.LatestNews(ctx)
			if err != nil {
				a.logger.Warn().Err(err).Msg("News source unavailable")
				return
			}
			snap.News = items
		}()
	}

	if a.calendar != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events, err := a.calendar.TodayEvents(ctx)
			if err != nil {
				a.logger.Warn().Err(err).Msg("Calendar source unavailable")
				return
			}
			snap.Calendar = events
		}()
	}

	if a.email != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			emails, err := a.email.RecentEmails(ctx)
			if err != nil {
				a.logger.Warn().Err(err).Msg("Email source unavailable")
				return
			}
			snap.Emails = emails
		}()
	}

	wg.Wait()
	return snap
}
