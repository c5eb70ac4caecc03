// Package datasource collects the heterogeneous context snapshots the
// briefing pipeline runs on: weather, market indices, news, calendar and
// email. Each source is an independent collaborator; a failing source
// degrades to an absent field, never an overall failure.
package datasource

import "context"

// Weather is a point-in-time weather reading.
type Weather struct {
	Status       string `json:"status"` // SUNNY, RAINY, CLOUDY, STORM, UNKNOWN
	Temp         string `json:"temp"`
	City         string `json:"city"`
	Icon         string `json:"icon,omitempty"`
	ConditionRaw string `json:"condition_raw,omitempty"`
}

// Index is one tracked market index.
type Index struct {
	Price        string  `json:"price"`
	Change       string  `json:"change"`
	ChangePct    string  `json:"change_pct"`
	ChangePctRaw float64 `json:"change_pct_raw"`
	Direction    string  `json:"direction"` // up or down
}

// NewsItem is one aggregated news headline.
type NewsItem struct {
	Provider  string `json:"provider"`
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	Link      string `json:"link"`
	Published string `json:"published"`
	Timestamp int64  `json:"timestamp"`
}

// CalendarEvent is one calendar entry. Start is an RFC 3339 timestamp for
// timed events or a bare date for all-day events.
type CalendarEvent struct {
	Summary  string `json:"summary"`
	Start    string `json:"start"`
	IsAllDay bool   `json:"is_all_day"`
	Location string `json:"location,omitempty"`
}

// Email is one recent inbox entry.
type Email struct {
	From     string `json:"from"`
	Subject  string `json:"subject"`
	Snippet  string `json:"snippet,omitempty"`
	Received string `json:"received,omitempty"`
}

// Snapshot is a point-in-time aggregate of all sources. Any field may be
// absent when its source failed. Immutable once returned.
type Snapshot struct {
	Weather  *Weather         `json:"weather,omitempty"`
	Finance  map[string]Index `json:"finance,omitempty"`
	News     []NewsItem       `json:"news,omitempty"`
	Calendar []CalendarEvent  `json:"calendar"`
	Emails   []Email          `json:"emails"`
}

// WeatherProvider returns current weather conditions.
type WeatherProvider interface {
	CurrentWeather(ctx context.Context) (*Weather, error)
}

// FinanceProvider returns tracked market indices.
type FinanceProvider interface {
	MarketIndices(ctx context.Context) (map[string]Index, error)
}

// NewsProvider returns recent headlines.
type NewsProvider interface {
	LatestNews(ctx context.Context) ([]NewsItem, error)
}

// CalendarProvider returns today's calendar events.
type CalendarProvider interface {
	TodayEvents(ctx context.Context) ([]CalendarEvent, error)
}

// EmailProvider returns recent inbox entries.
type EmailProvider interface {
	RecentEmails(ctx context.Context) ([]Email, error)
}
