package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type stubWeather struct {
	weather *Weather
	err     error
}

func (s stubWeather) CurrentWeather(ctx context.Context) (*Weather, error) {
	return s.weather, s.err
}

type stubFinance struct {
	indices map[string]Index
	err     error
}

func (s stubFinance) MarketIndices(ctx context.Context) (map[string]Index, error) {
	return s.indices, s.err
}

type stubCalendar struct {
	events []CalendarEvent
	err    error
}

func (s stubCalendar) TodayEvents(ctx context.Context) ([]CalendarEvent, error) {
	return s.events, s.err
}

func TestAggregator_FailingSourceDegradesField(t *testing.T) {
	agg := NewAggregator(
		stubWeather{err: errors.New("weather API down")},
		stubFinance{indices: map[string]Index{"KOSPI": {ChangePctRaw: 0.4}}},
		nil,
		stubCalendar{events: []CalendarEvent{{Summary: "standup", Start: "2026-09-01T09:30:00+09:00"}}},
		nil,
		zerolog.Nop(),
	)

	snap := agg.Collect(context.Background())

	if snap.Weather != nil {
		t.Error("expected weather field absent after source failure")
	}
	if len(snap.Finance) != 1 {
		t.Errorf("expected finance to survive weather failure, got %+v", snap.Finance)
	}
	if len(snap.Calendar) != 1 {
		t.Errorf("expected calendar to survive weather failure, got %+v", snap.Calendar)
	}
	if snap.Emails == nil {
		t.Error("expected emails to default to empty slice, not nil")
	}
}

func TestAggregator_AllNilProviders(t *testing.T) {
	agg := NewAggregator(nil, nil, nil, nil, nil, zerolog.Nop())

	snap := agg.Collect(context.Background())

	if snap.Weather != nil || snap.Finance != nil || snap.News != nil {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}

func TestOpenWeatherClient_MapsConditions(t *testing.T) {
	tests := []struct {
		condition string
		want      string
	}{
		{"Rain", "RAINY"},
		{"Drizzle", "RAINY"},
		{"Clouds", "CLOUDY"},
		{"Thunderstorm", "STORM"},
		{"Clear", "SUNNY"},
		{"Haze", "SUNNY"},
	}

	for _, tt := range tests {
		t.Run(tt.condition, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("units") != "metric" {
					t.Errorf("expected metric units, got %q", r.URL.Query().Get("units"))
				}
				json.NewEncoder(w).Encode(map[string]any{
					"main":    map[string]float64{"temp": 21.37},
					"weather": []map[string]string{{"main": tt.condition, "icon": "01d"}},
				})
			}))
			defer srv.Close()

			c := NewOpenWeatherClient("key", "Seoul", time.Second, zerolog.Nop())
			c.baseURL = srv.URL

			w, err := c.CurrentWeather(context.Background())
			if err != nil {
				t.Fatalf("CurrentWeather: %v", err)
			}
			if w.Status != tt.want {
				t.Errorf("expected status %q for %q, got %q", tt.want, tt.condition, w.Status)
			}
			if w.Temp != "21.4°C" {
				t.Errorf("expected rounded temp, got %q", w.Temp)
			}
		})
	}
}

func TestOpenWeatherClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "Invalid API key"})
	}))
	defer srv.Close()

	c := NewOpenWeatherClient("bad", "Seoul", time.Second, zerolog.Nop())
	c.baseURL = srv.URL

	if _, err := c.CurrentWeather(context.Background()); err == nil {
		t.Error("expected error for non-200 response")
	}
}

func TestMarketClient_ComputesChange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbol") {
		case "^KS11":
			json.NewEncoder(w).Encode(map[string]float64{"last_price": 2550.0, "previous_close": 2500.0})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewMarketClient(srv.URL, map[string]string{"KOSPI": "^KS11", "BROKEN": "^NOPE"}, time.Second, zerolog.Nop())

	indices, err := c.MarketIndices(context.Background())
	if err != nil {
		t.Fatalf("MarketIndices: %v", err)
	}

	idx, ok := indices["KOSPI"]
	if !ok {
		t.Fatalf("expected KOSPI index, got %+v", indices)
	}
	if idx.ChangePctRaw != 2.0 {
		t.Errorf("expected +2.00%% raw change, got %v", idx.ChangePctRaw)
	}
	if idx.Price != "2,550.00" {
		t.Errorf("expected formatted price, got %q", idx.Price)
	}
	if idx.Direction != "up" {
		t.Errorf("expected up direction, got %q", idx.Direction)
	}
	if _, ok := indices["BROKEN"]; ok {
		t.Error("expected broken ticker to be skipped")
	}
}

func TestRSSClient_MergesAndSorts(t *testing.T) {
	feedA := `<?xml version="1.0"?><rss><channel>
		<item><title>Old &lt;b&gt;story&lt;/b&gt;</title><link>http://a/1</link><description>body</description><pubDate>Mon, 01 Sep 2025 08:00:00 +0900</pubDate></item>
	</channel></rss>`
	feedB := `<?xml version="1.0"?><rss><channel>
		<item><title>Fresh story</title><link>http://b/1</link><description>&lt;p&gt;rich&lt;/p&gt; body</description><pubDate>Mon, 01 Sep 2025 10:00:00 +0900</pubDate></item>
	</channel></rss>`

	srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(feedA)) }))
	defer srvA.Close()
	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(feedB)) }))
	defer srvB.Close()

	c := NewRSSClient(map[string]string{"a": srvA.URL, "b": srvB.URL}, 5, time.Second, zerolog.Nop())

	items, err := c.LatestNews(context.Background())
	if err != nil {
		t.Fatalf("LatestNews: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Title != "Fresh story" {
		t.Errorf("expected newest first, got %q", items[0].Title)
	}
	if items[1].Title != "Old story" {
		t.Errorf("expected HTML stripped from title, got %q", items[1].Title)
	}
	if items[0].Summary != "rich body" {
		t.Errorf("expected HTML stripped from summary, got %q", items[0].Summary)
	}
}

func TestRSSClient_FailedFeedSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewRSSClient(map[string]string{"down": srv.URL}, 5, time.Second, zerolog.Nop())

	items, err := c.LatestNews(context.Background())
	if err != nil {
		t.Fatalf("LatestNews: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items from failing feed, got %d", len(items))
	}
}
