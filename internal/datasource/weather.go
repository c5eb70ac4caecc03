package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const openWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

// OpenWeatherClient fetches current conditions from OpenWeatherMap.
type OpenWeatherClient struct {
	baseURL string
	apiKey  string
	city    string
	client  *http.Client
	logger  zerolog.Logger
}

// NewOpenWeatherClient creates a weather provider for one city.
func NewOpenWeatherClient(apiKey, city string, timeout time.Duration, logger zerolog.Logger) *OpenWeatherClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OpenWeatherClient{
		baseURL: openWeatherURL,
		apiKey:  apiKey,
		city:    city,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("provider", "openweather").Logger(),
	}
}

// CurrentWeather returns current weather conditions.
func (c *OpenWeatherClient) CurrentWeather(ctx context.Context) (*Weather, error) {
	q := url.Values{}
	q.Set("q", c.city)
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch weather: %w", err)
	}
	defer resp.Body.Close()

	var data struct {
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Main string `json:"main"`
			Icon string `json:"icon"`
		} `json:"weather"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode weather: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API error (%d): %s", resp.StatusCode, data.Message)
	}
	if len(data.Weather) == 0 {
		return nil, fmt.Errorf("weather API returned no conditions")
	}

	condition := strings.ToUpper(data.Weather[0].Main)
	status := "SUNNY"
	switch {
	case strings.Contains(condition, "RAIN") || strings.Contains(condition, "DRIZZLE"):
		status = "RAINY"
	case strings.Contains(condition, "CLOUD"):
		status = "CLOUDY"
	case strings.Contains(condition, "THUNDER"):
		status = "STORM"
	case strings.Contains(condition, "CLEAR"):
		status = "SUNNY"
	}

	return &Weather{
		Status:       status,
		Temp:         fmt.Sprintf("%.1f°C", data.Main.Temp),
		City:         c.city,
		Icon:         data.Weather[0].Icon,
		ConditionRaw: condition,
	}, nil
}
