// Package config provides configuration management for AegisDash
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	General   GeneralConfig           `mapstructure:"general"`
	Weather   WeatherConfig           `mapstructure:"weather"`
	Finance   FinanceConfig           `mapstructure:"finance"`
	News      NewsConfig              `mapstructure:"news"`
	Voice     VoiceConfig             `mapstructure:"voice"`
	Proactive ProactiveConfig         `mapstructure:"proactive"`
	Sources   map[string]SourceConfig `mapstructure:"sources"`
	External  ExternalConfig          `mapstructure:"external"`
	Server    ServerConfig            `mapstructure:"server"`
}

// GeneralConfig holds cross-cutting settings
type GeneralConfig struct {
	Language       string `mapstructure:"language"`        // e.g. "ko", "en"
	PromptsPath    string `mapstructure:"prompts_path"`    // localized prompt templates (JSON)
	CacheDir       string `mapstructure:"cache_dir"`       // briefing text/audio cache root
	BriefingSource string `mapstructure:"briefing_source"` // source key used for internal briefings
	TestMode       bool   `mapstructure:"test_mode"`       // prefer cached briefings, skip live generation
}

// WeatherConfig configures the weather provider
type WeatherConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	City    string        `mapstructure:"city"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// FinanceConfig configures the market data provider
type FinanceConfig struct {
	QuoteURL string            `mapstructure:"quote_url"`
	Tickers  map[string]string `mapstructure:"tickers"` // display name -> symbol
	Timeout  time.Duration     `mapstructure:"timeout"`
}

// NewsConfig configures the RSS news provider
type NewsConfig struct {
	Feeds    map[string]string `mapstructure:"feeds"` // provider name -> RSS URL
	MaxItems int               `mapstructure:"max_items"`
	Timeout  time.Duration     `mapstructure:"timeout"`
}

// VoiceConfig configures speech synthesis
type VoiceConfig struct {
	EngineURL string                  `mapstructure:"engine_url"` // TTS sidecar endpoint
	Timeout   time.Duration           `mapstructure:"timeout"`
	Profiles  map[string]VoiceProfile `mapstructure:"profiles"` // keyed by language
}

// VoiceProfile holds per-language voice parameters
type VoiceProfile struct {
	VoiceID string `mapstructure:"voice_id"`
	Pitch   string `mapstructure:"pitch"`
	Rate    string `mapstructure:"rate"`
	Volume  string `mapstructure:"volume"`
}

// ProactiveConfig configures the proactive alert evaluator
type ProactiveConfig struct {
	FinanceChangeAbs    float64       `mapstructure:"finance_change_abs"`
	CalendarLeadTimeMin int           `mapstructure:"calendar_lead_time_min"`
	SuppressWindow      time.Duration `mapstructure:"suppress_window"`
}

// SourceConfig describes one pluggable generative-engine backend
type SourceConfig struct {
	Name    string `mapstructure:"name"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	APIType string `mapstructure:"api_type"` // "ollama" or "openai"
	APIKey  string `mapstructure:"api_key"`
	Active  bool   `mapstructure:"active"`
	Mock    bool   `mapstructure:"mock"`
}

// ExternalConfig configures the external event bus
type ExternalConfig struct {
	APIKeys map[string]string `mapstructure:"api_keys"` // source name -> key
}

// ServerConfig configures the HTTP facade
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			Language:       "ko",
			PromptsPath:    filepath.Join(home, ".aegisdash", "prompts.json"),
			CacheDir:       filepath.Join(home, ".aegisdash", "cache"),
			BriefingSource: "ollama",
			TestMode:       false,
		},
		Weather: WeatherConfig{
			City:    "Seoul",
			Timeout: 5 * time.Second,
		},
		Finance: FinanceConfig{
			Tickers: map[string]string{},
			Timeout: 10 * time.Second,
		},
		News: NewsConfig{
			Feeds:    map[string]string{},
			MaxItems: 5,
			Timeout:  10 * time.Second,
		},
		Voice: VoiceConfig{
			EngineURL: "http://localhost:5002/synthesize",
			Timeout:   30 * time.Second,
			Profiles: map[string]VoiceProfile{
				"ko": {VoiceID: "ko-KR-SunHiNeural", Pitch: "+20Hz", Rate: "+10%", Volume: "+0%"},
				"en": {VoiceID: "en-US-AriaNeural", Pitch: "+0Hz", Rate: "+0%", Volume: "+0%"},
			},
		},
		Proactive: ProactiveConfig{
			FinanceChangeAbs:    1.5,
			CalendarLeadTimeMin: 15,
			SuppressWindow:      time.Hour,
		},
		Sources: map[string]SourceConfig{
			"ollama": {
				Name:    "Local Ollama",
				BaseURL: "http://localhost:11434/api/generate",
				Model:   "llama3",
				APIType: "ollama",
				Active:  true,
			},
		},
		External: ExternalConfig{
			APIKeys: map[string]string{},
		},
		Server: ServerConfig{
			Addr:           ":8715",
			RequestTimeout: 120 * time.Second,
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	configDir := filepath.Join(homeDir, ".aegisdash")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("AEGISDASH")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(homeDir, ".aegisdash")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("general", cfg.General)
	viper.Set("weather", cfg.Weather)
	viper.Set("finance", cfg.Finance)
	viper.Set("news", cfg.News)
	viper.Set("voice", cfg.Voice)
	viper.Set("proactive", cfg.Proactive)
	viper.Set("sources", cfg.Sources)
	viper.Set("external", cfg.External)
	viper.Set("server", cfg.Server)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// VoiceProfileFor returns the voice profile for a language, with defaults
// when no profile is configured.
func (c *Config) VoiceProfileFor(language string) VoiceProfile {
	if p, ok := c.Voice.Profiles[language]; ok {
		return p
	}
	return VoiceProfile{VoiceID: "ko-KR-SunHiNeural", Pitch: "+20Hz", Rate: "+10%", Volume: "+0%"}
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".aegisdash"), nil
}
