// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Queue    QueueConfig             `yaml:"queue"`
	Download DownloadConfig          `yaml:"download"`
	Dispatch DispatchConfig          `yaml:"dispatch"`
	Store    StoreConfig             `yaml:"store"`
	Spotify  SpotifyConfig           `yaml:"spotify"`
	LastFM   LastFMConfig            `yaml:"lastfm"`
	Watch    WatchConfig             `yaml:"watch"`
	Metrics  MetricsConfig           `yaml:"metrics"`
	Filters  map[string]FilterConfig `yaml:"filters"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr               string      `yaml:"addr" default:":8080"`
	ShutdownTimeoutSec int         `yaml:"shutdown_timeout_sec" default:"10" validate:"gte=1,lte=300"`
	Hooks              HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// QueueConfig represents download queue limits.
type QueueConfig struct {
	ConcurrencyLimit int `yaml:"concurrency_limit" default:"3" validate:"gte=1,lte=10"`
	MaxItems         int `yaml:"max_items" default:"100" validate:"gte=1,lte=10000"`
}

// DownloadConfig represents the persisted download preferences.
type DownloadConfig struct {
	Path    string `yaml:"path" default:"downloads" validate:"required"`
	Quality string `yaml:"quality" default:"high" validate:"oneof=low medium high lossless"`
	Format  string `yaml:"format" default:"mp3" validate:"oneof=mp3 flac ogg"`
}

// DispatchConfig selects and configures the download executor.
type DispatchConfig struct {
	Backend   string          `yaml:"backend" default:"ytdlp" validate:"oneof=ytdlp simulated"`
	YtDlp     YtDlpConfig     `yaml:"ytdlp"`
	Simulated SimulatedConfig `yaml:"simulated"`
}

// YtDlpConfig represents yt-dlp executor configuration.
type YtDlpConfig struct {
	OutputTemplate     string `yaml:"output_template" default:"%(artist)s/%(title)s.%(ext)s" validate:"required"`
	ProgressIntervalMs int    `yaml:"progress_interval_ms" default:"500" validate:"gte=100,lte=10000"`
	AutoInstall        bool   `yaml:"auto_install"`
}

// SimulatedConfig represents the simulated executor configuration.
type SimulatedConfig struct {
	StepMs int `yaml:"step_ms" default:"250" validate:"gte=1,lte=60000"`
	Steps  int `yaml:"steps" default:"10" validate:"gte=1,lte=1000"`
}

// StoreConfig represents persistence configuration.
type StoreConfig struct {
	Path string `yaml:"path" default:"data/tunedl.db" validate:"required"`
}

// SpotifyConfig represents Spotify API configuration.
// Search and watch are disabled when no credentials are configured.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required_with=ClientSecret RefreshToken"`
	ClientSecret string `yaml:"client_secret" validate:"required_with=ClientID RefreshToken"`
	RefreshToken string `yaml:"refresh_token" validate:"required_with=ClientID ClientSecret"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// Enabled reports whether Spotify credentials are configured.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != "" && s.RefreshToken != ""
}

// LastFMConfig represents Last.fm API configuration.
type LastFMConfig struct {
	APIKey      string `yaml:"api_key"`
	CacheTTLMin int    `yaml:"cache_ttl_min" default:"60" validate:"gte=1"`
}

// Enabled reports whether a Last.fm API key is configured.
func (l LastFMConfig) Enabled() bool {
	return l.APIKey != ""
}

// WatchConfig represents the watch list poller configuration.
type WatchConfig struct {
	Enabled     bool `yaml:"enabled"`
	IntervalSec int  `yaml:"interval_sec" default:"3600" validate:"gte=60"`
}

// Interval returns the polling interval.
func (w WatchConfig) Interval() time.Duration {
	return time.Duration(w.IntervalSec) * time.Second
}

// MetricsConfig represents Prometheus endpoint configuration.
type MetricsConfig struct {
	Disabled bool   `yaml:"disabled"`
	Path     string `yaml:"path" default:"/metrics" validate:"startswith=/"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, applies environment overrides and defaults, and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		c.LastFM.APIKey = v
	}
	if v := os.Getenv("TUNEDL_DOWNLOAD_PATH"); v != "" {
		c.Download.Path = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Watch.Enabled && !c.Spotify.Enabled() {
		return errors.New("watch requires spotify credentials")
	}

	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}
