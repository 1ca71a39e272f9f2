// Package config loads kiosk settings from the environment and an optional config.yaml.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"bin-kiosk/datewindow"
	"bin-kiosk/selector"
)

// Kind names an upstream source variant.
type Kind string

// Source kinds.
const (
	KindNone     Kind = ""
	KindCalendar Kind = "calendar"
	KindScrape   Kind = "scrape"
)

// Config holds all configuration values.
type Config struct {
	Source      string `mapstructure:"BIN_SOURCE"`
	CalendarID  string `mapstructure:"BIN_CALENDAR_ID"`
	CalendarURL string `mapstructure:"BIN_CALENDAR_URL"` // Template with %s for the calendar id
	Council     string `mapstructure:"BIN_COUNCIL"`
	UPRN        string `mapstructure:"BIN_UPRN"`
	ScrapeURL   string `mapstructure:"BIN_SCRAPE_URL"` // Template with %s for the council

	CacheSeconds        int    `mapstructure:"BIN_CACHE_SECONDS"`
	Timezone            string `mapstructure:"TIMEZONE"`
	FetchTimeoutSeconds int    `mapstructure:"FETCH_TIMEOUT_SECONDS"`
	RefreshSeconds      int    `mapstructure:"REFRESH_INTERVAL_SECONDS"` // 0 disables the in-process scheduler

	// Cache backends, in order of preference: Redis, GCS, local directory.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	StorageBucket string `mapstructure:"STORAGE_BUCKET"`
	LocalStorage  string `mapstructure:"LOCAL_STORAGE"`

	// Optional service account key for Cloud Storage; ADC is used otherwise.
	GoogleCredentialsJSON string `mapstructure:"GOOGLE_CREDENTIALS_JSON"`

	Port     string `mapstructure:"PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Optional fortnightly fallback.
	EstimateWeekday string `mapstructure:"BIN_ESTIMATE_WEEKDAY"`
	EstimateAnchor  string `mapstructure:"BIN_ESTIMATE_ANCHOR"`
}

var defaults = map[string]any{
	"BIN_SOURCE":               "",
	"BIN_CALENDAR_ID":          "",
	"BIN_CALENDAR_URL":         "",
	"BIN_COUNCIL":              "SOUTH",
	"BIN_UPRN":                 "",
	"BIN_SCRAPE_URL":           "",
	"BIN_CACHE_SECONDS":        86400,
	"TIMEZONE":                 "Europe/London",
	"FETCH_TIMEOUT_SECONDS":    15,
	"REFRESH_INTERVAL_SECONDS": 0,
	"REDIS_ADDR":               "",
	"REDIS_PASSWORD":           "",
	"REDIS_DB":                 0,
	"STORAGE_BUCKET":           "",
	"LOCAL_STORAGE":            "./data",
	"GOOGLE_CREDENTIALS_JSON":  "",
	"PORT":                     "8080",
	"LOG_LEVEL":                "info",
	"BIN_ESTIMATE_WEEKDAY":     "",
	"BIN_ESTIMATE_ANCHOR":      "",
}

// Load reads configuration from environment variables and, when present, a
// config.yaml in dir (or "." and "./config" when dir is empty).
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.AutomaticEnv()

	// Unmarshal only sees env vars for keys viper already knows about.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.trim()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) trim() {
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
	c.CalendarID = strings.TrimSpace(c.CalendarID)
	c.Council = strings.TrimSpace(c.Council)
	c.UPRN = strings.TrimSpace(c.UPRN)
	c.EstimateWeekday = strings.TrimSpace(c.EstimateWeekday)
	c.EstimateAnchor = strings.TrimSpace(c.EstimateAnchor)
}

// Validate checks values that cannot be repaired with a default.
func (c *Config) Validate() error {
	switch Kind(c.Source) {
	case KindNone, KindCalendar, KindScrape:
	default:
		return fmt.Errorf("BIN_SOURCE must be %q or %q, got %q", KindCalendar, KindScrape, c.Source)
	}
	if c.CacheSeconds <= 0 {
		return fmt.Errorf("BIN_CACHE_SECONDS must be positive, got %d", c.CacheSeconds)
	}
	if c.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT_SECONDS must be positive, got %d", c.FetchTimeoutSeconds)
	}
	if c.RefreshSeconds < 0 {
		return fmt.Errorf("REFRESH_INTERVAL_SECONDS must not be negative, got %d", c.RefreshSeconds)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}
	if _, err := c.Estimator(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

// SourceKind resolves which adapter to build. An explicit BIN_SOURCE without
// its identifier, or no identifiers at all, yields KindNone.
func (c *Config) SourceKind() Kind {
	switch Kind(c.Source) {
	case KindCalendar:
		if c.CalendarID == "" {
			return KindNone
		}
		return KindCalendar
	case KindScrape:
		if c.UPRN == "" || c.Council == "" {
			return KindNone
		}
		return KindScrape
	}

	switch {
	case c.UPRN != "" && c.Council != "":
		return KindScrape
	case c.CalendarID != "":
		return KindCalendar
	default:
		return KindNone
	}
}

// CacheWindow returns the cache freshness window.
func (c *Config) CacheWindow() time.Duration {
	return time.Duration(c.CacheSeconds) * time.Second
}

// FetchTimeout returns the per-request upstream timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// RefreshInterval returns the in-process refresh period; zero means disabled.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshSeconds) * time.Second
}

// Estimator returns the configured week-parity estimator, or nil when disabled.
func (c *Config) Estimator() (*selector.Estimator, error) {
	if c.EstimateWeekday == "" && c.EstimateAnchor == "" {
		return nil, nil
	}
	if c.EstimateWeekday == "" || c.EstimateAnchor == "" {
		return nil, errors.New("BIN_ESTIMATE_WEEKDAY and BIN_ESTIMATE_ANCHOR must be set together")
	}

	wd, err := parseWeekday(c.EstimateWeekday)
	if err != nil {
		return nil, err
	}
	anchor, err := datewindow.ParseMachine(c.EstimateAnchor)
	if err != nil {
		return nil, fmt.Errorf("BIN_ESTIMATE_ANCHOR: %w", err)
	}
	if anchor.Weekday() != wd {
		return nil, fmt.Errorf("BIN_ESTIMATE_ANCHOR %s is a %s, not a %s", anchor, anchor.Weekday(), wd)
	}
	return &selector.Estimator{Weekday: wd, Anchor: anchor}, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	lower := strings.ToLower(s)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := strings.ToLower(wd.String())
		if lower == name || lower == name[:3] {
			return wd, nil
		}
	}
	return time.Sunday, fmt.Errorf("BIN_ESTIMATE_WEEKDAY: unknown weekday %q", s)
}
