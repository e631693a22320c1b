package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TrafficOrder controls how the traffic chart's minute labels are sorted.
// - lexical (default): plain string sort, so "10:00" precedes "9:05"
// - chronological: by minute of day
type TrafficOrder string

const (
	TrafficLexical       TrafficOrder = "lexical"
	TrafficChronological TrafficOrder = "chronological"
)

// Config contains all runtime configuration for the dashboard.
type Config struct {
	// Core
	ListenAddr string
	BackendURL string
	LogLevel   string
	ConfigFile string

	// Refresh cycle
	RefreshInterval time.Duration
	LogLimit        int
	DefaultRange    time.Duration
	FetchTimeout    time.Duration
	StaleGuard      bool
	TrafficOrder    TrafficOrder
	Timezone        string
	HistorySize     int

	// HTTP
	CORSAllowOrigin string
}

// fileConfig is the optional YAML file. Unset keys keep their defaults.
type fileConfig struct {
	ListenAddr      *string        `yaml:"listen_addr"`
	BackendURL      *string        `yaml:"backend_url"`
	LogLevel        *string        `yaml:"log_level"`
	RefreshInterval *time.Duration `yaml:"refresh_interval"`
	LogLimit        *int           `yaml:"log_limit"`
	DefaultRange    *time.Duration `yaml:"default_range"`
	FetchTimeout    *time.Duration `yaml:"fetch_timeout"`
	StaleGuard      *bool          `yaml:"stale_guard"`
	TrafficOrder    *string        `yaml:"traffic_order"`
	Timezone        *string        `yaml:"timezone"`
	HistorySize     *int           `yaml:"history_size"`
	CORSAllowOrigin *string        `yaml:"cors_allow_origin"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		ListenAddr:      ":8090",
		BackendURL:      "http://127.0.0.1:5000",
		LogLevel:        "info",
		RefreshInterval: 5 * time.Second,
		LogLimit:        20,
		DefaultRange:    24 * time.Hour,
		FetchTimeout:    0,
		StaleGuard:      true,
		TrafficOrder:    TrafficLexical,
		Timezone:        "Local",
		HistorySize:     100,
		CORSAllowOrigin: "*",
	}
}

// Load reads .env (if present), then CONFIG_FILE (if set), then environment
// variables, and returns a validated Config. Later sources win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	cfg.ConfigFile = getEnvString("CONFIG_FILE", "")
	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			return Config{}, err
		}
	}

	cfg.ListenAddr = getEnvString("LISTEN_ADDR", cfg.ListenAddr)
	cfg.BackendURL = getEnvString("BACKEND_URL", cfg.BackendURL)
	cfg.LogLevel = getEnvString("LOG_LEVEL", cfg.LogLevel)
	cfg.RefreshInterval = getEnvDuration("REFRESH_INTERVAL", cfg.RefreshInterval)
	cfg.LogLimit = getEnvInt("LOG_LIMIT", cfg.LogLimit)
	cfg.DefaultRange = getEnvDuration("DEFAULT_RANGE", cfg.DefaultRange)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.StaleGuard = getEnvBool("STALE_GUARD", cfg.StaleGuard)
	cfg.TrafficOrder = TrafficOrder(getEnvString("TRAFFIC_ORDER", string(cfg.TrafficOrder)))
	cfg.Timezone = getEnvString("TIMEZONE", cfg.Timezone)
	cfg.HistorySize = getEnvInt("HISTORY_SIZE", cfg.HistorySize)
	cfg.CORSAllowOrigin = getEnvString("CORS_ALLOW_ORIGIN", cfg.CORSAllowOrigin)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read CONFIG_FILE: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse CONFIG_FILE %s: %w", path, err)
	}

	setString(&c.ListenAddr, fc.ListenAddr)
	setString(&c.BackendURL, fc.BackendURL)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.Timezone, fc.Timezone)
	setString(&c.CORSAllowOrigin, fc.CORSAllowOrigin)
	if fc.TrafficOrder != nil {
		c.TrafficOrder = TrafficOrder(*fc.TrafficOrder)
	}
	if fc.RefreshInterval != nil {
		c.RefreshInterval = *fc.RefreshInterval
	}
	if fc.DefaultRange != nil {
		c.DefaultRange = *fc.DefaultRange
	}
	if fc.FetchTimeout != nil {
		c.FetchTimeout = *fc.FetchTimeout
	}
	if fc.LogLimit != nil {
		c.LogLimit = *fc.LogLimit
	}
	if fc.HistorySize != nil {
		c.HistorySize = *fc.HistorySize
	}
	if fc.StaleGuard != nil {
		c.StaleGuard = *fc.StaleGuard
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Validate checks configuration constraints.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("LISTEN_ADDR must not be empty")
	}

	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid BACKEND_URL: %q (must be an http or https URL)", c.BackendURL)
	}

	if c.RefreshInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be > 0")
	}
	if c.LogLimit < 1 {
		return fmt.Errorf("LOG_LIMIT must be >= 1")
	}
	if c.DefaultRange < 0 {
		return fmt.Errorf("DEFAULT_RANGE must be >= 0")
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be >= 0")
	}

	switch c.TrafficOrder {
	case TrafficLexical, TrafficChronological:
		// ok
	default:
		return fmt.Errorf("invalid TRAFFIC_ORDER: %q (must be lexical|chronological)", c.TrafficOrder)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid TIMEZONE: %q", c.Timezone)
	}

	if c.HistorySize < 1 {
		return fmt.Errorf("HISTORY_SIZE must be >= 1")
	}

	return nil
}

// Location resolves TIMEZONE. "Local" and "" mean the process zone.
func (c Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(c.Timezone)
	}
}

// AllowedOrigins splits CORS_ALLOW_ORIGIN on commas.
func (c Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Helper functions for parsing environment variables

func getEnvString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}
