// Package config loads server settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Geolocation modes
const (
	GeolocationBrowser = "browser"
	GeolocationIP      = "ip"
	GeolocationNone    = "none"
)

type Config struct {
	Port     string
	Env      string
	LogLevel slog.Level

	OpenWeatherAPIKey  string
	OpenWeatherBaseURL string
	WeatherCacheTTL    time.Duration

	DatabaseURL string
	RedisURL    string

	GeolocationMode string
	IPAPIBaseURL    string

	ErrorDismissAfter time.Duration
	SessionIdleTTL    time.Duration
}

// IsProduction reports whether GO_ENV selects production behaviour
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads .env if present, then the process environment.
// It reports whether a .env file was found so the caller can log it.
func Load() (*Config, bool, error) {
	envFile := godotenv.Load() == nil
	cfg, err := FromEnv()
	return cfg, envFile, err
}

// FromEnv builds a Config from environment variables only
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("GO_ENV", "development"),
		OpenWeatherAPIKey:  getEnv("OPENWEATHER_API_KEY", ""),
		OpenWeatherBaseURL: getEnv("OPENWEATHER_BASE_URL", "https://api.openweathermap.org"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		GeolocationMode:    strings.ToLower(getEnv("GEOLOCATION_MODE", GeolocationBrowser)),
		IPAPIBaseURL:       getEnv("IPAPI_BASE_URL", "http://ip-api.com"),
	}

	var err error
	if cfg.LogLevel, err = parseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}
	if cfg.WeatherCacheTTL, err = getDuration("WEATHER_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ErrorDismissAfter, err = getDuration("ERROR_DISMISS_AFTER", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTTL, err = getDuration("SESSION_IDLE_TTL", 30*time.Minute); err != nil {
		return nil, err
	}

	switch cfg.GeolocationMode {
	case GeolocationBrowser, GeolocationIP, GeolocationNone:
	default:
		return nil, fmt.Errorf("config: invalid GEOLOCATION_MODE %q (want browser, ip or none)", cfg.GeolocationMode)
	}
	if cfg.ErrorDismissAfter <= 0 {
		return nil, fmt.Errorf("config: ERROR_DISMISS_AFTER must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: failed to parse %s: %w", key, err)
	}
	return d, nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("config: failed to parse LOG_LEVEL: %w", err)
	}
	return level, nil
}
