// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config is everything the server needs to start. DatabaseURL empty means the
// in-memory store; RedisAddr empty means single-node fanout.
type Config struct {
	HTTPAddr    string
	DatabaseURL string
	RedisAddr   string
	RedisDB     int

	JWTSecret string
	JWTTTL    time.Duration

	LogLevel  string
	LogFormat string

	// StatsTimezone buckets the dashboard's daily and weekly counters.
	StatsTimezone string
}

// Load reads the environment, applying defaults for anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:      ":8080",
		JWTTTL:        24 * time.Hour,
		LogLevel:      "info",
		LogFormat:     "json",
		StatsTimezone: "America/Argentina/Buenos_Aires",
	}

	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		cfg.HTTPAddr = addr
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	if db := os.Getenv("REDIS_DB"); db != "" {
		fmt.Sscanf(db, "%d", &cfg.RedisDB)
	}
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if ttl := os.Getenv("JWT_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid JWT_TTL: %w", err)
		}
		cfg.JWTTTL = d
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}
	if tz := os.Getenv("STATS_TIMEZONE"); tz != "" {
		cfg.StatsTimezone = tz
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if _, err := time.LoadLocation(cfg.StatsTimezone); err != nil {
		return nil, fmt.Errorf("invalid STATS_TIMEZONE: %w", err)
	}
	return cfg, nil
}
