// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes the orchestrator's
// bind address, coordinator connection string, per-bucket rate caps, and
// guardrail thresholds.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values for the orchestrator.
type Config struct {
	// Server
	Bind              string        // DMBO_BIND
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Coordinator
	RedisURL               string // REDIS_URL
	RedisRequiredForHealth bool   // DMBO_REDIS_REQUIRED_FOR_HEALTH

	// Rate limiting
	GlobalRPS  int // DMBO_GLOBAL_RPS
	RouteRPS   int // DMBO_ROUTE_RPS
	MinRetryMS int // DMBO_MIN_RETRY_MS

	// Guardrail
	InvalidThreshold    int   // DMBO_INVALID_THRESHOLD
	GuardrailCooldownMS int64 // DMBO_GUARDRAIL_COOLDOWN_MS
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Bind:              getenv("DMBO_BIND", "127.0.0.1:8787"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Coordinator
		RedisURL:               getenv("REDIS_URL", "redis://127.0.0.1:6379/"),
		RedisRequiredForHealth: getbool("DMBO_REDIS_REQUIRED_FOR_HEALTH", true),

		// Rate limiting
		GlobalRPS:  getint("DMBO_GLOBAL_RPS", 50),
		RouteRPS:   getint("DMBO_ROUTE_RPS", 5),
		MinRetryMS: getint("DMBO_MIN_RETRY_MS", 50),

		// Guardrail
		InvalidThreshold:    getint("DMBO_INVALID_THRESHOLD", 8000),
		GuardrailCooldownMS: getint64("DMBO_GUARDRAIL_COOLDOWN_MS", 30000),
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Bind) == "" {
		return cfg, errors.New("DMBO_BIND must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return cfg, errors.New("REDIS_URL must not be empty")
	}
	if cfg.GlobalRPS <= 0 {
		return cfg, errors.New("DMBO_GLOBAL_RPS must be > 0")
	}
	if cfg.RouteRPS <= 0 {
		return cfg, errors.New("DMBO_ROUTE_RPS must be > 0")
	}
	if cfg.MinRetryMS < 0 {
		return cfg, errors.New("DMBO_MIN_RETRY_MS must be >= 0")
	}
	if cfg.InvalidThreshold <= 0 {
		return cfg, errors.New("DMBO_INVALID_THRESHOLD must be > 0")
	}
	if cfg.GuardrailCooldownMS <= 0 {
		return cfg, errors.New("DMBO_GUARDRAIL_COOLDOWN_MS must be > 0")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
