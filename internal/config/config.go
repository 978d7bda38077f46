package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the call verification service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogLevel         string
	LogFormat        string

	PlatformBaseURL     string
	PlatformAPIKey      string
	PlatformRealtimeURL string
	PlatformHTTPTimeout time.Duration

	SessionEnableUpdates bool

	AnalysisPollAttempts      int
	AnalysisPollDelay         time.Duration
	AnalysisGatherConcurrency int

	DatabaseURL string
	BrandsFile  string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                  envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:          envOrDefault("APP_METRICS_NAMESPACE", "callkit"),
		LogLevel:                  envOrDefault("APP_LOG_LEVEL", "info"),
		LogFormat:                 envOrDefault("APP_LOG_FORMAT", "text"),
		PlatformBaseURL:           envOrDefault("PLATFORM_BASE_URL", "https://api.retellai.com"),
		PlatformAPIKey:            stringsTrimSpace("PLATFORM_API_KEY"),
		PlatformRealtimeURL:       envOrDefault("PLATFORM_REALTIME_URL", "wss://api.retellai.com/audio-websocket"),
		DatabaseURL:               stringsTrimSpace("DATABASE_URL"),
		BrandsFile:                envOrDefault("CALLKIT_BRANDS_FILE", "brands.yaml"),
		ShutdownTimeout:           15 * time.Second,
		PlatformHTTPTimeout:       60 * time.Second,
		SessionEnableUpdates:      true,
		AnalysisPollAttempts:      5,
		AnalysisPollDelay:         3 * time.Second,
		AnalysisGatherConcurrency: 4,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.PlatformHTTPTimeout, err = durationFromEnv("PLATFORM_HTTP_TIMEOUT", cfg.PlatformHTTPTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionEnableUpdates, err = boolFromEnv("SESSION_ENABLE_UPDATES", cfg.SessionEnableUpdates)
	if err != nil {
		return Config{}, err
	}
	cfg.AnalysisPollAttempts, err = intFromEnv("ANALYSIS_POLL_ATTEMPTS", cfg.AnalysisPollAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.AnalysisPollDelay, err = durationFromEnv("ANALYSIS_POLL_DELAY", cfg.AnalysisPollDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.AnalysisGatherConcurrency, err = intFromEnv("ANALYSIS_GATHER_CONCURRENCY", cfg.AnalysisGatherConcurrency)
	if err != nil {
		return Config{}, err
	}

	if cfg.PlatformHTTPTimeout <= 0 {
		return Config{}, fmt.Errorf("PLATFORM_HTTP_TIMEOUT must be positive")
	}
	if cfg.AnalysisPollAttempts <= 0 {
		return Config{}, fmt.Errorf("ANALYSIS_POLL_ATTEMPTS must be positive")
	}
	if cfg.AnalysisPollDelay < 0 {
		return Config{}, fmt.Errorf("ANALYSIS_POLL_DELAY must be >= 0")
	}
	if cfg.AnalysisGatherConcurrency <= 0 {
		return Config{}, fmt.Errorf("ANALYSIS_GATHER_CONCURRENCY must be positive")
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("APP_LOG_FORMAT must be text or json")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
