// Package config loads runtime configuration from environment variables.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
)

// SMA200Filter controls PerfectOrder's optional 200-day moving-average gate.
type SMA200Filter string

const (
	SMA200All   SMA200Filter = "all"
	SMA200Above SMA200Filter = "above"
	SMA200Below SMA200Filter = "below"
)

// EMAFilter controls Pullback's optional per-EMA touch requirement.
type EMAFilter string

const (
	EMAFilterAll EMAFilter = "all"
	EMAFilter10  EMAFilter = "10ema"
	EMAFilter20  EMAFilter = "20ema"
	EMAFilter50  EMAFilter = "50ema"
)

// Config holds every tunable named in spec §6, plus the ambient keys this
// repo adds to actually run as a process.
type Config struct {
	Concurrency            int
	PerfectOrderSMA200     SMA200Filter
	PullbackEMAFilter      EMAFilter
	PullbackStochastic     bool
	SamplerMaxPerRange     int
	CacheDir               string
	CacheMaxAgeDays        int
	RequestTimeoutSec      int
	RetryCount             int
	RetryDelaySec          int
	QuoteSourceCredential  string
	ResultSinkCredential   string
	DebugSymbol            string
	SqueezeDurationRelax   float64

	LogLevel         string
	DatabaseURL      string
	RedisAddr        string
	RedisPassword    string
	TelegramBotToken string
	TelegramChatID   int64
}

// env returns the value of key or def if unset or empty.
func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// mustEnv fetches a required env-var or terminates the process.
func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("environment variable %s is required", key)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("environment variable %s must be an integer, got %q", key, v)
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("environment variable %s must be a float, got %q", key, v)
	}
	return f
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("environment variable %s must be a bool, got %q", key, v)
	}
	return b
}

// Load populates a Config from the process environment.
// QUOTE_SOURCE_CREDENTIAL and DATABASE_URL are required (a missing one
// terminates the process); everything else has a default.
func Load() (*Config, error) {
	cfg := &Config{
		Concurrency:           envInt("CONCURRENCY", 20),
		PerfectOrderSMA200:    SMA200Filter(env("PERFECT_ORDER_SMA200_FILTER", string(SMA200All))),
		PullbackEMAFilter:     EMAFilter(env("PULLBACK_EMA_FILTER", string(EMAFilterAll))),
		PullbackStochastic:    envBool("PULLBACK_STOCHASTIC", false),
		SamplerMaxPerRange:    envInt("SAMPLER_MAX_PER_RANGE", 10),
		CacheDir:              env("CACHE_DIR", "./cache"),
		CacheMaxAgeDays:       envInt("CACHE_MAX_AGE_DAYS", 30),
		RequestTimeoutSec:     envInt("REQUEST_TIMEOUT_SEC", 30),
		RetryCount:            envInt("RETRY_COUNT", 3),
		RetryDelaySec:         envInt("RETRY_DELAY_SEC", 1),
		QuoteSourceCredential: mustEnv("QUOTE_SOURCE_CREDENTIAL"),
		ResultSinkCredential:  env("RESULT_SINK_CREDENTIAL", ""),
		DebugSymbol:           env("DEBUG_SYMBOL", ""),
		SqueezeDurationRelax:  envFloat("SQUEEZE_DURATION_RELAXATION", 1.4),

		LogLevel:         env("LOG_LEVEL", "info"),
		DatabaseURL:      mustEnv("DATABASE_URL"),
		RedisAddr:        env("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    env("REDIS_PASSWORD", ""),
		TelegramBotToken: env("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   int64(envInt("TELEGRAM_CHAT_ID", 0)),
	}

	switch cfg.PerfectOrderSMA200 {
	case SMA200All, SMA200Above, SMA200Below:
	default:
		return nil, fmt.Errorf("invalid PERFECT_ORDER_SMA200_FILTER: %s", cfg.PerfectOrderSMA200)
	}
	switch cfg.PullbackEMAFilter {
	case EMAFilterAll, EMAFilter10, EMAFilter20, EMAFilter50:
	default:
		return nil, fmt.Errorf("invalid PULLBACK_EMA_FILTER: %s", cfg.PullbackEMAFilter)
	}
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("CONCURRENCY must be positive, got %d", cfg.Concurrency)
	}
	return cfg, nil
}
