// Package config loads service settings from the environment, after reading
// an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration

	// DatabaseURL selects the Postgres seed source; empty means the built-in list.
	DatabaseURL string

	SessionSecret        string
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	SessionTokenTTL      time.Duration
	SessionCreatePerMin  int

	FlashSaleDelayMax time.Duration
	FlashSaleInterval time.Duration
	RecommendDelayMax time.Duration
	RecommendInterval time.Duration

	CORSOrigins    []string
	MetricsEnabled bool
	MetricsToken   string
}

const minSecretLen = 32

// Load reads .env (if present) without overriding variables already set,
// then builds and validates the configuration.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:            getenv("PORT", "8080"),
		LogLevel:        strings.ToLower(getenv("LOG_LEVEL", "info")),
		ShutdownTimeout: durenv("SHUTDOWN_TIMEOUT", 10*time.Second),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		SessionSecret:        os.Getenv("SESSION_SECRET"),
		SessionTTL:           durenv("SESSION_TTL", 30*time.Minute),
		SessionSweepInterval: durenv("SESSION_SWEEP_INTERVAL", time.Minute),
		SessionTokenTTL:      durenv("SESSION_TOKEN_TTL", 12*time.Hour),
		SessionCreatePerMin:  atoienv("SESSION_CREATE_LIMIT_PER_MIN", 10),

		FlashSaleDelayMax: durenv("FLASH_SALE_DELAY_MAX", 10*time.Second),
		FlashSaleInterval: durenv("FLASH_SALE_INTERVAL", 30*time.Second),
		RecommendDelayMax: durenv("RECOMMEND_DELAY_MAX", 20*time.Second),
		RecommendInterval: durenv("RECOMMEND_INTERVAL", 60*time.Second),

		CORSOrigins:    listenv("CORS_ORIGINS"),
		MetricsEnabled: boolenv("METRICS_ENABLED", true),
		MetricsToken:   os.Getenv("METRICS_TOKEN"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if len(c.SessionSecret) < minSecretLen {
		return fmt.Errorf("SESSION_SECRET is required and must be at least %d chars", minSecretLen)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	if c.SessionTokenTTL <= 0 {
		return fmt.Errorf("SESSION_TOKEN_TTL must be positive")
	}
	if c.FlashSaleDelayMax < 0 || c.RecommendDelayMax < 0 {
		return fmt.Errorf("updater delays must not be negative")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// durenv accepts Go duration strings ("30s", "1m"); bad values fall back to def.
func durenv(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func boolenv(key string, def bool) bool {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func listenv(key string) []string {
	v := getenv(key, "")
	if v == "" {
		return nil
	}

	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
