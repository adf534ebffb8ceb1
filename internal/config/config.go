// Package config provides application configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Persistence backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	AllowedOrigins []string
	DBPath         string
	PersistBackend string
	TopicsPath     string // optional override of the embedded catalog
	Webhook        WebhookConfig
	Widget         WidgetConfig
}

// WebhookConfig describes the remote assistant endpoint.
type WebhookConfig struct {
	URL        string
	Route      string
	Timeout    time.Duration
	MaxRetries int
}

// WidgetConfig holds conversation limits and lifetimes.
type WidgetConfig struct {
	PersistHistory     bool
	MaxHistoryMessages int
	MaxMessageLength   int
	SendDebounce       time.Duration
	NoticeTTL          time.Duration
	SessionMaxAge      time.Duration
	IdleTTL            time.Duration
	StoreRetention     time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),
		DBPath:         getEnv("DB_PATH", "./data/aran-respon.db"),
		PersistBackend: strings.ToLower(getEnv("PERSIST_BACKEND", BackendSQLite)),
		TopicsPath:     getEnv("TOPICS_PATH", ""),
		Webhook: WebhookConfig{
			URL:        getEnv("WEBHOOK_URL", ""),
			Route:      getEnv("WEBHOOK_ROUTE", ""),
			Timeout:    getEnvDuration("WEBHOOK_TIMEOUT", 30*time.Second),
			MaxRetries: getEnvInt("WEBHOOK_MAX_RETRIES", 3),
		},
		Widget: WidgetConfig{
			PersistHistory:     getEnvBool("PERSIST_HISTORY", true),
			MaxHistoryMessages: getEnvInt("MAX_HISTORY_MESSAGES", 50),
			MaxMessageLength:   getEnvInt("MAX_MESSAGE_LENGTH", 1000),
			SendDebounce:       getEnvDuration("SEND_DEBOUNCE", 300*time.Millisecond),
			NoticeTTL:          getEnvDuration("NOTICE_TTL", 5*time.Second),
			SessionMaxAge:      getEnvDuration("SESSION_MAX_AGE", 24*time.Hour),
			IdleTTL:            getEnvDuration("WIDGET_IDLE_TTL", 60*time.Minute),
			StoreRetention:     getEnvDuration("STORE_RETENTION", 7*24*time.Hour),
		},
	}

	if len(cfg.AllowedOrigins) == 0 && cfg.FrontendURL != "" {
		cfg.AllowedOrigins = []string{cfg.FrontendURL}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.PersistBackend {
	case BackendSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("PERSIST_BACKEND must be %q or %q, got %q", BackendSQLite, BackendMemory, c.PersistBackend)
	}
	if c.Webhook.URL == "" {
		return fmt.Errorf("WEBHOOK_URL cannot be empty")
	}
	if u, err := url.Parse(c.Webhook.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("WEBHOOK_URL must be an absolute http(s) URL")
	}
	if c.Webhook.Timeout <= 0 {
		return fmt.Errorf("WEBHOOK_TIMEOUT must be > 0")
	}
	if c.Webhook.MaxRetries <= 0 {
		return fmt.Errorf("WEBHOOK_MAX_RETRIES must be > 0")
	}
	if c.Widget.MaxHistoryMessages <= 0 {
		return fmt.Errorf("MAX_HISTORY_MESSAGES must be > 0")
	}
	if c.Widget.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be > 0")
	}
	if c.Widget.SendDebounce < 0 {
		return fmt.Errorf("SEND_DEBOUNCE cannot be negative")
	}
	if c.Widget.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go duration syntax ("300ms", "24h") or plain milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func getEnvList(key string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
