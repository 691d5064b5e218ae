// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/qnabot/internal/qna"
	"github.com/ashureev/qnabot/internal/transcript"
)

// State backends.
const (
	StateBackendSQLite = "sqlite"
	StateBackendMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	DBPath         string
	StateBackend   string
	StateTTL       time.Duration // 0 disables the stale conversation sweeper
	LogLevel       string
	Timezone       string
	CatalogPath    string
	AllowedOrigins []string
	QnA            qna.Config
	RateLimit      RateLimitConfig
	Transcript     transcript.Config
}

// RateLimitConfig bounds message turns per user on the HTTP channels.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("TRANSCRIPT_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:           getEnv("PORT", "3978"),
		DBPath:         getEnv("DB_PATH", "./data/qnabot.db"),
		StateBackend:   strings.ToLower(getEnv("STATE_BACKEND", StateBackendSQLite)),
		StateTTL:       getEnvDuration("STATE_TTL", 24*time.Hour),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Timezone:       getEnv("TIMEZONE", "Local"),
		CatalogPath:    getEnv("CATALOG_PATH", ""),
		AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		QnA: qna.Config{
			KnowledgeBaseID: getEnv(qna.EnvKnowledgeBaseID, ""),
			EndpointKey:     getEnv(qna.EnvEndpointKey, ""),
			Host:            getEnv(qna.EnvEndpointHost, ""),
			Top:             getEnvInt("QNA_TOP", qna.DefaultTop),
			ScoreThreshold:  getEnvFloat("QNA_SCORE_THRESHOLD", qna.DefaultScoreThreshold),
			Timeout:         getEnvDuration("QNA_TIMEOUT", qna.DefaultTimeout),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Transcript: transcript.Config{
			Enabled:   getEnvBool("TRANSCRIPT_ENABLED", false),
			Dir:       getEnv("TRANSCRIPT_DIR", "./data/transcripts"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set. QnA
// settings are not checked here; an incomplete QnA setup degrades the bot
// instead of stopping it.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	switch c.StateBackend {
	case StateBackendSQLite:
		if c.DBPath == "" {
			return errors.New("DB_PATH cannot be empty")
		}
	case StateBackendMemory:
	default:
		return fmt.Errorf("STATE_BACKEND must be %q or %q, got %q", StateBackendSQLite, StateBackendMemory, c.StateBackend)
	}
	if c.StateTTL < 0 {
		return errors.New("STATE_TTL must be >= 0")
	}
	if c.RateLimit.Requests <= 0 {
		return errors.New("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		return errors.New("TRANSCRIPT_DIR cannot be empty")
	}
	if c.Transcript.QueueSize <= 0 {
		return errors.New("TRANSCRIPT_QUEUE_SIZE must be > 0")
	}
	return nil
}

// Location resolves Timezone. "Local" and "" mean the process time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	return loc, nil
}

// IsDevelopment returns true when no explicit browser origin is configured
// or the origins point at a local machine.
func (c *Config) IsDevelopment() bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range c.AllowedOrigins {
		if !strings.Contains(o, "localhost") && !strings.Contains(o, "127.0.0.1") {
			return false
		}
	}
	return true
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

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
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
