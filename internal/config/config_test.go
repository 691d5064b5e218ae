package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STATE_BACKEND", "STATE_TTL", "QNA_TOP", "CORS_ALLOWED_ORIGINS", "QnAKnowledgebaseId"} {
		t.Setenv(key, "")
	}
	t.Setenv("PORT", "3978")
	t.Setenv("STATE_BACKEND", "sqlite")
	t.Setenv("STATE_TTL", "24h")
	t.Setenv("QNA_TOP", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3978", cfg.Port)
	assert.Equal(t, StateBackendSQLite, cfg.StateBackend)
	assert.Equal(t, 24*time.Hour, cfg.StateTTL)
	assert.Equal(t, 1, cfg.QnA.Top, "unparsable values fall back")
	assert.Empty(t, cfg.AllowedOrigins)
	assert.False(t, cfg.QnA.Configured())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STATE_BACKEND", "MEMORY")
	t.Setenv("STATE_TTL", "90m")
	t.Setenv("QnAKnowledgebaseId", "kb")
	t.Setenv("QnAEndpointKey", "key")
	t.Setenv("QnAEndpointHostName", "https://example.azurewebsites.net/qnamaker")
	t.Setenv("QNA_SCORE_THRESHOLD", "0.5")
	t.Setenv("QNA_TIMEOUT", "5s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://chat.example.com, ,http://localhost:5173")
	t.Setenv("RATE_LIMIT_REQUESTS", "5")
	t.Setenv("RATE_LIMIT_WINDOW", "10s")
	t.Setenv("TRANSCRIPT_ENABLED", "yes")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, StateBackendMemory, cfg.StateBackend)
	assert.Equal(t, 90*time.Minute, cfg.StateTTL)
	assert.True(t, cfg.QnA.Configured())
	assert.InDelta(t, 0.5, cfg.QnA.ScoreThreshold, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.QnA.Timeout)
	assert.Equal(t, []string{"https://chat.example.com", "http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, RateLimitConfig{Requests: 5, Window: 10 * time.Second}, cfg.RateLimit)
	assert.True(t, cfg.Transcript.Enabled)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STATE_BACKEND", "redis")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STATE_BACKEND")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:         "3978",
			DBPath:       "db",
			StateBackend: StateBackendSQLite,
			RateLimit:    RateLimitConfig{Requests: 1, Window: time.Second},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty port", func(c *Config) { c.Port = "" }, "PORT"},
		{"sqlite without path", func(c *Config) { c.DBPath = "" }, "DB_PATH"},
		{"negative ttl", func(c *Config) { c.StateTTL = -time.Second }, "STATE_TTL"},
		{"zero rate", func(c *Config) { c.RateLimit.Requests = 0 }, "RATE_LIMIT_REQUESTS"},
		{"zero window", func(c *Config) { c.RateLimit.Window = 0 }, "RATE_LIMIT_WINDOW"},
		{"transcript without dir", func(c *Config) { c.Transcript.Enabled = true }, "TRANSCRIPT_DIR"},
		{"zero queue", func(c *Config) { c.Transcript.QueueSize = 0; c.Transcript.Dir = "x" }, "TRANSCRIPT_QUEUE_SIZE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			c.Transcript.QueueSize = 1
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	c := valid()
	c.Transcript.QueueSize = 1
	c.StateBackend = StateBackendMemory
	c.DBPath = ""
	assert.NoError(t, c.Validate(), "memory backend needs no DB_PATH")
}

func TestLocation(t *testing.T) {
	loc, err := (&Config{Timezone: "Local"}).Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	loc, err = (&Config{Timezone: "UTC"}).Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	_, err = (&Config{Timezone: "Mars/Olympus"}).Location()
	require.Error(t, err)
}
