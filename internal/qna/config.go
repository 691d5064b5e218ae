// Package qna is the adapter for the remote question-answering backend.
package qna

import (
	"net/url"
	"strings"
	"time"
)

// Environment keys holding the backend credentials.
const (
	EnvKnowledgeBaseID = "QnAKnowledgebaseId"
	EnvEndpointKey     = "QnAEndpointKey"
	EnvEndpointHost    = "QnAEndpointHostName"
)

// Default lookup tuning.
const (
	DefaultTop            = 1
	DefaultScoreThreshold = 0.3
	DefaultTimeout        = 100 * time.Second
)

// Config holds the backend endpoint and query tuning.
type Config struct {
	KnowledgeBaseID string
	EndpointKey     string
	Host            string
	Top             int
	ScoreThreshold  float64
	Timeout         time.Duration
}

// Configured reports whether all three credentials are present.
func (c Config) Configured() bool {
	return len(c.missing()) == 0
}

// Validate checks credentials and tuning, returning a *ConfigurationError.
func (c Config) Validate() error {
	if missing := c.missing(); len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}

	u, err := url.Parse(strings.TrimSpace(c.Host))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ConfigurationError{Reason: EnvEndpointHost + " must be an absolute http(s) URL"}
	}
	if c.Top < 0 {
		return &ConfigurationError{Reason: "top must not be negative"}
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return &ConfigurationError{Reason: "score threshold must be within [0, 1]"}
	}
	return nil
}

func (c Config) missing() []string {
	var missing []string
	if strings.TrimSpace(c.KnowledgeBaseID) == "" {
		missing = append(missing, EnvKnowledgeBaseID)
	}
	if strings.TrimSpace(c.EndpointKey) == "" {
		missing = append(missing, EnvEndpointKey)
	}
	if strings.TrimSpace(c.Host) == "" {
		missing = append(missing, EnvEndpointHost)
	}
	return missing
}

func (c Config) withDefaults() Config {
	if c.Top == 0 {
		c.Top = DefaultTop
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}
