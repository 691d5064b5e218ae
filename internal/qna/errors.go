package qna

import (
	"fmt"
	"strings"
)

// ConfigurationError reports missing or malformed backend settings.
type ConfigurationError struct {
	Missing []string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if len(parts) == 0 {
		return "qna: invalid configuration"
	}
	return "qna: invalid configuration: " + strings.Join(parts, "; ")
}

// BackendUnavailableError reports a network or remote fault during lookup.
type BackendUnavailableError struct {
	StatusCode int
	Err        error
}

func (e *BackendUnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("qna: backend unavailable (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("qna: backend unavailable: %v", e.Err)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}
