package config

import (
	"fmt"
	"strings"
	"time"
)

// RetryBackoffMode is how the delay between git network retries grows.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// NormalizeRetryBackoff maps raw (any case) to a mode; unknown input gives "".
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	switch m := RetryBackoffMode(strings.ToLower(strings.TrimSpace(raw))); m {
	case RetryBackoffFixed, RetryBackoffLinear, RetryBackoffExponential:
		return m
	}
	return ""
}

// normalizeRetry validates the retry fields of the git section in place.
func (g *GitSettings) normalizeRetry() error {
	if g.RetryBackoff != "" {
		mode := NormalizeRetryBackoff(string(g.RetryBackoff))
		if mode == "" {
			return fmt.Errorf("git.retry_backoff %q must be one of fixed, linear, exponential", g.RetryBackoff)
		}
		g.RetryBackoff = mode
	}
	if g.MaxRetries < 0 {
		return fmt.Errorf("git.max_retries cannot be negative")
	}
	for name, v := range map[string]string{
		"retry_initial_delay": g.RetryInitialDelay,
		"retry_max_delay":     g.RetryMaxDelay,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			return fmt.Errorf("git.%s %q is not a duration", name, v)
		}
	}
	return nil
}
