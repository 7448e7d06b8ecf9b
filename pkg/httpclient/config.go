package httpclient

import (
	"fmt"
	"time"
)

// Config configures timeout and retry behavior for a Client.
type Config struct {
	// Timeout is the total request timeout, including retries. Must be > 0.
	Timeout time.Duration

	// RetryAttempts is the number of retries after the initial attempt.
	// Zero disables retries entirely. Must be >= 0.
	RetryAttempts int

	// RetryBackoff is the delay before the first retry. Must be > 0 when
	// RetryAttempts > 0.
	RetryBackoff time.Duration

	// MaxBackoff caps the exponential backoff delay. Must be >= RetryBackoff.
	MaxBackoff time.Duration

	// UserAgent is sent on every request. Required.
	UserAgent string
}

// DefaultConfig returns the settings vendorclient.New builds on: a 30s
// timeout and up to 3 retries of idempotent requests (GET/HEAD/OPTIONS)
// against transient 5xx/429/408 responses.
func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryBackoff:  100 * time.Millisecond,
		MaxBackoff:    30 * time.Second,
		UserAgent:     "fleet-engine-http-client/1.0",
	}
}

// Validate reports whether c is usable.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %v", c.Timeout)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must be >= 0, got %d", c.RetryAttempts)
	}
	if c.RetryAttempts > 0 {
		if c.RetryBackoff <= 0 {
			return fmt.Errorf("retry_backoff must be > 0 when retry_attempts > 0, got %v", c.RetryBackoff)
		}
		if c.MaxBackoff < c.RetryBackoff {
			return fmt.Errorf("max_backoff (%v) must be >= retry_backoff (%v)", c.MaxBackoff, c.RetryBackoff)
		}
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent is required and must be non-empty")
	}
	return nil
}
