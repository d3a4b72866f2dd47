package executor

import (
	"fmt"
	"time"

	"github.com/zombar/textengine/internal/apperr"
)

const (
	DefaultMaxAttempts    = 3
	DefaultBaseDelay      = 500 * time.Millisecond
	DefaultMaxDelay       = 30 * time.Second
	DefaultAttemptTimeout = 60 * time.Second
)

// Config is the retry policy
type Config struct {
	// MaxAttempts is the total number of backend calls, first call included
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; it doubles afterwards
	BaseDelay time.Duration
	// MaxDelay caps a single backoff wait
	MaxDelay time.Duration
	// AttemptTimeout bounds one backend call. Zero disables the deadline.
	AttemptTimeout time.Duration
}

// DefaultConfig returns three attempts with 500ms doubling backoff
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    DefaultMaxAttempts,
		BaseDelay:      DefaultBaseDelay,
		MaxDelay:       DefaultMaxDelay,
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

// Validate reports an unusable policy as a ConfigurationError
func (c Config) Validate() error {
	switch {
	case c.MaxAttempts < 1:
		return &apperr.ConfigurationError{Key: "LLM_MAX_ATTEMPTS", Message: fmt.Sprintf("must be at least 1, got %d", c.MaxAttempts)}
	case c.BaseDelay < 0:
		return &apperr.ConfigurationError{Key: "LLM_BASE_DELAY", Message: "must not be negative"}
	case c.MaxDelay < 0:
		return &apperr.ConfigurationError{Key: "LLM_MAX_DELAY", Message: "must not be negative"}
	case c.AttemptTimeout < 0:
		return &apperr.ConfigurationError{Key: "LLM_ATTEMPT_TIMEOUT", Message: "must not be negative"}
	}
	return nil
}
