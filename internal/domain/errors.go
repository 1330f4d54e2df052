package domain

import (
	"fmt"
	"time"
)

// ConfigError is fatal and only produced at startup: missing credentials, an
// unparseable rule, or zero rules. It is the only error that reaches the
// process boundary; everything else is contained inside the engine.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return e.Reason }

func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// RateLimitError signals the server asked the client to pause. RetryAfter is
// dictated by the server and not bounded locally.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// DeliveryError wraps any non-rate-limit send failure for a single target.
type DeliveryError struct {
	Target int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %d failed: %v", e.Target, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
