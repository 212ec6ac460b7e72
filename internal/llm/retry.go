package llm

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"
)

// ErrModelUnavailable is returned when throttling outlasts the retry ceiling.
var ErrModelUnavailable = errors.New("model unavailable")

// DefaultMaxAttempts is the retry ceiling used when none is configured.
const DefaultMaxAttempts = 5

// ThrottledError is a rate-limit or overload rejection. It is the only error
// the Invoker retries.
type ThrottledError struct {
	StatusCode int
	Message    string
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("throttled (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// APIError is a non-retryable rejection from the model endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("claude api status %d: %s", e.StatusCode, truncate(e.Message, 200))
}

// IsThrottled reports whether err is worth retrying after a delay.
func IsThrottled(err error) bool {
	var t *ThrottledError
	return errors.As(err, &t)
}

// Backoff returns the delay before retrying attempt n (0-indexed):
// 2^n seconds plus uniform jitter in [0, 1s).
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(time.Second)))
	return base + jitter
}

func isThrottleStatus(code int) bool {
	// 529 is Anthropic's "overloaded" status.
	return code == http.StatusTooManyRequests || code == 529
}

func isThrottleType(errType string) bool {
	return errType == "rate_limit_error" || errType == "overloaded_error"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
