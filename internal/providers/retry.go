package providers

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"time"
)

// HTTPError is a non-2xx response from a provider API.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration // from the Retry-After header, 0 when absent
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// Throttled reports whether the error is worth retrying: rate limits,
// overload, and transient upstream failures.
func (e *HTTPError) Throttled() bool {
	switch e.Status {
	case 429, 500, 502, 503, 529:
		return true
	}
	return false
}

// ParseRetryAfter interprets a Retry-After header value, which is
// either a delay in seconds or an HTTP date.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := time.Parse(time.RFC1123, header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// RetryConfig controls the exponential backoff for provider calls.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig matches the providers' published rate-limit guidance.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// RetryDo runs fn with exponential backoff on throttled HTTP errors.
// A server-provided Retry-After hint overrides the computed delay.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, provider string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := cfg.BaseDelay * (1 << (attempt - 1))
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
			if httpErr, ok := lastErr.(*HTTPError); ok && httpErr.RetryAfter > 0 {
				delay = httpErr.RetryAfter
			}
			// Jitter avoids thundering-herd retries.
			delay += time.Duration(rand.Int63n(int64(delay) / 4))

			slog.Warn("provider request throttled, retrying",
				"provider", provider, "attempt", attempt, "delay", delay, "error", lastErr)

			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		httpErr, ok := err.(*HTTPError)
		if !ok || !httpErr.Throttled() {
			return zero, err
		}
	}
	return zero, fmt.Errorf("%s: retries exhausted: %w", provider, lastErr)
}
