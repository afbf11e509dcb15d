package slackapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// APIError is the upstream error envelope: either an ok:false payload with an
// error code, or a non-2xx HTTP response.
type APIError struct {
	Method     string
	Code       string // upstream "error" field, e.g. "ratelimited"
	StatusCode int
	RetryAfter time.Duration // from the Retry-After header when present
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Method, e.Code)
	}
	return fmt.Sprintf("%s: http %d", e.Method, e.StatusCode)
}

// Throttled reports whether the upstream asked us to slow down. The rate
// gate retries these; everything else propagates.
func (e *APIError) Throttled() bool {
	return e.Code == "ratelimited" || e.StatusCode == http.StatusTooManyRequests
}

// RetryAfterHint returns the server-provided wait, zero when absent.
func (e *APIError) RetryAfterHint() time.Duration { return e.RetryAfter }

// IsChannelInaccessible reports whether err marks a channel we cannot read
// (deleted, never joined, or token missing a scope). Sync skips these
// channels quietly instead of failing the sweep.
func IsChannelInaccessible(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.Code {
	case "channel_not_found", "not_in_channel", "missing_scope":
		return true
	}
	return false
}

// parseRetryAfter reads a Retry-After header value in seconds. Fractional
// values are accepted; malformed or absent values yield zero.
func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(h, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
