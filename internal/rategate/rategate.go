// Package rategate serializes outbound upstream API calls behind per-method
// token buckets, concurrency caps, and a retry controller that honors server
// Retry-After hints.
package rategate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// LimitExceededError is returned once upstream throttling has consumed every
// retry attempt for a single logical call.
type LimitExceededError struct {
	Method   string
	Attempts int
	Last     error
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s after %d attempts", e.Method, e.Attempts)
}

func (e *LimitExceededError) Unwrap() error { return e.Last }

// Gate guards a single upstream method. Token acquisition happens before the
// concurrency slot so throttled waiters never hold an in-flight slot.
type Gate struct {
	method  string
	cfg     Config
	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

// New builds a gate for one method. Zero-valued config fields fall back to
// the conservative defaults.
func New(method string, cfg Config) *Gate {
	cfg = cfg.withDefaults()
	return &Gate{
		method:  method,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.Burst),
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

// Config returns the effective limit configuration.
func (g *Gate) Config() Config { return g.cfg }

// Do runs fn under the token bucket and concurrency cap, retrying while the
// upstream signals throttling. Non-throttle failures propagate immediately.
func (g *Gate) Do(ctx context.Context, fn func(context.Context) error) error {
	attempt := 0
	for {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		err := g.inFlight(ctx, fn)
		if err == nil || !isThrottled(err) {
			return err
		}

		attempt++
		if attempt >= g.cfg.RetryMaxAttempts {
			return &LimitExceededError{Method: g.method, Attempts: attempt, Last: err}
		}

		delay := retryAfterHint(err)
		if delay <= 0 {
			delay = g.backoff(attempt)
		}
		slog.Debug("upstream throttled, backing off",
			"method", g.method, "attempt", attempt, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (g *Gate) inFlight(ctx context.Context, fn func(context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)
	return fn(ctx)
}

// backoff computes the exponential delay for the given attempt, spread by
// the jitter factor and then capped at RetryMaxDelay. The cap applies last
// so jitter never pushes a wait past the ceiling.
func (g *Gate) backoff(attempt int) time.Duration {
	d := float64(g.cfg.RetryBaseDelay) * math.Pow(2, float64(attempt))
	if j := g.cfg.RetryJitter; j > 0 {
		r := d * j
		d = d - r + rand.Float64()*r*2
	}
	if ceil := float64(g.cfg.RetryMaxDelay); d > ceil {
		d = ceil
	}
	return time.Duration(d)
}

// Registry hands out one shared gate per upstream method, created lazily
// from the per-method limits table.
type Registry struct {
	mu    sync.Mutex
	gates map[string]*Gate
}

// NewRegistry creates an empty gate registry.
func NewRegistry() *Registry {
	return &Registry{gates: make(map[string]*Gate)}
}

// Gate returns the shared gate for a method, creating it on first use.
func (r *Registry) Gate(method string) *Gate {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gates[method]
	if !ok {
		g = New(method, MethodConfig(method))
		r.gates[method] = g
	}
	return g
}

// Do is shorthand for Gate(method).Do(ctx, fn).
func (r *Registry) Do(ctx context.Context, method string, fn func(context.Context) error) error {
	return r.Gate(method).Do(ctx, fn)
}

// isThrottled reports whether err carries an upstream rate-limit signal.
// The error type lives with the API client; this package only needs the
// behavioral contract.
func isThrottled(err error) bool {
	var t interface{ Throttled() bool }
	return errors.As(err, &t) && t.Throttled()
}

// retryAfterHint extracts the server-provided wait, if any.
func retryAfterHint(err error) time.Duration {
	var h interface{ RetryAfterHint() time.Duration }
	if errors.As(err, &h) {
		return h.RetryAfterHint()
	}
	return 0
}
