package rategate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// throttleErr fakes an upstream rate-limit signal with an optional hint.
type throttleErr struct {
	hint time.Duration
}

func (e *throttleErr) Error() string                 { return "ratelimited" }
func (e *throttleErr) Throttled() bool               { return true }
func (e *throttleErr) RetryAfterHint() time.Duration { return e.hint }

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RequestsPerMinute != 50 {
		t.Errorf("RequestsPerMinute = %d, want 50", cfg.RequestsPerMinute)
	}
	if cfg.Burst != 10 {
		t.Errorf("Burst = %d, want 10", cfg.Burst)
	}
	if cfg.MaxConcurrent != 5 {
		t.Errorf("MaxConcurrent = %d, want 5", cfg.MaxConcurrent)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("RetryMaxAttempts = %d, want 3", cfg.RetryMaxAttempts)
	}
	if cfg.RetryBaseDelay != time.Second {
		t.Errorf("RetryBaseDelay = %v, want 1s", cfg.RetryBaseDelay)
	}
	if cfg.RetryMaxDelay != 60*time.Second {
		t.Errorf("RetryMaxDelay = %v, want 60s", cfg.RetryMaxDelay)
	}
	if cfg.RetryJitter != 0.5 {
		t.Errorf("RetryJitter = %v, want 0.5", cfg.RetryJitter)
	}
}

func TestMethodConfigTable(t *testing.T) {
	tests := []struct {
		method string
		rpm    int
		burst  int
	}{
		{"conversations.list", 20, 5},
		{"conversations.history", 50, 10},
		{"conversations.replies", 50, 10},
		{"users.info", 100, 20},
		{"users.list", 20, 5},
		{"search.messages", 20, 5},
		{"reminders.list", 20, 5},
		{"auth.test", 100, 20},
		{"unknown.method", 50, 10},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			cfg := MethodConfig(tt.method)
			if cfg.RequestsPerMinute != tt.rpm {
				t.Errorf("rpm = %d, want %d", cfg.RequestsPerMinute, tt.rpm)
			}
			if cfg.Burst != tt.burst {
				t.Errorf("burst = %d, want %d", cfg.Burst, tt.burst)
			}
			if cfg.MaxConcurrent != 5 {
				t.Errorf("concurrency = %d, want 5", cfg.MaxConcurrent)
			}
		})
	}
}

func TestGateAllowsBurstImmediately(t *testing.T) {
	g := New("test", Config{RequestsPerMinute: 60, Burst: 10})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 10; i++ {
		if err := g.Do(ctx, func(context.Context) error { return nil }); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
}

func TestGateBlocksWhenBucketEmpty(t *testing.T) {
	// 1 token/sec, burst 2: two calls drain the bucket, the third must block.
	g := New("test", Config{RequestsPerMinute: 60, Burst: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := g.Do(ctx, func(context.Context) error { return nil }); err != nil {
			t.Fatalf("warmup call %d: %v", i, err)
		}
	}

	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := g.Do(blocked, func(context.Context) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded while bucket empty, got %v", err)
	}
}

func TestGateRefillsOverTime(t *testing.T) {
	// Fast bucket: 100 tokens/sec, burst 2. After draining, ~20ms buys a token.
	g := New("test", Config{RequestsPerMinute: 6000, Burst: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := g.Do(ctx, func(context.Context) error { return nil }); err != nil {
			t.Fatalf("warmup call %d: %v", i, err)
		}
	}

	refilled, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	if err := g.Do(refilled, func(context.Context) error { return nil }); err != nil {
		t.Errorf("expected refill within 200ms, got %v", err)
	}
}

func TestConcurrencyCap(t *testing.T) {
	g := New("test", Config{RequestsPerMinute: 6000, Burst: 100, MaxConcurrent: 2})

	var mu sync.Mutex
	inFlight, peak := 0, 0
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Do(context.Background(), func(context.Context) error {
				mu.Lock()
				inFlight++
				if inFlight > peak {
					peak = inFlight
				}
				mu.Unlock()

				time.Sleep(50 * time.Millisecond)

				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
	if elapsed := time.Since(start); elapsed < 125*time.Millisecond {
		t.Errorf("5 calls of 50ms under cap 2 finished in %v, want >= 125ms", elapsed)
	}
}

func TestRetryHonorsRetryAfterHint(t *testing.T) {
	g := New("test", Config{
		RequestsPerMinute: 3600,
		Burst:             5,
		RetryMaxAttempts:  3,
		RetryBaseDelay:    10 * time.Millisecond,
	})

	var calls atomic.Int32
	err := g.Do(context.Background(), func(context.Context) error {
		if calls.Add(1) == 1 {
			return &throttleErr{hint: 10 * time.Millisecond}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2 (one throttle, one success)", got)
	}
}

func TestRetryExhaustionReturnsLimitExceeded(t *testing.T) {
	g := New("conversations.history", Config{
		RequestsPerMinute: 3600,
		Burst:             5,
		RetryMaxAttempts:  3,
		RetryBaseDelay:    time.Millisecond,
		RetryMaxDelay:     5 * time.Millisecond,
	})

	var calls atomic.Int32
	err := g.Do(context.Background(), func(context.Context) error {
		calls.Add(1)
		return &throttleErr{}
	})

	var exceeded *LimitExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected LimitExceededError, got %v", err)
	}
	if exceeded.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", exceeded.Attempts)
	}
	if exceeded.Method != "conversations.history" {
		t.Errorf("Method = %q, want conversations.history", exceeded.Method)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestNonThrottleErrorsPropagateWithoutRetry(t *testing.T) {
	g := New("test", Config{RequestsPerMinute: 3600, Burst: 5})

	boom := errors.New("channel_not_found")
	var calls atomic.Int32
	err := g.Do(context.Background(), func(context.Context) error {
		calls.Add(1)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", got)
	}
}

func TestRegistrySharesGatePerMethod(t *testing.T) {
	r := NewRegistry()
	a := r.Gate("users.info")
	b := r.Gate("users.info")
	if a != b {
		t.Error("expected the same gate instance for repeated lookups")
	}
	if c := r.Gate("users.list"); c == a {
		t.Error("expected distinct gates for distinct methods")
	}
}

func TestBackoffNeverExceedsMaxDelay(t *testing.T) {
	g := New("test", Config{
		RequestsPerMinute: 60,
		Burst:             1,
		RetryBaseDelay:    40 * time.Millisecond,
		RetryMaxDelay:     100 * time.Millisecond,
		RetryJitter:       0.5,
	})
	// attempt 3 is 320ms before jitter, up to 480ms after; the ceiling is
	// absolute, so every sample must land at or under RetryMaxDelay.
	for i := 0; i < 200; i++ {
		d := g.backoff(3)
		if d > g.cfg.RetryMaxDelay {
			t.Fatalf("backoff(3) = %v, want <= %v", d, g.cfg.RetryMaxDelay)
		}
		if d <= 0 {
			t.Fatalf("backoff(3) = %v, want positive", d)
		}
	}
}
