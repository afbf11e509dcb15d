package rategate

import "time"

// Config bounds one upstream API method: sustained rate, burst headroom,
// in-flight concurrency, and the retry policy applied when the upstream
// signals throttling.
type Config struct {
	RequestsPerMinute int
	Burst             int
	MaxConcurrent     int

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RetryJitter      float64
}

// DefaultConfig is the conservative fallback for methods missing from the
// per-method table.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 50,
		Burst:             10,
		MaxConcurrent:     5,
		RetryMaxAttempts:  3,
		RetryBaseDelay:    time.Second,
		RetryMaxDelay:     60 * time.Second,
		RetryJitter:       0.5,
	}
}

// methodLimits maps upstream API methods to their documented tier limits.
// Unlisted methods fall back to DefaultConfig.
var methodLimits = map[string]struct {
	rpm   int
	burst int
	conc  int
}{
	"conversations.list":    {20, 5, 5},
	"conversations.history": {50, 10, 5},
	"conversations.replies": {50, 10, 5},
	"users.info":            {100, 20, 5},
	"users.list":            {20, 5, 5},
	"search.messages":       {20, 5, 5},
	"reminders.list":        {20, 5, 5},
	"auth.test":             {100, 20, 5},
}

// MethodConfig returns the limit configuration for an upstream method.
func MethodConfig(method string) Config {
	cfg := DefaultConfig()
	if l, ok := methodLimits[method]; ok {
		cfg.RequestsPerMinute = l.rpm
		cfg.Burst = l.burst
		cfg.MaxConcurrent = l.conc
	}
	return cfg
}

// withDefaults fills zero-valued fields so hand-built configs (tests,
// overrides) behave sanely.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = d.RequestsPerMinute
	}
	if c.Burst <= 0 {
		c.Burst = d.Burst
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = d.RetryMaxAttempts
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = d.RetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = d.RetryMaxDelay
	}
	if c.RetryJitter < 0 {
		c.RetryJitter = d.RetryJitter
	}
	return c
}
