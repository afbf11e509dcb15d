package config

import (
	"sync"
	"time"
)

// Config is the root configuration for the sidekick daemon.
type Config struct {
	Slack     SlackConfig     `json:"slack"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Providers ProvidersConfig `json:"providers"`
	Embedding EmbeddingConfig `json:"embedding,omitempty"`
	Agent     AgentConfig     `json:"agent"`
	Storage   StorageConfig   `json:"storage"`
	Jobs      JobsConfig      `json:"jobs,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// SlackConfig configures the upstream workspace poller.
// Token is NEVER read from config.json (secret) — only from env SIDEKICK_SLACK_TOKEN.
type SlackConfig struct {
	Token               string `json:"-"`                          // from env SIDEKICK_SLACK_TOKEN only
	BaseURL             string `json:"base_url,omitempty"`         // default https://slack.com/api
	LinkHost            string `json:"link_host,omitempty"`        // host used in archive links (default slack.com)
	PollIntervalSeconds int    `json:"poll_interval_seconds"`      // scheduler tick, default 60
	SyncConcurrency     int    `json:"sync_concurrency,omitempty"` // parallel channel syncs per tick, default 10
	HistoryPageLimit    int    `json:"history_page_limit,omitempty"`
	MaxHistoryPages     int    `json:"max_history_pages,omitempty"`
}

// PollInterval returns the scheduler tick as a duration.
func (s SlackConfig) PollInterval() time.Duration {
	if s.PollIntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// DatabaseConfig selects the persistence backend.
// PostgresDSN is env-only (SIDEKICK_POSTGRES_DSN). When empty, the store
// falls back to a local SQLite file at Path.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`              // from env SIDEKICK_POSTGRES_DSN only
	Path        string `json:"path,omitempty"` // sqlite file (default ~/.sidekick/sidekick.db)
}

// ProvidersConfig holds language-model provider settings.
type ProvidersConfig struct {
	Default   string         `json:"default,omitempty"` // "anthropic" (default) or "openai"
	Anthropic ProviderConfig `json:"anthropic,omitempty"`
	OpenAI    ProviderConfig `json:"openai,omitempty"`
}

// ProviderConfig is one LM endpoint. APIKey is env-only.
type ProviderConfig struct {
	APIKey    string `json:"-"` // from env SIDEKICK_<PROVIDER>_API_KEY only
	BaseURL   string `json:"base_url,omitempty"`
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// EmbeddingConfig points at the embedding host (text → vector).
type EmbeddingConfig struct {
	BaseURL   string `json:"base_url,omitempty"` // e.g. http://localhost:8089
	Model     string `json:"model,omitempty"`    // default all-MiniLM-L6-v2
	Dimension int    `json:"dimension,omitempty"`
}

// AgentConfig bounds the conversation loop and its context window.
type AgentConfig struct {
	MaxToolIterations  int `json:"max_tool_iterations,omitempty"`  // default 10
	MaxRecentTurns     int `json:"max_recent_turns,omitempty"`     // default 4
	SummarizeThreshold int `json:"summarize_threshold,omitempty"`  // default 6
	MaxSummaryTokens   int `json:"max_summary_tokens,omitempty"`   // default 1000
	EntityCacheSeconds int `json:"entity_cache_seconds,omitempty"` // resolver TTL, default 300
}

// StorageConfig locates the file-backed preference and session stores.
type StorageConfig struct {
	PreferencesDir string `json:"preferences_dir,omitempty"` // default ~/.sidekick
	SessionsDir    string `json:"sessions_dir,omitempty"`    // default ~/.sidekick
}

// JobsConfig schedules maintenance work with cron expressions.
type JobsConfig struct {
	EmbeddingBackfill string `json:"embedding_backfill,omitempty"` // e.g. "0 3 * * *"
	ArchivePrune      string `json:"archive_prune,omitempty"`      // prune old session archives
	ArchiveKeepDays   int    `json:"archive_keep_days,omitempty"`  // default 90
}

// TelemetryConfig configures optional OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // e.g. "localhost:4317"
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext export for local dev
	ServiceName string            `json:"service_name,omitempty"` // default "sidekick"
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers for cloud backends
}

// UsePostgres reports whether the Postgres backend is configured.
func (c *Config) UsePostgres() bool {
	return c.Database.PostgresDSN != ""
}

// ProviderByName returns the named provider config, defaulting to anthropic.
func (c *Config) ProviderByName(name string) ProviderConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch name {
	case "openai":
		return c.Providers.OpenAI
	default:
		return c.Providers.Anthropic
	}
}

// DefaultProvider returns the configured provider name, preferring one with
// an API key when no explicit default is set.
func (c *Config) DefaultProvider() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Providers.Default != "" {
		return c.Providers.Default
	}
	if c.Providers.Anthropic.APIKey == "" && c.Providers.OpenAI.APIKey != "" {
		return "openai"
	}
	return "anthropic"
}
