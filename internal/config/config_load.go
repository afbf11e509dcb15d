package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Slack: SlackConfig{
			BaseURL:             "https://slack.com/api",
			LinkHost:            "slack.com",
			PollIntervalSeconds: 60,
			SyncConcurrency:     10,
			HistoryPageLimit:    200,
			MaxHistoryPages:     10,
		},
		Database: DatabaseConfig{
			Path: "~/.sidekick/sidekick.db",
		},
		Providers: ProvidersConfig{
			Anthropic: ProviderConfig{
				BaseURL:   "https://api.anthropic.com",
				Model:     "claude-sonnet-4-5-20250929",
				MaxTokens: 4096,
			},
			OpenAI: ProviderConfig{
				BaseURL:   "https://api.openai.com/v1",
				Model:     "gpt-4o",
				MaxTokens: 4096,
			},
		},
		Embedding: EmbeddingConfig{
			Model:     "all-MiniLM-L6-v2",
			Dimension: 384,
		},
		Agent: AgentConfig{
			MaxToolIterations:  10,
			MaxRecentTurns:     4,
			SummarizeThreshold: 6,
			MaxSummaryTokens:   1000,
			EntityCacheSeconds: 300,
		},
		Storage: StorageConfig{
			PreferencesDir: "~/.sidekick",
			SessionsDir:    "~/.sidekick",
		},
		Jobs: JobsConfig{
			ArchiveKeepDays: 90,
		},
	}
}

// Load reads config from a JSON5 file, then overlays .env and env vars.
func Load(path string) (*Config, error) {
	cfg := Default()

	// .env in the working directory, if present. Real env always wins.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	// Secrets: env-only, never persisted.
	envStr("SIDEKICK_SLACK_TOKEN", &c.Slack.Token)
	envStr("SIDEKICK_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("SIDEKICK_ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envStr("SIDEKICK_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)

	envStr("SIDEKICK_SLACK_BASE_URL", &c.Slack.BaseURL)
	envStr("SIDEKICK_PROVIDER", &c.Providers.Default)
	envStr("SIDEKICK_MODEL", &c.Providers.Anthropic.Model)
	envStr("SIDEKICK_EMBEDDING_URL", &c.Embedding.BaseURL)
	envStr("SIDEKICK_EMBEDDING_MODEL", &c.Embedding.Model)
	envStr("SIDEKICK_DB_PATH", &c.Database.Path)
	envStr("SIDEKICK_PREFERENCES_DIR", &c.Storage.PreferencesDir)
	envStr("SIDEKICK_SESSIONS_DIR", &c.Storage.SessionsDir)

	if v := os.Getenv("SIDEKICK_POLL_INTERVAL"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			c.Slack.PollIntervalSeconds = sec
		}
	}
	if v := os.Getenv("SIDEKICK_SYNC_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Slack.SyncConcurrency = n
		}
	}

	// Telemetry
	envStr("SIDEKICK_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("SIDEKICK_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("SIDEKICK_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("SIDEKICK_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SIDEKICK_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// Save writes the config to a JSON file. Secrets are json:"-" and stay out.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
