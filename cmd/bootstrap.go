package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/lunarhue/sidekick/internal/config"
	"github.com/lunarhue/sidekick/internal/embed"
	"github.com/lunarhue/sidekick/internal/rategate"
	"github.com/lunarhue/sidekick/internal/slackapi"
	"github.com/lunarhue/sidekick/internal/store"
	"github.com/lunarhue/sidekick/internal/store/lite"
	"github.com/lunarhue/sidekick/internal/store/pg"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openStore picks the persistence backend: Postgres when a DSN is set
// in the environment, the local SQLite file otherwise.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.UsePostgres() {
		return pg.Open(ctx, cfg.Database.PostgresDSN)
	}
	return lite.Open(ctx, config.ExpandHome(cfg.Database.Path))
}

// newSlackClient builds the rate-gated workspace client and verifies
// the token. Every command that talks upstream goes through here so
// auth failures surface the same way everywhere.
func newSlackClient(ctx context.Context, cfg *config.Config) (*slackapi.Client, error) {
	if cfg.Slack.Token == "" {
		return nil, fmt.Errorf("SIDEKICK_SLACK_TOKEN environment variable is not set")
	}
	client := slackapi.NewClient(cfg.Slack.BaseURL, cfg.Slack.Token, rategate.NewRegistry())
	if _, err := client.Authenticate(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// newEmbedClient returns the embedding-host client, or nil when no
// host is configured. Callers treat nil as "similarity search off".
func newEmbedClient(cfg *config.Config) *embed.Client {
	if cfg.Embedding.BaseURL == "" {
		return nil
	}
	return embed.NewClient(cfg.Embedding.BaseURL, cfg.Embedding.Model)
}

func entityCacheTTL(cfg *config.Config) time.Duration {
	if cfg.Agent.EntityCacheSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(cfg.Agent.EntityCacheSeconds) * time.Second
}
