package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/lunarhue/sidekick/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "First-time setup: write config.json and prepare the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard()
		},
	}
}

func runOnboard() error {
	cfgPath := resolveConfigPath()

	if canAutoOnboard() {
		return runAutoOnboard(cfgPath)
	}
	return runInteractiveOnboard(cfgPath)
}

// canAutoOnboard reports whether the environment carries enough for a
// non-interactive setup (container entrypoints export everything).
func canAutoOnboard() bool {
	if os.Getenv("SIDEKICK_SLACK_TOKEN") == "" {
		return false
	}
	return os.Getenv("SIDEKICK_ANTHROPIC_API_KEY") != "" || os.Getenv("SIDEKICK_OPENAI_API_KEY") != ""
}

// runAutoOnboard performs non-interactive setup from environment
// variables. Secrets stay in the environment; config.json only gets
// the non-secret surface.
func runAutoOnboard(cfgPath string) error {
	fmt.Println("Auto-onboard: environment variables detected, running non-interactive setup...")

	cfg := config.Default()
	// Pull env overlays (base URLs, provider choice, DB path, DSN).
	loaded, err := config.Load(cfgPath)
	if err == nil {
		cfg = loaded
	}

	fmt.Printf("  Provider: %s\n", cfg.DefaultProvider())

	if cfg.UsePostgres() {
		fmt.Print("  Testing Postgres connection...")
		// The database container may still be starting.
		var pingErr error
		for attempt := 1; attempt <= 5; attempt++ {
			pingErr = testStoreConnection(cfg)
			if pingErr == nil {
				break
			}
			if attempt < 5 {
				fmt.Printf(" retry %d/5...", attempt)
				time.Sleep(2 * time.Second)
			}
		}
		if pingErr != nil {
			fmt.Println(" FAILED")
			return pingErr
		}
		fmt.Println(" OK")
	}

	if err := runMigrationsQuiet(); err != nil {
		fmt.Printf("  Migrations failed: %v\n", err)
		fmt.Println("  Continuing without migration (run manually: sidekick migrate up)")
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("  Config saved to %s\n", cfgPath)
	fmt.Println("Auto-onboard complete. Start the daemon with: sidekick daemon")
	return nil
}

// runInteractiveOnboard walks through a terminal form for the
// non-secret settings and prints which env vars still need exporting.
func runInteractiveOnboard(cfgPath string) error {
	cfg := config.Default()

	providerChoice := "anthropic"
	embeddingURL := ""
	pollInterval := fmt.Sprintf("%d", cfg.Slack.PollIntervalSeconds)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Workspace API base URL").
				Description("The Slack-compatible API endpoint to poll.").
				Value(&cfg.Slack.BaseURL),
			huh.NewSelect[string]().
				Title("Default model provider").
				Options(
					huh.NewOption("Anthropic", "anthropic"),
					huh.NewOption("OpenAI", "openai"),
				).
				Value(&providerChoice),
			huh.NewInput().
				Title("Embedding host URL (optional)").
				Description("Local embedding service for similarity search; leave empty to disable.").
				Value(&embeddingURL),
			huh.NewInput().
				Title("Poll interval (seconds)").
				Value(&pollInterval),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	cfg.Providers.Default = providerChoice
	cfg.Embedding.BaseURL = embeddingURL
	if sec, err := time.ParseDuration(pollInterval + "s"); err == nil && sec > 0 {
		cfg.Slack.PollIntervalSeconds = int(sec.Seconds())
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("\nConfig saved to %s\n\n", cfgPath)

	fmt.Println("Secrets are read from the environment only. Export:")
	fmt.Println("  SIDEKICK_SLACK_TOKEN       workspace token (required)")
	if providerChoice == "openai" {
		fmt.Println("  SIDEKICK_OPENAI_API_KEY    model provider key (required)")
	} else {
		fmt.Println("  SIDEKICK_ANTHROPIC_API_KEY model provider key (required)")
	}
	fmt.Println("  SIDEKICK_POSTGRES_DSN      optional; omit to use local SQLite")
	fmt.Println("\nThen run: sidekick migrate up && sidekick sync")
	return nil
}

func testStoreConnection(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	return st.Close()
}

func runMigrationsQuiet() error {
	fmt.Print("  Running migrations...")
	m, err := newMigrator()
	if err != nil {
		fmt.Println()
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		fmt.Println()
		return err
	}
	v, _, _ := m.Version()
	fmt.Printf(" OK (version: %d)\n", v)
	return nil
}
