package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lunarhue/sidekick/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, connectivity, and store health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("sidekick doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Workspace token and auth.
	fmt.Println()
	fmt.Println("  Workspace:")
	if cfg.Slack.Token == "" {
		fmt.Printf("    %-12s FAIL (SIDEKICK_SLACK_TOKEN not set)\n", "Token:")
	} else {
		fmt.Printf("    %-12s %s\n", "Token:", maskSecret(cfg.Slack.Token))
		if client, err := newSlackClient(ctx, cfg); err != nil {
			fmt.Printf("    %-12s FAIL (%s)\n", "Auth:", err)
		} else {
			fmt.Printf("    %-12s PASS (%s @ %s)\n", "Auth:", client.UserName(), client.TeamID())
		}
	}

	// Store.
	fmt.Println()
	fmt.Println("  Database:")
	if cfg.UsePostgres() {
		fmt.Printf("    %-12s postgres (%s)\n", "Backend:", redactDSN(cfg.Database.PostgresDSN))
	} else {
		fmt.Printf("    %-12s sqlite (%s)\n", "Backend:", config.ExpandHome(cfg.Database.Path))
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Printf("    %-12s FAIL (%s)\n", "Connect:", err)
	} else {
		defer st.Close()
		fmt.Printf("    %-12s PASS\n", "Connect:")
		if channels, err := st.ListChannels(ctx); err != nil {
			fmt.Printf("    %-12s FAIL (%s — run: sidekick migrate up)\n", "Schema:", err)
		} else {
			fmt.Printf("    %-12s PASS (%d channels synced)\n", "Schema:", len(channels))
		}
		if total, embedded, err := st.EmbeddingStats(ctx); err == nil && total > 0 {
			fmt.Printf("    %-12s %d/%d messages embedded\n", "Vectors:", embedded, total)
		}
	}

	// Providers.
	fmt.Println()
	fmt.Println("  Providers:")
	checkProviderKey("Anthropic", cfg.Providers.Anthropic.APIKey)
	checkProviderKey("OpenAI", cfg.Providers.OpenAI.APIKey)
	fmt.Printf("    %-12s %s\n", "Default:", cfg.DefaultProvider())

	// Embedding host.
	fmt.Println()
	fmt.Println("  Embedding:")
	if cfg.Embedding.BaseURL == "" {
		fmt.Printf("    %-12s (not configured — similarity search off)\n", "Host:")
	} else if client := newEmbedClient(cfg); client != nil {
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if _, err := client.Embed(pingCtx, []string{"ping"}); err != nil {
			fmt.Printf("    %-12s FAIL (%s)\n", "Host:", err)
		} else {
			fmt.Printf("    %-12s PASS (%s, model %s)\n", "Host:", cfg.Embedding.BaseURL, client.Model())
		}
		pingCancel()
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkProviderKey(name, apiKey string) {
	if apiKey != "" {
		fmt.Printf("    %-12s %s\n", name+":", maskSecret(apiKey))
	} else {
		fmt.Printf("    %-12s (not configured)\n", name+":")
	}
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
