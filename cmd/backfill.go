package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/lunarhue/sidekick/internal/embed"
)

func backfillCmd() *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed every stored message that has no vector yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(batch)
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 0, "texts per embedding request (default 32)")
	return cmd
}

func runBackfill(batch int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := newEmbedClient(cfg)
	if client == nil {
		return fmt.Errorf("no embedding host configured (set embedding.base_url or SIDEKICK_EMBEDDING_URL)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	done, err := embed.Backfill(ctx, client, st, batch)
	if err != nil {
		return fmt.Errorf("backfill stopped after %d messages: %w", done, err)
	}

	total, embedded, statsErr := st.EmbeddingStats(ctx)
	if statsErr == nil {
		fmt.Printf("Backfill complete: %d newly embedded, %d/%d messages covered\n", done, embedded, total)
	} else {
		fmt.Printf("Backfill complete: %d newly embedded\n", done)
	}
	return nil
}
