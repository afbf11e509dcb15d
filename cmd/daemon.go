package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lunarhue/sidekick/internal/config"
	"github.com/lunarhue/sidekick/internal/embed"
	"github.com/lunarhue/sidekick/internal/jobs"
	"github.com/lunarhue/sidekick/internal/prefs"
	"github.com/lunarhue/sidekick/internal/session"
	"github.com/lunarhue/sidekick/internal/syncer"
	"github.com/lunarhue/sidekick/internal/telemetry"
)

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the sync daemon (poll workspace, keep the local store fresh)",
		Run: func(cmd *cobra.Command, args []string) {
			runDaemon()
		},
	}
}

func runDaemon() {
	if err := daemonMain(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func daemonMain() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := newSlackClient(ctx, cfg)
	if err != nil {
		return err
	}
	slog.Info("daemon starting", "version", Version, "user_id", client.UserID(), "postgres", cfg.UsePostgres())

	g, ctx := errgroup.WithContext(ctx)
	runner := jobs.NewRunner()

	var indexer syncer.Indexer
	if embedClient := newEmbedClient(cfg); embedClient != nil {
		ix := embed.NewIndexer(embedClient, st, 0)
		indexer = ix
		g.Go(func() error {
			if err := ix.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("embedding indexer: %w", err)
			}
			return nil
		})

		if cfg.Jobs.EmbeddingBackfill != "" {
			err := runner.Add("embedding-backfill", cfg.Jobs.EmbeddingBackfill, func(ctx context.Context) error {
				n, err := embed.Backfill(ctx, embedClient, st, 0)
				if n > 0 {
					slog.Info("embedding backfill", "embedded", n)
				}
				return err
			})
			if err != nil {
				return err
			}
		}
	}

	worker := syncer.NewWorker(st, client, indexer, cfg.Slack.HistoryPageLimit, cfg.Slack.MaxHistoryPages)
	sched := syncer.NewScheduler(st, client, worker, cfg.Slack.PollInterval(), cfg.Slack.SyncConcurrency)
	g.Go(func() error {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})

	// Acknowledgment-emoji and rule edits take effect without restart:
	// status composition re-reads preferences on every call, the watcher
	// just surfaces external edits in the log.
	prefStore := prefs.NewStorage(config.ExpandHome(cfg.Storage.PreferencesDir))
	g.Go(func() error {
		err := prefs.Watch(ctx, prefStore, func(p *prefs.Preferences) {
			slog.Info("preferences reloaded", "rules", len(p.Rules), "facts", len(p.Facts), "ack_emojis", len(p.AcknowledgmentEmojis()))
		})
		if err != nil && ctx.Err() == nil {
			slog.Warn("preferences watcher stopped", "error", err)
		}
		return nil
	})

	if cfg.Jobs.ArchivePrune != "" {
		keepDays := cfg.Jobs.ArchiveKeepDays
		if keepDays <= 0 {
			keepDays = 90
		}
		sessions := session.NewStorage(config.ExpandHome(cfg.Storage.SessionsDir))
		err := runner.Add("archive-prune", cfg.Jobs.ArchivePrune, func(context.Context) error {
			n, err := sessions.PruneArchives(time.Duration(keepDays) * 24 * time.Hour)
			if n > 0 {
				slog.Info("session archives pruned", "removed", n, "keep_days", keepDays)
			}
			return err
		})
		if err != nil {
			return err
		}
	}
	if runner.Len() > 0 {
		g.Go(func() error {
			if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("jobs runner: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	if err == nil || ctx.Err() != nil {
		slog.Info("daemon stopped")
		return nil
	}
	return err
}
