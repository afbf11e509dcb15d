package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lunarhue/sidekick/internal/embed"
	"github.com/lunarhue/sidekick/internal/syncer"
)

func syncCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one full workspace sweep and exit (initial backfill)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(concurrency)
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "parallel channel syncs (default from config)")
	return cmd
}

func runSync(concurrency int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if concurrency <= 0 {
		concurrency = cfg.Slack.SyncConcurrency
	}
	if concurrency <= 0 {
		concurrency = 10
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := newSlackClient(ctx, cfg)
	if err != nil {
		return err
	}

	var indexer syncer.Indexer
	if embedClient := newEmbedClient(cfg); embedClient != nil {
		ix := embed.NewIndexer(embedClient, st, 0)
		indexer = ix
		defer ix.Flush(context.Background())
	}

	worker := syncer.NewWorker(st, client, indexer, cfg.Slack.HistoryPageLimit, cfg.Slack.MaxHistoryPages)
	sched := syncer.NewScheduler(st, client, worker, cfg.Slack.PollInterval(), concurrency)

	convs, err := client.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	sched.PersistChannels(ctx, convs)
	if err := sched.RefreshReminders(ctx); err != nil {
		slog.Warn("reminder refresh failed", "error", err)
	}

	type channelResult struct {
		id       string
		name     string
		messages int
		replies  int
	}
	var (
		mu      sync.Mutex
		results []channelResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, conv := range convs {
		conv := conv
		g.Go(func() error {
			res, err := worker.SyncChannel(gctx, conv.ID)
			if err != nil {
				slog.Warn("channel sync failed", "channel", conv.ID, "error", err)
				return nil
			}
			mu.Lock()
			results = append(results, channelResult{
				id:       conv.ID,
				name:     conv.Name,
				messages: res.NewMessages,
				replies:  res.ThreadReplies,
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].messages != results[j].messages {
			return results[i].messages > results[j].messages
		}
		return results[i].id < results[j].id
	})

	total, totalReplies := 0, 0
	for _, r := range results {
		total += r.messages
		totalReplies += r.replies
		if r.messages == 0 && r.replies == 0 {
			continue
		}
		label := r.name
		if label == "" {
			label = r.id
		}
		fmt.Printf("  %-30s %5d messages  %4d thread replies\n", label, r.messages, r.replies)
	}
	fmt.Printf("Synced %d channels: %d messages, %d thread replies\n", len(results), total, totalReplies)
	return nil
}
