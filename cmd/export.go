package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lunarhue/sidekick/internal/store"
)

const exportPageSize = 500

func exportCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the local store as JSONL files (one per table)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "sidekick-export", "output directory")
	return cmd
}

func runExport(dir string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		channels, err := st.ListChannels(ctx)
		if err != nil {
			return err
		}
		i := 0
		n, err := writeJSONL(dir, "channels", func() (any, bool, error) {
			if i >= len(channels) {
				return nil, false, nil
			}
			c := channels[i]
			i++
			return channelRec{ID: c.ID, Name: c.Name, ChannelType: c.ChannelType, IsArchived: c.IsArchived, IsSelfDM: c.IsSelfDM}, true, nil
		})
		logExported("channels", n, err)
		return err
	})

	g.Go(func() error {
		users, err := st.ListUsers(ctx)
		if err != nil {
			return err
		}
		i := 0
		n, err := writeJSONL(dir, "users", func() (any, bool, error) {
			if i >= len(users) {
				return nil, false, nil
			}
			u := users[i]
			i++
			return userRec{ID: u.ID, Name: u.Name, RealName: u.RealName, DisplayName: u.DisplayName, IsBot: u.IsBot}, true, nil
		})
		logExported("users", n, err)
		return err
	})

	// Messages, reactions, and embeddings share one pass over the
	// messages table so each runs in its own file but the page walk
	// stays sequential per goroutine.
	g.Go(func() error { return exportMessages(ctx, st, dir) })
	g.Go(func() error { return exportReactions(ctx, st, dir) })
	g.Go(func() error { return exportEmbeddings(ctx, st, dir, cfg.Embedding.Model) })

	g.Go(func() error {
		cursors, err := st.ListCursors(ctx)
		if err != nil {
			return err
		}
		i := 0
		n, err := writeJSONL(dir, "cursors", func() (any, bool, error) {
			if i >= len(cursors) {
				return nil, false, nil
			}
			c := cursors[i]
			i++
			return cursorRec{ChannelID: c.ChannelID, LastTs: c.LastTs}, true, nil
		})
		logExported("cursors", n, err)
		return err
	})

	g.Go(func() error {
		reminders, err := st.ListReminders(ctx)
		if err != nil {
			return err
		}
		i := 0
		n, err := writeJSONL(dir, "reminders", func() (any, bool, error) {
			if i >= len(reminders) {
				return nil, false, nil
			}
			r := reminders[i]
			i++
			return reminderRec{ID: r.ID, UserID: r.UserID, Text: r.Text, Time: r.Time, CompleteTs: r.CompleteTs, Recurring: r.Recurring}, true, nil
		})
		logExported("reminders", n, err)
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Printf("Export complete: %s\n", dir)
	return nil
}

// eachMessagePage walks the messages table in surrogate-ID order.
func eachMessagePage(ctx context.Context, st store.Store, fn func([]store.Message) error) error {
	afterID := int64(0)
	for {
		page, err := st.ListMessagesPage(ctx, afterID, exportPageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		afterID = page[len(page)-1].ID
	}
}

func exportMessages(ctx context.Context, st store.Store, dir string) error {
	var buf []store.Message
	err := eachMessagePage(ctx, st, func(page []store.Message) error {
		buf = append(buf, page...)
		return nil
	})
	if err != nil {
		return err
	}
	i := 0
	n, err := writeJSONL(dir, "messages", func() (any, bool, error) {
		if i >= len(buf) {
			return nil, false, nil
		}
		m := buf[i]
		i++
		return messageRec{
			ChannelID: m.ChannelID, Ts: m.Ts, UserID: m.UserID, Text: m.Text,
			ThreadTs: m.ThreadTs, ReplyCount: m.ReplyCount, IsEdited: m.IsEdited, MessageType: m.MessageType,
		}, true, nil
	})
	logExported("messages", n, err)
	return err
}

func exportReactions(ctx context.Context, st store.Store, dir string) error {
	var recs []reactionRec
	err := eachMessagePage(ctx, st, func(page []store.Message) error {
		ids := make([]int64, len(page))
		byID := make(map[int64]store.Message, len(page))
		for i, m := range page {
			ids[i] = m.ID
			byID[m.ID] = m
		}
		reactions, err := st.GetReactionsForMessages(ctx, ids)
		if err != nil {
			return err
		}
		for id, rs := range reactions {
			m := byID[id]
			for _, r := range rs {
				recs = append(recs, reactionRec{ChannelID: m.ChannelID, Ts: m.Ts, Name: r.Name, UserID: r.UserID})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	i := 0
	n, err := writeJSONL(dir, "reactions", func() (any, bool, error) {
		if i >= len(recs) {
			return nil, false, nil
		}
		r := recs[i]
		i++
		return r, true, nil
	})
	logExported("reactions", n, err)
	return err
}

func exportEmbeddings(ctx context.Context, st store.Store, dir string, model string) error {
	var recs []embeddingRec
	err := eachMessagePage(ctx, st, func(page []store.Message) error {
		for _, m := range page {
			vec, err := st.GetEmbedding(ctx, m.ID)
			if err != nil {
				return err
			}
			if vec == nil {
				continue
			}
			recs = append(recs, embeddingRec{ChannelID: m.ChannelID, Ts: m.Ts, Model: model, Vector: vec})
		}
		return nil
	})
	if err != nil {
		return err
	}
	i := 0
	n, err := writeJSONL(dir, "embeddings", func() (any, bool, error) {
		if i >= len(recs) {
			return nil, false, nil
		}
		r := recs[i]
		i++
		return r, true, nil
	})
	logExported("embeddings", n, err)
	return err
}

func logExported(table string, n int, err error) {
	if err != nil {
		return
	}
	slog.Info("exported", "table", table, "rows", n)
}
