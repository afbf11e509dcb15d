package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lunarhue/sidekick/internal/store"
)

func importCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import JSONL files produced by export into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "sidekick-export", "input directory")
	return cmd
}

// runImport replays an export through the store's upserts, so
// re-importing is idempotent. Channels, users, and messages go first;
// the tables that reference messages by natural key follow in
// parallel.
func runImport(dir string) error {
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

	n, err := readJSONL(dir, "channels", func(rec channelRec) error {
		return st.UpsertChannel(ctx, &store.Channel{
			ID: rec.ID, Name: rec.Name, ChannelType: rec.ChannelType,
			IsArchived: rec.IsArchived, IsSelfDM: rec.IsSelfDM,
		})
	})
	if err != nil {
		return fmt.Errorf("import channels: %w", err)
	}
	slog.Info("imported", "table", "channels", "rows", n)

	n, err = readJSONL(dir, "users", func(rec userRec) error {
		return st.UpsertUser(ctx, &store.User{
			ID: rec.ID, Name: rec.Name, RealName: rec.RealName,
			DisplayName: rec.DisplayName, IsBot: rec.IsBot,
		})
	})
	if err != nil {
		return fmt.Errorf("import users: %w", err)
	}
	slog.Info("imported", "table", "users", "rows", n)

	n, err = readJSONL(dir, "messages", func(rec messageRec) error {
		_, err := st.UpsertMessage(ctx, &store.Message{
			ChannelID: rec.ChannelID, Ts: rec.Ts, UserID: rec.UserID, Text: rec.Text,
			ThreadTs: rec.ThreadTs, ReplyCount: rec.ReplyCount, IsEdited: rec.IsEdited,
			MessageType: rec.MessageType,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("import messages: %w", err)
	}
	slog.Info("imported", "table", "messages", "rows", n)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Reactions replace per message, so group lines by message.
		grouped := make(map[string][]store.Reaction)
		idByKey := make(map[string]int64)
		n, err := readJSONL(dir, "reactions", func(rec reactionRec) error {
			key := rec.ChannelID + ":" + rec.Ts
			id, ok := idByKey[key]
			if !ok {
				m, err := st.GetMessage(ctx, rec.ChannelID, rec.Ts)
				if err != nil {
					return err
				}
				if m == nil {
					slog.Warn("reaction for unknown message skipped", "channel", rec.ChannelID, "ts", rec.Ts)
					return nil
				}
				id = m.ID
				idByKey[key] = id
			}
			grouped[key] = append(grouped[key], store.Reaction{MessageID: id, Name: rec.Name, UserID: rec.UserID})
			return nil
		})
		if err != nil {
			return fmt.Errorf("import reactions: %w", err)
		}
		for key, reactions := range grouped {
			if err := st.ReplaceReactions(ctx, idByKey[key], reactions); err != nil {
				return fmt.Errorf("import reactions: %w", err)
			}
		}
		slog.Info("imported", "table", "reactions", "rows", n)
		return nil
	})

	g.Go(func() error {
		model := cfg.Embedding.Model
		n, err := readJSONL(dir, "embeddings", func(rec embeddingRec) error {
			m, err := st.GetMessage(ctx, rec.ChannelID, rec.Ts)
			if err != nil {
				return err
			}
			if m == nil {
				slog.Warn("embedding for unknown message skipped", "channel", rec.ChannelID, "ts", rec.Ts)
				return nil
			}
			recModel := rec.Model
			if recModel == "" {
				recModel = model
			}
			return st.UpsertEmbedding(ctx, m.ID, rec.Vector, recModel)
		})
		if err != nil {
			return fmt.Errorf("import embeddings: %w", err)
		}
		slog.Info("imported", "table", "embeddings", "rows", n)
		return nil
	})

	g.Go(func() error {
		n, err := readJSONL(dir, "cursors", func(rec cursorRec) error {
			return st.SetCursor(ctx, rec.ChannelID, rec.LastTs)
		})
		if err != nil {
			return fmt.Errorf("import cursors: %w", err)
		}
		slog.Info("imported", "table", "cursors", "rows", n)
		return nil
	})

	g.Go(func() error {
		n, err := readJSONL(dir, "reminders", func(rec reminderRec) error {
			return st.UpsertReminder(ctx, &store.Reminder{
				ID: rec.ID, UserID: rec.UserID, Text: rec.Text,
				Time: rec.Time, CompleteTs: rec.CompleteTs, Recurring: rec.Recurring,
			})
		})
		if err != nil {
			return fmt.Errorf("import reminders: %w", err)
		}
		slog.Info("imported", "table", "reminders", "rows", n)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Printf("Import complete: %s\n", dir)
	return nil
}
