package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lunarhue/sidekick/internal/format"
	"github.com/lunarhue/sidekick/internal/slackapi"
	"github.com/lunarhue/sidekick/internal/store"
)

// ThreadTool fetches a full thread, addressed either by channel and
// thread ts or by a message permalink.
type ThreadTool struct {
	deps *Deps
}

func (t *ThreadTool) Name() string { return "get_thread" }

func (t *ThreadTool) Description() string {
	return "Fetch all messages in a thread, with reactions. Address the thread by channel_id and thread_ts, or by a message_link permalink. Set refresh_reactions to pull current reactions from the Slack API."
}

func (t *ThreadTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"channel_id": map[string]any{
				"type":        "string",
				"description": "Channel ID (e.g. C0123456789)",
			},
			"thread_ts": map[string]any{
				"type":        "string",
				"description": "Thread parent timestamp (e.g. 1700000000.000100)",
			},
			"message_link": map[string]any{
				"type":        "string",
				"description": "Slack message permalink, used instead of channel_id/thread_ts",
			},
			"refresh_reactions": map[string]any{
				"type":        "boolean",
				"description": "Fetch current reactions live from the Slack API",
				"default":     false,
			},
		},
		"required": []string{},
	}
}

func (t *ThreadTool) Execute(ctx context.Context, args map[string]any) *Result {
	channelID := stringArg(args, "channel_id")
	threadTs := stringArg(args, "thread_ts")

	if link := stringArg(args, "message_link"); link != "" {
		chID, ts, ok := slackapi.ParseMessageLink(link)
		if !ok {
			return ErrorResult(fmt.Sprintf("could not parse message link: %s", link))
		}
		channelID, threadTs = chID, ts
	}
	if channelID == "" || threadTs == "" {
		return ErrorResult("provide channel_id and thread_ts, or a message_link")
	}

	// A link may point at a reply; walk up to the thread parent.
	if m, err := t.deps.Store.GetMessage(ctx, channelID, threadTs); err == nil && m != nil {
		threadTs = m.EffectiveThreadTs()
	}

	msgs, err := t.deps.Store.GetThreadMessages(ctx, channelID, threadTs)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to load thread: %v", err)).WithError(err)
	}

	reactionsSource := "none"
	reactionsByTs := map[string]map[string][]string{} // ts → emoji → user IDs

	if boolArg(args, "refresh_reactions", false) || len(msgs) == 0 {
		live, err := t.deps.Slack.Replies(ctx, channelID, threadTs, 0)
		if err != nil {
			if len(msgs) == 0 {
				return ErrorResult(fmt.Sprintf("thread not in database and live fetch failed: %v", err)).WithError(err)
			}
		} else {
			t.persistLive(ctx, channelID, live)
			if len(msgs) == 0 {
				msgs = liveToStoreMessages(channelID, live)
			}
			for _, lm := range live {
				if len(lm.Reactions) == 0 {
					continue
				}
				byEmoji := map[string][]string{}
				for _, r := range lm.Reactions {
					byEmoji[r.Name] = append(byEmoji[r.Name], r.Users...)
				}
				reactionsByTs[lm.Ts] = byEmoji
			}
			if len(reactionsByTs) > 0 {
				reactionsSource = "live_api"
			}
		}
	}

	if reactionsSource == "none" {
		ids := make([]int64, 0, len(msgs))
		byID := make(map[int64]string, len(msgs))
		for _, m := range msgs {
			if m.ID != 0 {
				ids = append(ids, m.ID)
				byID[m.ID] = m.Ts
			}
		}
		stored, err := t.deps.Store.GetReactionsForMessages(ctx, ids)
		if err != nil {
			return ErrorResult(fmt.Sprintf("failed to load reactions: %v", err)).WithError(err)
		}
		for id, reactions := range stored {
			byEmoji := map[string][]string{}
			for _, r := range reactions {
				byEmoji[r.Name] = append(byEmoji[r.Name], r.UserID)
			}
			if len(byEmoji) > 0 {
				reactionsByTs[byID[id]] = byEmoji
			}
		}
		if len(reactionsByTs) > 0 {
			reactionsSource = "database"
		}
	}

	if len(msgs) == 0 {
		return ErrorResult(fmt.Sprintf("no messages found for thread %s in %s", threadTs, channelID))
	}

	entities := format.NewEntities()
	entities.AddChannel(channelID)
	for _, m := range msgs {
		entities.AddUser(m.UserID)
		entities.Merge(format.Collect(m.Text))
	}
	for _, byEmoji := range reactionsByTs {
		for _, users := range byEmoji {
			for _, id := range users {
				entities.AddUser(id)
			}
		}
	}
	fctx, err := t.deps.Resolver.Resolve(ctx, entities)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to resolve names: %v", err)).WithError(err)
	}

	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		entry := map[string]any{
			"user":      fctx.UserName(m.UserID),
			"user_id":   m.UserID,
			"text":      format.FormatText(m.Text, fctx.Users, fctx.Channels),
			"timestamp": store.TsTime(m.Ts).Format(time.RFC3339),
			"is_parent": m.Ts == threadTs,
			"link":      buildLink(t.deps.LinkHost, channelID, m.Ts, m.ThreadTs),
		}
		if byEmoji, ok := reactionsByTs[m.Ts]; ok {
			named := map[string][]string{}
			for emoji, users := range byEmoji {
				for _, id := range users {
					named[emoji] = append(named[emoji], fctx.UserName(id))
				}
			}
			entry["reactions"] = named
		}
		out = append(out, entry)
	}

	return JSONResult(map[string]any{
		"channel_id":       channelID,
		"channel_name":     fctx.ChannelName(channelID),
		"thread_ts":        threadTs,
		"count":            len(out),
		"link":             buildLink(t.deps.LinkHost, channelID, threadTs, ""),
		"messages":         out,
		"reactions_source": reactionsSource,
	})
}

// persistLive writes live replies and their reactions back to the
// store, so a refreshed thread also repairs the synced copy. Best
// effort: the tool still renders the live data if a write fails.
func (t *ThreadTool) persistLive(ctx context.Context, channelID string, live []slackapi.Message) {
	for _, lm := range live {
		msg := &store.Message{
			ChannelID:   channelID,
			Ts:          lm.Ts,
			UserID:      lm.User,
			Text:        lm.Text,
			ThreadTs:    lm.ThreadTs,
			ReplyCount:  lm.ReplyCount,
			IsEdited:    lm.Edited != nil,
			MessageType: lm.Type,
			CreatedAt:   store.TsTime(lm.Ts),
		}
		id, err := t.deps.Store.UpsertMessage(ctx, msg)
		if err != nil {
			slog.Warn("live thread upsert failed", "channel", channelID, "ts", lm.Ts, "error", err)
			continue
		}
		reactions := make([]store.Reaction, 0, len(lm.Reactions))
		for _, r := range lm.Reactions {
			for _, userID := range r.Users {
				reactions = append(reactions, store.Reaction{MessageID: id, Name: r.Name, UserID: userID})
			}
		}
		if err := t.deps.Store.ReplaceReactions(ctx, id, reactions); err != nil {
			slog.Warn("live thread reactions update failed", "channel", channelID, "ts", lm.Ts, "error", err)
		}
	}
}

func liveToStoreMessages(channelID string, live []slackapi.Message) []store.Message {
	out := make([]store.Message, 0, len(live))
	for _, lm := range live {
		out = append(out, store.Message{
			ChannelID:  channelID,
			Ts:         lm.Ts,
			UserID:     lm.User,
			Text:       lm.Text,
			ThreadTs:   lm.ThreadTs,
			ReplyCount: lm.ReplyCount,
			CreatedAt:  store.TsTime(lm.Ts),
		})
	}
	return out
}
