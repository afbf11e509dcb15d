// Package syncer keeps the local store mirroring the Slack workspace:
// a scheduler decides which conversations need attention each tick and
// a worker pages their history, drills threads, and advances per
// channel cursors.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lunarhue/sidekick/internal/slackapi"
	"github.com/lunarhue/sidekick/internal/store"
)

// emptyCursor marks a channel that was synced and had no messages, so
// quiet channels are not re-fetched every tick.
const emptyCursor = "0"

// Source is the slice of the Slack client the worker needs.
type Source interface {
	History(ctx context.Context, channelID, oldest string, max int) ([]slackapi.Message, error)
	Replies(ctx context.Context, channelID, threadTs string, max int) ([]slackapi.Message, error)
	UserInfo(ctx context.Context, userID string) (*slackapi.User, error)
}

// Indexer receives newly stored messages for embedding. Nil disables
// indexing.
type Indexer interface {
	Enqueue(messageID int64, text string)
}

// Worker syncs a single channel's history into the store.
type Worker struct {
	store   store.Store
	source  Source
	indexer Indexer

	pageLimit int
	maxPages  int

	mu         sync.Mutex
	knownUsers map[string]struct{}
}

func NewWorker(st store.Store, source Source, indexer Indexer, pageLimit, maxPages int) *Worker {
	if pageLimit <= 0 {
		pageLimit = 200
	}
	if maxPages <= 0 {
		maxPages = 5
	}
	return &Worker{
		store:      st,
		source:     source,
		indexer:    indexer,
		pageLimit:  pageLimit,
		maxPages:   maxPages,
		knownUsers: make(map[string]struct{}),
	}
}

// Result summarizes one channel sync.
type Result struct {
	ChannelID     string
	NewMessages   int
	ThreadReplies int
	Cursor        string
}

// SyncChannel pulls everything strictly newer than the channel's
// cursor, oldest first, drilling into threads that grew. The cursor
// only ever advances.
func (w *Worker) SyncChannel(ctx context.Context, channelID string) (*Result, error) {
	cursor, err := w.store.GetCursor(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("get cursor %s: %w", channelID, err)
	}
	oldest := ""
	if cursor != nil {
		oldest = cursor.LastTs
	}

	history, err := w.source.History(ctx, channelID, oldest, w.pageLimit*w.maxPages)
	if err != nil {
		return nil, fmt.Errorf("fetch history %s: %w", channelID, err)
	}

	// History arrives newest first; persist oldest first so a partial
	// failure never leaves a gap below the cursor.
	msgs := make([]slackapi.Message, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if oldest != "" && !store.TsAfter(m.Ts, oldest) {
			continue
		}
		msgs = append(msgs, m)
	}

	res := &Result{ChannelID: channelID}
	maxTs := oldest

	for _, m := range msgs {
		if err := w.persistMessage(ctx, channelID, m); err != nil {
			return nil, err
		}

		// A parent with replies may have grown since last sync; pull
		// the whole thread (the parent rides along and is re-upserted).
		if m.ReplyCount > 0 && (m.ThreadTs == "" || m.ThreadTs == m.Ts) {
			replies, err := w.syncThread(ctx, channelID, m.Ts)
			if err != nil {
				// The cursor must stay below the failed parent so the
				// next sweep retries the thread. Progress made before it
				// is kept.
				w.saveProgress(ctx, channelID, res, maxTs, oldest)
				return nil, fmt.Errorf("sync thread %s/%s: %w", channelID, m.Ts, err)
			}
			res.ThreadReplies += replies
		}

		res.NewMessages++
		if maxTs == "" || store.TsAfter(m.Ts, maxTs) {
			maxTs = m.Ts
		}
	}

	switch {
	case res.NewMessages > 0:
		res.Cursor = maxTs
		if err := w.store.SetCursor(ctx, channelID, maxTs); err != nil {
			return nil, fmt.Errorf("set cursor %s: %w", channelID, err)
		}
	case cursor == nil:
		// First look at an empty channel: record the sentinel so the
		// scheduler stops treating it as never-synced.
		res.Cursor = emptyCursor
		if err := w.store.SetCursor(ctx, channelID, emptyCursor); err != nil {
			return nil, fmt.Errorf("set cursor %s: %w", channelID, err)
		}
	default:
		res.Cursor = cursor.LastTs
	}
	return res, nil
}

// saveProgress advances the cursor to the last fully synced message of
// an aborted sweep. Best effort: on failure the cursor simply stays
// where it was and the sweep repeats more work next tick.
func (w *Worker) saveProgress(ctx context.Context, channelID string, res *Result, maxTs, oldest string) {
	if res.NewMessages == 0 || maxTs == oldest {
		return
	}
	if err := w.store.SetCursor(ctx, channelID, maxTs); err != nil {
		slog.Warn("cursor save after aborted sweep failed", "channel", channelID, "error", err)
		return
	}
	res.Cursor = maxTs
}

func (w *Worker) syncThread(ctx context.Context, channelID, threadTs string) (int, error) {
	replies, err := w.source.Replies(ctx, channelID, threadTs, 0)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, m := range replies {
		if err := w.persistMessage(ctx, channelID, m); err != nil {
			return count, err
		}
		if m.Ts != threadTs {
			count++
		}
	}
	return count, nil
}

func (w *Worker) persistMessage(ctx context.Context, channelID string, m slackapi.Message) error {
	msg := &store.Message{
		ChannelID:   channelID,
		Ts:          m.Ts,
		UserID:      m.User,
		Text:        m.Text,
		ThreadTs:    m.ThreadTs,
		ReplyCount:  m.ReplyCount,
		IsEdited:    m.Edited != nil,
		MessageType: m.Type,
		CreatedAt:   store.TsTime(m.Ts),
	}
	id, err := w.store.UpsertMessage(ctx, msg)
	if err != nil {
		return fmt.Errorf("upsert message %s/%s: %w", channelID, m.Ts, err)
	}

	reactions := make([]store.Reaction, 0, len(m.Reactions))
	for _, r := range m.Reactions {
		for _, userID := range r.Users {
			reactions = append(reactions, store.Reaction{MessageID: id, Name: r.Name, UserID: userID})
		}
	}
	if err := w.store.ReplaceReactions(ctx, id, reactions); err != nil {
		return fmt.Errorf("replace reactions %s/%s: %w", channelID, m.Ts, err)
	}

	if m.User != "" {
		w.cacheAuthor(ctx, m.User)
	}
	if w.indexer != nil && m.Text != "" {
		w.indexer.Enqueue(id, m.Text)
	}
	return nil
}

// cacheAuthor backfills unseen authors into the user table. Failures
// are logged, not fatal: names degrade to raw IDs at render time.
func (w *Worker) cacheAuthor(ctx context.Context, userID string) {
	w.mu.Lock()
	_, seen := w.knownUsers[userID]
	if !seen {
		w.knownUsers[userID] = struct{}{}
	}
	w.mu.Unlock()
	if seen {
		return
	}

	u, err := w.source.UserInfo(ctx, userID)
	if err != nil {
		slog.Warn("user info fetch failed", "user", userID, "error", err)
		return
	}
	err = w.store.UpsertUser(ctx, &store.User{
		ID:          u.ID,
		Name:        u.Name,
		RealName:    u.RealName,
		DisplayName: u.Profile.DisplayName,
		IsBot:       u.IsBot,
	})
	if err != nil {
		slog.Warn("user upsert failed", "user", userID, "error", err)
	}
}
