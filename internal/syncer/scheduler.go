package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lunarhue/sidekick/internal/slackapi"
	"github.com/lunarhue/sidekick/internal/store"
)

// channelPersistEvery is how many ticks pass between full channel
// metadata writes; the listing itself is refreshed every tick.
const channelPersistEvery = 10

// Lister is the slice of the Slack client the scheduler needs on top
// of the worker's Source.
type Lister interface {
	ListConversations(ctx context.Context) ([]slackapi.Conversation, error)
	ListReminders(ctx context.Context) ([]slackapi.Reminder, error)
	UserID() string
}

// Scheduler drives the periodic sync: every tick it refreshes the
// conversation listing, picks the channels whose latest-message hints
// have moved past their cursors, and fans the syncs out over a bounded
// worker pool.
type Scheduler struct {
	store  store.Store
	lister Lister
	worker *Worker

	interval    time.Duration
	concurrency int64

	tickCount int
}

func NewScheduler(st store.Store, lister Lister, worker *Worker, interval time.Duration, concurrency int) *Scheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	return &Scheduler{
		store:       st,
		lister:      lister,
		worker:      worker,
		interval:    interval,
		concurrency: int64(concurrency),
	}
}

// Run ticks until the context is cancelled. The first tick fires
// immediately. In-flight channel syncs drain before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("sync tick failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one full sync pass.
func (s *Scheduler) Tick(ctx context.Context) error {
	s.tickCount++
	start := time.Now()

	convs, err := s.lister.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	if s.tickCount == 1 || s.tickCount%channelPersistEvery == 0 {
		s.PersistChannels(ctx, convs)
	}

	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	cursors, err := s.store.GetCursorsBatch(ctx, ids)
	if err != nil {
		return fmt.Errorf("get cursors: %w", err)
	}

	pending := s.selectPending(convs, cursors)
	if len(pending) > 0 {
		s.fanOut(ctx, pending)
	}

	if err := s.RefreshReminders(ctx); err != nil {
		slog.Warn("reminder refresh failed", "error", err)
	}

	slog.Info("sync tick complete",
		"tick", s.tickCount,
		"channels", len(convs),
		"synced", len(pending),
		"took", time.Since(start).Round(time.Millisecond))
	return nil
}

type pendingChannel struct {
	conv     slackapi.Conversation
	priority int
}

// selectPending returns the channels that need a sync, most urgent
// first: the self-DM, then DMs, group DMs, anything with unreads, and
// finally the rest.
func (s *Scheduler) selectPending(convs []slackapi.Conversation, cursors map[string]store.SyncCursor) []pendingChannel {
	selfID := s.lister.UserID()
	var pending []pendingChannel

	for _, c := range convs {
		cursor, have := cursors[c.ID]
		if have && !needsSync(c.LatestTs(), cursor.LastTs) {
			continue
		}
		pending = append(pending, pendingChannel{conv: c, priority: channelPriority(c, selfID)})
	}

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].priority < pending[j].priority
	})
	return pending
}

// needsSync reports whether a channel with a stored cursor still needs
// a pull. A missing latest hint only forces a sync when the channel
// was never confirmed empty.
func needsSync(latestHint, lastTs string) bool {
	if lastTs == "" {
		return true
	}
	if latestHint == "" {
		// No hint from the listing: re-check unless the channel was
		// already confirmed empty.
		return lastTs != emptyCursor
	}
	return store.TsAfter(latestHint, lastTs)
}

func channelPriority(c slackapi.Conversation, selfID string) int {
	switch {
	case c.IsIM && c.User == selfID:
		return 0
	case c.IsIM:
		return 1
	case c.IsMPIM:
		return 2
	case c.UnreadCountDisplay > 0:
		return 3
	default:
		return 10
	}
}

func (s *Scheduler) fanOut(ctx context.Context, pending []pendingChannel) {
	sem := semaphore.NewWeighted(s.concurrency)

	for _, p := range pending {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		go func(p pendingChannel) {
			defer sem.Release(1)
			res, err := s.worker.SyncChannel(ctx, p.conv.ID)
			if err != nil {
				// Left channels and missing scopes are a normal state of
				// the workspace, not a sync fault.
				if slackapi.IsChannelInaccessible(err) {
					slog.Warn("channel inaccessible, skipped", "channel", p.conv.ID, "error", err)
					return
				}
				slog.Error("channel sync failed", "channel", p.conv.ID, "error", err)
				return
			}
			if res.NewMessages > 0 {
				slog.Debug("channel synced",
					"channel", p.conv.ID,
					"messages", res.NewMessages,
					"thread_replies", res.ThreadReplies,
					"cursor", res.Cursor)
			}
		}(p)
	}

	// Drain: every in-flight sync finishes before the tick returns.
	_ = sem.Acquire(context.Background(), s.concurrency)
	sem.Release(s.concurrency)
}

// PersistChannels upserts channel metadata for every listed
// conversation. Called on the first tick, every tenth tick after, and
// by the one-shot sweep.
func (s *Scheduler) PersistChannels(ctx context.Context, convs []slackapi.Conversation) {
	selfID := s.lister.UserID()
	for _, c := range convs {
		name := c.Name
		if c.IsIM {
			// For DMs the peer user ID stands in for the name and is
			// resolved at render time.
			name = c.User
		}
		ch := &store.Channel{
			ID:          c.ID,
			Name:        name,
			ChannelType: c.ChannelType(),
			IsArchived:  c.IsArchived,
			IsSelfDM:    c.IsIM && c.User == selfID,
		}
		if err := s.store.UpsertChannel(ctx, ch); err != nil {
			slog.Warn("channel upsert failed", "channel", c.ID, "error", err)
		}
	}
}

// RefreshReminders mirrors upstream reminders into the store.
func (s *Scheduler) RefreshReminders(ctx context.Context) error {
	reminders, err := s.lister.ListReminders(ctx)
	if err != nil {
		return err
	}
	for _, r := range reminders {
		rec := &store.Reminder{
			ID:        r.ID,
			UserID:    r.User,
			Text:      r.Text,
			Recurring: r.Recurring,
		}
		if r.Time > 0 {
			at := time.Unix(r.Time, 0)
			rec.Time = &at
		}
		if r.CompleteTs > 0 {
			done := time.Unix(r.CompleteTs, 0)
			rec.CompleteTs = &done
		}
		if err := s.store.UpsertReminder(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
