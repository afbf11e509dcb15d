package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lunarhue/sidekick/internal/format"
	"github.com/lunarhue/sidekick/internal/prefs"
	"github.com/lunarhue/sidekick/internal/store"
)

// Priority labels in descending urgency.
const (
	PriorityCritical = "CRITICAL"
	PriorityHigh     = "HIGH"
	PriorityMedium   = "MEDIUM"
	PriorityLow      = "LOW"
)

var priorityRank = map[string]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
}

// StatusItem is one attention item in the composed digest.
type StatusItem struct {
	Priority    string
	ChannelID   string
	ChannelName string
	UserID      string
	UserName    string
	Text        string
	Ts          string
	ThreadTs    string
	Link        string
	Reason      string
}

// Key returns the "channel:ts" identity of the item.
func (i StatusItem) Key() string {
	return i.ChannelID + ":" + i.Ts
}

// StatusReport is the full digest: prioritized items plus pending
// reminders.
type StatusReport struct {
	GeneratedAt time.Time
	Items       []StatusItem
	Reminders   []store.Reminder
}

// ComposeOptions bounds a status composition.
type ComposeOptions struct {
	HoursBack        int
	IncludeProcessed bool
}

// ProcessedFilter reports whether a "channel:ts" key was already
// handled this session. The session state implements it.
type ProcessedFilter interface {
	IsItemProcessed(channelID, messageTs string) bool
}

// StatusService composes the prioritized digest from synced data:
// mentions, DMs, and thread activity, overlaid with the user's own
// reply and acknowledgment signals.
type StatusService struct {
	store    store.Store
	resolver *format.Resolver
	prefs    *prefs.Storage
	userID   string
	linkHost string
}

func NewStatusService(st store.Store, resolver *format.Resolver, prefStore *prefs.Storage, userID, linkHost string) *StatusService {
	return &StatusService{
		store:    st,
		resolver: resolver,
		prefs:    prefStore,
		userID:   userID,
		linkHost: linkHost,
	}
}

// Compose builds the digest. filter may be nil (no session filtering).
func (s *StatusService) Compose(ctx context.Context, opts ComposeOptions, filter ProcessedFilter) (*StatusReport, error) {
	hours := opts.HoursBack
	if hours <= 0 {
		hours = 24
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	var items []StatusItem
	seen := map[string]struct{}{}
	seenThreads := map[string]struct{}{}

	// Mentions first. A mention the user already replied to in-thread
	// drops to LOW instead of disappearing.
	mentions, err := s.store.GetUnreadMentions(ctx, s.userID, since)
	if err != nil {
		return nil, fmt.Errorf("get mentions: %w", err)
	}
	contexts := make([]store.ThreadContext, 0, len(mentions))
	for _, m := range mentions {
		contexts = append(contexts, store.ThreadContext{
			ChannelID: m.ChannelID,
			ThreadTs:  m.EffectiveThreadTs(),
			MentionTs: m.Ts,
		})
	}
	replied, err := s.store.GetUserReplyStatusBatch(ctx, s.userID, contexts)
	if err != nil {
		return nil, fmt.Errorf("get reply status: %w", err)
	}
	for _, m := range mentions {
		item := s.newItem(m, PriorityCritical, "direct mention of you")
		threadKey := m.ChannelID + ":" + m.EffectiveThreadTs()
		if replied[threadKey] {
			item.Priority = PriorityLow
			item.Reason = "direct mention (you already replied)"
		}
		items = append(items, item)
		seen[item.Key()] = struct{}{}
		seenThreads[threadKey] = struct{}{}
	}

	// DMs from others. Own messages are skipped except in the self-DM
	// channel, which doubles as a notes-to-self inbox.
	dms, err := s.store.GetDMMessages(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("get dm messages: %w", err)
	}
	dmChannels, err := s.channelsByID(ctx, dms)
	if err != nil {
		return nil, err
	}
	for _, m := range dms {
		if _, dup := seen[m.Key()]; dup {
			continue
		}
		ch := dmChannels[m.ChannelID]
		if m.UserID == s.userID && (ch == nil || !ch.IsSelfDM) {
			continue
		}
		reason := "direct message"
		if ch != nil && ch.IsSelfDM {
			reason = "note in your self-DM"
		}
		item := s.newItem(m, PriorityHigh, reason)
		items = append(items, item)
		seen[item.Key()] = struct{}{}
	}

	// Thread activity, one item per thread.
	threads, err := s.store.GetThreadsWithReplies(ctx, s.userID, since)
	if err != nil {
		return nil, fmt.Errorf("get thread replies: %w", err)
	}
	for _, tr := range threads {
		if _, dup := seen[tr.Key()]; dup {
			continue
		}
		threadKey := tr.ChannelID + ":" + tr.EffectiveThreadTs()
		if _, dup := seenThreads[threadKey]; dup {
			continue
		}
		item := s.newItem(tr.Message, PriorityMedium, "new reply in a thread you participated in")
		items = append(items, item)
		seen[item.Key()] = struct{}{}
		seenThreads[threadKey] = struct{}{}
	}

	// Acknowledgment overlay: items the user reacted to with a
	// handled-marking emoji drop to LOW.
	if err := s.applyAcknowledgments(ctx, items); err != nil {
		return nil, err
	}

	if filter != nil && !opts.IncludeProcessed {
		kept := items[:0]
		for _, it := range items {
			if filter.IsItemProcessed(it.ChannelID, it.Ts) {
				continue
			}
			if it.ThreadTs != "" && filter.IsItemProcessed(it.ChannelID, it.ThreadTs) {
				continue
			}
			kept = append(kept, it)
		}
		items = kept
	}

	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := priorityRank[items[i].Priority], priorityRank[items[j].Priority]
		if ri != rj {
			return ri < rj
		}
		return store.CompareTs(items[i].Ts, items[j].Ts) > 0
	})

	if err := s.resolveNames(ctx, items); err != nil {
		return nil, err
	}

	reminders, err := s.store.GetPendingReminders(ctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("get reminders: %w", err)
	}

	return &StatusReport{
		GeneratedAt: time.Now(),
		Items:       items,
		Reminders:   reminders,
	}, nil
}

func (s *StatusService) newItem(m store.Message, priority, reason string) StatusItem {
	threadTs := ""
	if m.IsThreadReply() {
		threadTs = m.ThreadTs
	}
	return StatusItem{
		Priority:  priority,
		ChannelID: m.ChannelID,
		UserID:    m.UserID,
		Text:      m.Text,
		Ts:        m.Ts,
		ThreadTs:  threadTs,
		Link:      buildLink(s.linkHost, m.ChannelID, m.Ts, m.ThreadTs),
		Reason:    reason,
	}
}

func (s *StatusService) channelsByID(ctx context.Context, msgs []store.Message) (map[string]*store.Channel, error) {
	idSet := map[string]struct{}{}
	for _, m := range msgs {
		idSet[m.ChannelID] = struct{}{}
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	channels, err := s.store.GetChannelsBatch(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get channels: %w", err)
	}
	byID := make(map[string]*store.Channel, len(channels))
	for i := range channels {
		byID[channels[i].ID] = &channels[i]
	}
	return byID, nil
}

func (s *StatusService) applyAcknowledgments(ctx context.Context, items []StatusItem) error {
	prefsState := s.prefs.Load()
	allowlist := prefsState.AcknowledgmentEmojis()
	if len(allowlist) == 0 || len(items) == 0 {
		return nil
	}

	refs := make([]store.ItemRef, 0, len(items))
	for _, it := range items {
		refs = append(refs, store.ItemRef{ChannelID: it.ChannelID, Ts: it.Ts})
	}
	acked, err := s.store.GetUserReactionsOnItems(ctx, s.userID, refs, allowlist)
	if err != nil {
		return fmt.Errorf("get acknowledgment reactions: %w", err)
	}

	for i := range items {
		emojis := acked[items[i].Key()]
		if len(emojis) == 0 {
			continue
		}
		tags := make([]string, len(emojis))
		for j, e := range emojis {
			tags[j] = ":" + e + ":"
		}
		items[i].Priority = PriorityLow
		items[i].Reason += fmt.Sprintf(" (acknowledged with %s)", strings.Join(tags, ", "))
	}
	return nil
}

func (s *StatusService) resolveNames(ctx context.Context, items []StatusItem) error {
	entities := format.NewEntities()
	for _, it := range items {
		entities.AddUser(it.UserID)
		entities.AddChannel(it.ChannelID)
		entities.Merge(format.Collect(it.Text))
	}
	fctx, err := s.resolver.Resolve(ctx, entities)
	if err != nil {
		return fmt.Errorf("resolve names: %w", err)
	}
	for i := range items {
		items[i].UserName = fctx.UserName(items[i].UserID)
		items[i].ChannelName = fctx.ChannelName(items[i].ChannelID)
		items[i].Text = format.FormatText(items[i].Text, fctx.Users, fctx.Channels)
	}
	return nil
}
