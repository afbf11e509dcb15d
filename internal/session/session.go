// Package session tracks what the assistant has already shown and
// analyzed during one working session, so resumed conversations don't
// re-surface handled items. State is a JSON file under the per-user
// state directory; stale sessions are archived by date.
package session

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Disposition records how the user handled a processed item.
type Disposition string

const (
	Reviewed Disposition = "reviewed"
	Deferred Disposition = "deferred"
	ActedOn  Disposition = "acted_on"
)

// ProcessedItem is a message or thread the user dealt with in this
// session.
type ProcessedItem struct {
	ChannelID   string      `json:"channel_id"`
	MessageTs   string      `json:"message_ts"`
	ThreadTs    string      `json:"thread_ts,omitempty"`
	Disposition Disposition `json:"disposition"`
	ProcessedAt string      `json:"processed_at"`
	Notes       string      `json:"notes,omitempty"`
}

// Key is the "channel:ts" identity of the item.
func (p ProcessedItem) Key() string {
	return p.ChannelID + ":" + p.MessageTs
}

// AnalyzedItem is the model's recorded analysis of one message.
type AnalyzedItem struct {
	ChannelID    string `json:"channel_id"`
	MessageTs    string `json:"message_ts"`
	ThreadTs     string `json:"thread_ts,omitempty"`
	Priority     string `json:"priority"` // CRITICAL, HIGH, MEDIUM, LOW
	Summary      string `json:"summary"`
	ActionNeeded string `json:"action_needed,omitempty"`
	ContextNotes string `json:"context_notes,omitempty"`
	AnalyzedAt   string `json:"analyzed_at"`
}

func (a AnalyzedItem) Key() string {
	return a.ChannelID + ":" + a.MessageTs
}

// ConversationSummary captures where a conversation left off.
type ConversationSummary struct {
	SummaryText      string   `json:"summary_text"`
	KeyTopics        []string `json:"key_topics,omitempty"`
	PendingFollowUps []string `json:"pending_follow_ups,omitempty"`
}

// State is the complete persisted session.
type State struct {
	SessionID           string               `json:"session_id"`
	StartedAt           string               `json:"started_at"`
	LastActivityAt      string               `json:"last_activity_at"`
	ProcessedItems      []ProcessedItem      `json:"processed_items"`
	AnalyzedItems       []AnalyzedItem       `json:"analyzed_items"`
	ConversationSummary *ConversationSummary `json:"conversation_summary,omitempty"`
	CurrentFocus        string               `json:"current_focus,omitempty"`
}

func nowStamp() string {
	return time.Now().Format(time.RFC3339)
}

// NewState creates a fresh session with a short random ID.
func NewState() *State {
	now := nowStamp()
	return &State{
		SessionID:      uuid.NewString()[:8],
		StartedAt:      now,
		LastActivityAt: now,
	}
}

// Touch updates the last-activity timestamp.
func (s *State) Touch() {
	s.LastActivityAt = nowStamp()
}

// AddProcessedItem records an item as handled. Adding the same
// (channel, ts) key twice keeps the first entry (idempotent).
func (s *State) AddProcessedItem(channelID, messageTs string, disposition Disposition, threadTs, notes string) ProcessedItem {
	key := channelID + ":" + messageTs
	for _, it := range s.ProcessedItems {
		if it.Key() == key {
			return it
		}
	}
	item := ProcessedItem{
		ChannelID:   channelID,
		MessageTs:   messageTs,
		ThreadTs:    threadTs,
		Disposition: disposition,
		ProcessedAt: nowStamp(),
		Notes:       notes,
	}
	s.ProcessedItems = append(s.ProcessedItems, item)
	s.Touch()
	return item
}

// ProcessedKeys returns the set of processed "channel:ts" keys.
func (s *State) ProcessedKeys() map[string]struct{} {
	keys := make(map[string]struct{}, len(s.ProcessedItems))
	for _, it := range s.ProcessedItems {
		keys[it.Key()] = struct{}{}
	}
	return keys
}

// IsItemProcessed reports whether (channelID, messageTs) was handled.
func (s *State) IsItemProcessed(channelID, messageTs string) bool {
	key := channelID + ":" + messageTs
	for _, it := range s.ProcessedItems {
		if it.Key() == key {
			return true
		}
	}
	return false
}

// AddAnalyzedItem upserts an analysis by (channel, ts) key: a second
// analysis of the same message replaces the first.
func (s *State) AddAnalyzedItem(item AnalyzedItem) AnalyzedItem {
	item.AnalyzedAt = nowStamp()
	key := item.Key()
	kept := s.AnalyzedItems[:0]
	for _, it := range s.AnalyzedItems {
		if it.Key() != key {
			kept = append(kept, it)
		}
	}
	s.AnalyzedItems = append(kept, item)
	s.Touch()
	return item
}

// AnalyzedKeys returns the set of analyzed "channel:ts" keys.
func (s *State) AnalyzedKeys() map[string]struct{} {
	keys := make(map[string]struct{}, len(s.AnalyzedItems))
	for _, it := range s.AnalyzedItems {
		keys[it.Key()] = struct{}{}
	}
	return keys
}

// Age returns time since the session started. Unparseable timestamps
// count as infinitely old.
func (s *State) Age() time.Duration {
	started, err := time.Parse(time.RFC3339, s.StartedAt)
	if err != nil {
		return time.Duration(1<<62 - 1)
	}
	return time.Since(started)
}

// SummaryText renders the session for the system prompt.
func (s *State) SummaryText() string {
	lines := []string{
		"Session ID: " + s.SessionID,
		"Started: " + s.StartedAt,
	}
	lines = append(lines, "Items processed: "+strconv.Itoa(len(s.ProcessedItems)))
	lines = append(lines, "Items analyzed: "+strconv.Itoa(len(s.AnalyzedItems)))

	if s.CurrentFocus != "" {
		lines = append(lines, "Current focus: "+s.CurrentFocus)
	}
	if s.ConversationSummary != nil {
		lines = append(lines, "", "Last summary:", s.ConversationSummary.SummaryText)
		if len(s.ConversationSummary.PendingFollowUps) > 0 {
			lines = append(lines, "", "Pending follow-ups:")
			for _, f := range s.ConversationSummary.PendingFollowUps {
				lines = append(lines, "  - "+f)
			}
		}
	}
	return strings.Join(lines, "\n")
}
