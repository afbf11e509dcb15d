// Package store defines the persistence layer for synced Slack data:
// channels, users, messages, reactions, sync cursors, reminders, and
// message embeddings. Two backends implement Store — Postgres (store/pg)
// for managed deployments and SQLite (store/lite) for single-binary use.
package store

import (
	"context"
	"time"
)

// Channel types as reported by the Slack API.
const (
	ChannelTypeIM      = "im"
	ChannelTypeMPIM    = "mpim"
	ChannelTypePrivate = "private_channel"
	ChannelTypePublic  = "public_channel"
)

// Priority hints attached to messages returned for LLM analysis.
const (
	HintCritical = "CRITICAL"
	HintHigh     = "HIGH"
	HintMedium   = "MEDIUM"
	HintLow      = "LOW"
)

// Channel is a synced Slack conversation. For IM channels Name holds the
// peer user ID, resolved to a display name at render time.
type Channel struct {
	ID          string
	Name        string
	ChannelType string
	IsArchived  bool
	IsSelfDM    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DisplayName formats the channel for human-readable output. resolve maps
// a user ID to a display name and may be nil.
func (c *Channel) DisplayName(resolve func(string) string) string {
	switch c.ChannelType {
	case ChannelTypeIM:
		if c.Name != "" && resolve != nil {
			return "DM: @" + resolve(c.Name)
		}
		if c.Name != "" {
			return "DM: " + c.Name
		}
		return "DM: " + c.ID
	case ChannelTypeMPIM:
		if c.Name != "" {
			return "Group DM: " + c.Name
		}
		return "Group DM: " + c.ID
	default:
		if c.Name != "" {
			return "#" + c.Name
		}
		return "#" + c.ID
	}
}

// User is a cached Slack user profile.
type User struct {
	ID          string
	Name        string
	RealName    string
	DisplayName string
	IsBot       bool
	UpdatedAt   time.Time
}

// ResolveName returns the best available name for display.
// Priority: display name, real name, login, ID.
func (u *User) ResolveName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.RealName != "" {
		return u.RealName
	}
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}

// Message is a synced Slack message. ID is the surrogate database key;
// (ChannelID, Ts) is the natural key. CreatedAt is the message time
// derived from Ts, not the ingest time.
type Message struct {
	ID          int64
	ChannelID   string
	Ts          string
	UserID      string
	Text        string
	ThreadTs    string
	ReplyCount  int
	IsEdited    bool
	MessageType string
	CreatedAt   time.Time
}

// Key returns the "channel:ts" identifier used for session bookkeeping
// and batch lookups.
func (m *Message) Key() string {
	return m.ChannelID + ":" + m.Ts
}

// IsThreadReply reports whether the message is a reply inside a thread
// (thread parents carry ThreadTs equal to their own Ts).
func (m *Message) IsThreadReply() bool {
	return m.ThreadTs != "" && m.ThreadTs != m.Ts
}

// EffectiveThreadTs returns the thread the message belongs to: its parent
// ts for replies, its own ts otherwise.
func (m *Message) EffectiveThreadTs() string {
	if m.ThreadTs != "" {
		return m.ThreadTs
	}
	return m.Ts
}

// Reaction is a single (emoji, user) pair on a message. Name is stored
// without colons.
type Reaction struct {
	MessageID int64
	Name      string
	UserID    string
}

// ThreadReply is a message joined with its channel name, returned by
// GetThreadsWithReplies.
type ThreadReply struct {
	Message
	ChannelName string
}

// ThreadContext identifies a thread a user was mentioned in, used to
// check whether the user replied after the mention.
type ThreadContext struct {
	ChannelID string
	ThreadTs  string // effective thread ts (parent ts for replies)
	MentionTs string
}

// Key returns the "channel:thread_ts" identifier for reply-status maps.
func (tc ThreadContext) Key() string {
	return tc.ChannelID + ":" + tc.ThreadTs
}

// ItemRef is a natural-key reference to a message.
type ItemRef struct {
	ChannelID string
	Ts        string
}

// Key returns the "channel:ts" identifier.
func (r ItemRef) Key() string {
	return r.ChannelID + ":" + r.Ts
}

// AnalysisQuery selects recent messages for LLM categorization.
type AnalysisQuery struct {
	UserID     string
	Since      time.Time
	Limit      int
	IncludeOwn bool
}

// AnalysisMessage is a message annotated with channel info and a priority
// hint for LLM analysis.
type AnalysisMessage struct {
	Message
	ChannelName  string
	ChannelType  string
	IsSelfDM     bool
	IsMention    bool
	IsDM         bool
	PriorityHint string
}

// SimilarMessage is a vector-search hit with its cosine similarity score.
type SimilarMessage struct {
	Message
	Score float64
}

// PendingEmbedding is a message that has no stored embedding yet.
type PendingEmbedding struct {
	MessageID int64
	Text      string
}

// SyncCursor tracks the newest fully persisted message ts per channel.
// An empty LastTs means the channel has never been synced.
type SyncCursor struct {
	ChannelID  string
	LastTs     string
	LastSyncAt time.Time
}

// Reminder is a Slack reminder. A nil CompleteTs means the reminder is
// still pending.
type Reminder struct {
	ID         string
	UserID     string
	Text       string
	Time       *time.Time
	CompleteTs *time.Time
	Recurring  bool
}

// Store is the persistence facade shared by the sync worker, the status
// and analysis queries, search, and the export/import commands.
type Store interface {
	// Channels and users.
	UpsertChannel(ctx context.Context, ch *Channel) error
	GetChannel(ctx context.Context, id string) (*Channel, error)
	ListChannels(ctx context.Context) ([]Channel, error)
	GetChannelsBatch(ctx context.Context, ids []string) ([]Channel, error)
	UpsertUser(ctx context.Context, u *User) error
	ListUsers(ctx context.Context) ([]User, error)
	GetUsersBatch(ctx context.Context, ids []string) ([]User, error)

	// Messages and reactions. UpsertMessage returns the surrogate ID and
	// never rewinds Ts or CreatedAt for an existing row.
	UpsertMessage(ctx context.Context, m *Message) (int64, error)
	GetMessage(ctx context.Context, channelID, ts string) (*Message, error)
	GetThreadMessages(ctx context.Context, channelID, threadTs string) ([]Message, error)
	ListMessagesPage(ctx context.Context, afterID int64, limit int) ([]Message, error)
	ReplaceReactions(ctx context.Context, messageID int64, reactions []Reaction) error
	GetReactionsForMessages(ctx context.Context, messageIDs []int64) (map[int64][]Reaction, error)

	// Attention queries for status composition.
	GetUnreadMentions(ctx context.Context, userID string, since time.Time) ([]Message, error)
	GetDMMessages(ctx context.Context, since time.Time) ([]Message, error)
	GetThreadsWithReplies(ctx context.Context, userID string, since time.Time) ([]ThreadReply, error)
	GetUserReplyStatusBatch(ctx context.Context, userID string, contexts []ThreadContext) (map[string]bool, error)
	GetUserReactionsOnItems(ctx context.Context, userID string, items []ItemRef, allowlist []string) (map[string][]string, error)
	GetRecentMessagesForAnalysis(ctx context.Context, q AnalysisQuery) ([]AnalysisMessage, error)

	// Search and embeddings.
	SearchMessageText(ctx context.Context, query string, limit int) ([]Message, error)
	UpsertEmbedding(ctx context.Context, messageID int64, vector []float32, model string) error
	GetEmbedding(ctx context.Context, messageID int64) ([]float32, error)
	SearchSimilar(ctx context.Context, vector []float32, limit int) ([]SimilarMessage, error)
	MessagesMissingEmbeddings(ctx context.Context, limit int) ([]PendingEmbedding, error)
	EmbeddingStats(ctx context.Context) (total, embedded int64, err error)

	// Sync cursors.
	GetCursor(ctx context.Context, channelID string) (*SyncCursor, error)
	GetCursorsBatch(ctx context.Context, channelIDs []string) (map[string]SyncCursor, error)
	SetCursor(ctx context.Context, channelID, lastTs string) error
	ListCursors(ctx context.Context) ([]SyncCursor, error)

	// Reminders.
	UpsertReminder(ctx context.Context, r *Reminder) error
	GetPendingReminders(ctx context.Context, userID string) ([]Reminder, error)
	ListReminders(ctx context.Context) ([]Reminder, error)

	Close() error
}

// AnnotateForAnalysis joins a message with its channel and computes the
// analysis flags and priority hint: CRITICAL for a direct mention, HIGH
// for any DM (self-DM notes included), MEDIUM for a thread reply, LOW
// otherwise. The hint is a starting point; analysis may move items
// either way from the message content.
func AnnotateForAnalysis(m Message, ch Channel, userID string) AnalysisMessage {
	am := AnalysisMessage{
		Message:     m,
		ChannelName: ch.Name,
		ChannelType: ch.ChannelType,
		IsSelfDM:    ch.IsSelfDM,
	}
	am.IsMention = userID != "" && containsMention(m.Text, userID)
	am.IsDM = ch.ChannelType == ChannelTypeIM
	switch {
	case am.IsMention:
		am.PriorityHint = HintCritical
	case am.IsDM:
		am.PriorityHint = HintHigh
	case m.IsThreadReply():
		am.PriorityHint = HintMedium
	default:
		am.PriorityHint = HintLow
	}
	return am
}
