package slackapi

// AuthInfo is the auth.test response for the authenticated user token.
type AuthInfo struct {
	OK     bool   `json:"ok"`
	URL    string `json:"url"`
	Team   string `json:"team"`
	User   string `json:"user"`
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`
}

// Conversation is one entry from conversations.list. The listing includes a
// latest-message hint and unread counters the scheduler uses to decide which
// channels need a sync.
type Conversation struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	IsChannel          bool    `json:"is_channel"`
	IsGroup            bool    `json:"is_group"`
	IsIM               bool    `json:"is_im"`
	IsMPIM             bool    `json:"is_mpim"`
	IsPrivate          bool    `json:"is_private"`
	IsArchived         bool    `json:"is_archived"`
	IsMember           bool    `json:"is_member"`
	User               string  `json:"user,omitempty"` // peer user for DMs
	Latest             *Latest `json:"latest,omitempty"`
	UnreadCount        int     `json:"unread_count,omitempty"`
	UnreadCountDisplay int     `json:"unread_count_display,omitempty"`
}

// Latest carries the newest-message hint in a conversation listing.
type Latest struct {
	Ts string `json:"ts"`
}

// ChannelType buckets a conversation the way the store records it.
func (c Conversation) ChannelType() string {
	switch {
	case c.IsIM:
		return "im"
	case c.IsMPIM:
		return "mpim"
	case c.IsPrivate:
		return "private_channel"
	default:
		return "public_channel"
	}
}

// LatestTs returns the latest-message hint, or "" when the upstream gave none.
func (c Conversation) LatestTs() string {
	if c.Latest == nil {
		return ""
	}
	return c.Latest.Ts
}

// Message is one entry from conversations.history or conversations.replies.
type Message struct {
	Type       string     `json:"type"`
	Subtype    string     `json:"subtype,omitempty"`
	Ts         string     `json:"ts"`
	User       string     `json:"user,omitempty"`
	BotID      string     `json:"bot_id,omitempty"`
	Text       string     `json:"text"`
	ThreadTs   string     `json:"thread_ts,omitempty"`
	ReplyCount int        `json:"reply_count,omitempty"`
	Edited     *Edited    `json:"edited,omitempty"`
	Reactions  []Reaction `json:"reactions,omitempty"`
}

// Edited marks a message the author has amended.
type Edited struct {
	User string `json:"user"`
	Ts   string `json:"ts"`
}

// Reaction is an emoji applied to a message by a set of users.
type Reaction struct {
	Name  string   `json:"name"`
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// User is the users.info payload.
type User struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	RealName string      `json:"real_name,omitempty"`
	IsBot    bool        `json:"is_bot"`
	Deleted  bool        `json:"deleted,omitempty"`
	Profile  UserProfile `json:"profile"`
}

// UserProfile carries the display names users actually go by.
type UserProfile struct {
	RealName    string `json:"real_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Reminder is one entry from reminders.list. Times are epoch seconds;
// a zero CompleteTs means the reminder is still pending.
type Reminder struct {
	ID         string `json:"id"`
	Creator    string `json:"creator"`
	User       string `json:"user"`
	Text       string `json:"text"`
	Time       int64  `json:"time"`
	CompleteTs int64  `json:"complete_ts"`
	Recurring  bool   `json:"recurring"`
}

// SearchMatch is one hit from search.messages.
type SearchMatch struct {
	Channel   SearchChannel `json:"channel"`
	Ts        string        `json:"ts"`
	User      string        `json:"user,omitempty"`
	Username  string        `json:"username,omitempty"`
	Text      string        `json:"text"`
	Permalink string        `json:"permalink,omitempty"`
}

// SearchChannel identifies the channel a search hit lives in.
type SearchChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// apiEnvelope is the common response wrapper: every method reports ok plus
// an error code, and paging methods add response_metadata.next_cursor.
type apiEnvelope struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Metadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

type conversationsListResponse struct {
	apiEnvelope
	Channels []Conversation `json:"channels"`
}

type historyResponse struct {
	apiEnvelope
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

type userInfoResponse struct {
	apiEnvelope
	User *User `json:"user"`
}

type usersListResponse struct {
	apiEnvelope
	Members []User `json:"members"`
}

type remindersResponse struct {
	apiEnvelope
	Reminders []Reminder `json:"reminders"`
}

type searchResponse struct {
	apiEnvelope
	Messages struct {
		Total   int           `json:"total"`
		Matches []SearchMatch `json:"matches"`
	} `json:"messages"`
}
