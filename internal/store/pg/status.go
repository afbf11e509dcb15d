package pg

import (
	"context"
	"time"

	"github.com/lib/pq"

	"github.com/lunarhue/sidekick/internal/store"
)

const (
	mentionLimit     = 50
	dmLimit          = 50
	threadReplyLimit = 100
)

func (s *PGStore) GetUnreadMentions(ctx context.Context, userID string, since time.Time) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE text LIKE $1 AND created_at > $2
		 ORDER BY created_at DESC LIMIT $3`,
		"%<@"+userID+">%", since, mentionLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *PGStore) GetDMMessages(ctx context.Context, since time.Time) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.channel_id, m.ts, m.user_id, m.text, m.thread_ts, m.reply_count, m.is_edited, m.message_type, m.created_at
		 FROM messages m
		 JOIN channels c ON c.id = m.channel_id
		 WHERE c.channel_type = 'im' AND m.created_at > $1
		 ORDER BY m.created_at DESC LIMIT $2`,
		since, dmLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

// GetThreadsWithReplies finds messages from other people in threads the
// user has participated in.
func (s *PGStore) GetThreadsWithReplies(ctx context.Context, userID string, since time.Time) ([]store.ThreadReply, error) {
	rows, err := s.db.QueryContext(ctx,
		`WITH user_threads AS (
			SELECT DISTINCT channel_id, COALESCE(thread_ts, ts) AS thread_ts
			FROM messages WHERE user_id = $1
		 )
		 SELECT m.id, m.channel_id, m.ts, m.user_id, m.text, m.thread_ts, m.reply_count, m.is_edited, m.message_type, m.created_at, c.name
		 FROM messages m
		 JOIN user_threads t ON m.channel_id = t.channel_id AND (m.ts = t.thread_ts OR m.thread_ts = t.thread_ts)
		 JOIN channels c ON c.id = m.channel_id
		 WHERE m.user_id IS DISTINCT FROM $1 AND m.created_at > $2
		 ORDER BY m.created_at DESC LIMIT $3`,
		userID, since, threadReplyLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ThreadReply
	for rows.Next() {
		var tr store.ThreadReply
		var msgUserID, text, threadTs, channelName *string
		var createdAt *time.Time
		if err := rows.Scan(&tr.ID, &tr.ChannelID, &tr.Ts, &msgUserID, &text, &threadTs,
			&tr.ReplyCount, &tr.IsEdited, &tr.MessageType, &createdAt, &channelName); err != nil {
			return nil, err
		}
		tr.UserID = derefStr(msgUserID)
		tr.Text = derefStr(text)
		tr.ThreadTs = derefStr(threadTs)
		tr.CreatedAt = derefTime(createdAt)
		tr.ChannelName = derefStr(channelName)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// GetUserReplyStatusBatch reports, per thread context, whether the user
// posted in that thread after the mention.
func (s *PGStore) GetUserReplyStatusBatch(ctx context.Context, userID string, contexts []store.ThreadContext) (map[string]bool, error) {
	result := make(map[string]bool, len(contexts))
	for _, tc := range contexts {
		var replied bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (
				SELECT 1 FROM messages
				WHERE channel_id = $1 AND (ts = $2 OR thread_ts = $2)
				  AND user_id = $3 AND ts > $4
			 )`,
			tc.ChannelID, tc.ThreadTs, userID, tc.MentionTs,
		).Scan(&replied)
		if err != nil {
			return nil, err
		}
		result[tc.Key()] = replied
	}
	return result, nil
}

// GetUserReactionsOnItems returns, per "channel:ts" key, the allowlisted
// emoji names the user reacted with.
func (s *PGStore) GetUserReactionsOnItems(ctx context.Context, userID string, items []store.ItemRef, allowlist []string) (map[string][]string, error) {
	result := make(map[string][]string, len(items))
	if len(items) == 0 || len(allowlist) == 0 {
		return result, nil
	}

	keys := make([]string, 0, len(items))
	for _, it := range items {
		keys = append(keys, it.Key())
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT m.channel_id || ':' || m.ts, r.name
		 FROM reactions r
		 JOIN messages m ON m.id = r.message_id
		 WHERE r.user_id = $1 AND r.name = ANY($2) AND m.channel_id || ':' || m.ts = ANY($3)
		 ORDER BY r.name`,
		userID, pq.Array(allowlist), pq.Array(keys))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, name string
		if err := rows.Scan(&key, &name); err != nil {
			return nil, err
		}
		result[key] = append(result[key], name)
	}
	return result, rows.Err()
}
