package lite

import (
	"context"
	"time"

	"github.com/lunarhue/sidekick/internal/store"
)

const (
	mentionLimit     = 50
	dmLimit          = 50
	threadReplyLimit = 100
)

func (s *LiteStore) GetUnreadMentions(ctx context.Context, userID string, since time.Time) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE text LIKE ? AND created_at > ?
		 ORDER BY created_at DESC LIMIT ?`,
		"%<@"+userID+">%", since.UnixMicro(), mentionLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *LiteStore) GetDMMessages(ctx context.Context, since time.Time) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.channel_id, m.ts, m.user_id, m.text, m.thread_ts, m.reply_count, m.is_edited, m.message_type, m.created_at
		 FROM messages m
		 JOIN channels c ON c.id = m.channel_id
		 WHERE c.channel_type = 'im' AND m.created_at > ?
		 ORDER BY m.created_at DESC LIMIT ?`,
		since.UnixMicro(), dmLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *LiteStore) GetThreadsWithReplies(ctx context.Context, userID string, since time.Time) ([]store.ThreadReply, error) {
	rows, err := s.db.QueryContext(ctx,
		`WITH user_threads AS (
			SELECT DISTINCT channel_id, COALESCE(thread_ts, ts) AS thread_ts
			FROM messages WHERE user_id = ?
		 )
		 SELECT m.id, m.channel_id, m.ts, m.user_id, m.text, m.thread_ts, m.reply_count, m.is_edited, m.message_type, m.created_at, c.name
		 FROM messages m
		 JOIN user_threads t ON m.channel_id = t.channel_id AND (m.ts = t.thread_ts OR m.thread_ts = t.thread_ts)
		 JOIN channels c ON c.id = m.channel_id
		 WHERE m.user_id IS NOT ? AND m.created_at > ?
		 ORDER BY m.created_at DESC LIMIT ?`,
		userID, userID, since.UnixMicro(), threadReplyLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ThreadReply
	for rows.Next() {
		var tr store.ThreadReply
		var msgUserID, text, threadTs, channelName *string
		var createdAt *int64
		if err := rows.Scan(&tr.ID, &tr.ChannelID, &tr.Ts, &msgUserID, &text, &threadTs,
			&tr.ReplyCount, &tr.IsEdited, &tr.MessageType, &createdAt, &channelName); err != nil {
			return nil, err
		}
		tr.UserID = derefStr(msgUserID)
		tr.Text = derefStr(text)
		tr.ThreadTs = derefStr(threadTs)
		tr.CreatedAt = fromMicros(createdAt)
		tr.ChannelName = derefStr(channelName)
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (s *LiteStore) GetUserReplyStatusBatch(ctx context.Context, userID string, contexts []store.ThreadContext) (map[string]bool, error) {
	result := make(map[string]bool, len(contexts))
	for _, tc := range contexts {
		var replied bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (
				SELECT 1 FROM messages
				WHERE channel_id = ? AND (ts = ? OR thread_ts = ?)
				  AND user_id = ? AND ts > ?
			 )`,
			tc.ChannelID, tc.ThreadTs, tc.ThreadTs, userID, tc.MentionTs,
		).Scan(&replied)
		if err != nil {
			return nil, err
		}
		result[tc.Key()] = replied
	}
	return result, nil
}

func (s *LiteStore) GetUserReactionsOnItems(ctx context.Context, userID string, items []store.ItemRef, allowlist []string) (map[string][]string, error) {
	result := make(map[string][]string, len(items))
	if len(items) == 0 || len(allowlist) == 0 {
		return result, nil
	}

	args := []any{userID}
	for _, name := range allowlist {
		args = append(args, name)
	}
	for _, it := range items {
		args = append(args, it.Key())
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT m.channel_id || ':' || m.ts, r.name
		 FROM reactions r
		 JOIN messages m ON m.id = r.message_id
		 WHERE r.user_id = ?
		   AND r.name IN (`+placeholders(len(allowlist))+`)
		   AND m.channel_id || ':' || m.ts IN (`+placeholders(len(items))+`)
		 ORDER BY r.name`, args...)
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
