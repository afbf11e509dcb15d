package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/lunarhue/sidekick/internal/store"
)

const messageColumns = `id, channel_id, ts, user_id, text, thread_ts, reply_count, is_edited, message_type, created_at`

func (s *PGStore) UpsertMessage(ctx context.Context, m *store.Message) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (channel_id, ts, user_id, text, thread_ts, reply_count, is_edited, message_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (channel_id, ts) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			text = EXCLUDED.text,
			thread_ts = EXCLUDED.thread_ts,
			reply_count = EXCLUDED.reply_count,
			is_edited = EXCLUDED.is_edited,
			updated_at = NOW()
		 RETURNING id`,
		m.ChannelID, m.Ts, nullStr(m.UserID), nullStr(m.Text), nullStr(m.ThreadTs),
		m.ReplyCount, m.IsEdited, m.MessageType, nullTime(m.CreatedAt),
	).Scan(&id)
	return id, err
}

func (s *PGStore) GetMessage(ctx context.Context, channelID, ts string) (*store.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE channel_id = $1 AND ts = $2`,
		channelID, ts)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (s *PGStore) GetThreadMessages(ctx context.Context, channelID, threadTs string) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE channel_id = $1 AND (ts = $2 OR thread_ts = $2)
		 ORDER BY ts ASC`,
		channelID, threadTs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *PGStore) ListMessagesPage(ctx context.Context, afterID int64, limit int) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id > $1 ORDER BY id ASC LIMIT $2`,
		afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

// ReplaceReactions swaps the full reaction set of a message inside one
// transaction so readers never observe a partially cleared state.
func (s *PGStore) ReplaceReactions(ctx context.Context, messageID int64, reactions []store.Reaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reactions WHERE message_id = $1`, messageID); err != nil {
		return err
	}
	for _, r := range reactions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reactions (message_id, name, user_id) VALUES ($1, $2, $3)
			 ON CONFLICT (message_id, name, user_id) DO NOTHING`,
			messageID, r.Name, r.UserID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PGStore) GetReactionsForMessages(ctx context.Context, messageIDs []int64) (map[int64][]store.Reaction, error) {
	result := make(map[int64][]store.Reaction)
	if len(messageIDs) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, name, user_id FROM reactions WHERE message_id = ANY($1) ORDER BY message_id, name`,
		pq.Array(messageIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r store.Reaction
		if err := rows.Scan(&r.MessageID, &r.Name, &r.UserID); err != nil {
			return nil, err
		}
		result[r.MessageID] = append(result[r.MessageID], r)
	}
	return result, rows.Err()
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var m store.Message
	var userID, text, threadTs *string
	var createdAt *time.Time
	if err := row.Scan(&m.ID, &m.ChannelID, &m.Ts, &userID, &text, &threadTs,
		&m.ReplyCount, &m.IsEdited, &m.MessageType, &createdAt); err != nil {
		return nil, err
	}
	m.UserID = derefStr(userID)
	m.Text = derefStr(text)
	m.ThreadTs = derefStr(threadTs)
	m.CreatedAt = derefTime(createdAt)
	return &m, nil
}

func collectMessages(rows *sql.Rows) ([]store.Message, error) {
	var out []store.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
