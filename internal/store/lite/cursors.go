package lite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lunarhue/sidekick/internal/store"
)

func (s *LiteStore) GetCursor(ctx context.Context, channelID string) (*store.SyncCursor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT channel_id, last_ts, last_sync_at FROM sync_cursors WHERE channel_id = ?`,
		channelID)
	c, err := scanCursor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *LiteStore) GetCursorsBatch(ctx context.Context, channelIDs []string) (map[string]store.SyncCursor, error) {
	result := make(map[string]store.SyncCursor, len(channelIDs))
	if len(channelIDs) == 0 {
		return result, nil
	}
	args := make([]any, len(channelIDs))
	for i, id := range channelIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, last_ts, last_sync_at FROM sync_cursors
		 WHERE channel_id IN (`+placeholders(len(channelIDs))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCursor(rows)
		if err != nil {
			return nil, err
		}
		result[c.ChannelID] = *c
	}
	return result, rows.Err()
}

func (s *LiteStore) SetCursor(ctx context.Context, channelID, lastTs string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_cursors (channel_id, last_ts, last_sync_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (channel_id) DO UPDATE SET
			last_ts = excluded.last_ts,
			last_sync_at = excluded.last_sync_at`,
		channelID, nullStr(lastTs), nowMicros())
	return err
}

func (s *LiteStore) ListCursors(ctx context.Context) ([]store.SyncCursor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, last_ts, last_sync_at FROM sync_cursors ORDER BY channel_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.SyncCursor
	for rows.Next() {
		c, err := scanCursor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *LiteStore) UpsertReminder(ctx context.Context, r *store.Reminder) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (id, user_id, text, time, complete_ts, recurring, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			text = excluded.text,
			time = excluded.time,
			complete_ts = excluded.complete_ts,
			recurring = excluded.recurring,
			updated_at = excluded.updated_at`,
		r.ID, r.UserID, nullStr(r.Text), toMicrosPtr(r.Time), toMicrosPtr(r.CompleteTs), r.Recurring, nowMicros())
	return err
}

func (s *LiteStore) GetPendingReminders(ctx context.Context, userID string) ([]store.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, text, time, complete_ts, recurring FROM reminders
		 WHERE user_id = ? AND complete_ts IS NULL
		 ORDER BY time IS NULL, time ASC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

func (s *LiteStore) ListReminders(ctx context.Context) ([]store.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, text, time, complete_ts, recurring FROM reminders ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

func scanCursor(row rowScanner) (*store.SyncCursor, error) {
	var c store.SyncCursor
	var lastTs *string
	var syncAt *int64
	if err := row.Scan(&c.ChannelID, &lastTs, &syncAt); err != nil {
		return nil, err
	}
	c.LastTs = derefStr(lastTs)
	c.LastSyncAt = fromMicros(syncAt)
	return &c, nil
}

func collectReminders(rows *sql.Rows) ([]store.Reminder, error) {
	var out []store.Reminder
	for rows.Next() {
		var r store.Reminder
		var text *string
		var at, completeTs *int64
		if err := rows.Scan(&r.ID, &r.UserID, &text, &at, &completeTs, &r.Recurring); err != nil {
			return nil, err
		}
		r.Text = derefStr(text)
		r.Time = fromMicrosPtr(at)
		r.CompleteTs = fromMicrosPtr(completeTs)
		out = append(out, r)
	}
	return out, rows.Err()
}
