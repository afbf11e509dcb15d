package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/lunarhue/sidekick/internal/store"
)

func (s *PGStore) GetCursor(ctx context.Context, channelID string) (*store.SyncCursor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT channel_id, last_ts, last_sync_at FROM sync_cursors WHERE channel_id = $1`,
		channelID)
	c, err := scanCursor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *PGStore) GetCursorsBatch(ctx context.Context, channelIDs []string) (map[string]store.SyncCursor, error) {
	result := make(map[string]store.SyncCursor, len(channelIDs))
	if len(channelIDs) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, last_ts, last_sync_at FROM sync_cursors WHERE channel_id = ANY($1)`,
		pq.Array(channelIDs))
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

func (s *PGStore) SetCursor(ctx context.Context, channelID, lastTs string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_cursors (channel_id, last_ts, last_sync_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (channel_id) DO UPDATE SET
			last_ts = EXCLUDED.last_ts,
			last_sync_at = NOW()`,
		channelID, nullStr(lastTs))
	return err
}

func (s *PGStore) ListCursors(ctx context.Context) ([]store.SyncCursor, error) {
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

func (s *PGStore) UpsertReminder(ctx context.Context, r *store.Reminder) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (id, user_id, text, time, complete_ts, recurring, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			time = EXCLUDED.time,
			complete_ts = EXCLUDED.complete_ts,
			recurring = EXCLUDED.recurring,
			updated_at = NOW()`,
		r.ID, r.UserID, nullStr(r.Text), r.Time, r.CompleteTs, r.Recurring)
	return err
}

func (s *PGStore) GetPendingReminders(ctx context.Context, userID string) ([]store.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, text, time, complete_ts, recurring FROM reminders
		 WHERE user_id = $1 AND complete_ts IS NULL
		 ORDER BY time ASC NULLS LAST`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

func (s *PGStore) ListReminders(ctx context.Context) ([]store.Reminder, error) {
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
	if err := row.Scan(&c.ChannelID, &lastTs, &c.LastSyncAt); err != nil {
		return nil, err
	}
	c.LastTs = derefStr(lastTs)
	return &c, nil
}

func collectReminders(rows *sql.Rows) ([]store.Reminder, error) {
	var out []store.Reminder
	for rows.Next() {
		var r store.Reminder
		var text *string
		var at, completeTs *time.Time
		if err := rows.Scan(&r.ID, &r.UserID, &text, &at, &completeTs, &r.Recurring); err != nil {
			return nil, err
		}
		r.Text = derefStr(text)
		r.Time = at
		r.CompleteTs = completeTs
		out = append(out, r)
	}
	return out, rows.Err()
}
