package lite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lunarhue/sidekick/internal/store"
)

func (s *LiteStore) UpsertChannel(ctx context.Context, ch *store.Channel) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (id, name, channel_type, is_archived, is_self_dm, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			channel_type = excluded.channel_type,
			is_archived = excluded.is_archived,
			is_self_dm = excluded.is_self_dm,
			updated_at = excluded.updated_at`,
		ch.ID, nullStr(ch.Name), ch.ChannelType, ch.IsArchived, ch.IsSelfDM,
		toMicros(ch.CreatedAt), nowMicros(),
	)
	return err
}

func (s *LiteStore) GetChannel(ctx context.Context, id string) (*store.Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, channel_type, is_archived, is_self_dm, created_at, updated_at
		 FROM channels WHERE id = ?`, id)
	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ch, err
}

func (s *LiteStore) ListChannels(ctx context.Context) ([]store.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, channel_type, is_archived, is_self_dm, created_at, updated_at
		 FROM channels ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChannels(rows)
}

func (s *LiteStore) GetChannelsBatch(ctx context.Context, ids []string) ([]store.Channel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, channel_type, is_archived, is_self_dm, created_at, updated_at
		 FROM channels WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChannels(rows)
}

func (s *LiteStore) UpsertUser(ctx context.Context, u *store.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, real_name, display_name, is_bot, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			real_name = excluded.real_name,
			display_name = excluded.display_name,
			is_bot = excluded.is_bot,
			updated_at = excluded.updated_at`,
		u.ID, nullStr(u.Name), nullStr(u.RealName), nullStr(u.DisplayName), u.IsBot, nowMicros(),
	)
	return err
}

func (s *LiteStore) ListUsers(ctx context.Context) ([]store.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, real_name, display_name, is_bot, updated_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (s *LiteStore) GetUsersBatch(ctx context.Context, ids []string) ([]store.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, real_name, display_name, is_bot, updated_at
		 FROM users WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (*store.Channel, error) {
	var ch store.Channel
	var name *string
	var createdAt, updatedAt *int64
	if err := row.Scan(&ch.ID, &name, &ch.ChannelType, &ch.IsArchived, &ch.IsSelfDM, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	ch.Name = derefStr(name)
	ch.CreatedAt = fromMicros(createdAt)
	ch.UpdatedAt = fromMicros(updatedAt)
	return &ch, nil
}

func collectChannels(rows *sql.Rows) ([]store.Channel, error) {
	var out []store.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ch)
	}
	return out, rows.Err()
}

func scanUser(row rowScanner) (*store.User, error) {
	var u store.User
	var name, realName, displayName *string
	var updatedAt *int64
	if err := row.Scan(&u.ID, &name, &realName, &displayName, &u.IsBot, &updatedAt); err != nil {
		return nil, err
	}
	u.Name = derefStr(name)
	u.RealName = derefStr(realName)
	u.DisplayName = derefStr(displayName)
	u.UpdatedAt = fromMicros(updatedAt)
	return &u, nil
}

func collectUsers(rows *sql.Rows) ([]store.User, error) {
	var out []store.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}
