package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/lunarhue/sidekick/internal/store"
)

func (s *PGStore) UpsertChannel(ctx context.Context, ch *store.Channel) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (id, name, channel_type, is_archived, is_self_dm, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			channel_type = EXCLUDED.channel_type,
			is_archived = EXCLUDED.is_archived,
			is_self_dm = EXCLUDED.is_self_dm,
			updated_at = NOW()`,
		ch.ID, nullStr(ch.Name), ch.ChannelType, ch.IsArchived, ch.IsSelfDM, nullTime(ch.CreatedAt),
	)
	return err
}

func (s *PGStore) GetChannel(ctx context.Context, id string) (*store.Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, channel_type, is_archived, is_self_dm, created_at, updated_at
		 FROM channels WHERE id = $1`, id)
	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ch, err
}

func (s *PGStore) ListChannels(ctx context.Context) ([]store.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, channel_type, is_archived, is_self_dm, created_at, updated_at
		 FROM channels ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChannels(rows)
}

func (s *PGStore) GetChannelsBatch(ctx context.Context, ids []string) ([]store.Channel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, channel_type, is_archived, is_self_dm, created_at, updated_at
		 FROM channels WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChannels(rows)
}

func (s *PGStore) UpsertUser(ctx context.Context, u *store.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, real_name, display_name, is_bot, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			real_name = EXCLUDED.real_name,
			display_name = EXCLUDED.display_name,
			is_bot = EXCLUDED.is_bot,
			updated_at = NOW()`,
		u.ID, nullStr(u.Name), nullStr(u.RealName), nullStr(u.DisplayName), u.IsBot,
	)
	return err
}

func (s *PGStore) ListUsers(ctx context.Context) ([]store.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, real_name, display_name, is_bot, updated_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (s *PGStore) GetUsersBatch(ctx context.Context, ids []string) ([]store.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, real_name, display_name, is_bot, updated_at
		 FROM users WHERE id = ANY($1)`, pq.Array(ids))
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
	var createdAt *time.Time
	if err := row.Scan(&ch.ID, &name, &ch.ChannelType, &ch.IsArchived, &ch.IsSelfDM, &createdAt, &ch.UpdatedAt); err != nil {
		return nil, err
	}
	ch.Name = derefStr(name)
	ch.CreatedAt = derefTime(createdAt)
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
	if err := row.Scan(&u.ID, &name, &realName, &displayName, &u.IsBot, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Name = derefStr(name)
	u.RealName = derefStr(realName)
	u.DisplayName = derefStr(displayName)
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
