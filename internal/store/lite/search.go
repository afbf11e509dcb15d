package lite

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/lunarhue/sidekick/internal/store"
)

func (s *LiteStore) GetRecentMessagesForAnalysis(ctx context.Context, q store.AnalysisQuery) ([]store.AnalysisMessage, error) {
	query := `SELECT m.id, m.channel_id, m.ts, m.user_id, m.text, m.thread_ts, m.reply_count, m.is_edited, m.message_type, m.created_at,
			c.name, c.channel_type, c.is_self_dm
		 FROM messages m
		 JOIN channels c ON c.id = m.channel_id
		 WHERE m.created_at > ? AND m.text IS NOT NULL AND m.text != ''`
	args := []any{q.Since.UnixMicro()}
	if !q.IncludeOwn {
		query += ` AND (m.user_id IS NULL OR m.user_id != ?)`
		args = append(args, q.UserID)
	}
	query += ` ORDER BY m.created_at DESC LIMIT ?`
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.AnalysisMessage
	for rows.Next() {
		var m store.Message
		var ch store.Channel
		var userID, text, threadTs, chName *string
		var createdAt *int64
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.Ts, &userID, &text, &threadTs,
			&m.ReplyCount, &m.IsEdited, &m.MessageType, &createdAt,
			&chName, &ch.ChannelType, &ch.IsSelfDM); err != nil {
			return nil, err
		}
		m.UserID = derefStr(userID)
		m.Text = derefStr(text)
		m.ThreadTs = derefStr(threadTs)
		m.CreatedAt = fromMicros(createdAt)
		ch.ID = m.ChannelID
		ch.Name = derefStr(chName)
		out = append(out, store.AnnotateForAnalysis(m, ch, q.UserID))
	}
	return out, rows.Err()
}

func (s *LiteStore) SearchMessageText(ctx context.Context, query string, limit int) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE text LIKE ? ESCAPE '\'
		 ORDER BY created_at DESC LIMIT ?`,
		"%"+escapeLike(query)+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *LiteStore) UpsertEmbedding(ctx context.Context, messageID int64, vector []float32, model string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO message_embeddings (message_id, embedding, model)
		 VALUES (?, ?, ?)
		 ON CONFLICT (message_id) DO UPDATE SET
			embedding = excluded.embedding,
			model = excluded.model`,
		messageID, encodeVector(vector), model)
	return err
}

func (s *LiteStore) GetEmbedding(ctx context.Context, messageID int64) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding FROM message_embeddings WHERE message_id = ?`,
		messageID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeVector(blob), nil
}

// SearchSimilar scans every stored embedding and ranks by cosine similarity
// in process. Fine for a single-user corpus; Postgres handles the large case.
func (s *LiteStore) SearchSimilar(ctx context.Context, vector []float32, limit int) ([]store.SimilarMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.channel_id, m.ts, m.user_id, m.text, m.thread_ts, m.reply_count, m.is_edited, m.message_type, m.created_at, e.embedding
		 FROM message_embeddings e
		 JOIN messages m ON m.id = e.message_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.SimilarMessage
	for rows.Next() {
		var sm store.SimilarMessage
		var userID, text, threadTs *string
		var createdAt *int64
		var blob []byte
		if err := rows.Scan(&sm.ID, &sm.ChannelID, &sm.Ts, &userID, &text, &threadTs,
			&sm.ReplyCount, &sm.IsEdited, &sm.MessageType, &createdAt, &blob); err != nil {
			return nil, err
		}
		sm.UserID = derefStr(userID)
		sm.Text = derefStr(text)
		sm.ThreadTs = derefStr(threadTs)
		sm.CreatedAt = fromMicros(createdAt)
		sm.Score = cosineSimilarity(vector, decodeVector(blob))
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *LiteStore) MessagesMissingEmbeddings(ctx context.Context, limit int) ([]store.PendingEmbedding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.text FROM messages m
		 LEFT JOIN message_embeddings e ON e.message_id = m.id
		 WHERE e.message_id IS NULL AND m.text IS NOT NULL AND m.text != ''
		 ORDER BY m.created_at DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.PendingEmbedding
	for rows.Next() {
		var p store.PendingEmbedding
		if err := rows.Scan(&p.MessageID, &p.Text); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *LiteStore) EmbeddingStats(ctx context.Context) (total, embedded int64, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&total); err != nil {
		return 0, 0, err
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM message_embeddings`).Scan(&embedded); err != nil {
		return 0, 0, err
	}
	return total, embedded, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
