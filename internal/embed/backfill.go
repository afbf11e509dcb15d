package embed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lunarhue/sidekick/internal/store"
)

// BackfillStore is the slice of the store backfill reads and writes.
type BackfillStore interface {
	MessagesMissingEmbeddings(ctx context.Context, limit int) ([]store.PendingEmbedding, error)
	UpsertEmbedding(ctx context.Context, messageID int64, vector []float32, model string) error
	EmbeddingStats(ctx context.Context) (total, embedded int64, err error)
}

// Backfill embeds every stored message that has no vector yet, in
// batches, until the store runs dry or the context is cancelled.
// Returns how many messages were embedded.
func Backfill(ctx context.Context, client Embedder, st BackfillStore, batch int) (int, error) {
	if batch <= 0 {
		batch = batchSize
	}

	done := 0
	for {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		missing, err := st.MessagesMissingEmbeddings(ctx, batch)
		if err != nil {
			return done, fmt.Errorf("list missing embeddings: %w", err)
		}
		if len(missing) == 0 {
			return done, nil
		}

		texts := make([]string, len(missing))
		for i, p := range missing {
			texts[i] = p.Text
		}
		vectors, err := client.Embed(ctx, texts)
		if err != nil {
			return done, fmt.Errorf("embed batch: %w", err)
		}
		for i, p := range missing {
			if err := st.UpsertEmbedding(ctx, p.MessageID, vectors[i], client.Model()); err != nil {
				return done, fmt.Errorf("store embedding %d: %w", p.MessageID, err)
			}
			done++
		}
		slog.Debug("backfill batch stored", "batch", len(missing), "total", done)
	}
}
