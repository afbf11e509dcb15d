package embed

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultQueueSize = 1024
	batchSize        = 32
	flushInterval    = 5 * time.Second
)

// Embedder is what the indexer needs from the client; split out so
// tests can stub the HTTP host.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Writer is the slice of the store the indexer writes through.
type Writer interface {
	UpsertEmbedding(ctx context.Context, messageID int64, vector []float32, model string) error
}

type pending struct {
	messageID int64
	text      string
}

// Indexer embeds newly synced messages off the hot path. The queue is
// bounded and drops the oldest entry under pressure: losing an
// embedding is recoverable by backfill, stalling the sync worker is
// not.
type Indexer struct {
	client Embedder
	writer Writer

	mu      sync.Mutex
	queue   []pending
	maxSize int
	dropped int64
	wake    chan struct{}
}

func NewIndexer(client Embedder, writer Writer, queueSize int) *Indexer {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Indexer{
		client:  client,
		writer:  writer,
		maxSize: queueSize,
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue adds a message for embedding. Never blocks.
func (ix *Indexer) Enqueue(messageID int64, text string) {
	ix.mu.Lock()
	if len(ix.queue) >= ix.maxSize {
		ix.queue = ix.queue[1:]
		ix.dropped++
		if ix.dropped%100 == 1 {
			slog.Warn("embedding queue full, dropping oldest", "dropped_total", ix.dropped)
		}
	}
	ix.queue = append(ix.queue, pending{messageID: messageID, text: text})
	ix.mu.Unlock()

	select {
	case ix.wake <- struct{}{}:
	default:
	}
}

// QueueLen returns the current backlog size.
func (ix *Indexer) QueueLen() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.queue)
}

// Run drains the queue in batches until the context is cancelled.
func (ix *Indexer) Run(ctx context.Context) error {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ix.wake:
		case <-ticker.C:
		}
		ix.drain(ctx)
	}
}

// Flush synchronously embeds everything queued. Used by one-shot
// commands that cannot leave work behind.
func (ix *Indexer) Flush(ctx context.Context) {
	ix.drain(ctx)
}

func (ix *Indexer) drain(ctx context.Context) {
	for {
		batch := ix.takeBatch()
		if len(batch) == 0 {
			return
		}
		if err := ix.flush(ctx, batch); err != nil {
			slog.Warn("embedding batch failed", "size", len(batch), "error", err)
			return
		}
	}
}

func (ix *Indexer) takeBatch() []pending {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	n := len(ix.queue)
	if n == 0 {
		return nil
	}
	if n > batchSize {
		n = batchSize
	}
	batch := make([]pending, n)
	copy(batch, ix.queue[:n])
	ix.queue = ix.queue[n:]
	return batch
}

func (ix *Indexer) flush(ctx context.Context, batch []pending) error {
	texts := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = p.text
	}
	vectors, err := ix.client.Embed(ctx, texts)
	if err != nil {
		return err
	}
	for i, p := range batch {
		if err := ix.writer.UpsertEmbedding(ctx, p.messageID, vectors[i], ix.client.Model()); err != nil {
			return err
		}
	}
	return nil
}
