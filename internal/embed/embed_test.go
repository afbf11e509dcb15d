package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lunarhue/sidekick/internal/store"
)

func TestClientEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("path = %q, want /embed", r.URL.Path)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "all-MiniLM-L6-v2" {
			t.Errorf("model = %q", req.Model)
		}
		vectors := make([][]float32, len(req.Texts))
		for i := range vectors {
			vectors[i] = []float32{float32(i), 1}
		}
		json.NewEncoder(w).Encode(embedResponse{Vectors: vectors})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	vectors, err := c.Embed(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("vectors = %d, want 2", len(vectors))
	}
	if vectors[1][0] != 1 {
		t.Errorf("vectors[1] = %v", vectors[1])
	}
}

func TestClientEmbedCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Vectors: [][]float32{{1}}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if _, err := c.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("want error on vector count mismatch")
	}
}

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string { return "fake" }

type fakeWriter struct {
	stored  map[int64][]float32
	missing []store.PendingEmbedding
}

func (f *fakeWriter) UpsertEmbedding(ctx context.Context, messageID int64, vector []float32, model string) error {
	if f.stored == nil {
		f.stored = map[int64][]float32{}
	}
	f.stored[messageID] = vector
	return nil
}

func (f *fakeWriter) MessagesMissingEmbeddings(ctx context.Context, limit int) ([]store.PendingEmbedding, error) {
	n := limit
	if n > len(f.missing) {
		n = len(f.missing)
	}
	out := f.missing[:n]
	f.missing = f.missing[n:]
	return out, nil
}

func (f *fakeWriter) EmbeddingStats(ctx context.Context) (int64, int64, error) { return 0, 0, nil }

func TestIndexerDropsOldestWhenFull(t *testing.T) {
	ix := NewIndexer(&fakeEmbedder{}, &fakeWriter{}, 2)
	ix.Enqueue(1, "one")
	ix.Enqueue(2, "two")
	ix.Enqueue(3, "three")

	if got := ix.QueueLen(); got != 2 {
		t.Fatalf("queue len = %d, want 2", got)
	}
	batch := ix.takeBatch()
	if batch[0].messageID != 2 || batch[1].messageID != 3 {
		t.Errorf("batch = %+v, want oldest entry dropped", batch)
	}
}

func TestIndexerDrain(t *testing.T) {
	fe := &fakeEmbedder{}
	fw := &fakeWriter{}
	ix := NewIndexer(fe, fw, 10)
	ix.Enqueue(1, "one")
	ix.Enqueue(2, "two")

	ix.drain(context.Background())

	if len(fw.stored) != 2 {
		t.Fatalf("stored = %d, want 2", len(fw.stored))
	}
	if fe.calls != 1 {
		t.Errorf("embed calls = %d, want 1 batch", fe.calls)
	}
}

func TestBackfill(t *testing.T) {
	fe := &fakeEmbedder{}
	fw := &fakeWriter{
		missing: []store.PendingEmbedding{
			{MessageID: 1, Text: "a"},
			{MessageID: 2, Text: "b"},
			{MessageID: 3, Text: "c"},
		},
	}

	done, err := Backfill(context.Background(), fe, fw, 2)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if done != 3 {
		t.Errorf("done = %d, want 3", done)
	}
	if len(fw.stored) != 3 {
		t.Errorf("stored = %d, want 3", len(fw.stored))
	}
	// Two batches of 2 then 1.
	if fe.calls != 2 {
		t.Errorf("embed calls = %d, want 2", fe.calls)
	}
}
