package reembed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/docent/ai/mock"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/index"
	"github.com/poiesic/docent/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupIndex returns an embedded index holding n chunks of alice's file.
func setupIndex(t *testing.T, n int) *badger.VectorIndex {
	t.Helper()
	_, vectors, backend, err := badger.NewMemoryStore(mock.NewMockEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	if n == 0 {
		return vectors
	}
	texts := make([]string, n)
	metas := make([]map[string]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk number %d", i)
		metas[i] = map[string]string{
			core.MetaOwnerID:    "alice",
			core.MetaFileID:     "file-1",
			core.MetaChunkIndex: fmt.Sprint(i),
		}
	}
	_, err = vectors.Add(context.Background(), texts, metas)
	require.NoError(t, err)
	return vectors
}

func snapshot(t *testing.T, store VectorStore) map[string]*core.VectorEntry {
	t.Helper()
	entries := map[string]*core.VectorEntry{}
	require.NoError(t, store.ScanVectors(context.Background(), func(e *core.VectorEntry) error {
		entries[e.Id] = e
		return nil
	}))
	return entries
}

// constantEmbedder maps every text to the same direction.
func constantEmbedder() *mock.MockEmbedder {
	e := mock.NewMockEmbedder()
	e.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{3, 4}
		}
		return out, nil
	}
	return e
}

func testConfig() *Config {
	return &Config{BatchSize: 3, ReportInterval: 3, MaxRetries: 3, RetryDelay: time.Millisecond}
}

func TestNewReembedder(t *testing.T) {
	store := setupIndex(t, 0)

	_, err := NewReembedder(nil, mock.NewMockEmbedder(), nil, nil)
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewReembedder(store, nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewReembedder(store, mock.NewMockEmbedder(), &Config{MaxRetries: 0}, nil)
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)

	r, err := NewReembedder(store, mock.NewMockEmbedder(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, r.config.BatchSize)
}

func TestReembedder_Run(t *testing.T) {
	store := setupIndex(t, 10)
	before := snapshot(t, store)
	ctx := context.Background()

	var buf bytes.Buffer
	embedder := constantEmbedder()
	r, err := NewReembedder(store, embedder, testConfig(), &buf)
	require.NoError(t, err)

	n, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, 4, embedder.CallCount(), "10 entries in batches of 3")

	after := snapshot(t, store)
	require.Len(t, after, len(before))
	for id, entry := range after {
		prev := before[id]
		require.NotNil(t, prev, "ids are preserved")
		assert.Equal(t, prev.Text, entry.Text)
		assert.Equal(t, prev.Metadata, entry.Metadata)
		require.Len(t, entry.Vector, 2)
		assert.InDelta(t, 0.6, entry.Vector[0], 1e-6)
		assert.InDelta(t, 0.8, entry.Vector[1], 1e-6)
	}

	// Owner-filtered queries still find every entry
	passages, err := store.Query(ctx, "anything", index.Filter{core.MetaOwnerID: "alice"}, 20)
	require.NoError(t, err)
	assert.Len(t, passages, 10)

	assert.Contains(t, buf.String(), "10/10")
	assert.Contains(t, buf.String(), "Reembedding complete")
}

func TestReembedder_EmptyIndex(t *testing.T) {
	store := setupIndex(t, 0)
	var buf bytes.Buffer
	embedder := mock.NewMockEmbedder()
	r, err := NewReembedder(store, embedder, nil, &buf)
	require.NoError(t, err)

	n, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, embedder.CallCount())
	assert.Contains(t, buf.String(), "No vectors found")
}

func TestReembedder_RetriesTransientFailures(t *testing.T) {
	store := setupIndex(t, 5)
	embedder := constantEmbedder()
	var mu sync.Mutex
	failures := 0
	inner := embedder.EmbedTextsFunc
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		mu.Lock()
		defer mu.Unlock()
		if failures < 2 {
			failures++
			return nil, errors.New("rate limited")
		}
		return inner(ctx, texts)
	}

	r, err := NewReembedder(store, embedder, testConfig(), nil)
	require.NoError(t, err)
	n, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestReembedder_StopsOnPersistentFailure(t *testing.T) {
	store := setupIndex(t, 7)
	before := snapshot(t, store)
	embedder := constantEmbedder()
	calls := 0
	inner := embedder.EmbedTextsFunc
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("quota exhausted")
		}
		return inner(ctx, texts)
	}

	r, err := NewReembedder(store, embedder, testConfig(), nil)
	require.NoError(t, err)
	n, err := r.Run(context.Background())
	assert.ErrorContains(t, err, "quota exhausted")
	assert.Equal(t, 3, n, "the first batch was written")

	rewritten := 0
	for id, entry := range snapshot(t, store) {
		if !assert.ObjectsAreEqual(before[id].Vector, entry.Vector) {
			rewritten++
		}
	}
	assert.Equal(t, 3, rewritten)
}

func TestBatchProcessor_CountMismatch(t *testing.T) {
	store := setupIndex(t, 2)
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}
	bp := NewBatchProcessor(store, embedder, 1, time.Millisecond)

	var entries []*core.VectorEntry
	for _, e := range snapshot(t, store) {
		entries = append(entries, e)
	}
	err := bp.Process(context.Background(), entries)
	assert.ErrorContains(t, err, "mismatch")
	assert.NoError(t, bp.Process(context.Background(), nil))
}

func TestEntryIterator_Batches(t *testing.T) {
	store := setupIndex(t, 7)

	var sizes []int
	err := NewEntryIterator(store, 3).ForEach(context.Background(), func(batch []*core.VectorEntry) error {
		sizes = append(sizes, len(batch))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, sizes)

	stop := errors.New("stop")
	err = NewEntryIterator(store, 0).ForEach(context.Background(), func([]*core.VectorEntry) error {
		return stop
	})
	assert.ErrorIs(t, err, stop)
}
