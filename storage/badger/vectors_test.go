package badger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/docent/ai/mock"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// axisEmbedder maps known words to fixed directions so similarity is predictable.
func axisEmbedder() *mock.MockEmbedder {
	axes := map[string][]float32{
		"cats":    {1, 0, 0},
		"dogs":    {0, 1, 0},
		"finance": {0, 0, 1},
		"pets":    {0.7, 0.7, 0},
	}
	embed := func(text string) []float32 {
		if v, ok := axes[text]; ok {
			return v
		}
		return []float32{0.1, 0.1, 0.1}
	}
	m := mock.NewMockEmbedder()
	m.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return embed(text), nil
	}
	m.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			out[i] = embed(t)
		}
		return out, nil
	}
	return m
}

func newTestIndex(t *testing.T) *VectorIndex {
	t.Helper()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	idx, err := NewVectorIndex(backend, axisEmbedder())
	require.NoError(t, err)
	return idx
}

func meta(owner, file string, chunk int) map[string]string {
	return map[string]string{
		core.MetaOwnerID:    owner,
		core.MetaFileID:     file,
		core.MetaChunkIndex: fmt.Sprint(chunk),
	}
}

func TestVectorIndex_QueryRanksBySimilarity(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	ids, err := idx.Add(ctx,
		[]string{"cats", "dogs", "finance"},
		[]map[string]string{meta("alice", "f1", 0), meta("alice", "f1", 1), meta("alice", "f1", 2)},
	)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	passages, err := idx.Query(ctx, "pets", index.Filter{core.MetaOwnerID: "alice"}, 2)
	require.NoError(t, err)
	require.Len(t, passages, 2)

	// cats and dogs tie; the id decides, and finance is left out
	texts := []string{passages[0].Text, passages[1].Text}
	assert.ElementsMatch(t, []string{"cats", "dogs"}, texts)
	assert.InDelta(t, passages[0].Score, passages[1].Score, 1e-6)

	again, err := idx.Query(ctx, "pets", index.Filter{core.MetaOwnerID: "alice"}, 2)
	require.NoError(t, err)
	assert.Equal(t, passages, again)
}

func TestVectorIndex_OwnerIsolation(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Add(ctx,
		[]string{"cats", "cats"},
		[]map[string]string{meta("alice", "fa", 0), meta("bob", "fb", 0)},
	)
	require.NoError(t, err)

	passages, err := idx.Query(ctx, "cats", index.Filter{core.MetaOwnerID: "bob"}, 10)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "bob", passages[0].Metadata[core.MetaOwnerID])

	passages, err = idx.Query(ctx, "cats", index.Filter{core.MetaOwnerID: "carol"}, 10)
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestVectorIndex_FilterOnOtherKeys(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Add(ctx,
		[]string{"cats", "dogs"},
		[]map[string]string{meta("alice", "f1", 0), meta("alice", "f2", 0)},
	)
	require.NoError(t, err)

	passages, err := idx.Query(ctx, "cats", index.Filter{core.MetaOwnerID: "alice", core.MetaFileID: "f2"}, 10)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "dogs", passages[0].Text)
}

func TestVectorIndex_ReAddReplacesChunks(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	first, err := idx.Add(ctx, []string{"cats"}, []map[string]string{meta("alice", "f1", 0)})
	require.NoError(t, err)
	second, err := idx.Add(ctx, []string{"cats"}, []map[string]string{meta("alice", "f1", 0)})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestVectorIndex_Errors(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Add(ctx, []string{"a"}, nil)
	assert.ErrorIs(t, err, index.ErrMetadataMismatch)

	failing := mock.NewMockEmbedder()
	boom := errors.New("embedding service down")
	failing.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, boom
	}
	idx.embedder = failing
	_, err = idx.Add(ctx, []string{"a"}, []map[string]string{meta("alice", "f", 0)})
	assert.ErrorIs(t, err, boom)

	hollow := mock.NewMockEmbedder()
	hollow.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return make([][]float32, len(texts)), nil
	}
	idx.embedder = hollow
	_, err = idx.Add(ctx, []string{"a"}, []map[string]string{meta("alice", "f", 0)})
	assert.Error(t, err)
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "no entry is stored without a vector")

	passages, err := idx.Query(ctx, "a", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestNewVectorIndex_RequiresCollaborators(t *testing.T) {
	_, err := NewVectorIndex(nil, mock.NewMockEmbedder())
	assert.ErrorIs(t, err, ErrBackendRequired)

	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()
	_, err = NewVectorIndex(backend, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}

func TestVectorIndex_PutVectorsLargeBatch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	entries := make([]*core.VectorEntry, 2000)
	for i := range entries {
		entries[i] = &core.VectorEntry{
			Id:       fmt.Sprintf("%05d", i),
			Text:     "chunk",
			Metadata: map[string]string{core.MetaOwnerID: "alice"},
			Vector:   make([]float32, 384),
		}
	}
	require.NoError(t, idx.PutVectors(ctx, entries))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2000, count)
}

func TestVectorID(t *testing.T) {
	a := vectorID("text", meta("alice", "f1", 0))
	b := vectorID("other text", meta("alice", "f1", 0))
	c := vectorID("text", meta("alice", "f1", 1))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	// Without file coordinates the text and owner decide
	d := vectorID("text", map[string]string{core.MetaOwnerID: "alice"})
	e := vectorID("text", map[string]string{core.MetaOwnerID: "bob"})
	assert.NotEqual(t, d, e)
}

func TestVectorIndex_DeleteByFilter(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Add(ctx,
		[]string{"cats", "dogs", "finance"},
		[]map[string]string{meta("alice", "f1", 0), meta("alice", "f1", 1), meta("alice", "f2", 0)},
	)
	require.NoError(t, err)

	require.NoError(t, idx.Delete(ctx, index.Filter{core.MetaOwnerID: "alice", core.MetaFileID: "f1"}))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.ErrorIs(t, idx.Delete(ctx, index.Filter{}), index.ErrEmptyFilter)
}
