package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/docent/ai/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_Disabled(t *testing.T) {
	inner := mock.NewMockEmbedder()
	assert.Same(t, inner, Wrap(inner, 0, time.Minute))
	assert.Same(t, inner, Wrap(inner, 10, 0))
}

func TestEmbedText_CachesQueries(t *testing.T) {
	inner := mock.NewMockEmbedder()
	e := Wrap(inner, 10, time.Minute)
	ctx := context.Background()

	first, err := e.EmbedText(ctx, "what is docent?")
	require.NoError(t, err)
	second, err := e.EmbedText(ctx, "what is docent?")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.CallCount())

	// Mutating a returned vector must not poison the cache
	second[0] = 42
	third, err := e.EmbedText(ctx, "what is docent?")
	require.NoError(t, err)
	assert.Equal(t, first[0], third[0])
}

func TestEmbedTexts_OnlyMissesReachInner(t *testing.T) {
	inner := mock.NewMockEmbedder()
	var batches [][]string
	inner.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		batches = append(batches, texts)
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = []float32{float32(len(text))}
		}
		return out, nil
	}
	e := Wrap(inner, 10, time.Minute)
	ctx := context.Background()

	_, err := e.EmbedTexts(ctx, []string{"a", "bb"})
	require.NoError(t, err)
	got, err := e.EmbedTexts(ctx, []string{"bb", "ccc", "a"})
	require.NoError(t, err)

	assert.Equal(t, [][]float32{{2}, {3}, {1}}, got)
	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc"}}, batches)
	assert.Equal(t, 3, e.(*Embedder).Len())
}

func TestEmbedTexts_ErrorIsNotCached(t *testing.T) {
	inner := mock.NewMockEmbedder()
	inner.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("unavailable")
	}
	e := Wrap(inner, 10, time.Minute)

	_, err := e.EmbedTexts(context.Background(), []string{"a"})
	assert.Error(t, err)
	assert.Equal(t, 0, e.(*Embedder).Len())
}

func TestEmbedTexts_ShortBatchIsAnError(t *testing.T) {
	inner := mock.NewMockEmbedder()
	inner.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}
	e := Wrap(inner, 10, time.Minute)

	out, err := e.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	require.ErrorIs(t, err, ErrVectorCount)
	assert.Nil(t, out)
	assert.Equal(t, 0, e.(*Embedder).Len(), "nothing from a short batch is cached")
}
