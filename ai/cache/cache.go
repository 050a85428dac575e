// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cache decorates an ai.Embedder with an expiring LRU cache.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/poiesic/docent/ai"
	"github.com/poiesic/docent/metrics"
)

// Query and document embeddings are cached apart: some providers embed them
// with different task types.
const (
	queryKeyPrefix    = "q:"
	documentKeyPrefix = "d:"
)

// ErrVectorCount indicates the wrapped embedder did not return one vector per text.
var ErrVectorCount = errors.New("embedder returned the wrong number of vectors")

var (
	hits   = metrics.EmbeddingCacheLookups.WithLabelValues("hit")
	misses = metrics.EmbeddingCacheLookups.WithLabelValues("miss")
)

// Wrap returns e with an LRU cache of size entries that expire after ttl.
// A non-positive size or ttl disables caching and returns e unchanged.
func Wrap(e ai.Embedder, size int, ttl time.Duration) ai.Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &Embedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

// Embedder is a caching ai.Embedder.
type Embedder struct {
	next  ai.Embedder
	cache *expirable.LRU[string, []float32]
}

var _ ai.Embedder = (*Embedder)(nil)

// EmbedText serves repeated queries from the cache.
func (c *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(queryKeyPrefix, text)
	if cached, ok := c.cache.Get(key); ok {
		hits.Inc()
		return cloneEmbedding(cached), nil
	}
	misses.Inc()
	res, err := c.next.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cloneEmbedding(res))
	return res, nil
}

// EmbedTexts embeds only the texts missing from the cache, in one batch.
func (c *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if cached, ok := c.cache.Get(cacheKey(documentKeyPrefix, text)); ok {
			out[i] = cloneEmbedding(cached)
			hits.Inc()
			continue
		}
		misses.Inc()
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	res, err := c.next.EmbedTexts(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(res) != len(missTexts) {
		return nil, fmt.Errorf("%w: got %d for %d texts", ErrVectorCount, len(res), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = res[j]
		c.cache.Add(cacheKey(documentKeyPrefix, missTexts[j]), cloneEmbedding(res[j]))
	}
	return out, nil
}

// Len reports the number of cached embeddings.
func (c *Embedder) Len() int {
	return c.cache.Len()
}

func cacheKey(prefix, text string) string {
	hash := sha256.Sum256([]byte(text))
	return prefix + hex.EncodeToString(hash[:])
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
