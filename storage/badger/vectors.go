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

package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docent/ai"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/index"
	"github.com/poiesic/docent/storage"
)

// VectorIndex implements index.Index on BadgerDB.
// Vectors are stored normalized, so the dot product is the cosine similarity.
type VectorIndex struct {
	backend  *Backend
	embedder ai.Embedder
	logger   *slog.Logger
}

var (
	_ index.Index   = (*VectorIndex)(nil)
	_ index.Deleter = (*VectorIndex)(nil)
)

// NewVectorIndex creates an index that embeds text with embedder.
func NewVectorIndex(backend *Backend, embedder ai.Embedder) (*VectorIndex, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	return &VectorIndex{
		backend:  backend,
		embedder: embedder,
		logger:   slog.Default().With("component", "badger-vector-index"),
	}, nil
}

// Add embeds texts in one batch and stores them.
// Entries carrying file_id and chunk_index get an id derived from both, so
// re-adding the chunks of a file replaces the earlier entries.
func (v *VectorIndex) Add(ctx context.Context, texts []string, metadatas []map[string]string) ([]string, error) {
	if len(texts) != len(metadatas) {
		return nil, index.ErrMetadataMismatch
	}
	if len(texts) == 0 {
		return []string{}, nil
	}

	vectors, err := v.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}

	now := time.Now().UTC()
	entries := make([]*core.VectorEntry, len(texts))
	ids := make([]string, len(texts))
	for i, text := range texts {
		if len(vectors[i]) == 0 {
			return nil, fmt.Errorf("embedder returned an empty vector for text %d", i)
		}
		entries[i] = &core.VectorEntry{
			Id:         vectorID(text, metadatas[i]),
			Text:       text,
			Metadata:   metadatas[i],
			Vector:     core.NormalizeVector(vectors[i]),
			InsertedAt: now,
		}
		ids[i] = entries[i].Id
	}

	if err := v.PutVectors(ctx, entries); err != nil {
		return nil, err
	}
	v.logger.Debug("indexed chunks", "count", len(entries))
	return ids, nil
}

// Query scores every entry matching filter against the embedded query text.
// When the filter names an owner only that owner's entries are read.
func (v *VectorIndex) Query(ctx context.Context, text string, filter index.Filter, k int) ([]core.Passage, error) {
	if k <= 0 {
		return []core.Passage{}, nil
	}

	query, err := v.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	query = core.NormalizeVector(query)

	prefix := makePartialKey(vectorPrefix)
	if owner, ok := filter[core.MetaOwnerID]; ok {
		prefix = makePartialKey(vectorPrefix, owner)
	}

	type scored struct {
		entry *core.VectorEntry
		score float32
	}
	var results []scored
	err = v.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, prefix, func(_, val []byte) error {
			entry, err := storage.UnmarshalVectorEntry(val)
			if err != nil {
				return err
			}
			if len(entry.Vector) == 0 || !filter.Matches(entry.Metadata) {
				return nil
			}
			results = append(results, scored{entry: entry, score: core.DotProduct(query, entry.Vector)})
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending, ties by id for stable results
	slices.SortFunc(results, func(a, b scored) int {
		if a.score > b.score {
			return -1
		}
		if a.score < b.score {
			return 1
		}
		return strings.Compare(a.entry.Id, b.entry.Id)
	})
	if len(results) > k {
		results = results[:k]
	}

	passages := make([]core.Passage, len(results))
	for i, r := range results {
		passages[i] = core.Passage{
			Text:     r.entry.Text,
			Metadata: r.entry.Metadata,
			Score:    r.score,
		}
	}
	return passages, nil
}

// PutVectors writes entries as they are, splitting the write over several
// transactions when it is too large for one.
func (v *VectorIndex) PutVectors(ctx context.Context, entries []*core.VectorEntry) error {
	pending := entries
	for len(pending) > 0 {
		written := 0
		err := v.backend.WithTx(func(tx *badger.Txn) error {
			for _, entry := range pending {
				key := makeVectorKey(entry.Metadata[core.MetaOwnerID], entry.Id)
				if err := tx.Set(key, storage.MarshalVectorEntry(entry)); err != nil {
					if errors.Is(err, badger.ErrTxnTooBig) && written > 0 {
						break
					}
					return err
				}
				written++
			}
			return tx.Commit()
		}, true)
		if err != nil {
			return err
		}
		pending = pending[written:]
	}
	return nil
}

// Delete removes every entry matching filter.
func (v *VectorIndex) Delete(ctx context.Context, filter index.Filter) error {
	if len(filter) == 0 {
		return index.ErrEmptyFilter
	}

	prefix := makePartialKey(vectorPrefix)
	if owner, ok := filter[core.MetaOwnerID]; ok {
		prefix = makePartialKey(vectorPrefix, owner)
	}

	var keys [][]byte
	err := v.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, prefix, func(key, val []byte) error {
			entry, err := storage.UnmarshalVectorEntry(val)
			if err != nil {
				return err
			}
			if filter.Matches(entry.Metadata) {
				keys = append(keys, key)
			}
			return nil
		})
	}, false)
	if err != nil {
		return err
	}

	for len(keys) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		deleted := 0
		err := v.backend.WithTx(func(tx *badger.Txn) error {
			for _, key := range keys {
				if err := tx.Delete(key); err != nil {
					if errors.Is(err, badger.ErrTxnTooBig) && deleted > 0 {
						break
					}
					return err
				}
				deleted++
			}
			return tx.Commit()
		}, true)
		if err != nil {
			return err
		}
		keys = keys[deleted:]
	}
	return nil
}

// ScanVectors calls fn for every stored entry in key order.
// fn must not write to the index.
func (v *VectorIndex) ScanVectors(ctx context.Context, fn func(entry *core.VectorEntry) error) error {
	return v.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, makePartialKey(vectorPrefix), func(_, val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			entry, err := storage.UnmarshalVectorEntry(val)
			if err != nil {
				return err
			}
			return fn(entry)
		})
	}, false)
}

// Count returns the number of stored entries.
func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	count := 0
	err := v.ScanVectors(ctx, func(*core.VectorEntry) error {
		count++
		return nil
	})
	return count, err
}

// vectorID derives the id of an entry.
func vectorID(text string, metadata map[string]string) string {
	fileID, hasFile := metadata[core.MetaFileID]
	chunkIndex, hasIndex := metadata[core.MetaChunkIndex]
	if hasFile && hasIndex {
		return core.IDFromContent(fileID + ":" + chunkIndex).String()
	}
	return core.IDFromContent(metadata[core.MetaOwnerID] + ":" + text).String()
}
