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

package reembed

import (
	"context"

	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/storage/badger"
)

// VectorStore is the part of an embedded index a re-embedding needs.
type VectorStore interface {
	// ScanVectors calls fn for every stored entry; fn must not write.
	ScanVectors(ctx context.Context, fn func(entry *core.VectorEntry) error) error

	// PutVectors overwrites entries by id.
	PutVectors(ctx context.Context, entries []*core.VectorEntry) error

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)
}

var _ VectorStore = (*badger.VectorIndex)(nil)

const (
	// DefaultBatchSize is the default number of entries embedded per call
	DefaultBatchSize = 100
)

// EntryIterator hands out the stored entries in fixed-size batches.
type EntryIterator struct {
	store     VectorStore
	batchSize int
}

// NewEntryIterator creates an iterator; batchSize <= 0 selects DefaultBatchSize.
func NewEntryIterator(store VectorStore, batchSize int) *EntryIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &EntryIterator{
		store:     store,
		batchSize: batchSize,
	}
}

// ForEach calls fn with consecutive batches of entries.
// The scan finishes before the first call, so fn may write to the store.
func (it *EntryIterator) ForEach(ctx context.Context, fn func([]*core.VectorEntry) error) error {
	var entries []*core.VectorEntry
	err := it.store.ScanVectors(ctx, func(entry *core.VectorEntry) error {
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return err
	}

	for start := 0; start < len(entries); start += it.batchSize {
		end := min(start+it.batchSize, len(entries))
		if err := fn(entries[start:end]); err != nil {
			return err
		}

		// Check context after each batch
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}
