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

// Package index defines the embedding index used for semantic retrieval.
//
// An index stores chunk text together with string metadata and answers
// nearest-neighbour queries restricted by an equality filter on that metadata.
// Two implementations exist:
//
//   - storage/badger.VectorIndex: embedded, brute force over the owner's vectors
//   - index/qdrant: a Qdrant collection through langchaingo
package index

import (
	"context"
	"errors"

	"github.com/poiesic/docent/core"
)

var (
	// ErrMetadataMismatch is returned by Add when texts and metadatas differ in length.
	ErrMetadataMismatch = errors.New("texts and metadatas differ in length")

	// ErrEmptyFilter is returned by Delete when the filter has no conditions.
	ErrEmptyFilter = errors.New("delete requires a non-empty filter")
)

// Filter restricts a query to entries whose metadata has every listed key with the given value.
type Filter map[string]string

// Matches reports whether metadata satisfies every condition of the filter.
func (f Filter) Matches(metadata map[string]string) bool {
	for k, v := range f {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// Index is a store of embedded text chunks.
// Implementations must be thread-safe for concurrent use.
type Index interface {
	// Add embeds and stores texts with their metadata, returning one id per text.
	// metadatas[i] belongs to texts[i].
	Add(ctx context.Context, texts []string, metadatas []map[string]string) ([]string, error)

	// Query returns up to k entries most similar to text that match filter,
	// most similar first.
	Query(ctx context.Context, text string, filter Filter, k int) ([]core.Passage, error)
}

// Deleter is implemented by indexes that can remove entries by metadata.
type Deleter interface {
	// Delete removes every entry matching filter. An empty filter is rejected.
	Delete(ctx context.Context, filter Filter) error
}
