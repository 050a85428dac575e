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
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/storage"
)

// AddChunks stores every chunk record in one transaction.
func (l *Ledger) AddChunks(ctx context.Context, chunks ...*core.ChunkRecord) ([]*core.ChunkRecord, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}

	now := time.Now().UTC()
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			if chunk.FileId == "" {
				return core.ErrInvalidInput
			}
			if chunk.Id == "" {
				chunk.Id = core.NewID()
			}
			chunk.CreatedAt = now
			if err := tx.Set(makeChunkKey(chunk.FileId, chunk.ChunkIndex), storage.MarshalChunkRecord(chunk)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// GetChunksByFile returns a file's chunk records ordered by chunk index.
func (l *Ledger) GetChunksByFile(ctx context.Context, fileId string) ([]*core.ChunkRecord, error) {
	var chunks []*core.ChunkRecord
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, makePartialKey(chunkRecordPrefix, fileId), func(_, val []byte) error {
			chunk, err := storage.UnmarshalChunkRecord(val)
			if err != nil {
				return err
			}
			chunks = append(chunks, chunk)
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// DeleteChunksByFile removes every chunk record of a file.
func (l *Ledger) DeleteChunksByFile(ctx context.Context, fileId string) error {
	return l.backend.WithTx(func(tx *badger.Txn) error {
		var keys [][]byte
		if err := scanPrefix(tx, makePartialKey(chunkRecordPrefix, fileId), func(key, _ []byte) error {
			keys = append(keys, key)
			return nil
		}); err != nil {
			return err
		}
		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}
