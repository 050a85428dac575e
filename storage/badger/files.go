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
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/storage"
)

// Ledger implements storage.Ledger for BadgerDB.
type Ledger struct {
	backend *Backend
}

var _ storage.Ledger = (*Ledger)(nil)

// NewLedger creates a Ledger on an open backend.
// The backend stays owned by the caller.
func NewLedger(backend *Backend) (*Ledger, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	return &Ledger{backend: backend}, nil
}

// Close is a no-op; the backend is closed by its owner.
func (l *Ledger) Close() error {
	return nil
}

// CreateFile stores a new file record.
func (l *Ledger) CreateFile(ctx context.Context, record *core.FileRecord) (*core.FileRecord, error) {
	if err := core.ValidateFileRecord(record); err != nil {
		return nil, err
	}

	err := l.backend.WithTx(func(tx *badger.Txn) error {
		hashKey := makeFileHashKey(record.OwnerId, record.ContentHash)
		existing, err := getValue(tx, hashKey)
		if err != nil {
			return err
		}
		if existing != nil {
			return storage.ErrDuplicateKey
		}

		if record.Id == "" {
			record.Id = core.NewID()
		}
		record.CreatedAt = time.Now().UTC()
		record.UpdatedAt = record.CreatedAt

		if err := tx.Set(makeFileKey(record.Id), storage.MarshalFileRecord(record)); err != nil {
			return err
		}
		if err := tx.Set(hashKey, []byte(record.Id)); err != nil {
			return err
		}
		if err := tx.Set(makeFileOwnerKey(record.OwnerId, record.Id), []byte(record.Id)); err != nil {
			return err
		}
		if err := tx.Set(makeFileStatusKey(record.Status, record.Id), []byte(record.Id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	// A concurrent create of the same (owner, hash) wrote the key we read
	if errors.Is(err, badger.ErrConflict) {
		return nil, storage.ErrDuplicateKey
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetFile retrieves a file record by id.
func (l *Ledger) GetFile(ctx context.Context, id string) (*core.FileRecord, error) {
	var record *core.FileRecord
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		record, err = readFile(tx, id)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, storage.ErrNotFound
	}
	return record, nil
}

// FindFileByHash retrieves the owner's record for a content hash.
func (l *Ledger) FindFileByHash(ctx context.Context, ownerId, contentHash string) (*core.FileRecord, error) {
	var record *core.FileRecord
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		id, err := getValue(tx, makeFileHashKey(ownerId, contentHash))
		if err != nil || id == nil {
			return err
		}
		record, err = readFile(tx, string(id))
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, storage.ErrNotFound
	}
	return record, nil
}

// maxConflictRetries bounds how often a file update is replayed after losing
// a write conflict to a concurrent transaction.
const maxConflictRetries = 5

// UpdateFile replaces the mutable fields of an existing record.
// A record in a final status keeps that status.
func (l *Ledger) UpdateFile(ctx context.Context, record *core.FileRecord) (*core.FileRecord, error) {
	if err := core.ValidateFileStatus(record.Status); err != nil {
		return nil, err
	}
	return l.modifyFile(record.Id, func(old *core.FileRecord) (*core.FileRecord, error) {
		if old.Status.Final() && record.Status != old.Status {
			return nil, fmt.Errorf("%w: %s is %s", storage.ErrStatusConflict, old.Id, old.Status)
		}
		updated := *old
		updated.Status = record.Status
		updated.Error = record.Error
		if record.Filename != "" {
			updated.Filename = record.Filename
		}
		return &updated, nil
	})
}

// TransitionFile moves a record from one status to another if it is still in from.
func (l *Ledger) TransitionFile(ctx context.Context, id string, from, to core.FileStatus, errMsg string) (*core.FileRecord, error) {
	if err := core.ValidateFileStatus(to); err != nil {
		return nil, err
	}
	return l.modifyFile(id, func(old *core.FileRecord) (*core.FileRecord, error) {
		if old.Status != from {
			return nil, fmt.Errorf("%w: %s is %s, not %s", storage.ErrStatusConflict, old.Id, old.Status, from)
		}
		updated := *old
		updated.Status = to
		updated.Error = errMsg
		return &updated, nil
	})
}

// modifyFile reads the record, applies fn and writes the result with its
// status index in one transaction. The read and the guard in fn are replayed
// when a concurrent writer commits first.
func (l *Ledger) modifyFile(id string, fn func(old *core.FileRecord) (*core.FileRecord, error)) (*core.FileRecord, error) {
	var updated *core.FileRecord
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = l.backend.WithTx(func(tx *badger.Txn) error {
			old, err := readFile(tx, id)
			if err != nil {
				return err
			}
			if old == nil {
				return storage.ErrNotFound
			}

			updated, err = fn(old)
			if err != nil {
				return err
			}
			updated.UpdatedAt = time.Now().UTC()

			if err := tx.Set(makeFileKey(updated.Id), storage.MarshalFileRecord(updated)); err != nil {
				return err
			}

			// Update status index if status changed
			if old.Status != updated.Status {
				if err := tx.Delete(makeFileStatusKey(old.Status, old.Id)); err != nil {
					return err
				}
				if err := tx.Set(makeFileStatusKey(updated.Status, updated.Id), []byte(updated.Id)); err != nil {
					return err
				}
			}
			return tx.Commit()
		}, true)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListFiles returns the owner's records, oldest first.
func (l *Ledger) ListFiles(ctx context.Context, ownerId string) ([]*core.FileRecord, error) {
	return l.listFilesByIndex(makePartialKey(fileOwnerPrefix, ownerId))
}

// ListFilesByStatus returns records of every owner in the given status.
func (l *Ledger) ListFilesByStatus(ctx context.Context, status core.FileStatus) ([]*core.FileRecord, error) {
	return l.listFilesByIndex(makePartialKey(fileStatusPrefix, string(status)))
}

func (l *Ledger) listFilesByIndex(prefix []byte) ([]*core.FileRecord, error) {
	var records []*core.FileRecord
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		var ids []string
		if err := scanPrefix(tx, prefix, func(_, val []byte) error {
			ids = append(ids, string(val))
			return nil
		}); err != nil {
			return err
		}
		for _, id := range ids {
			record, err := readFile(tx, id)
			if err != nil {
				return err
			}
			if record != nil {
				records = append(records, record)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// readFile reads a file record. Returns nil, nil if it doesn't exist.
func readFile(tx *badger.Txn, id string) (*core.FileRecord, error) {
	val, err := getValue(tx, makeFileKey(id))
	if err != nil || val == nil {
		return nil, err
	}
	return storage.UnmarshalFileRecord(val)
}
