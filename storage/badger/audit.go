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

// AppendAudit stores an audit entry under its owner.
func (l *Ledger) AppendAudit(ctx context.Context, entry *core.AuditEntry) (*core.AuditEntry, error) {
	if entry.Action == "" {
		return nil, core.ErrInvalidInput
	}

	entry.Id = core.NewID()
	entry.CreatedAt = time.Now().UTC()
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeAuditKey(entry.OwnerId, entry.Id), storage.MarshalAuditEntry(entry)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListAudit returns up to limit of the owner's entries, newest first.
func (l *Ledger) ListAudit(ctx context.Context, ownerId string, limit int) ([]*core.AuditEntry, error) {
	var entries []*core.AuditEntry
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefixReverse(tx, makePartialKey(auditOwnerPrefix, ownerId), func(_, val []byte) (bool, error) {
			entry, err := storage.UnmarshalAuditEntry(val)
			if err != nil {
				return false, err
			}
			entries = append(entries, entry)
			return limit <= 0 || len(entries) < limit, nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return entries, nil
}
