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

// Package storage provides the storage abstraction layer for docent.
//
// This package defines the ledger interfaces that decouple persistence from the
// ingestion and chat logic. Two backends implement them:
//
//   - storage/badger: embedded BadgerDB, also home of the embedded vector index
//   - storage/sqlite: gorm over a pure-Go SQLite driver
//
// # Architecture
//
//   - FileLedger: uploaded documents and their processing status
//   - ChunkLedger: per-file record of what was written to the embedding index
//   - ConversationStore: conversations and their ordered messages
//   - AuditLog: append-only audit entries
//   - Ledger: all of the above plus Close
//
// # Usage
//
//	ledger, err := badger.NewLedger(backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ledger.Close()
//
// In tests, use in-memory storage:
//
//	ledger, backend, err := badger.NewMemoryLedger()
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access from
// multiple goroutines.
//
// # Ownership
//
// Every owner-scoped read takes the owner id explicitly. A record that exists
// but belongs to another owner is reported as ErrNotFound.
package storage
