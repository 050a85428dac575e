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

package storage

import (
	"context"

	"github.com/poiesic/docent/core"
)

// FileLedger records every uploaded document and its processing state.
// Implementations must be thread-safe and support concurrent access.
type FileLedger interface {
	// CreateFile stores a new file record and assigns its Id and timestamps.
	// Returns ErrDuplicateKey if the owner already has a record with the same content hash.
	CreateFile(ctx context.Context, record *core.FileRecord) (*core.FileRecord, error)

	// GetFile retrieves a file record by id.
	// Returns ErrNotFound if the record doesn't exist.
	GetFile(ctx context.Context, id string) (*core.FileRecord, error)

	// FindFileByHash retrieves the owner's record for a content hash.
	// Returns ErrNotFound if the owner has never uploaded that content.
	FindFileByHash(ctx context.Context, ownerId, contentHash string) (*core.FileRecord, error)

	// UpdateFile replaces status, error and filename of an existing record.
	// Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if the record doesn't exist and ErrStatusConflict if
	// the stored status is final and the update would change it.
	UpdateFile(ctx context.Context, record *core.FileRecord) (*core.FileRecord, error)

	// TransitionFile atomically moves a record from status from to status to and
	// sets its error message. Returns ErrStatusConflict if the stored status is
	// not from, and ErrNotFound if the record doesn't exist.
	TransitionFile(ctx context.Context, id string, from, to core.FileStatus, errMsg string) (*core.FileRecord, error)

	// ListFiles returns the owner's records, oldest first.
	ListFiles(ctx context.Context, ownerId string) ([]*core.FileRecord, error)

	// ListFilesByStatus returns records of every owner in the given status, oldest first.
	ListFilesByStatus(ctx context.Context, status core.FileStatus) ([]*core.FileRecord, error)
}

// ChunkLedger records which chunks of a file were written to the embedding index.
type ChunkLedger interface {
	// AddChunks stores all chunk records in a single transaction.
	// Either every record is stored or none is.
	AddChunks(ctx context.Context, chunks ...*core.ChunkRecord) ([]*core.ChunkRecord, error)

	// GetChunksByFile returns a file's chunk records ordered by chunk index.
	GetChunksByFile(ctx context.Context, fileId string) ([]*core.ChunkRecord, error)

	// DeleteChunksByFile removes every chunk record of a file.
	// Deleting chunks of a file with none is not an error.
	DeleteChunksByFile(ctx context.Context, fileId string) error
}

// ConversationStore holds conversations and their messages.
type ConversationStore interface {
	// CreateConversation stores a new conversation for the owner.
	CreateConversation(ctx context.Context, ownerId string) (*core.Conversation, error)

	// GetConversation retrieves a conversation owned by ownerId.
	// Returns ErrNotFound if it doesn't exist or belongs to someone else.
	GetConversation(ctx context.Context, id, ownerId string) (*core.Conversation, error)

	// ListConversations returns the owner's conversations, oldest first.
	ListConversations(ctx context.Context, ownerId string) ([]*core.Conversation, error)

	// AddMessage appends a message to its conversation and assigns Id and CreatedAt.
	// Returns ErrNotFound if the conversation doesn't exist.
	AddMessage(ctx context.Context, msg *core.Message) (*core.Message, error)

	// GetMessages returns a conversation's messages in turn order.
	GetMessages(ctx context.Context, conversationId string) ([]*core.Message, error)
}

// AuditLog is an append-only list of audit entries.
type AuditLog interface {
	// AppendAudit stores an entry and assigns Id and CreatedAt.
	AppendAudit(ctx context.Context, entry *core.AuditEntry) (*core.AuditEntry, error)

	// ListAudit returns up to limit of the owner's entries, newest first.
	// A limit <= 0 returns every entry.
	ListAudit(ctx context.Context, ownerId string, limit int) ([]*core.AuditEntry, error)
}

// Ledger combines every relational store used by the system.
// storage/badger and storage/sqlite both provide one.
type Ledger interface {
	FileLedger
	ChunkLedger
	ConversationStore
	AuditLog

	// Close releases the underlying storage.
	Close() error
}
