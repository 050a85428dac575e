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

// Package sqlite implements storage.Ledger with gorm over a pure-Go SQLite driver.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Ledger implements storage.Ledger on SQLite.
type Ledger struct {
	db     *gorm.DB
	logger *slog.Logger
}

var _ storage.Ledger = (*Ledger)(nil)

// Open opens (or creates) the database at dsn and migrates the schema.
// Use ":memory:" for a private in-memory database.
func Open(dsn string) (*Ledger, error) {
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one connection also keeps an in-memory database alive
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&fileRow{}, &chunkRow{}, &conversationRow{}, &messageRow{}, &auditRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	return &Ledger{
		db:     db,
		logger: slog.Default().With("component", "sqlite-ledger"),
	}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateFile stores a new file record.
func (l *Ledger) CreateFile(ctx context.Context, record *core.FileRecord) (*core.FileRecord, error) {
	if err := core.ValidateFileRecord(record); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	row := &fileRow{
		ID:          record.Id,
		OwnerID:     record.OwnerId,
		Filename:    record.Filename,
		ContentHash: record.ContentHash,
		Status:      string(record.Status),
		Error:       record.Error,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if row.ID == "" {
		row.ID = core.NewID()
	}
	if err := l.db.WithContext(ctx).Create(row).Error; err != nil {
		if isDuplicate(err) {
			return nil, storage.ErrDuplicateKey
		}
		return nil, err
	}

	record.Id = row.ID
	record.CreatedAt = now
	record.UpdatedAt = now
	return record, nil
}

// GetFile retrieves a file record by id.
func (l *Ledger) GetFile(ctx context.Context, id string) (*core.FileRecord, error) {
	var row fileRow
	if err := l.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return row.toCore(), nil
}

// FindFileByHash retrieves the owner's record for a content hash.
func (l *Ledger) FindFileByHash(ctx context.Context, ownerId, contentHash string) (*core.FileRecord, error) {
	var row fileRow
	if err := l.db.WithContext(ctx).
		Where("owner_id = ? AND content_hash = ?", ownerId, contentHash).
		First(&row).Error; err != nil {
		return nil, translate(err)
	}
	return row.toCore(), nil
}

// UpdateFile replaces the mutable fields of an existing record.
// A record in a final status keeps that status.
func (l *Ledger) UpdateFile(ctx context.Context, record *core.FileRecord) (*core.FileRecord, error) {
	if err := core.ValidateFileStatus(record.Status); err != nil {
		return nil, err
	}
	return l.modifyFile(ctx, record.Id, func(row *fileRow) error {
		if current := core.FileStatus(row.Status); current.Final() && record.Status != current {
			return fmt.Errorf("%w: %s is %s", storage.ErrStatusConflict, row.ID, current)
		}
		row.Status = string(record.Status)
		row.Error = record.Error
		if record.Filename != "" {
			row.Filename = record.Filename
		}
		return nil
	})
}

// TransitionFile moves a record from one status to another if it is still in from.
func (l *Ledger) TransitionFile(ctx context.Context, id string, from, to core.FileStatus, errMsg string) (*core.FileRecord, error) {
	if err := core.ValidateFileStatus(to); err != nil {
		return nil, err
	}
	return l.modifyFile(ctx, id, func(row *fileRow) error {
		if core.FileStatus(row.Status) != from {
			return fmt.Errorf("%w: %s is %s, not %s", storage.ErrStatusConflict, row.ID, row.Status, from)
		}
		row.Status = string(to)
		row.Error = errMsg
		return nil
	})
}

// modifyFile loads the row, applies fn and saves it in one transaction.
// The single connection serializes transactions, so fn sees the latest row.
func (l *Ledger) modifyFile(ctx context.Context, id string, fn func(row *fileRow) error) (*core.FileRecord, error) {
	var updated *core.FileRecord
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row fileRow
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			return translate(err)
		}
		if err := fn(&row); err != nil {
			return err
		}
		row.UpdatedAt = time.Now().UTC()
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		updated = row.toCore()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListFiles returns the owner's records, oldest first.
func (l *Ledger) ListFiles(ctx context.Context, ownerId string) ([]*core.FileRecord, error) {
	return l.listFiles(ctx, "owner_id = ?", ownerId)
}

// ListFilesByStatus returns records of every owner in the given status.
func (l *Ledger) ListFilesByStatus(ctx context.Context, status core.FileStatus) ([]*core.FileRecord, error) {
	return l.listFiles(ctx, "status = ?", string(status))
}

func (l *Ledger) listFiles(ctx context.Context, query string, arg any) ([]*core.FileRecord, error) {
	var rows []fileRow
	if err := l.db.WithContext(ctx).Where(query, arg).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]*core.FileRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].toCore()
	}
	return records, nil
}

// AddChunks stores every chunk record in one transaction.
// A record for an existing (file, index) pair replaces it.
func (l *Ledger) AddChunks(ctx context.Context, chunks ...*core.ChunkRecord) ([]*core.ChunkRecord, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}

	now := time.Now().UTC()
	rows := make([]chunkRow, len(chunks))
	for i, c := range chunks {
		if c.FileId == "" {
			return nil, core.ErrInvalidInput
		}
		id := c.Id
		if id == "" {
			id = core.NewID()
		}
		rows[i] = chunkRow{
			ID:               id,
			FileID:           c.FileId,
			ChunkIndex:       c.ChunkIndex,
			ExternalVectorID: c.ExternalVectorId,
			CreatedAt:        now,
		}
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "file_id"}, {Name: "chunk_index"}},
			DoUpdates: clause.AssignmentColumns([]string{"id", "external_vector_id", "created_at"}),
		}).CreateInBatches(rows, 200).Error
	})
	if err != nil {
		return nil, err
	}

	for i, c := range chunks {
		c.Id = rows[i].ID
		c.CreatedAt = now
	}
	return chunks, nil
}

// GetChunksByFile returns a file's chunk records ordered by chunk index.
func (l *Ledger) GetChunksByFile(ctx context.Context, fileId string) ([]*core.ChunkRecord, error) {
	var rows []chunkRow
	if err := l.db.WithContext(ctx).Where("file_id = ?", fileId).Order("chunk_index ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	chunks := make([]*core.ChunkRecord, len(rows))
	for i := range rows {
		chunks[i] = rows[i].toCore()
	}
	return chunks, nil
}

// DeleteChunksByFile removes every chunk record of a file.
func (l *Ledger) DeleteChunksByFile(ctx context.Context, fileId string) error {
	return l.db.WithContext(ctx).Where("file_id = ?", fileId).Delete(&chunkRow{}).Error
}

// CreateConversation stores a new conversation for the owner.
func (l *Ledger) CreateConversation(ctx context.Context, ownerId string) (*core.Conversation, error) {
	if ownerId == "" {
		return nil, core.ErrEmptyOwner
	}
	row := &conversationRow{ID: core.NewID(), OwnerID: ownerId, CreatedAt: time.Now().UTC()}
	if err := l.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row.toCore(), nil
}

// GetConversation retrieves a conversation owned by ownerId.
func (l *Ledger) GetConversation(ctx context.Context, id, ownerId string) (*core.Conversation, error) {
	var row conversationRow
	if err := l.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerId).
		First(&row).Error; err != nil {
		return nil, translate(err)
	}
	return row.toCore(), nil
}

// ListConversations returns the owner's conversations, oldest first.
func (l *Ledger) ListConversations(ctx context.Context, ownerId string) ([]*core.Conversation, error) {
	var rows []conversationRow
	if err := l.db.WithContext(ctx).Where("owner_id = ?", ownerId).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	convs := make([]*core.Conversation, len(rows))
	for i := range rows {
		convs[i] = rows[i].toCore()
	}
	return convs, nil
}

// AddMessage appends a message to its conversation.
func (l *Ledger) AddMessage(ctx context.Context, msg *core.Message) (*core.Message, error) {
	if err := core.ValidateMessage(msg); err != nil {
		return nil, err
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&conversationRow{}).Where("id = ?", msg.ConversationId).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return storage.ErrNotFound
		}

		row := &messageRow{
			ID:             core.NewMessageID(),
			ConversationID: msg.ConversationId,
			Role:           string(msg.Role),
			Content:        msg.Content,
			CreatedAt:      time.Now().UTC(),
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		msg.Id = row.ID
		msg.CreatedAt = row.CreatedAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetMessages returns a conversation's messages in turn order.
func (l *Ledger) GetMessages(ctx context.Context, conversationId string) ([]*core.Message, error) {
	var rows []messageRow
	if err := l.db.WithContext(ctx).Where("conversation_id = ?", conversationId).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	msgs := make([]*core.Message, len(rows))
	for i := range rows {
		msgs[i] = rows[i].toCore()
	}
	return msgs, nil
}

// AppendAudit stores an audit entry.
func (l *Ledger) AppendAudit(ctx context.Context, entry *core.AuditEntry) (*core.AuditEntry, error) {
	if entry.Action == "" {
		return nil, core.ErrInvalidInput
	}

	var metadata []byte
	if len(entry.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(entry.Metadata); err != nil {
			return nil, err
		}
	}

	row := &auditRow{
		ID:        core.NewID(),
		Action:    entry.Action,
		Metadata:  string(metadata),
		OwnerID:   entry.OwnerId,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	entry.Id = row.ID
	entry.CreatedAt = row.CreatedAt
	return entry, nil
}

// ListAudit returns up to limit of the owner's entries, newest first.
func (l *Ledger) ListAudit(ctx context.Context, ownerId string, limit int) ([]*core.AuditEntry, error) {
	q := l.db.WithContext(ctx).Where("owner_id = ?", ownerId).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []auditRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]*core.AuditEntry, len(rows))
	for i := range rows {
		entry, err := rows[i].toCore()
		if err != nil {
			l.logger.Warn("dropping unreadable audit metadata", "entry", rows[i].ID, "err", err)
		}
		entries[i] = entry
	}
	return entries, nil
}

// translate maps gorm's not-found error to storage.ErrNotFound.
func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}
