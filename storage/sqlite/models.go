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

package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/poiesic/docent/core"
)

type fileRow struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"`
	OwnerID     string    `gorm:"type:varchar(128);not null;uniqueIndex:uniq_file_owner_hash,priority:1"`
	Filename    string    `gorm:"type:text;not null"`
	ContentHash string    `gorm:"type:varchar(64);not null;uniqueIndex:uniq_file_owner_hash,priority:2"`
	Status      string    `gorm:"type:varchar(16);not null;index"`
	Error       string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (fileRow) TableName() string { return "files" }

func (r *fileRow) toCore() *core.FileRecord {
	return &core.FileRecord{
		Id:          r.ID,
		OwnerId:     r.OwnerID,
		Filename:    r.Filename,
		ContentHash: r.ContentHash,
		Status:      core.FileStatus(r.Status),
		Error:       r.Error,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type chunkRow struct {
	ID               string    `gorm:"primaryKey;type:varchar(36)"`
	FileID           string    `gorm:"type:varchar(36);not null;uniqueIndex:uniq_chunk_file_index,priority:1"`
	ChunkIndex       int       `gorm:"not null;uniqueIndex:uniq_chunk_file_index,priority:2"`
	ExternalVectorID string    `gorm:"type:varchar(64);not null"`
	CreatedAt        time.Time `gorm:"not null"`
}

func (chunkRow) TableName() string { return "chunks" }

func (r *chunkRow) toCore() *core.ChunkRecord {
	return &core.ChunkRecord{
		Id:               r.ID,
		FileId:           r.FileID,
		ChunkIndex:       r.ChunkIndex,
		ExternalVectorId: r.ExternalVectorID,
		CreatedAt:        r.CreatedAt.UTC(),
	}
}

type conversationRow struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	OwnerID   string    `gorm:"type:varchar(128);not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (conversationRow) TableName() string { return "conversations" }

func (r *conversationRow) toCore() *core.Conversation {
	return &core.Conversation{
		Id:        r.ID,
		OwnerId:   r.OwnerID,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// messageRow ids are ULIDs, so ordering by id is turn order.
type messageRow struct {
	ID             string    `gorm:"primaryKey;type:varchar(26)"`
	ConversationID string    `gorm:"type:varchar(36);not null;index"`
	Role           string    `gorm:"type:varchar(16);not null"`
	Content        string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (messageRow) TableName() string { return "messages" }

func (r *messageRow) toCore() *core.Message {
	return &core.Message{
		Id:             r.ID,
		ConversationId: r.ConversationID,
		Role:           core.Role(r.Role),
		Content:        r.Content,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

type auditRow struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	Action    string    `gorm:"type:varchar(64);not null;index"`
	Metadata  string    `gorm:"type:text"`
	OwnerID   string    `gorm:"type:varchar(128);not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (auditRow) TableName() string { return "audit_log" }

// toCore always returns the entry; a metadata decode error leaves Metadata nil.
func (r *auditRow) toCore() (*core.AuditEntry, error) {
	entry := &core.AuditEntry{
		Id:        r.ID,
		Action:    r.Action,
		OwnerId:   r.OwnerID,
		CreatedAt: r.CreatedAt.UTC(),
	}
	if r.Metadata == "" {
		return entry, nil
	}
	if err := json.Unmarshal([]byte(r.Metadata), &entry.Metadata); err != nil {
		entry.Metadata = nil
		return entry, fmt.Errorf("audit metadata: %w", err)
	}
	return entry, nil
}
