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

package core

import "time"

// FileStatus is the lifecycle state of an ingested file.
type FileStatus string

const (
	// FileStatusUploaded is the initial state of a file that has not entered the pipeline.
	FileStatusUploaded FileStatus = "uploaded"
	// FileStatusProcessing marks a file whose ingestion is in flight (or crashed mid-flight).
	FileStatusProcessing FileStatus = "processing"
	// FileStatusProcessed marks a file whose chunks are fully indexed and recorded.
	FileStatusProcessed FileStatus = "processed"
	// FileStatusFailed marks a file whose last ingestion attempt failed. Failed files may be retried.
	FileStatusFailed FileStatus = "failed"
	// FileStatusDuplicate marks a file rejected as a duplicate of an earlier upload.
	FileStatusDuplicate FileStatus = "duplicate"
)

// Final reports whether s is a status a record never leaves.
func (s FileStatus) Final() bool {
	return s == FileStatusProcessed || s == FileStatusDuplicate
}

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is a message written by the conversation owner.
	RoleUser Role = "user"
	// RoleAssistant is a generated answer.
	RoleAssistant Role = "assistant"
)

// Metadata keys attached to every indexed chunk.
const (
	MetaOwnerID    = "user_id"
	MetaFileID     = "file_id"
	MetaSource     = "source"
	MetaChunkIndex = "chunk_index"
)

// FileRecord tracks one uploaded file through ingestion.
// (ContentHash, OwnerId) is unique: a failed record is reused rather than duplicated.
type FileRecord struct {
	Id          string
	OwnerId     string
	Filename    string
	ContentHash string // hex SHA-256 of the raw upload
	Status      FileStatus
	Error       string // cause of the last failure, empty otherwise
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChunkRecord maps an indexed chunk back to its source file and position.
type ChunkRecord struct {
	Id               string
	FileId           string
	ChunkIndex       int
	ExternalVectorId string // id returned by the embedding index
	CreatedAt        time.Time
}

// Conversation groups the ordered messages of one chat thread.
type Conversation struct {
	Id        string
	OwnerId   string
	CreatedAt time.Time
}

// Message is a single turn within a conversation.
// Ids are lexically ordered by creation, so sorting by Id reconstructs turn order.
type Message struct {
	Id             string
	ConversationId string
	Role           Role
	Content        string
	CreatedAt      time.Time
}

// AuditEntry is an append-only record of a lifecycle event.
type AuditEntry struct {
	Id        string
	Action    string
	Metadata  map[string]string
	OwnerId   string
	CreatedAt time.Time
}

// VectorEntry is a chunk stored in the embedded vector index.
type VectorEntry struct {
	Id         string
	Text       string
	Metadata   map[string]string
	Vector     []float32 // unit length
	InsertedAt time.Time
}

// Passage is a retrieved chunk with its similarity score.
type Passage struct {
	Text     string
	Metadata map[string]string
	Score    float32
}
