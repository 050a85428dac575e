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

import "fmt"

// ValidateFileRecord validates a FileRecord according to domain rules.
//
// Validation rules:
//   - OwnerId must not be empty
//   - ContentHash must not be empty
//   - Status must be a known FileStatus
//
// NOT validated (assigned by storage):
//   - Id
//   - CreatedAt / UpdatedAt
func ValidateFileRecord(record *FileRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidFileRecord)
	}

	if record.OwnerId == "" {
		return fmt.Errorf("%w: %w", ErrInvalidFileRecord, ErrEmptyOwner)
	}

	if record.ContentHash == "" {
		return fmt.Errorf("%w: %w", ErrInvalidFileRecord, ErrEmptyContent)
	}

	if err := ValidateFileStatus(record.Status); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFileRecord, err)
	}

	return nil
}

// ValidateMessage validates a Message according to domain rules.
//
// Validation rules:
//   - ConversationId must not be empty
//   - Role must be user or assistant
//
// Assistant content may be empty: a model can legitimately produce no tokens.
func ValidateMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: message is nil", ErrInvalidMessage)
	}

	if msg.ConversationId == "" {
		return fmt.Errorf("%w: conversation id is empty", ErrInvalidMessage)
	}

	if err := ValidateRole(msg.Role); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	if msg.Role == RoleUser && msg.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, ErrEmptyContent)
	}

	return nil
}

// ValidateFileStatus validates that a FileStatus has a known value.
func ValidateFileStatus(status FileStatus) error {
	switch status {
	case FileStatusUploaded, FileStatusProcessing, FileStatusProcessed, FileStatusFailed, FileStatusDuplicate:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
}

// ValidateRole validates that a Role has a known value.
func ValidateRole(role Role) error {
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return nil
}
