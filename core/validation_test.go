package core

import (
	"errors"
	"testing"
)

func TestValidateFileRecord(t *testing.T) {
	tests := []struct {
		name    string
		record  *FileRecord
		wantErr error
	}{
		{
			name: "valid record",
			record: &FileRecord{
				OwnerId:     "alice",
				Filename:    "notes.txt",
				ContentHash: "abc",
				Status:      FileStatusProcessing,
			},
		},
		{
			name:    "nil record",
			record:  nil,
			wantErr: ErrInvalidFileRecord,
		},
		{
			name: "missing owner",
			record: &FileRecord{
				ContentHash: "abc",
				Status:      FileStatusProcessing,
			},
			wantErr: ErrEmptyOwner,
		},
		{
			name: "missing hash",
			record: &FileRecord{
				OwnerId: "alice",
				Status:  FileStatusProcessing,
			},
			wantErr: ErrEmptyContent,
		},
		{
			name: "unknown status",
			record: &FileRecord{
				OwnerId:     "alice",
				ContentHash: "abc",
				Status:      "archived",
			},
			wantErr: ErrInvalidStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFileRecord(tt.record)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateFileRecord() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateFileRecord() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     *Message
		wantErr error
	}{
		{
			name: "valid user message",
			msg:  &Message{ConversationId: "c1", Role: RoleUser, Content: "hi"},
		},
		{
			name: "empty assistant message is allowed",
			msg:  &Message{ConversationId: "c1", Role: RoleAssistant},
		},
		{
			name:    "empty user message",
			msg:     &Message{ConversationId: "c1", Role: RoleUser},
			wantErr: ErrEmptyContent,
		},
		{
			name:    "missing conversation",
			msg:     &Message{Role: RoleUser, Content: "hi"},
			wantErr: ErrInvalidMessage,
		},
		{
			name:    "unknown role",
			msg:     &Message{ConversationId: "c1", Role: "system", Content: "hi"},
			wantErr: ErrInvalidRole,
		},
		{
			name:    "nil message",
			wantErr: ErrInvalidMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.msg)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateMessage() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateMessage() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidationErrorsShareRoot(t *testing.T) {
	if !errors.Is(ValidateFileRecord(nil), ErrInvalidInput) {
		t.Error("file record errors should match ErrInvalidInput")
	}
	if !errors.Is(ValidateMessage(nil), ErrInvalidInput) {
		t.Error("message errors should match ErrInvalidInput")
	}
}
