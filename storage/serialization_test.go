package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/poiesic/docent/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalFileRecord(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	record := &core.FileRecord{
		Id:          core.NewID(),
		OwnerId:     "alice",
		Filename:    "report.pdf",
		ContentHash: "9f86d081884c7d65",
		Status:      core.FileStatusFailed,
		Error:       "embedding service unavailable",
		CreatedAt:   now,
		UpdatedAt:   now.Add(time.Second),
	}

	decoded, err := UnmarshalFileRecord(MarshalFileRecord(record))
	require.NoError(t, err)
	assert.Equal(t, record, decoded)
}

func TestMarshalUnmarshalMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  *core.Message
	}{
		{
			name: "user message",
			msg: &core.Message{
				Id:             core.NewMessageID(),
				ConversationId: "c1",
				Role:           core.RoleUser,
				Content:        "What is in the report?",
				CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
			},
		},
		{
			name: "empty assistant message",
			msg: &core.Message{
				Id:             core.NewMessageID(),
				ConversationId: "c1",
				Role:           core.RoleAssistant,
				CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := UnmarshalMessage(MarshalMessage(tt.msg))
			require.NoError(t, err)
			assert.Equal(t, tt.msg, decoded)
		})
	}
}

func TestMarshalUnmarshalAuditEntry(t *testing.T) {
	entry := &core.AuditEntry{
		Id:        core.NewID(),
		Action:    "INGEST_SUCCESS",
		Metadata:  map[string]string{"file_id": "f1", "chunks": "3"},
		OwnerId:   "alice",
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	decoded, err := UnmarshalAuditEntry(MarshalAuditEntry(entry))
	require.NoError(t, err)
	assert.Equal(t, entry, decoded)
}

func TestUnmarshal_Invalid(t *testing.T) {
	_, err := UnmarshalFileRecord([]byte{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSerializationFailed))

	_, err = UnmarshalConversation([]byte{0xFF})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
