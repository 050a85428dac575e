package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorEntryMUS_RoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	entry := VectorEntry{
		Id:   "v1",
		Text: "Hello 世界",
		Metadata: map[string]string{
			MetaOwnerID: "alice",
			MetaFileID:  "f1",
		},
		Vector:     []float32{0.25, -0.5, 1},
		InsertedAt: now,
	}

	buf := make([]byte, VectorEntryMUS.Size(entry))
	n := VectorEntryMUS.Marshal(entry, buf)
	require.Equal(t, len(buf), n)

	decoded, read, err := VectorEntryMUS.Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, n, read)
	assert.Equal(t, entry.Id, decoded.Id)
	assert.Equal(t, entry.Text, decoded.Text)
	assert.Equal(t, entry.Metadata, decoded.Metadata)
	assert.Equal(t, entry.Vector, decoded.Vector)
	assert.True(t, entry.InsertedAt.Equal(decoded.InsertedAt))
}

func TestFileRecordMUS_ZeroTimesSurvive(t *testing.T) {
	record := FileRecord{Id: "f1", OwnerId: "alice", ContentHash: "abc", Status: FileStatusFailed}
	buf := make([]byte, FileRecordMUS.Size(record))
	FileRecordMUS.Marshal(record, buf)

	decoded, _, err := FileRecordMUS.Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, FileStatusFailed, decoded.Status)
	assert.True(t, decoded.CreatedAt.IsZero())
}

func TestUnmarshal_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty data", []byte{}},
		{"invalid data", []byte{0xFF, 0xFF, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := MessageMUS.Unmarshal(tt.data)
			assert.Error(t, err)
			_, _, err = VectorEntryMUS.Unmarshal(tt.data)
			assert.Error(t, err)
		})
	}
}
