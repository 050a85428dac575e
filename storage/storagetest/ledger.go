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

// Package storagetest holds behavior tests shared by every storage.Ledger implementation.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty ledger. The factory registers its own cleanup.
type Factory func(t *testing.T) storage.Ledger

// RunLedgerTests runs the full ledger behavior suite against newLedger.
func RunLedgerTests(t *testing.T, newLedger Factory) {
	t.Run("FileLifecycle", func(t *testing.T) { testFileLifecycle(t, newLedger(t)) })
	t.Run("DuplicateHashPerOwner", func(t *testing.T) { testDuplicateHash(t, newLedger(t)) })
	t.Run("ConcurrentCreateSameHash", func(t *testing.T) { testConcurrentCreate(t, newLedger(t)) })
	t.Run("FinalStatusIsKept", func(t *testing.T) { testFinalStatus(t, newLedger(t)) })
	t.Run("TransitionFile", func(t *testing.T) { testTransitionFile(t, newLedger(t)) })
	t.Run("ConcurrentTransition", func(t *testing.T) { testConcurrentTransition(t, newLedger(t)) })
	t.Run("ListFiles", func(t *testing.T) { testListFiles(t, newLedger(t)) })
	t.Run("Chunks", func(t *testing.T) { testChunks(t, newLedger(t)) })
	t.Run("Conversations", func(t *testing.T) { testConversations(t, newLedger(t)) })
	t.Run("MessagesInTurnOrder", func(t *testing.T) { testMessages(t, newLedger(t)) })
	t.Run("Audit", func(t *testing.T) { testAudit(t, newLedger(t)) })
}

func newFile(owner, hash string) *core.FileRecord {
	return &core.FileRecord{
		OwnerId:     owner,
		Filename:    hash + ".txt",
		ContentHash: hash,
		Status:      core.FileStatusProcessing,
	}
}

func testFileLifecycle(t *testing.T, ledger storage.Ledger) {
	ctx := context.Background()

	created, err := ledger.CreateFile(ctx, newFile("alice", "h1"))
	require.NoError(t, err)
	require.NotEmpty(t, created.Id)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := ledger.GetFile(ctx, created.Id)
	require.NoError(t, err)
	assert.Equal(t, core.FileStatusProcessing, got.Status)
	assert.Equal(t, "h1.txt", got.Filename)

	got.Status = core.FileStatusFailed
	got.Error = "embedding service unavailable"
	updated, err := ledger.UpdateFile(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, core.FileStatusFailed, updated.Status)
	assert.Equal(t, "alice", updated.OwnerId)
	assert.True(t, !updated.UpdatedAt.Before(updated.CreatedAt))

	byHash, err := ledger.FindFileByHash(ctx, "alice", "h1")
	require.NoError(t, err)
	assert.Equal(t, created.Id, byHash.Id)
	assert.Equal(t, "embedding service unavailable", byHash.Error)

	failed, err := ledger.ListFilesByStatus(ctx, core.FileStatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	processing, err := ledger.ListFilesByStatus(ctx, core.FileStatusProcessing)
	require.NoError(t, err)
	assert.Empty(t, processing)

	_, err = ledger.GetFile(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = ledger.FindFileByHash(ctx, "bob", "h1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = ledger.UpdateFile(ctx, &core.FileRecord{Id: "missing", Status: core.FileStatusFailed})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = ledger.CreateFile(ctx, &core.FileRecord{ContentHash: "x", Status: core.FileStatusProcessing})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func testDuplicateHash(t *testing.T, ledger storage.Ledger) {
	ctx := context.Background()

	_, err := ledger.CreateFile(ctx, newFile("alice", "same"))
	require.NoError(t, err)

	_, err = ledger.CreateFile(ctx, newFile("alice", "same"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Another owner may upload identical content
	_, err = ledger.CreateFile(ctx, newFile("bob", "same"))
	assert.NoError(t, err)
}

func testConcurrentCreate(t *testing.T, ledger storage.Ledger) {
	ctx := context.Background()
	const workers = 8

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.CreateFile(ctx, newFile("alice", "race"))
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	}
	assert.Equal(t, 1, created)

	files, err := ledger.ListFiles(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func testFinalStatus(t *testing.T, ledger storage.Ledger) {
	ctx := context.Background()

	for _, final := range []core.FileStatus{core.FileStatusProcessed, core.FileStatusDuplicate} {
		t.Run(string(final), func(t *testing.T) {
			created, err := ledger.CreateFile(ctx, newFile("alice", "final-"+string(final)))
			require.NoError(t, err)
			created.Status = final
			_, err = ledger.UpdateFile(ctx, created)
			require.NoError(t, err)

			for _, next := range []core.FileStatus{core.FileStatusFailed, core.FileStatusProcessing, core.FileStatusUploaded} {
				_, err := ledger.UpdateFile(ctx, &core.FileRecord{Id: created.Id, Status: next, Error: "late"})
				assert.ErrorIs(t, err, storage.ErrStatusConflict, "%s -> %s", final, next)
			}

			// Rewriting the same status is allowed
			renamed, err := ledger.UpdateFile(ctx, &core.FileRecord{Id: created.Id, Status: final, Filename: "renamed.txt"})
			require.NoError(t, err)
			assert.Equal(t, "renamed.txt", renamed.Filename)

			got, err := ledger.GetFile(ctx, created.Id)
			require.NoError(t, err)
			assert.Equal(t, final, got.Status)
			assert.Empty(t, got.Error)
		})
	}
}

func testTransitionFile(t *testing.T, ledger storage.Ledger) {
	ctx := context.Background()

	created, err := ledger.CreateFile(ctx, newFile("alice", "cas"))
	require.NoError(t, err)

	// An ingestion finished after a sweep listed the record
	done := *created
	done.Status = core.FileStatusProcessed
	_, err = ledger.UpdateFile(ctx, &done)
	require.NoError(t, err)

	_, err = ledger.TransitionFile(ctx, created.Id, core.FileStatusProcessing, core.FileStatusFailed, "stale")
	assert.ErrorIs(t, err, storage.ErrStatusConflict)

	got, err := ledger.GetFile(ctx, created.Id)
	require.NoError(t, err)
	assert.Equal(t, core.FileStatusProcessed, got.Status)
	processing, err := ledger.ListFilesByStatus(ctx, core.FileStatusProcessing)
	require.NoError(t, err)
	assert.Empty(t, processing)

	other, err := ledger.CreateFile(ctx, newFile("alice", "cas-2"))
	require.NoError(t, err)
	moved, err := ledger.TransitionFile(ctx, other.Id, core.FileStatusProcessing, core.FileStatusFailed, "stale")
	require.NoError(t, err)
	assert.Equal(t, core.FileStatusFailed, moved.Status)
	assert.Equal(t, "stale", moved.Error)
	assert.Equal(t, "alice", moved.OwnerId)
	assert.Equal(t, "cas-2", moved.ContentHash)

	failed, err := ledger.ListFilesByStatus(ctx, core.FileStatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, other.Id, failed[0].Id)

	_, err = ledger.TransitionFile(ctx, "missing", core.FileStatusProcessing, core.FileStatusFailed, "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = ledger.TransitionFile(ctx, other.Id, core.FileStatusFailed, core.FileStatus("bogus"), "")
	assert.ErrorIs(t, err, core.ErrInvalidStatus)
}

func testConcurrentTransition(t *testing.T, ledger storage.Ledger) {
	ctx := context.Background()
	const workers = 8

	created, err := ledger.CreateFile(ctx, newFile("alice", "contended"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.TransitionFile(ctx, created.Id, core.FileStatusProcessing, core.FileStatusFailed, fmt.Sprint(i))
		}(i)
	}
	wg.Wait()

	moved := 0
	for _, err := range errs {
		if err == nil {
			moved++
			continue
		}
		assert.ErrorIs(t, err, storage.ErrStatusConflict)
	}
	assert.Equal(t, 1, moved)
}

func testListFiles(t *testing.T, ledger storage.Ledger) {
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := ledger.CreateFile(ctx, newFile("alice", fmt.Sprintf("h%d", i)))
		require.NoError(t, err)
		ids = append(ids, rec.Id)
	}
	_, err := ledger.CreateFile(ctx, newFile("bob", "hb"))
	require.NoError(t, err)

	files, err := ledger.ListFiles(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, files, 3)
	for i, f := range files {
		assert.Equal(t, ids[i], f.Id)
		assert.Equal(t, "alice", f.OwnerId)
	}

	none, err := ledger.ListFiles(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testChunks(t *testing.T, ledger storage.Ledger) {
	ctx := context.Background()

	file, err := ledger.CreateFile(ctx, newFile("alice", "chunks"))
	require.NoError(t, err)

	chunks := make([]*core.ChunkRecord, 12)
	for i := range chunks {
		// Insert out of order to check ordering by index
		idx := len(chunks) - 1 - i
		chunks[i] = &core.ChunkRecord{FileId: file.Id, ChunkIndex: idx, ExternalVectorId: fmt.Sprintf("v%d", idx)}
	}
	added, err := ledger.AddChunks(ctx, chunks...)
	require.NoError(t, err)
	for _, c := range added {
		assert.NotEmpty(t, c.Id)
	}

	got, err := ledger.GetChunksByFile(ctx, file.Id)
	require.NoError(t, err)
	require.Len(t, got, 12)
	for i, c := range got {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, fmt.Sprintf("v%d", i), c.ExternalVectorId)
	}

	require.NoError(t, ledger.DeleteChunksByFile(ctx, file.Id))
	got, err = ledger.GetChunksByFile(ctx, file.Id)
	require.NoError(t, err)
	assert.Empty(t, got)

	// Deleting again is not an error
	assert.NoError(t, ledger.DeleteChunksByFile(ctx, file.Id))

	// A batch with an invalid record stores nothing
	_, err = ledger.AddChunks(ctx,
		&core.ChunkRecord{FileId: file.Id, ChunkIndex: 0, ExternalVectorId: "ok"},
		&core.ChunkRecord{ChunkIndex: 1, ExternalVectorId: "orphan"},
	)
	assert.Error(t, err)
	got, err = ledger.GetChunksByFile(ctx, file.Id)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testConversations(t *testing.T, ledger storage.Ledger) {
	ctx := context.Background()

	conv, err := ledger.CreateConversation(ctx, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, conv.Id)

	got, err := ledger.GetConversation(ctx, conv.Id, "alice")
	require.NoError(t, err)
	assert.Equal(t, conv.Id, got.Id)

	// Foreign and missing conversations look the same
	_, err = ledger.GetConversation(ctx, conv.Id, "bob")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = ledger.GetConversation(ctx, "missing", "alice")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	second, err := ledger.CreateConversation(ctx, "alice")
	require.NoError(t, err)
	_, err = ledger.CreateConversation(ctx, "bob")
	require.NoError(t, err)

	convs, err := ledger.ListConversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, conv.Id, convs[0].Id)
	assert.Equal(t, second.Id, convs[1].Id)

	_, err = ledger.CreateConversation(ctx, "")
	assert.Error(t, err)
}

func testMessages(t *testing.T, ledger storage.Ledger) {
	ctx := context.Background()

	conv, err := ledger.CreateConversation(ctx, "alice")
	require.NoError(t, err)

	want := []*core.Message{
		{ConversationId: conv.Id, Role: core.RoleUser, Content: "q1"},
		{ConversationId: conv.Id, Role: core.RoleAssistant, Content: "a1"},
		{ConversationId: conv.Id, Role: core.RoleUser, Content: "q2"},
		{ConversationId: conv.Id, Role: core.RoleAssistant, Content: ""},
	}
	for _, m := range want {
		_, err := ledger.AddMessage(ctx, m)
		require.NoError(t, err)
		assert.NotEmpty(t, m.Id)
	}

	got, err := ledger.GetMessages(ctx, conv.Id)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Role, got[i].Role)
		assert.Equal(t, want[i].Content, got[i].Content)
	}

	_, err = ledger.AddMessage(ctx, &core.Message{ConversationId: "missing", Role: core.RoleUser, Content: "x"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = ledger.AddMessage(ctx, &core.Message{ConversationId: conv.Id, Role: core.RoleUser})
	assert.True(t, errors.Is(err, core.ErrInvalidInput))
}

func testAudit(t *testing.T, ledger storage.Ledger) {
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := ledger.AppendAudit(ctx, &core.AuditEntry{
			Action:   "INGEST_SUCCESS",
			Metadata: map[string]string{"n": fmt.Sprint(i)},
			OwnerId:  "alice",
		})
		require.NoError(t, err)
	}
	_, err := ledger.AppendAudit(ctx, &core.AuditEntry{Action: "INGEST_FAILED", OwnerId: "bob"})
	require.NoError(t, err)

	entries, err := ledger.ListAudit(ctx, "alice", 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "4", entries[0].Metadata["n"])
	assert.Equal(t, "2", entries[2].Metadata["n"])

	all, err := ledger.ListAudit(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	bob, err := ledger.ListAudit(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, bob, 1)
	assert.Equal(t, "INGEST_FAILED", bob[0].Action)
}
