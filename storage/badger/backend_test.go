package badger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docent/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(tmpDir, false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	info, err := os.Stat(tmpDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_PathIsFile(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(tmpFile, []byte("x"), 0644))

	_, err := OpenBackend(tmpFile, false)
	assert.Error(t, err)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	err = backend.WithTx(func(tx *badger.Txn) error { return nil }, false)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestScanPrefix_RespectsSeparator(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	err = backend.WithTx(func(tx *badger.Txn) error {
		for _, key := range [][]byte{
			makeFileOwnerKey("alice", "1"),
			makeFileOwnerKey("alice", "2"),
			makeFileOwnerKey("alicex", "3"),
		} {
			if err := tx.Set(key, key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	require.NoError(t, err)

	var forward, reverse []string
	err = backend.WithTx(func(tx *badger.Txn) error {
		prefix := makePartialKey(fileOwnerPrefix, "alice")
		if err := scanPrefix(tx, prefix, func(key, _ []byte) error {
			forward = append(forward, string(key[len(prefix):]))
			return nil
		}); err != nil {
			return err
		}
		return scanPrefixReverse(tx, prefix, func(key, _ []byte) (bool, error) {
			reverse = append(reverse, string(key[len(prefix):]))
			return true, nil
		})
	}, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, forward)
	assert.Equal(t, []string{"2", "1"}, reverse)
}

func TestMakeChunkKey_OrdersByIndex(t *testing.T) {
	assert.Less(t, string(makeChunkKey("f", 2)), string(makeChunkKey("f", 10)))
	assert.Less(t, string(makeChunkKey("f", 255)), string(makeChunkKey("f", 256)))
}
