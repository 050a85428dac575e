package badger

import (
	"encoding/binary"

	"github.com/poiesic/docent/core"
)

// Key prefixes for different data types.
// Key parts are joined with a NUL byte so one owner id can never be a prefix
// of another owner's keys.
const (
	fileRecordPrefix   = "file"
	fileHashPrefix     = "filehash"
	fileOwnerPrefix    = "fileown"
	fileStatusPrefix   = "filestat"
	chunkRecordPrefix  = "chunk"
	conversationPrefix = "conv"
	convOwnerPrefix    = "convown"
	messagePrefix      = "msg"
	auditOwnerPrefix   = "auditown"
	vectorPrefix       = "vec"
)

const keySep = 0x00

// makeKey joins a prefix and parts into a key.
func makeKey(prefix string, parts ...string) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += 1 + len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, keySep)
		buf = append(buf, p...)
	}
	return buf
}

// makePartialKey is makeKey with a trailing separator, for prefix scans.
func makePartialKey(prefix string, parts ...string) []byte {
	return append(makeKey(prefix, parts...), keySep)
}

func makeFileKey(id string) []byte {
	return makeKey(fileRecordPrefix, id)
}

// makeFileHashKey generates the dedup key.
// Format: prefix:owner:hash
func makeFileHashKey(ownerId, hash string) []byte {
	return makeKey(fileHashPrefix, ownerId, hash)
}

func makeFileOwnerKey(ownerId, id string) []byte {
	return makeKey(fileOwnerPrefix, ownerId, id)
}

func makeFileStatusKey(status core.FileStatus, id string) []byte {
	return makeKey(fileStatusPrefix, string(status), id)
}

// makeChunkKey generates a composite key for a chunk record.
// Format: prefix:fileId:index, index in BigEndian so lexicographic order is chunk order.
func makeChunkKey(fileId string, index int) []byte {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(index))
	return makeKey(chunkRecordPrefix, fileId, string(idx[:]))
}

func makeConversationKey(id string) []byte {
	return makeKey(conversationPrefix, id)
}

func makeConvOwnerKey(ownerId, id string) []byte {
	return makeKey(convOwnerPrefix, ownerId, id)
}

// makeMessageKey generates a composite key for a message.
// Message ids are ULIDs, so key order is turn order.
func makeMessageKey(conversationId, id string) []byte {
	return makeKey(messagePrefix, conversationId, id)
}

func makeAuditKey(ownerId, id string) []byte {
	return makeKey(auditOwnerPrefix, ownerId, id)
}

// makeVectorKey generates the key of an indexed vector.
// Format: prefix:owner:id, so a query for one owner scans only that owner's vectors.
func makeVectorKey(ownerId, id string) []byte {
	return makeKey(vectorPrefix, ownerId, id)
}
