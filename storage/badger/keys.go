package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/corpus/core"
)

// Key prefixes for different data types
const (
	assetPrefix     = "kasset"
	assetHashPrefix = "kassethash"
	assetIDSeq      = "kassetseq"
	blobPrefix      = "blob"
	chunkPrefix     = "chunk"
	chunkIDSeq      = "chunkseq"
	jobPrefix       = "job"
)

// makeAssetKey generates a key for a knowledge asset by ID.
func makeAssetKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", assetPrefix, id))
}

// makeAssetHashKey generates a composite key for the content-hash index.
// Format: prefix:tenant:environment:hash:id — several assets may point at
// the same blob, so the asset id is part of the key.
func makeAssetHashKey(tenant, environment, hash string, id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:%s:%d", assetHashPrefix, tenant, environment, hash, id))
}

// makePartialAssetHashKey generates a partial key for hash lookups.
func makePartialAssetHashKey(tenant, environment, hash string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:%s:", assetHashPrefix, tenant, environment, hash))
}

// makeBlobKey generates a key for a blob record by tenant and content hash.
func makeBlobKey(tenant, hash string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", blobPrefix, tenant, hash))
}

// makeChunkKey generates a composite key for a chunk.
// Format: prefix:assetID:seq with both numbers in BigEndian order so a
// prefix scan yields one asset's chunks in sequence order.
func makeChunkKey(assetID core.ID, seq int) []byte {
	prefix := chunkPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 16 // 8 bytes for assetID + 8 bytes for seq
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(assetID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(seq))
	return buf
}

// makePartialChunkKey generates a partial key for per-asset chunk scans.
// Format: prefix:assetID
func makePartialChunkKey(assetID core.ID) []byte {
	prefix := chunkPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8 // 8 bytes for assetID
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(assetID))
	return buf
}

// makeJobKey generates a key for a queue job by its deterministic job key.
func makeJobKey(key string) []byte {
	return []byte(fmt.Sprintf("%s:%s", jobPrefix, key))
}
