package blobfs

import (
	"context"
	"fmt"
	"sync"

	"github.com/poiesic/corpus/storage"
)

// MemoryStore keeps blob bytes in a map. It backs in-memory engines and
// tests, mirroring the filesystem store's semantics.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ storage.BlobStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func memoryKey(tenant, hash string) string {
	return tenant + "/" + hash
}

// Upload stores a copy of data. Idempotent per tenant/hash.
func (s *MemoryStore) Upload(ctx context.Context, tenant, hash string, data []byte) (string, error) {
	key := memoryKey(tenant, hash)
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.blobs[key] = buf
	s.mu.Unlock()
	return key, nil
}

// Download returns a copy of previously uploaded bytes.
func (s *MemoryStore) Download(ctx context.Context, tenant, hash string) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.blobs[memoryKey(tenant, hash)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: blob %s/%s", storage.ErrNotFound, tenant, hash)
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// Delete removes the bytes. Deleting absent content is not an error.
func (s *MemoryStore) Delete(ctx context.Context, tenant, hash string) error {
	s.mu.Lock()
	delete(s.blobs, memoryKey(tenant, hash))
	s.mu.Unlock()
	return nil
}
