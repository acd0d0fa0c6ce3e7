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

// Package blobfs stores blob bytes on the local file system, addressed by
// tenant and content hash. Records and reference counts live elsewhere;
// this package only holds the bytes.
package blobfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/corpus/storage"
)

// Store implements storage.BlobStore backed by a local directory.
//
// Content lives at <root>/<tenant>/<hash[0:2]>/<hash>; the two-character
// shard keeps directories small for tenants with many blobs. Writes are
// atomic (temp file, fsync, rename), so a crash mid-upload never leaves a
// partial blob at its final location.
type Store struct {
	root string
}

var _ storage.BlobStore = (*Store)(nil)

// NewStore creates a Store rooted at the given directory, creating it if
// needed.
func NewStore(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("blobfs: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("blobfs: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("blobfs: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("blobfs: root is not a directory: %s", abs)
	}
	return &Store{root: abs}, nil
}

// Upload writes content and returns its location relative to the root.
// Uploading the same tenant/hash twice is idempotent: content addressing
// means the bytes are identical, so the second write is a harmless replace.
func (s *Store) Upload(ctx context.Context, tenant, hash string, data []byte) (string, error) {
	rel, err := blobPath(tenant, hash)
	if err != nil {
		return "", err
	}
	abs, err := s.safePath(rel)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("blobfs: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".corpus-tmp-*")
	if err != nil {
		return "", fmt.Errorf("blobfs: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return "", fmt.Errorf("blobfs: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("blobfs: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("blobfs: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return "", fmt.Errorf("blobfs: rename: %w", err)
	}
	success = true
	return rel, nil
}

// Download reads previously uploaded content.
func (s *Store) Download(ctx context.Context, tenant, hash string) ([]byte, error) {
	rel, err := blobPath(tenant, hash)
	if err != nil {
		return nil, err
	}
	abs, err := s.safePath(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: blob %s/%s", storage.ErrNotFound, tenant, hash)
		}
		return nil, fmt.Errorf("blobfs: read %s: %w", rel, err)
	}
	return data, nil
}

// Delete removes uploaded content. Deleting absent content is not an error;
// the garbage collector may retry a partially failed sweep.
func (s *Store) Delete(ctx context.Context, tenant, hash string) error {
	rel, err := blobPath(tenant, hash)
	if err != nil {
		return err
	}
	abs, err := s.safePath(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("blobfs: delete %s: %w", rel, err)
	}
	return nil
}

// blobPath builds the sharded relative path for a blob.
func blobPath(tenant, hash string) (string, error) {
	if tenant == "" || hash == "" {
		return "", fmt.Errorf("blobfs: tenant and hash are required")
	}
	if len(hash) < 2 {
		return "", fmt.Errorf("blobfs: hash too short: %s", hash)
	}
	return filepath.Join(tenant, hash[0:2], hash), nil
}

// safePath resolves a relative path against the root and rejects any
// result that escapes it (directory traversal via tenant names).
func (s *Store) safePath(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("blobfs: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(s.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("blobfs: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("blobfs: path escapes store root: %s", rel)
	}
	return abs, nil
}
