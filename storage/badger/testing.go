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

package badger

import "github.com/poiesic/corpus/storage"

// MemoryRepositories bundles every repository over one in-memory backend.
// Close releases them in reverse construction order.
type MemoryRepositories struct {
	Assets  storage.AssetRepository
	Blobs   storage.BlobRepository
	Chunks  storage.ChunkRepository
	Jobs    storage.JobRepository
	Backend *Backend
}

// NewMemoryRepositories creates in-memory repositories for testing.
// Caller must call Close when done.
func NewMemoryRepositories() (*MemoryRepositories, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}

	assetRepo, err := NewAssetRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &MemoryRepositories{
		Assets:  assetRepo,
		Blobs:   NewBlobRepository(backend),
		Chunks:  NewChunkRepository(backend),
		Jobs:    NewJobRepository(backend),
		Backend: backend,
	}, nil
}

// Close releases every repository and the backend.
func (m *MemoryRepositories) Close() error {
	m.Assets.Close()
	m.Blobs.Close()
	m.Chunks.Close()
	m.Jobs.Close()
	return m.Backend.Close()
}
