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


// Package storage provides the storage abstraction layer for corpus.
//
// This package defines repository interfaces that decouple storage
// implementation from business logic. It allows for different storage
// backends (BadgerDB, in-memory, etc.) to be used interchangeably.
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - AssetRepository: knowledge asset lifecycle records
//   - BlobRepository: reference-counted blob records
//   - ChunkRepository: document chunks with atomic replacement
//   - JobRepository: the durable, deduplicated ingestion queue
//   - BlobStore: the byte store behind blob records
//
// # Reference counting
//
// BlobRepository is the only interface whose state is mutated by more than
// one actor concurrently: the ingestion path increments, deletion and the
// garbage collector decrement and delete. Implementations must perform all
// reference count mutations atomically at the storage layer. Callers never
// read-modify-write a count.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support.
package storage
