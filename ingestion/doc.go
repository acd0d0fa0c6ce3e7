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

// Package ingestion implements the document ingestion pipeline and its
// lifecycle state machine.
//
// A document moves PENDING -> PROCESSING -> {COMPLETED, STORED_NO_INDEX,
// FAILED}. The recovery loop may additionally move PROCESSING -> STUCK and
// STUCK -> {PENDING, FAILED}. All transitions go through Service.Advance,
// which rejects anything outside the table and emits an audit log line for
// every accepted change.
//
// RegisterAndEnqueue is the write path: it hashes uploaded bytes, stores
// them once per content hash, registers a PENDING asset and enqueues a
// durable job. ExecuteAnalysis is the worker path, wired in as the queue
// handler: it downloads, extracts, chunks, embeds and persists, degrading
// to vectorless chunks when the embedding provider's quota runs out.
package ingestion
