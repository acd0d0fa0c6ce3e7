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

// Package chunking splits extracted document text into retrievable chunks.
//
// Three strategies are supported:
//
//   - SIMPLE: a fixed-size sliding window with overlap. Deterministic, no
//     external calls. Chunks carry [StartIdx, EndIdx) offsets into the
//     original text.
//   - SEMANTIC: groups text at paragraph and heading boundaries, merging
//     lexically similar neighbors, then windows any oversized group.
//   - LLM: delegates boundary detection to a generation model, tagging each
//     chunk with a structural kind instead of exact offsets.
//
// The orchestrator guarantees non-empty output for non-empty input: when
// SEMANTIC or LLM fails or produces nothing, it falls back to SIMPLE and
// logs the downgrade rather than leaving a document unchunked.
package chunking
