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


package storage

import (
	"github.com/poiesic/corpus/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	var id core.ID
	id, _, err := core.IDMUS.Unmarshal(data)
	return id, err
}

// MarshalAsset serializes a KnowledgeAsset to bytes.
func MarshalAsset(asset *core.KnowledgeAsset) []byte {
	buf := make([]byte, core.KnowledgeAssetMUS.Size(*asset))
	core.KnowledgeAssetMUS.Marshal(*asset, buf)
	return buf
}

// UnmarshalAsset deserializes a KnowledgeAsset from bytes.
func UnmarshalAsset(data []byte) (*core.KnowledgeAsset, error) {
	asset, _, err := core.KnowledgeAssetMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// MarshalBlob serializes a Blob record to bytes.
func MarshalBlob(blob *core.Blob) []byte {
	buf := make([]byte, core.BlobMUS.Size(*blob))
	core.BlobMUS.Marshal(*blob, buf)
	return buf
}

// UnmarshalBlob deserializes a Blob record from bytes.
func UnmarshalBlob(data []byte) (*core.Blob, error) {
	blob, _, err := core.BlobMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &blob, nil
}

// MarshalChunk serializes a DocumentChunk to bytes.
func MarshalChunk(chunk *core.DocumentChunk) []byte {
	buf := make([]byte, core.DocumentChunkMUS.Size(*chunk))
	core.DocumentChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalChunk deserializes a DocumentChunk from bytes.
func UnmarshalChunk(data []byte) (*core.DocumentChunk, error) {
	chunk, _, err := core.DocumentChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// MarshalJob serializes an IngestionJob to bytes.
func MarshalJob(job *core.IngestionJob) []byte {
	buf := make([]byte, core.IngestionJobMUS.Size(*job))
	core.IngestionJobMUS.Marshal(*job, buf)
	return buf
}

// UnmarshalJob deserializes an IngestionJob from bytes.
func UnmarshalJob(data []byte) (*core.IngestionJob, error) {
	job, _, err := core.IngestionJobMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
