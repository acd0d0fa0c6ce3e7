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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidAsset indicates a KnowledgeAsset failed validation.
	ErrInvalidAsset = errors.New("invalid knowledge asset")

	// ErrInvalidJob indicates an IngestionJob failed validation.
	ErrInvalidJob = errors.New("invalid ingestion job")

	// ErrEmptyTenant indicates the tenant identifier is missing.
	ErrEmptyTenant = errors.New("tenant cannot be empty")

	// ErrEmptyFilename indicates the filename is missing.
	ErrEmptyFilename = errors.New("filename cannot be empty")

	// ErrEmptyContent indicates the uploaded content is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrContentTooLarge indicates the uploaded content exceeds the size limit.
	ErrContentTooLarge = errors.New("content exceeds maximum size")

	// ErrInvalidStatus indicates an invalid IngestionStatus value.
	ErrInvalidStatus = errors.New("invalid ingestion status")

	// ErrInvalidStrategy indicates an invalid ChunkStrategy value.
	ErrInvalidStrategy = errors.New("invalid chunk strategy")

	// ErrEmptyJobKey indicates the job key is missing.
	ErrEmptyJobKey = errors.New("job key cannot be empty")
)
