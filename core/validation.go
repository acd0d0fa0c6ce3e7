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

import "fmt"

// MaxUploadBytes is the upper bound on uploaded document size.
const MaxUploadBytes = 50 * 1024 * 1024

// ValidateAsset validates a KnowledgeAsset according to domain rules.
//
// Validation rules:
//   - Tenant must not be empty
//   - Filename must not be empty
//   - Status must be a known value
//
// NOT validated (populated during processing):
//   - ContentHash (set once the blob is resolved)
//   - TotalChunks, Progress, Attempts
func ValidateAsset(asset *KnowledgeAsset) error {
	if asset == nil {
		return fmt.Errorf("%w: asset is nil", ErrInvalidAsset)
	}

	if asset.Tenant == "" {
		return fmt.Errorf("%w: %w", ErrInvalidAsset, ErrEmptyTenant)
	}

	if asset.Filename == "" {
		return fmt.Errorf("%w: %w", ErrInvalidAsset, ErrEmptyFilename)
	}

	if err := ValidateStatus(asset.Status); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAsset, err)
	}

	return nil
}

// ValidateUpload validates raw uploaded content before any processing.
// Oversized or empty uploads fail immediately with no retry.
func ValidateUpload(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidAsset, ErrEmptyContent)
	}
	if len(data) > MaxUploadBytes {
		return fmt.Errorf("%w: %w: %d bytes", ErrInvalidAsset, ErrContentTooLarge, len(data))
	}
	return nil
}

// ValidateJob validates an IngestionJob at the queue boundary so a worker
// never receives an unexpected payload shape.
func ValidateJob(job *IngestionJob) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", ErrInvalidJob)
	}

	if job.Key == "" {
		return fmt.Errorf("%w: %w", ErrInvalidJob, ErrEmptyJobKey)
	}

	if job.AssetId == 0 {
		return fmt.Errorf("%w: asset id is zero", ErrInvalidJob)
	}

	if job.Tenant == "" {
		return fmt.Errorf("%w: %w", ErrInvalidJob, ErrEmptyTenant)
	}

	return nil
}

// ValidateStatus validates that an IngestionStatus has a valid value.
func ValidateStatus(status IngestionStatus) error {
	if status < StatusPending || status > StatusStuck {
		return fmt.Errorf("%w: value %d", ErrInvalidStatus, status)
	}
	return nil
}

// ValidateStrategy validates that a ChunkStrategy has a valid value.
func ValidateStrategy(strategy ChunkStrategy) error {
	if strategy < StrategySimple || strategy > StrategyLLM {
		return fmt.Errorf("%w: value %d", ErrInvalidStrategy, strategy)
	}
	return nil
}
