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

package recovery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/storage"
)

// GarbageCollector deletes blob content whose reference count has sat at
// zero beyond a grace window. Deletion is double-checked against the live
// set of referenced hashes, so a blob re-referenced after orphan listing
// survives.
type GarbageCollector struct {
	assets    storage.AssetRepository
	blobs     storage.BlobRepository
	blobStore storage.BlobStore
	logger    *slog.Logger

	grace      time.Duration
	batchSize  int
	maxRuntime time.Duration
}

// GCOption configures a GarbageCollector.
type GCOption func(*GarbageCollector)

// WithGraceWindow sets how long a blob must be unreferenced before it is
// collectable. Default is 24 hours.
func WithGraceWindow(d time.Duration) GCOption {
	return func(gc *GarbageCollector) { gc.grace = d }
}

// WithBatchSize caps how many orphans one Execute pass deletes. Default 100.
func WithBatchSize(n int) GCOption {
	return func(gc *GarbageCollector) {
		if n > 0 {
			gc.batchSize = n
		}
	}
}

// WithMaxRuntime bounds one Execute pass. Default is 5 minutes.
func WithMaxRuntime(d time.Duration) GCOption {
	return func(gc *GarbageCollector) { gc.maxRuntime = d }
}

// WithGCLogger sets a custom logger.
func WithGCLogger(logger *slog.Logger) GCOption {
	return func(gc *GarbageCollector) {
		if logger != nil {
			gc.logger = logger.With("component", "gc")
		}
	}
}

// NewGarbageCollector creates a collector over the blob record repository,
// the asset repository (for the reference cross-check) and the byte store.
func NewGarbageCollector(assets storage.AssetRepository, blobs storage.BlobRepository, blobStore storage.BlobStore, opts ...GCOption) (*GarbageCollector, error) {
	if assets == nil {
		return nil, ErrAssetRepositoryRequired
	}
	if blobs == nil {
		return nil, ErrBlobRepositoryRequired
	}
	if blobStore == nil {
		return nil, ErrBlobStoreRequired
	}

	gc := &GarbageCollector{
		assets:     assets,
		blobs:      blobs,
		blobStore:  blobStore,
		logger:     slog.Default().With("component", "gc"),
		grace:      24 * time.Hour,
		batchSize:  100,
		maxRuntime: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(gc)
	}
	return gc, nil
}

// GCResult summarizes one collection pass.
type GCResult struct {
	OrphansFound   int
	OrphansDeleted int
	BytesFreed     int64
	Skipped        int // orphans still referenced by a live asset
	Errors         int
	Duration       time.Duration
}

// Execute runs one collection pass: list orphans past the grace window,
// cross-check each against live asset references, then delete the record
// before the bytes. The record deletion re-checks the reference count in
// its own transaction, so an orphan re-referenced after listing keeps both
// its record and its bytes; a failure after the record commits leaves only
// unaccounted bytes, which the content address lets a later upload reclaim.
func (gc *GarbageCollector) Execute(ctx context.Context) (GCResult, error) {
	start := time.Now()
	deadline := start.Add(gc.maxRuntime)
	var result GCResult

	cutoff := start.Add(-gc.grace)
	orphans, err := gc.blobs.ListOrphans(ctx, cutoff)
	if err != nil {
		return result, err
	}
	result.OrphansFound = len(orphans)

	referenced, err := gc.assets.ReferencedHashes(ctx)
	if err != nil {
		return result, err
	}

	for _, orphan := range orphans {
		if result.OrphansDeleted >= gc.batchSize {
			gc.logger.Info("gc batch limit reached", "batch_size", gc.batchSize)
			break
		}
		if time.Now().After(deadline) {
			gc.logger.Warn("gc runtime limit reached", "max_runtime", gc.maxRuntime)
			break
		}
		select {
		case <-ctx.Done():
			result.Duration = time.Since(start)
			return result, ctx.Err()
		default:
		}

		if referenced[orphan.Hash] {
			// Zero refcount but a live asset still names this hash; the
			// records disagree, and the safe side is to keep the bytes.
			result.Skipped++
			gc.logger.Warn("skipping orphan still referenced by an asset",
				"tenant", orphan.Tenant,
				"hash", orphan.Hash)
			continue
		}

		if err := gc.deleteOrphan(ctx, orphan); err != nil {
			if errors.Is(err, storage.ErrBlobStillReferenced) {
				// Re-referenced between orphan listing and deletion.
				result.Skipped++
				gc.logger.Warn("skipping orphan re-referenced after listing",
					"tenant", orphan.Tenant,
					"hash", orphan.Hash)
				continue
			}
			result.Errors++
			gc.logger.Error("failed to collect orphan",
				"tenant", orphan.Tenant,
				"hash", orphan.Hash,
				"err", err)
			continue
		}
		result.OrphansDeleted++
		result.BytesFreed += orphan.SizeBytes
	}

	result.Duration = time.Since(start)
	gc.logger.Info("gc pass finished",
		"orphans_found", result.OrphansFound,
		"orphans_deleted", result.OrphansDeleted,
		"bytes_freed", result.BytesFreed,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"duration", result.Duration)
	return result, nil
}

func (gc *GarbageCollector) deleteOrphan(ctx context.Context, orphan *core.Blob) error {
	// Record first: its transaction is the final authority on whether the
	// blob is still an orphan. Bytes go only once the record is gone.
	if err := gc.blobs.DeleteBlob(ctx, orphan.Tenant, orphan.Hash); err != nil {
		return err
	}
	return gc.blobStore.Delete(ctx, orphan.Tenant, orphan.Hash)
}
