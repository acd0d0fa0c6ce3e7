package storage

import (
	"context"
	"time"

	"github.com/poiesic/corpus/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// AssetRepository provides operations for managing knowledge assets.
type AssetRepository interface {
	Repository
	// AddAsset persists a new knowledge asset. For assets with ID=0,
	// generates a new ID from sequence and sets CreatedAt/UpdatedAt.
	// Returns the asset with ID and timestamps populated.
	AddAsset(ctx context.Context, asset *core.KnowledgeAsset) (*core.KnowledgeAsset, error)

	// UpdateAsset updates an existing asset and bumps UpdatedAt.
	// Returns ErrNotFound if the asset doesn't exist.
	UpdateAsset(ctx context.Context, asset *core.KnowledgeAsset) (*core.KnowledgeAsset, error)

	// MutateAsset applies fn to the stored asset with read, mutation and
	// write in one transaction, so fn always sees the committed state and
	// concurrent mutations cannot interleave. An error from fn aborts
	// without writing. Returns ErrNotFound if the asset doesn't exist.
	MutateAsset(ctx context.Context, id core.ID, fn func(asset *core.KnowledgeAsset) error) (*core.KnowledgeAsset, error)

	// GetAsset retrieves a single asset by ID.
	// Returns ErrNotFound if the asset doesn't exist.
	GetAsset(ctx context.Context, id core.ID) (*core.KnowledgeAsset, error)

	// FindAssetByHash finds a non-deleted asset by tenant, environment and
	// content hash. Used for duplicate-submission suppression.
	// Returns ErrNotFound if no matching asset exists.
	FindAssetByHash(ctx context.Context, tenant, environment, hash string) (*core.KnowledgeAsset, error)

	// ListAssetsByStatus retrieves assets in the given status whose
	// UpdatedAt is older than the cutoff. A zero cutoff disables the
	// staleness filter. Used by the stuck-job detector.
	ListAssetsByStatus(ctx context.Context, status core.IngestionStatus, updatedBefore time.Time) ([]*core.KnowledgeAsset, error)

	// ReferencedHashes returns the set of content hashes referenced by any
	// non-deleted asset. Used by the garbage collector.
	ReferencedHashes(ctx context.Context) (map[string]bool, error)
}

// BlobRepository provides reference-counted blob record operations.
// All reference count mutations happen inside storage-layer transactions,
// never as read-then-write in application code.
type BlobRepository interface {
	Repository
	// GetOrCreateRef atomically resolves a blob record for the given hash.
	// If the record exists, its RefCount is incremented and the existing
	// record is returned with created=false. Otherwise a new record with
	// RefCount=1 is created from the template and returned with created=true.
	// Safe under concurrent calls with the same hash.
	GetOrCreateRef(ctx context.Context, template *core.Blob) (blob *core.Blob, created bool, err error)

	// Release decrements the blob's reference count and stamps
	// UnreferencedAt when the count reaches zero. Never deletes.
	// Returns ErrRefCountUnderflow if the count would go negative.
	Release(ctx context.Context, tenant, hash string) (*core.Blob, error)

	// GetBlob retrieves a blob record by tenant and hash.
	// Returns ErrNotFound if the record doesn't exist.
	GetBlob(ctx context.Context, tenant, hash string) (*core.Blob, error)

	// ListOrphans returns blob records with RefCount == 0 whose
	// UnreferencedAt precedes the cutoff.
	ListOrphans(ctx context.Context, unreferencedBefore time.Time) ([]*core.Blob, error)

	// DeleteBlob removes a blob record. Only the garbage collector calls
	// this, and only for orphans past the grace window. The deletion
	// transaction re-checks the reference count and returns
	// ErrBlobStillReferenced if the blob was re-referenced since it was
	// listed as an orphan.
	DeleteBlob(ctx context.Context, tenant, hash string) error
}

// ChunkRepository provides operations for managing document chunks.
type ChunkRepository interface {
	Repository
	// ReplaceChunks atomically replaces an asset's chunk set: the new
	// chunks are written and the previous set deleted in one transaction,
	// so readers never observe a partially-chunked document.
	// Returns the chunks with generated IDs and timestamps populated.
	ReplaceChunks(ctx context.Context, assetID core.ID, chunks []*core.DocumentChunk) ([]*core.DocumentChunk, error)

	// GetChunks retrieves all chunks for an asset ordered by sequence.
	GetChunks(ctx context.Context, assetID core.ID) ([]*core.DocumentChunk, error)

	// DeleteChunks removes all chunks for an asset.
	DeleteChunks(ctx context.Context, assetID core.ID) error

	// FindSimilar finds a tenant's chunks similar to the given vector.
	// Returns chunks with similarity >= minSimilarity, up to limit results,
	// ordered by similarity score (highest first).
	FindSimilar(ctx context.Context, tenant string, vector []float32, minSimilarity float32, limit int) ([]*core.ChunkMatch, error)
}

// JobRepository provides durable, deduplicated queue operations.
type JobRepository interface {
	Repository
	// Enqueue inserts a job if no unresolved job exists for its key.
	// Returns the stored job and enqueued=false when submission was
	// suppressed by an existing waiting/active/delayed job.
	Enqueue(ctx context.Context, job *core.IngestionJob) (stored *core.IngestionJob, enqueued bool, err error)

	// Acquire atomically claims the next eligible job (waiting or delayed
	// with NotBefore elapsed, or active with an expired lease), marking it
	// active under a fresh lease. Returns ErrNotFound when no job is ready.
	Acquire(ctx context.Context, lease time.Duration) (*core.IngestionJob, error)

	// Complete marks an active job completed, freeing its key.
	Complete(ctx context.Context, key string) error

	// Fail records a job failure. Jobs under maxAttempts are rescheduled
	// as delayed with the given backoff; others become failed and are
	// retained for inspection.
	Fail(ctx context.Context, key, reason string, backoff time.Duration, maxAttempts int) (*core.IngestionJob, error)

	// GetJob retrieves a job by key. Returns ErrNotFound if absent.
	GetJob(ctx context.Context, key string) (*core.IngestionJob, error)

	// ListJobsByStatus retrieves jobs in the given status.
	ListJobsByStatus(ctx context.Context, status core.JobStatus) ([]*core.IngestionJob, error)

	// DeleteJob removes a job regardless of status. Admin operation.
	DeleteJob(ctx context.Context, key string) error

	// RetryJob moves a failed job back to waiting with a cleared error.
	// Admin operation. Returns ErrNotFound if absent.
	RetryJob(ctx context.Context, key string) (*core.IngestionJob, error)
}

// BlobStore holds the actual bytes behind blob records, addressed by
// tenant and content hash. Implementations must be thread-safe.
type BlobStore interface {
	// Upload writes content and returns its storage location. Writing the
	// same tenant/hash twice is idempotent.
	Upload(ctx context.Context, tenant, hash string, data []byte) (location string, err error)

	// Download reads previously uploaded content.
	// Returns ErrNotFound if the bytes are absent.
	Download(ctx context.Context, tenant, hash string) ([]byte, error)

	// Delete removes uploaded content. Deleting absent content is not an error.
	Delete(ctx context.Context, tenant, hash string) error
}
