package ingestion

import "errors"

var (
	// ErrAssetRepositoryRequired is returned when an asset repository is not provided.
	ErrAssetRepositoryRequired = errors.New("asset repository required")

	// ErrBlobRepositoryRequired is returned when a blob repository is not provided.
	ErrBlobRepositoryRequired = errors.New("blob repository required")

	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrBlobStoreRequired is returned when a blob store is not provided.
	ErrBlobStoreRequired = errors.New("blob store required")

	// ErrOrchestratorRequired is returned when a chunking orchestrator is not provided.
	ErrOrchestratorRequired = errors.New("chunking orchestrator required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrEnqueuerRequired is returned when a job enqueuer is not provided.
	ErrEnqueuerRequired = errors.New("job enqueuer required")

	// ErrInvalidTransition is returned when a status change would violate
	// the lifecycle state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidMaxAttempts is returned when retry is configured with a
	// non-positive attempt count.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrExtractionFailed wraps text extraction failures. These are
	// validation errors: retrying cannot fix malformed content.
	ErrExtractionFailed = errors.New("text extraction failed")
)
