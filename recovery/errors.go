package recovery

import "errors"

var (
	// ErrAssetRepositoryRequired is returned when an asset repository is not provided.
	ErrAssetRepositoryRequired = errors.New("asset repository required")

	// ErrBlobRepositoryRequired is returned when a blob repository is not provided.
	ErrBlobRepositoryRequired = errors.New("blob repository required")

	// ErrBlobStoreRequired is returned when a blob store is not provided.
	ErrBlobStoreRequired = errors.New("blob store required")

	// ErrIngestionServiceRequired is returned when the ingestion service is not provided.
	ErrIngestionServiceRequired = errors.New("ingestion service required")

	// ErrEnqueuerRequired is returned when a job enqueuer is not provided.
	ErrEnqueuerRequired = errors.New("job enqueuer required")

	// ErrAlreadyRunning is returned when a background loop is started twice.
	ErrAlreadyRunning = errors.New("already running")
)
