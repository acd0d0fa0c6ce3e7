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

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/corpus/ai"
	"github.com/poiesic/corpus/chunking"
	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/storage"
)

// Enqueuer submits durable ingestion jobs. The queue service satisfies this;
// the narrow interface keeps ingestion decoupled from queue internals.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *core.IngestionJob) (*core.IngestionJob, bool, error)
}

// Service coordinates the full ingestion pipeline: content registration,
// blob storage, extraction, chunking, embedding and lifecycle transitions.
type Service struct {
	assets       storage.AssetRepository
	blobs        storage.BlobRepository
	chunks       storage.ChunkRepository
	blobStore    storage.BlobStore
	orchestrator *chunking.Orchestrator
	embedder     ai.Embedder
	enqueuer     Enqueuer
	extractor    TextExtractor
	usage        *ai.UsageTracker
	logger       *slog.Logger

	maxAttempts        int
	embedAttempts      int
	embedBaseDelay     time.Duration
	stageTimeout       time.Duration
	suppressDuplicates bool
}

// Option configures the ingestion service.
type Option func(*Service) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger != nil {
			s.logger = logger.With("component", "ingestion")
		}
		return nil
	}
}

// WithMaxAttempts bounds how many processing attempts an asset gets before
// its failure becomes terminal.
func WithMaxAttempts(n int) Option {
	return func(s *Service) error {
		if n <= 0 {
			return ErrInvalidMaxAttempts
		}
		s.maxAttempts = n
		return nil
	}
}

// WithEmbedRetry configures the per-chunk embedding retry policy for
// transient provider failures.
func WithEmbedRetry(attempts int, baseDelay time.Duration) Option {
	return func(s *Service) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		s.embedAttempts = attempts
		s.embedBaseDelay = baseDelay
		return nil
	}
}

// WithStageTimeout bounds each pipeline stage (download, extract, chunk,
// embed). A timed-out stage is a transient failure under the attempt
// policy, not a hang. Zero disables the bound. Default is 2 minutes.
func WithStageTimeout(d time.Duration) Option {
	return func(s *Service) error {
		s.stageTimeout = d
		return nil
	}
}

// WithExtractor replaces the default plain-text extractor.
func WithExtractor(extractor TextExtractor) Option {
	return func(s *Service) error {
		if extractor != nil {
			s.extractor = extractor
		}
		return nil
	}
}

// WithUsageTracker attaches a token usage tracker; embedded chunk text is
// counted against it.
func WithUsageTracker(usage *ai.UsageTracker) Option {
	return func(s *Service) error {
		s.usage = usage
		return nil
	}
}

// WithDuplicateSuppression makes RegisterAndEnqueue return the existing
// asset when the same content hash was already registered for the tenant
// and environment, instead of creating a second asset.
func WithDuplicateSuppression() Option {
	return func(s *Service) error {
		s.suppressDuplicates = true
		return nil
	}
}

// NewService creates an ingestion service. All repositories, the blob
// store, the orchestrator, the embedder and the enqueuer are required.
func NewService(
	assets storage.AssetRepository,
	blobs storage.BlobRepository,
	chunks storage.ChunkRepository,
	blobStore storage.BlobStore,
	orchestrator *chunking.Orchestrator,
	embedder ai.Embedder,
	enqueuer Enqueuer,
	opts ...Option,
) (*Service, error) {
	if assets == nil {
		return nil, ErrAssetRepositoryRequired
	}
	if blobs == nil {
		return nil, ErrBlobRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if blobStore == nil {
		return nil, ErrBlobStoreRequired
	}
	if orchestrator == nil {
		return nil, ErrOrchestratorRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if enqueuer == nil {
		return nil, ErrEnqueuerRequired
	}

	s := &Service{
		assets:         assets,
		blobs:          blobs,
		chunks:         chunks,
		blobStore:      blobStore,
		orchestrator:   orchestrator,
		embedder:       embedder,
		enqueuer:       enqueuer,
		extractor:      NewPlainTextExtractor(),
		logger:         slog.Default().With("component", "ingestion"),
		maxAttempts:    3,
		embedAttempts:  3,
		embedBaseDelay: time.Second,
		stageTimeout:   2 * time.Minute,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// RegisterRequest describes one uploaded document.
type RegisterRequest struct {
	Tenant        string
	Environment   string
	Filename      string
	Content       []byte
	Strategy      core.ChunkStrategy // zero value defaults to SIMPLE
	CorrelationID string
	Actor         string
}

// RegisterResult reports what registration did.
type RegisterResult struct {
	Asset       *core.KnowledgeAsset
	Blob        *core.Blob
	BlobCreated bool  // false when the content hash was already stored
	SavedBytes  int64 // upload size avoided by deduplication
	Enqueued    bool  // false when an unresolved job suppressed the submission
	Duplicate   bool  // true when duplicate suppression returned an existing asset
}

// RegisterAndEnqueue validates an upload, stores its bytes exactly once via
// content addressing, registers a PENDING asset, and enqueues an ingestion
// job. The bytes are uploaded before the blob record is written so that no
// record ever points at missing content.
func (s *Service) RegisterAndEnqueue(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if err := core.ValidateUpload(req.Content); err != nil {
		return nil, err
	}
	if req.Tenant == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidAsset, core.ErrEmptyTenant)
	}
	if req.Filename == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidAsset, core.ErrEmptyFilename)
	}
	strategy := req.Strategy
	if strategy == 0 {
		strategy = core.StrategySimple
	}
	if err := core.ValidateStrategy(strategy); err != nil {
		return nil, err
	}

	hash := core.HashContent(req.Content)

	if s.suppressDuplicates {
		existing, err := s.assets.FindAssetByHash(ctx, req.Tenant, req.Environment, hash)
		if err == nil {
			s.logger.Info("duplicate upload suppressed",
				"asset_id", existing.Id,
				"tenant", req.Tenant,
				"hash", hash,
				"correlation_id", req.CorrelationID)
			return &RegisterResult{Asset: existing, Duplicate: true}, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	location, err := s.blobStore.Upload(ctx, req.Tenant, hash, req.Content)
	if err != nil {
		return nil, fmt.Errorf("uploading content: %w", err)
	}

	blob, created, err := s.blobs.GetOrCreateRef(ctx, &core.Blob{
		Hash:      hash,
		Tenant:    req.Tenant,
		Location:  location,
		SizeBytes: int64(len(req.Content)),
	})
	if err != nil {
		// The uploaded bytes are content-addressed and harmless without a
		// record; a later upload of the same content reuses them.
		return nil, fmt.Errorf("acquiring blob reference: %w", err)
	}
	var savedBytes int64
	if !created {
		savedBytes = int64(len(req.Content))
	}
	s.logger.Info("blob reference acquired",
		"tenant", req.Tenant,
		"hash", hash,
		"created", created,
		"ref_count", blob.RefCount,
		"size_bytes", blob.SizeBytes,
		"saved_bytes", savedBytes)

	asset, err := s.assets.AddAsset(ctx, &core.KnowledgeAsset{
		Tenant:      req.Tenant,
		Environment: req.Environment,
		Filename:    req.Filename,
		ContentHash: hash,
		Status:      core.StatusPending,
	})
	if err != nil {
		s.releaseBlobRef(ctx, req.Tenant, hash)
		return nil, fmt.Errorf("registering asset: %w", err)
	}

	job := &core.IngestionJob{
		Key:           core.JobKey(asset.Id, req.Environment),
		AssetId:       asset.Id,
		Tenant:        req.Tenant,
		Environment:   req.Environment,
		CorrelationId: req.CorrelationID,
		Strategy:      strategy,
	}
	stored, enqueued, err := s.enqueuer.Enqueue(ctx, job)
	if err != nil {
		s.releaseBlobRef(ctx, req.Tenant, hash)
		if _, advErr := s.Advance(ctx, asset.Id, core.StatusFailed, AdvanceDetails{
			Error:         fmt.Sprintf("enqueue failed: %v", err),
			CorrelationID: req.CorrelationID,
			Actor:         req.Actor,
		}); advErr != nil {
			s.logger.Error("failed to mark asset after enqueue failure",
				"asset_id", asset.Id, "err", advErr)
		}
		return nil, fmt.Errorf("enqueueing ingestion job: %w", err)
	}

	s.logger.Info("document registered",
		"asset_id", asset.Id,
		"tenant", req.Tenant,
		"filename", req.Filename,
		"strategy", strategy.String(),
		"enqueued", enqueued,
		"job_key", stored.Key,
		"correlation_id", req.CorrelationID)

	return &RegisterResult{
		Asset:       asset,
		Blob:        blob,
		BlobCreated: created,
		SavedBytes:  savedBytes,
		Enqueued:    enqueued,
	}, nil
}

// Resubmit re-runs ingestion for an existing asset. Terminal assets are
// reset to PENDING first; for unresolved assets the deterministic job key
// suppresses the duplicate at the queue.
func (s *Service) Resubmit(ctx context.Context, assetID core.ID, strategy core.ChunkStrategy, correlationID string) (*core.IngestionJob, bool, error) {
	asset, err := s.assets.GetAsset(ctx, assetID)
	if err != nil {
		return nil, false, err
	}
	if strategy == 0 {
		strategy = core.StrategySimple
	}
	if err := core.ValidateStrategy(strategy); err != nil {
		return nil, false, err
	}

	if asset.Status.Terminal() {
		if asset, err = s.resetForResubmission(ctx, asset); err != nil {
			return nil, false, err
		}
		s.logger.Info("asset reset for resubmission",
			"asset_id", assetID,
			"tenant", asset.Tenant,
			"correlation_id", correlationID)
	}

	job := &core.IngestionJob{
		Key:           core.JobKey(asset.Id, asset.Environment),
		AssetId:       asset.Id,
		Tenant:        asset.Tenant,
		Environment:   asset.Environment,
		CorrelationId: correlationID,
		Strategy:      strategy,
	}
	return s.enqueuer.Enqueue(ctx, job)
}

// ExecuteAnalysis runs the ingestion pipeline for one job: download,
// extract, chunk, embed, persist. It is installed as the queue's handler.
//
// Error contract with the queue: a nil return completes the job. A non-nil
// return fails it, which reschedules under the queue's backoff until its
// attempts run out. Validation failures are terminal and return nil after
// marking the asset FAILED.
func (s *Service) ExecuteAnalysis(ctx context.Context, job *core.IngestionJob) error {
	asset, err := s.assets.GetAsset(ctx, job.AssetId)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Error("job references missing asset", "job_key", job.Key, "asset_id", job.AssetId)
			return nil
		}
		return err
	}

	if asset.Status.Terminal() {
		s.logger.Warn("skipping job for terminal asset",
			"job_key", job.Key,
			"asset_id", asset.Id,
			"status", asset.Status.String())
		return nil
	}

	if asset.Status == core.StatusProcessing {
		// A reclaimed lease lands here: the asset never left PROCESSING, so
		// there is no transition to make, only a fresh attempt to count.
		asset, err = s.assets.MutateAsset(ctx, asset.Id, func(a *core.KnowledgeAsset) error {
			if a.Status != core.StatusProcessing {
				return fmt.Errorf("%w: asset left %s before resume", ErrInvalidTransition, core.StatusProcessing)
			}
			a.Attempts++
			a.Progress = 5
			return nil
		})
		if err != nil {
			return err
		}
		s.logger.Warn("resuming asset already in processing",
			"asset_id", asset.Id,
			"attempts", asset.Attempts,
			"correlation_id", job.CorrelationId)
	} else {
		asset, err = s.Advance(ctx, asset.Id, core.StatusProcessing, AdvanceDetails{
			Progress:      5,
			CorrelationID: job.CorrelationId,
			Actor:         "worker",
			BumpAttempts:  true,
		})
		if err != nil {
			return err
		}
	}

	runErr := s.runPipeline(ctx, asset, job)
	if runErr == nil {
		return nil
	}

	if errors.Is(runErr, ErrExtractionFailed) || errors.Is(runErr, core.ErrInvalidStrategy) {
		s.failTerminal(ctx, asset, job, runErr)
		return nil
	}

	if asset.Attempts >= s.maxAttempts {
		s.failTerminal(ctx, asset, job, fmt.Errorf("attempts exhausted: %w", runErr))
		return nil
	}

	// Leave the asset in PROCESSING; the queue's delayed retry re-runs it.
	if _, err := s.assets.MutateAsset(ctx, asset.Id, func(a *core.KnowledgeAsset) error {
		a.LastError = runErr.Error()
		return nil
	}); err != nil {
		s.logger.Warn("failed to record attempt error", "asset_id", asset.Id, "err", err)
	}
	s.logger.Warn("ingestion attempt failed",
		"asset_id", asset.Id,
		"attempts", asset.Attempts,
		"max_attempts", s.maxAttempts,
		"correlation_id", job.CorrelationId,
		"err", runErr)
	return runErr
}

// stageCtx bounds one pipeline stage. The queue lease remains the outer
// backstop; this keeps a single wedged stage from consuming the whole lease.
func (s *Service) stageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.stageTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.stageTimeout)
}

// runPipeline executes the milestone sequence for one attempt.
func (s *Service) runPipeline(ctx context.Context, asset *core.KnowledgeAsset, job *core.IngestionJob) error {
	downloadCtx, cancel := s.stageCtx(ctx)
	data, err := s.blobStore.Download(downloadCtx, asset.Tenant, asset.ContentHash)
	cancel()
	if err != nil {
		return fmt.Errorf("downloading content: %w", err)
	}
	s.setProgress(ctx, asset, 15)

	extractCtx, cancel := s.stageCtx(ctx)
	text, err := s.extractor.Extract(extractCtx, asset.Filename, data)
	cancel()
	if err != nil {
		return err
	}
	s.setProgress(ctx, asset, 40)

	strategy := job.Strategy
	if strategy == 0 {
		strategy = core.StrategySimple
	}
	chunkCtx, cancel := s.stageCtx(ctx)
	chunks, err := s.orchestrator.Chunk(chunkCtx, text, strategy, asset.Tenant, job.CorrelationId)
	cancel()
	if err != nil {
		return err
	}
	s.setProgress(ctx, asset, 70)

	embedded, err := s.embedChunks(ctx, chunks, job.CorrelationId)
	if err != nil {
		return err
	}

	for _, chunk := range chunks {
		chunk.AssetId = asset.Id
		chunk.Tenant = asset.Tenant
	}
	if _, err := s.chunks.ReplaceChunks(ctx, asset.Id, chunks); err != nil {
		return fmt.Errorf("persisting chunks: %w", err)
	}
	s.setProgress(ctx, asset, 95)

	final := core.StatusCompleted
	if len(chunks) == 0 || embedded == 0 {
		// Nothing is retrievable by vector search: either extraction
		// produced no chunks, or quota exhaustion skipped every embedding.
		final = core.StatusStoredNoIndex
	}

	if _, err := s.Advance(ctx, asset.Id, final, AdvanceDetails{
		Progress:      100,
		TotalChunks:   len(chunks),
		CorrelationID: job.CorrelationId,
		Actor:         "worker",
	}); err != nil {
		return err
	}

	s.logger.Info("ingestion finished",
		"asset_id", asset.Id,
		"tenant", asset.Tenant,
		"status", final.String(),
		"total_chunks", len(chunks),
		"embedded_chunks", embedded,
		"correlation_id", job.CorrelationId)
	return nil
}

// failTerminal moves an asset to FAILED, logging but not propagating a
// transition error since the pipeline error is the one that matters.
func (s *Service) failTerminal(ctx context.Context, asset *core.KnowledgeAsset, job *core.IngestionJob, cause error) {
	if _, err := s.Advance(ctx, asset.Id, core.StatusFailed, AdvanceDetails{
		Error:         cause.Error(),
		CorrelationID: job.CorrelationId,
		Actor:         "worker",
	}); err != nil {
		s.logger.Error("failed to mark asset failed",
			"asset_id", asset.Id, "cause", cause, "err", err)
	}
}

// releaseBlobRef undoes a reference acquired earlier in a registration that
// could not finish.
func (s *Service) releaseBlobRef(ctx context.Context, tenant, hash string) {
	if _, err := s.blobs.Release(ctx, tenant, hash); err != nil {
		s.logger.Error("failed to release blob reference",
			"tenant", tenant, "hash", hash, "err", err)
	}
}

// DeleteAsset soft-deletes an asset, releases its blob reference and drops
// its chunks. The blob bytes themselves are left to the garbage collector.
func (s *Service) DeleteAsset(ctx context.Context, assetID core.ID, correlationID string) error {
	asset, err := s.assets.GetAsset(ctx, assetID)
	if err != nil {
		return err
	}
	if asset.Deleted {
		return nil
	}

	asset.Deleted = true
	if _, err := s.assets.UpdateAsset(ctx, asset); err != nil {
		return fmt.Errorf("marking asset deleted: %w", err)
	}

	blob, err := s.blobs.Release(ctx, asset.Tenant, asset.ContentHash)
	if err != nil {
		return fmt.Errorf("releasing blob reference: %w", err)
	}

	if err := s.chunks.DeleteChunks(ctx, assetID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}

	s.logger.Info("asset deleted",
		"asset_id", assetID,
		"tenant", asset.Tenant,
		"hash", asset.ContentHash,
		"remaining_refs", blob.RefCount,
		"correlation_id", correlationID)
	return nil
}

// GetStatus returns the asset's current lifecycle state.
func (s *Service) GetStatus(ctx context.Context, assetID core.ID) (*core.KnowledgeAsset, error) {
	return s.assets.GetAsset(ctx, assetID)
}

// ListByStatus returns assets in the given status whose UpdatedAt predates
// the cutoff. A zero cutoff disables the staleness filter.
func (s *Service) ListByStatus(ctx context.Context, status core.IngestionStatus, updatedBefore time.Time) ([]*core.KnowledgeAsset, error) {
	return s.assets.ListAssetsByStatus(ctx, status, updatedBefore)
}
