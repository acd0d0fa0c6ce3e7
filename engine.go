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

package corpus

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/poiesic/corpus/ai"
	"github.com/poiesic/corpus/ai/openai"
	"github.com/poiesic/corpus/chunking"
	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/ingestion"
	"github.com/poiesic/corpus/queue"
	"github.com/poiesic/corpus/recovery"
	"github.com/poiesic/corpus/storage"
	"github.com/poiesic/corpus/storage/badger"
	"github.com/poiesic/corpus/storage/blobfs"
)

// Engine wires the whole ingestion system over one data directory: record
// storage, blob bytes, the chunking orchestrator, the AI provider, the job
// queue and the recovery loops.
type Engine struct {
	backend   *badger.Backend
	assetRepo storage.AssetRepository
	blobRepo  storage.BlobRepository
	chunkRepo storage.ChunkRepository
	jobRepo   storage.JobRepository
	blobStore storage.BlobStore
	provider  ai.AIProvider
	usage     *ai.UsageTracker

	queue     *queue.Service
	ingest    *ingestion.Service
	detector  *recovery.StuckDetector
	collector *recovery.GarbageCollector
	logger    *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	aiConfig      *ai.Config
	provider      ai.AIProvider
	chunkConfig   chunking.Config
	queueOpts     []queue.Option
	ingestOpts    []ingestion.Option
	detectorOpts  []recovery.DetectorOption
	collectorOpts []recovery.GCOption
}

// WithAIConfig sets the AI provider configuration.
func WithAIConfig(config *ai.Config) EngineOption {
	return func(o *engineOptions) { o.aiConfig = config }
}

// WithAIProvider injects a pre-built provider, bypassing the OpenAI one.
// Tests use this with the mock provider.
func WithAIProvider(provider ai.AIProvider) EngineOption {
	return func(o *engineOptions) { o.provider = provider }
}

// WithChunkingConfig sets the chunking window parameters.
func WithChunkingConfig(config chunking.Config) EngineOption {
	return func(o *engineOptions) { o.chunkConfig = config }
}

// WithQueueOptions forwards options to the job queue.
func WithQueueOptions(opts ...queue.Option) EngineOption {
	return func(o *engineOptions) { o.queueOpts = append(o.queueOpts, opts...) }
}

// WithIngestionOptions forwards options to the ingestion service.
func WithIngestionOptions(opts ...ingestion.Option) EngineOption {
	return func(o *engineOptions) { o.ingestOpts = append(o.ingestOpts, opts...) }
}

// WithDetectorOptions forwards options to the stuck detector.
func WithDetectorOptions(opts ...recovery.DetectorOption) EngineOption {
	return func(o *engineOptions) { o.detectorOpts = append(o.detectorOpts, opts...) }
}

// WithCollectorOptions forwards options to the garbage collector.
func WithCollectorOptions(opts ...recovery.GCOption) EngineOption {
	return func(o *engineOptions) { o.collectorOpts = append(o.collectorOpts, opts...) }
}

// NewEngine opens an engine over dataDir. Records live in a Badger database
// under dataDir/db; blob bytes under dataDir/blobs. An empty dataDir opens
// everything in memory, which tests rely on.
func NewEngine(dataDir string, opts ...EngineOption) (*Engine, error) {
	options := &engineOptions{
		aiConfig:    ai.DefaultConfig(),
		chunkConfig: chunking.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}

	inMemory := dataDir == ""
	dbPath := ""
	blobPath := ""
	if !inMemory {
		dbPath = filepath.Join(dataDir, "db")
		blobPath = filepath.Join(dataDir, "blobs")
	}

	backend, err := badger.OpenBackend(dbPath, inMemory)
	if err != nil {
		return nil, err
	}

	assetRepo, err := badger.NewAssetRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	blobRepo := badger.NewBlobRepository(backend)
	chunkRepo := badger.NewChunkRepository(backend)
	jobRepo := badger.NewJobRepository(backend)

	var blobStore storage.BlobStore
	if inMemory {
		blobStore = blobfs.NewMemoryStore()
	} else {
		blobStore, err = blobfs.NewStore(blobPath)
		if err != nil {
			assetRepo.Close()
			backend.Close()
			return nil, err
		}
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			assetRepo.Close()
			backend.Close()
			return nil, err
		}
	}

	orchestrator, err := chunking.NewOrchestrator(
		chunking.WithConfig(options.chunkConfig),
		chunking.WithBoundaryDetector(provider.BoundaryDetector()))
	if err != nil {
		provider.Close()
		assetRepo.Close()
		backend.Close()
		return nil, err
	}

	// Token accounting is best-effort: a missing encoding just disables it.
	usage, usageErr := ai.NewUsageTracker("")
	if usageErr != nil {
		slog.Warn("token usage tracking disabled", "err", usageErr)
		usage = nil
	}

	e := &Engine{
		backend:   backend,
		assetRepo: assetRepo,
		blobRepo:  blobRepo,
		chunkRepo: chunkRepo,
		jobRepo:   jobRepo,
		blobStore: blobStore,
		provider:  provider,
		usage:     usage,
		logger:    slog.Default().With("component", "engine"),
	}

	// The queue's handler is the ingestion pipeline, but the ingestion
	// service also enqueues through the queue. Break the cycle by wiring
	// the handler through the engine after both exist.
	e.queue, err = queue.NewService(jobRepo, e.handleJob, options.queueOpts...)
	if err != nil {
		e.Close()
		return nil, err
	}

	ingestOpts := append([]ingestion.Option{ingestion.WithUsageTracker(usage)}, options.ingestOpts...)
	e.ingest, err = ingestion.NewService(assetRepo, blobRepo, chunkRepo,
		blobStore, orchestrator, provider.Embedder(), e.queue, ingestOpts...)
	if err != nil {
		e.Close()
		return nil, err
	}

	e.detector, err = recovery.NewStuckDetector(e.ingest, e.queue, options.detectorOpts...)
	if err != nil {
		e.Close()
		return nil, err
	}

	e.collector, err = recovery.NewGarbageCollector(assetRepo, blobRepo,
		blobStore, options.collectorOpts...)
	if err != nil {
		e.Close()
		return nil, err
	}

	return e, nil
}

// handleJob defers to the ingestion service. It exists so the queue can be
// constructed before the ingestion service that serves it.
func (e *Engine) handleJob(ctx context.Context, job *core.IngestionJob) error {
	return e.ingest.ExecuteAnalysis(ctx, job)
}

// Start launches the queue workers and the stuck detector.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.queue.Start(ctx); err != nil {
		return err
	}
	if err := e.detector.Start(ctx); err != nil {
		e.queue.Stop()
		return err
	}
	return nil
}

// Stop halts background loops, waiting for in-flight work.
func (e *Engine) Stop() {
	e.detector.Stop()
	e.queue.Stop()
}

// Close stops background work and releases every resource.
func (e *Engine) Close() error {
	if e.detector != nil {
		e.detector.Stop()
	}
	if e.queue != nil {
		e.queue.Stop()
	}

	if err := e.provider.Close(); err != nil {
		e.logger.Error("error closing AI provider", "err", err)
	}
	if err := e.assetRepo.Close(); err != nil {
		e.logger.Error("error closing asset repository", "err", err)
		return err
	}
	if err := e.backend.Close(); err != nil {
		e.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// Ingestion exposes the ingestion service for registration, status and
// deletion operations.
func (e *Engine) Ingestion() *ingestion.Service {
	return e.ingest
}

// Queue exposes the job queue for admin operations.
func (e *Engine) Queue() *queue.Service {
	return e.queue
}

// Detector exposes the stuck detector for manual sweeps.
func (e *Engine) Detector() *recovery.StuckDetector {
	return e.detector
}

// GarbageCollector exposes the collector for manual passes.
func (e *Engine) GarbageCollector() *recovery.GarbageCollector {
	return e.collector
}

// Usage returns the cumulative embedding token usage. Zero when token
// accounting is disabled.
func (e *Engine) Usage() ai.Usage {
	if e.usage == nil {
		return ai.Usage{}
	}
	return e.usage.Snapshot()
}

// ChunkRepository exposes chunk reads and similarity search.
func (e *Engine) ChunkRepository() storage.ChunkRepository {
	return e.chunkRepo
}
