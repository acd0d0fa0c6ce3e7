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
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/ingestion"
)

// JobQueue is the queue surface the detector needs: submitting fresh jobs
// and reading back an asset's prior job, whose strategy and correlation id
// a re-enqueue must carry forward.
type JobQueue interface {
	ingestion.Enqueuer
	GetJob(ctx context.Context, key string) (*core.IngestionJob, error)
}

// StuckDetector finds assets stranded in PROCESSING by a crashed or hung
// worker and returns them to the lifecycle: back to PENDING with a fresh
// job when attempts remain, otherwise terminally FAILED.
//
// Only the detector moves assets into STUCK; workers never do.
type StuckDetector struct {
	ingest *ingestion.Service
	jobs   JobQueue
	logger *slog.Logger

	staleness        time.Duration
	pendingStaleness time.Duration
	interval         time.Duration
	maxAttempts      int
	alertThreshold   int

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    sync.WaitGroup
}

// DetectorOption configures a StuckDetector.
type DetectorOption func(*StuckDetector)

// WithStaleness sets how long an asset may sit in PROCESSING before it is
// considered stuck. Default is 15 minutes; it must exceed the longest
// legitimate processing run.
func WithStaleness(d time.Duration) DetectorOption {
	return func(sd *StuckDetector) { sd.staleness = d }
}

// WithPendingStaleness sets how long an asset may sit in PENDING without a
// live queue job before it is re-enqueued. Default is 30 minutes.
func WithPendingStaleness(d time.Duration) DetectorOption {
	return func(sd *StuckDetector) { sd.pendingStaleness = d }
}

// WithSweepInterval sets the period between sweeps. Default is 5 minutes.
func WithSweepInterval(d time.Duration) DetectorOption {
	return func(sd *StuckDetector) { sd.interval = d }
}

// WithRecoveryAttempts sets the attempt ceiling beyond which a stuck asset
// is failed instead of re-queued. Default is 3.
func WithRecoveryAttempts(n int) DetectorOption {
	return func(sd *StuckDetector) {
		if n > 0 {
			sd.maxAttempts = n
		}
	}
}

// WithAlertThreshold sets the recovery count above which a sweep escalates
// with a warning for operators. Default is 10.
func WithAlertThreshold(n int) DetectorOption {
	return func(sd *StuckDetector) {
		if n > 0 {
			sd.alertThreshold = n
		}
	}
}

// WithDetectorLogger sets a custom logger.
func WithDetectorLogger(logger *slog.Logger) DetectorOption {
	return func(sd *StuckDetector) {
		if logger != nil {
			sd.logger = logger.With("component", "stuck-detector")
		}
	}
}

// NewStuckDetector creates a detector over the ingestion service and the
// job queue.
func NewStuckDetector(ingest *ingestion.Service, jobs JobQueue, opts ...DetectorOption) (*StuckDetector, error) {
	if ingest == nil {
		return nil, ErrIngestionServiceRequired
	}
	if jobs == nil {
		return nil, ErrEnqueuerRequired
	}

	sd := &StuckDetector{
		ingest:           ingest,
		jobs:             jobs,
		logger:           slog.Default().With("component", "stuck-detector"),
		staleness:        15 * time.Minute,
		pendingStaleness: 30 * time.Minute,
		interval:         5 * time.Minute,
		maxAttempts:      3,
		alertThreshold:   10,
	}
	for _, opt := range opts {
		opt(sd)
	}
	return sd, nil
}

// SweepResult summarizes one detector pass.
type SweepResult struct {
	Scanned         int // stale PROCESSING assets found
	Requeued        int // returned to PENDING with a fresh job
	Failed          int // terminally failed after exhausting attempts
	PendingRequeued int // stale PENDING assets given a fresh job
	Errors          int
}

// Sweep runs one detection pass. Each stale asset is first moved to STUCK,
// which serializes recovery: a second sweep, or a worker finishing late,
// finds the asset no longer in PROCESSING and leaves it alone.
func (sd *StuckDetector) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	cutoff := time.Now().Add(-sd.staleness)

	stale, err := sd.ingest.ListByStatus(ctx, core.StatusProcessing, cutoff)
	if err != nil {
		return result, err
	}
	result.Scanned = len(stale)

	for _, asset := range stale {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if err := sd.recover(ctx, asset, &result); err != nil {
			result.Errors++
			sd.logger.Error("failed to recover stuck asset",
				"asset_id", asset.Id,
				"tenant", asset.Tenant,
				"err", err)
		}
	}

	if err := sd.sweepPending(ctx, &result); err != nil {
		return result, err
	}

	if result.Scanned > 0 || result.PendingRequeued > 0 {
		sd.logger.Info("stuck sweep finished",
			"scanned", result.Scanned,
			"requeued", result.Requeued,
			"failed", result.Failed,
			"pending_requeued", result.PendingRequeued,
			"errors", result.Errors)
	}

	if recovered := result.Requeued + result.Failed; recovered > sd.alertThreshold {
		// A recovery wave this large points at a systemic problem, not
		// isolated worker crashes.
		sd.logger.Warn("recovery volume exceeds alert threshold",
			"recovered", recovered,
			"threshold", sd.alertThreshold)
	}
	return result, nil
}

// sweepPending re-enqueues assets that sat in PENDING past their own,
// longer, threshold: their job was lost rather than their worker. The
// deterministic key suppresses the submission when a job actually exists.
func (sd *StuckDetector) sweepPending(ctx context.Context, result *SweepResult) error {
	cutoff := time.Now().Add(-sd.pendingStaleness)
	stale, err := sd.ingest.ListByStatus(ctx, core.StatusPending, cutoff)
	if err != nil {
		return err
	}

	for _, asset := range stale {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, enqueued, err := sd.jobs.Enqueue(ctx, sd.freshJob(ctx, asset))
		if err != nil {
			result.Errors++
			sd.logger.Error("failed to re-enqueue stale pending asset",
				"asset_id", asset.Id, "err", err)
			continue
		}
		if enqueued {
			result.PendingRequeued++
			sd.logger.Warn("stale pending asset re-enqueued",
				"asset_id", asset.Id,
				"tenant", asset.Tenant,
				"stale_for", time.Since(asset.UpdatedAt))
		}
	}
	return nil
}

// freshJob builds a replacement job for a recovered asset. The prior job
// carries the run's requested chunking strategy and correlation id; a
// re-enqueue that dropped them would silently revert the document to the
// default strategy.
func (sd *StuckDetector) freshJob(ctx context.Context, asset *core.KnowledgeAsset) *core.IngestionJob {
	job := &core.IngestionJob{
		Key:         core.JobKey(asset.Id, asset.Environment),
		AssetId:     asset.Id,
		Tenant:      asset.Tenant,
		Environment: asset.Environment,
	}
	if prior, err := sd.jobs.GetJob(ctx, job.Key); err == nil {
		job.Strategy = prior.Strategy
		job.CorrelationId = prior.CorrelationId
	}
	return job
}

func (sd *StuckDetector) recover(ctx context.Context, asset *core.KnowledgeAsset, result *SweepResult) error {
	stuck, err := sd.ingest.Advance(ctx, asset.Id, core.StatusStuck, ingestion.AdvanceDetails{
		Actor: "stuck-detector",
	})
	if err != nil {
		// Lost the race: the worker finished or another sweep got here.
		return err
	}

	sd.logger.Warn("stuck asset detected",
		"asset_id", stuck.Id,
		"tenant", stuck.Tenant,
		"attempts", stuck.Attempts,
		"stale_for", time.Since(asset.UpdatedAt))

	if stuck.Attempts >= sd.maxAttempts {
		if _, err := sd.ingest.Advance(ctx, stuck.Id, core.StatusFailed, ingestion.AdvanceDetails{
			Error: "STUCK_EXCEEDED_RETRIES: stuck in processing after exhausting retry attempts",
			Actor: "stuck-detector",
		}); err != nil {
			return err
		}
		result.Failed++
		return nil
	}

	if _, err := sd.ingest.Advance(ctx, stuck.Id, core.StatusPending, ingestion.AdvanceDetails{
		Actor: "stuck-detector",
	}); err != nil {
		return err
	}

	// The deterministic job key makes this safe: if the crashed worker's
	// job is still unresolved in the queue, the submission is suppressed
	// and the lease expiry path re-runs it instead.
	_, enqueued, err := sd.jobs.Enqueue(ctx, sd.freshJob(ctx, stuck))
	if err != nil {
		return err
	}

	sd.logger.Info("stuck asset requeued",
		"asset_id", stuck.Id,
		"tenant", stuck.Tenant,
		"fresh_job", enqueued)
	result.Requeued++
	return nil
}

// Start launches the periodic sweep loop.
func (sd *StuckDetector) Start(ctx context.Context) error {
	sd.mu.Lock()
	if sd.running {
		sd.mu.Unlock()
		return ErrAlreadyRunning
	}
	sd.running = true
	sd.stop = make(chan struct{})
	sd.mu.Unlock()

	sd.done.Add(1)
	go sd.loop(ctx)

	sd.logger.Info("stuck detector started",
		"staleness", sd.staleness,
		"interval", sd.interval,
		"max_attempts", sd.maxAttempts)
	return nil
}

// Stop halts the sweep loop and waits for an in-flight sweep.
func (sd *StuckDetector) Stop() {
	sd.mu.Lock()
	if !sd.running {
		sd.mu.Unlock()
		return
	}
	sd.running = false
	close(sd.stop)
	sd.mu.Unlock()

	sd.done.Wait()
	sd.logger.Info("stuck detector stopped")
}

func (sd *StuckDetector) loop(ctx context.Context) {
	defer sd.done.Done()

	ticker := time.NewTicker(sd.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sd.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sd.Sweep(ctx); err != nil && ctx.Err() == nil {
				sd.logger.Error("stuck sweep failed", "err", err)
			}
		}
	}
}
