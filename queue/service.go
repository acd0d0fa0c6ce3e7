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

package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/storage"
)

// Handler processes one acquired job. A nil return completes the job; an
// error reschedules it with backoff until attempts run out.
type Handler func(ctx context.Context, job *core.IngestionJob) error

// Service delivers durable jobs to a bounded pool of concurrent workers.
// It is an explicitly constructed instance holding its own repository
// handle; processes that need a queue create one and inject it.
type Service struct {
	jobs    storage.JobRepository
	handler Handler
	pool    *ants.Pool
	logger  *slog.Logger

	concurrency  int
	lease        time.Duration
	pollInterval time.Duration
	retryBackoff time.Duration
	maxAttempts  int

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service) error

// WithConcurrency sets the worker pool size. Default is 2.
func WithConcurrency(n int) Option {
	return func(s *Service) error {
		if n < 1 {
			n = 1
		}
		s.concurrency = n
		return nil
	}
}

// WithLease sets how long an acquired job stays invisible to other workers.
// Default is 10 minutes; it should exceed the longest expected job.
func WithLease(lease time.Duration) Option {
	return func(s *Service) error {
		s.lease = lease
		return nil
	}
}

// WithPollInterval sets how long an idle worker loop waits before checking
// the queue again. Default is 1 second.
func WithPollInterval(interval time.Duration) Option {
	return func(s *Service) error {
		s.pollInterval = interval
		return nil
	}
}

// WithRetryBackoff sets the base delay for rescheduling failed jobs.
// Default is 30 seconds, doubling per attempt.
func WithRetryBackoff(backoff time.Duration) Option {
	return func(s *Service) error {
		s.retryBackoff = backoff
		return nil
	}
}

// WithMaxAttempts sets how many times a job may run before it is parked as
// failed. Default is 3.
func WithMaxAttempts(n int) Option {
	return func(s *Service) error {
		if n < 1 {
			n = 1
		}
		s.maxAttempts = n
		return nil
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewService creates a queue service delivering jobs to handler.
func NewService(jobs storage.JobRepository, handler Handler, opts ...Option) (*Service, error) {
	if jobs == nil {
		return nil, ErrJobRepositoryRequired
	}
	if handler == nil {
		return nil, ErrHandlerRequired
	}

	s := &Service{
		jobs:         jobs,
		handler:      handler,
		logger:       slog.Default().With("component", "job-queue"),
		concurrency:  2,
		lease:        10 * time.Minute,
		pollInterval: time.Second,
		retryBackoff: 30 * time.Second,
		maxAttempts:  3,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(s.concurrency)
	if err != nil {
		return nil, err
	}
	s.pool = pool

	return s, nil
}

// Enqueue submits a job, deduplicating on its deterministic key.
// Returns the stored job and whether a new job was actually created.
func (s *Service) Enqueue(ctx context.Context, job *core.IngestionJob) (*core.IngestionJob, bool, error) {
	stored, enqueued, err := s.jobs.Enqueue(ctx, job)
	if err != nil {
		return nil, false, err
	}
	if enqueued {
		s.logger.Info("job enqueued",
			"job_key", stored.Key,
			"tenant", stored.Tenant,
			"correlation_id", stored.CorrelationId)
	} else {
		s.logger.Info("duplicate submission suppressed",
			"job_key", stored.Key,
			"status", stored.Status.String(),
			"correlation_id", job.CorrelationId)
	}
	return stored, enqueued, nil
}

// Start launches the polling loop. Jobs are claimed under a lease and
// dispatched to the worker pool; pool saturation applies backpressure to
// the loop, bounding concurrent work.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.stop = make(chan struct{})
	s.mu.Unlock()

	s.done.Add(1)
	go s.pollLoop(ctx)

	s.logger.Info("queue started",
		"concurrency", s.concurrency,
		"lease", s.lease,
		"max_attempts", s.maxAttempts)
	return nil
}

// Stop halts polling, waits for in-flight jobs, and releases the pool.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	s.done.Wait()
	s.pool.Release()
	s.logger.Info("queue stopped")
}

func (s *Service) pollLoop(ctx context.Context) {
	defer s.done.Done()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		job, err := s.jobs.Acquire(ctx, s.lease)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				s.logger.Error("failed to acquire job", "err", err)
			}
			s.sleep(ctx)
			continue
		}

		// Submit blocks when every worker is busy, so the loop cannot
		// claim more jobs than the pool can run.
		submitErr := s.pool.Submit(func() {
			s.runJob(ctx, job)
		})
		if submitErr != nil {
			s.logger.Error("failed to submit job to pool", "job_key", job.Key, "err", submitErr)
			s.sleep(ctx)
		}
	}
}

func (s *Service) runJob(ctx context.Context, job *core.IngestionJob) {
	start := time.Now()
	logger := s.logger.With(
		"job_key", job.Key,
		"tenant", job.Tenant,
		"correlation_id", job.CorrelationId,
		"attempt", job.Attempts)

	logger.Info("job started")

	if err := s.handler(ctx, job); err != nil {
		failed, failErr := s.jobs.Fail(ctx, job.Key, err.Error(), s.retryBackoff, s.maxAttempts)
		if failErr != nil {
			logger.Error("failed to record job failure", "err", failErr)
			return
		}
		logger.Warn("job failed",
			"err", err,
			"status", failed.Status.String(),
			"duration", time.Since(start))
		return
	}

	if err := s.jobs.Complete(ctx, job.Key); err != nil {
		logger.Error("failed to mark job completed", "err", err)
		return
	}
	logger.Info("job completed", "duration", time.Since(start))
}

func (s *Service) sleep(ctx context.Context) {
	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()
	select {
	case <-s.stop:
	case <-ctx.Done():
	case <-timer.C:
	}
}

// GetJob returns a job by its deterministic key, resolved or not.
func (s *Service) GetJob(ctx context.Context, key string) (*core.IngestionJob, error) {
	return s.jobs.GetJob(ctx, key)
}

// Admin operations, exposed to the API layer.

// ListJobs returns jobs in the given status.
func (s *Service) ListJobs(ctx context.Context, status core.JobStatus) ([]*core.IngestionJob, error) {
	return s.jobs.ListJobsByStatus(ctx, status)
}

// RetryJob resets a failed job back to waiting.
func (s *Service) RetryJob(ctx context.Context, key string) (*core.IngestionJob, error) {
	job, err := s.jobs.RetryJob(ctx, key)
	if err != nil {
		return nil, err
	}
	s.logger.Info("job reset for retry", "job_key", key)
	return job, nil
}

// DeleteJob removes a job regardless of status.
func (s *Service) DeleteJob(ctx context.Context, key string) error {
	if err := s.jobs.DeleteJob(ctx, key); err != nil {
		return err
	}
	s.logger.Info("job deleted", "job_key", key)
	return nil
}
