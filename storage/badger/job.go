package badger

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/storage"
)

// JobRepository implements storage.JobRepository for BadgerDB.
//
// Job keys are deterministic, so an unresolved job acts as a dedup guard
// against repeated submissions of the same document.
type JobRepository struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository.
func NewJobRepository(backend *Backend) *JobRepository {
	return &JobRepository{
		backend: backend,
		logger:  slog.Default().With("component", "job-repository"),
	}
}

// Close is a no-op; the repository holds no resources beyond the backend.
func (r *JobRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *JobRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// Enqueue inserts a job unless an unresolved job already occupies its key.
func (r *JobRepository) Enqueue(ctx context.Context, job *core.IngestionJob) (*core.IngestionJob, bool, error) {
	if err := core.ValidateJob(job); err != nil {
		return nil, false, err
	}

	var (
		stored   *core.IngestionJob
		enqueued bool
	)

	err := r.backend.WithConflictRetry(func(tx *badger.Txn) error {
		key := makeJobKey(job.Key)
		existing, err := readJob(tx, key)
		if err != nil {
			return err
		}

		if existing != nil && existing.Status.Unresolved() {
			// Duplicate submission: keep the existing job untouched.
			stored = existing
			enqueued = false
			return nil
		}

		now := time.Now().UTC()
		fresh := *job
		fresh.Status = core.JobWaiting
		fresh.Attempts = 0
		fresh.LastError = ""
		fresh.NotBefore = time.Time{}
		fresh.LeaseExpiry = time.Time{}
		fresh.EnqueuedAt = now
		fresh.UpdatedAt = now

		if err := tx.Set(key, storage.MarshalJob(&fresh)); err != nil {
			return err
		}
		stored = &fresh
		enqueued = true
		return tx.Commit()
	})
	if err != nil {
		return nil, false, err
	}

	return stored, enqueued, nil
}

// Acquire atomically claims the next eligible job under a fresh lease.
func (r *JobRepository) Acquire(ctx context.Context, lease time.Duration) (*core.IngestionJob, error) {
	var claimed *core.IngestionJob

	err := r.backend.WithConflictRetry(func(tx *badger.Txn) error {
		claimed = nil
		now := time.Now().UTC()

		candidate, err := r.nextEligible(tx, now)
		if err != nil {
			return err
		}
		if candidate == nil {
			return storage.ErrNotFound
		}

		candidate.Status = core.JobActive
		candidate.Attempts++
		candidate.LeaseExpiry = now.Add(lease)
		candidate.UpdatedAt = now

		if err := tx.Set(makeJobKey(candidate.Key), storage.MarshalJob(candidate)); err != nil {
			return err
		}
		claimed = candidate
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

// Complete marks an active job completed, freeing its key for resubmission.
func (r *JobRepository) Complete(ctx context.Context, key string) error {
	return r.backend.WithConflictRetry(func(tx *badger.Txn) error {
		k := makeJobKey(key)
		job, err := readJob(tx, k)
		if err != nil {
			return err
		}
		if job == nil {
			return storage.ErrNotFound
		}

		job.Status = core.JobCompleted
		job.LeaseExpiry = time.Time{}
		job.UpdatedAt = time.Now().UTC()
		if err := tx.Set(k, storage.MarshalJob(job)); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// Fail records a job failure, rescheduling with backoff while attempts remain.
func (r *JobRepository) Fail(ctx context.Context, key, reason string, backoff time.Duration, maxAttempts int) (*core.IngestionJob, error) {
	var result *core.IngestionJob

	err := r.backend.WithConflictRetry(func(tx *badger.Txn) error {
		k := makeJobKey(key)
		job, err := readJob(tx, k)
		if err != nil {
			return err
		}
		if job == nil {
			return storage.ErrNotFound
		}

		now := time.Now().UTC()
		job.LastError = reason
		job.LeaseExpiry = time.Time{}
		job.UpdatedAt = now

		if job.Attempts >= maxAttempts {
			job.Status = core.JobFailed
			job.NotBefore = time.Time{}
		} else {
			// Exponential backoff: backoff * 2^(attempts-1)
			delay := backoff
			for i := 1; i < job.Attempts; i++ {
				delay *= 2
			}
			job.Status = core.JobDelayed
			job.NotBefore = now.Add(delay)
		}

		if err := tx.Set(k, storage.MarshalJob(job)); err != nil {
			return err
		}
		result = job
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetJob retrieves a job by key.
func (r *JobRepository) GetJob(ctx context.Context, key string) (*core.IngestionJob, error) {
	var result *core.IngestionJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readJob(tx, makeJobKey(key))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// ListJobsByStatus retrieves jobs in the given status.
func (r *JobRepository) ListJobsByStatus(ctx context.Context, status core.JobStatus) ([]*core.IngestionJob, error) {
	var results []*core.IngestionJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return r.forEachJob(tx, func(job *core.IngestionJob) error {
			if job.Status == status {
				results = append(results, job)
			}
			return nil
		})
	}, false)
	return results, err
}

// DeleteJob removes a job regardless of status.
func (r *JobRepository) DeleteJob(ctx context.Context, key string) error {
	return r.backend.WithConflictRetry(func(tx *badger.Txn) error {
		k := makeJobKey(key)
		job, err := readJob(tx, k)
		if err != nil {
			return err
		}
		if job == nil {
			return storage.ErrNotFound
		}
		if err := tx.Delete(k); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// RetryJob moves a failed job back to waiting.
func (r *JobRepository) RetryJob(ctx context.Context, key string) (*core.IngestionJob, error) {
	var result *core.IngestionJob

	err := r.backend.WithConflictRetry(func(tx *badger.Txn) error {
		k := makeJobKey(key)
		job, err := readJob(tx, k)
		if err != nil {
			return err
		}
		if job == nil {
			return storage.ErrNotFound
		}

		now := time.Now().UTC()
		job.Status = core.JobWaiting
		job.Attempts = 0
		job.LastError = ""
		job.NotBefore = time.Time{}
		job.LeaseExpiry = time.Time{}
		job.UpdatedAt = now

		if err := tx.Set(k, storage.MarshalJob(job)); err != nil {
			return err
		}
		result = job
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Helper methods

// nextEligible scans for the oldest job ready for pickup: waiting, delayed
// past its NotBefore, or active with an expired lease (lost worker).
func (r *JobRepository) nextEligible(tx *badger.Txn, now time.Time) (*core.IngestionJob, error) {
	var best *core.IngestionJob
	err := r.forEachJob(tx, func(job *core.IngestionJob) error {
		switch job.Status {
		case core.JobWaiting:
			// eligible
		case core.JobDelayed:
			if job.NotBefore.After(now) {
				return nil
			}
		case core.JobActive:
			if job.LeaseExpiry.IsZero() || job.LeaseExpiry.After(now) {
				return nil
			}
			r.logger.Warn("reclaiming job with expired lease",
				"job_key", job.Key,
				"lease_expiry", job.LeaseExpiry)
		default:
			return nil
		}

		if best == nil || job.EnqueuedAt.Before(best.EnqueuedAt) {
			best = job
		}
		return nil
	})
	return best, err
}

// forEachJob iterates every job record.
func (r *JobRepository) forEachJob(tx *badger.Txn, fn func(*core.IngestionJob) error) error {
	prefix := []byte(jobPrefix + ":")
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		var job *core.IngestionJob
		err := iter.Item().Value(func(val []byte) error {
			var err error
			job, err = storage.UnmarshalJob(val)
			return err
		})
		if err != nil {
			return err
		}
		if job == nil {
			continue
		}
		if err := fn(job); err != nil {
			return err
		}
	}
	return nil
}

// readJob reads a job record from the transaction.
func readJob(tx *badger.Txn, key []byte) (*core.IngestionJob, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var job *core.IngestionJob
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		job, unmarshalErr = storage.UnmarshalJob(val)
		return unmarshalErr
	})
	return job, err
}
