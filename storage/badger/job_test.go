package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/storage"
)

func testJob(assetID core.ID) *core.IngestionJob {
	return &core.IngestionJob{
		Key:         core.JobKey(assetID, "prod"),
		AssetId:     assetID,
		Tenant:      "acme",
		Environment: "prod",
	}
}

func TestEnqueueIdempotent(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	first, enqueued, err := repos.Jobs.Enqueue(ctx, testJob(1))
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if !enqueued {
		t.Fatal("Expected first submission to enqueue")
	}
	if first.Status != core.JobWaiting {
		t.Fatalf("Expected waiting, got %s", first.Status)
	}

	// Resubmitting the same key while unresolved is suppressed.
	second, enqueued, err := repos.Jobs.Enqueue(ctx, testJob(1))
	if err != nil {
		t.Fatalf("Failed to re-enqueue: %v", err)
	}
	if enqueued {
		t.Fatal("Expected duplicate submission to be suppressed")
	}
	if second.Key != first.Key {
		t.Fatalf("Expected existing job returned, got key %s", second.Key)
	}

	waiting, err := repos.Jobs.ListJobsByStatus(ctx, core.JobWaiting)
	if err != nil {
		t.Fatalf("Failed to list jobs: %v", err)
	}
	if len(waiting) != 1 {
		t.Fatalf("Expected exactly 1 waiting job, got %d", len(waiting))
	}
}

func TestEnqueueAfterCompletion(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()
	job := testJob(2)

	if _, _, err := repos.Jobs.Enqueue(ctx, job); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if _, err := repos.Jobs.Acquire(ctx, time.Minute); err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}
	if err := repos.Jobs.Complete(ctx, job.Key); err != nil {
		t.Fatalf("Failed to complete: %v", err)
	}

	// A completed job no longer occupies its key.
	_, enqueued, err := repos.Jobs.Enqueue(ctx, testJob(2))
	if err != nil {
		t.Fatalf("Failed to re-enqueue: %v", err)
	}
	if !enqueued {
		t.Fatal("Expected resubmission after completion to enqueue")
	}
}

func TestAcquireLeaseAndOrder(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	if _, _, err := repos.Jobs.Enqueue(ctx, testJob(10)); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, _, err := repos.Jobs.Enqueue(ctx, testJob(11)); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	first, err := repos.Jobs.Acquire(ctx, time.Minute)
	if err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}
	if first.AssetId != 10 {
		t.Fatalf("Expected oldest job first, got asset %d", first.AssetId)
	}
	if first.Status != core.JobActive {
		t.Fatalf("Expected active, got %s", first.Status)
	}
	if first.Attempts != 1 {
		t.Fatalf("Expected attempts=1, got %d", first.Attempts)
	}
	if first.LeaseExpiry.IsZero() {
		t.Fatal("Expected lease expiry set")
	}

	second, err := repos.Jobs.Acquire(ctx, time.Minute)
	if err != nil {
		t.Fatalf("Failed to acquire second job: %v", err)
	}
	if second.AssetId != 11 {
		t.Fatalf("Expected second job, got asset %d", second.AssetId)
	}

	// Both jobs are active under valid leases; nothing is eligible.
	_, err = repos.Jobs.Acquire(ctx, time.Minute)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound on empty queue, got %v", err)
	}
}

func TestAcquireReclaimsExpiredLease(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	if _, _, err := repos.Jobs.Enqueue(ctx, testJob(20)); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	// Claim under a lease that expires immediately, simulating a worker
	// that died mid-flight.
	if _, err := repos.Jobs.Acquire(ctx, -time.Second); err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}

	reclaimed, err := repos.Jobs.Acquire(ctx, time.Minute)
	if err != nil {
		t.Fatalf("Failed to reclaim job: %v", err)
	}
	if reclaimed.AssetId != 20 {
		t.Fatalf("Expected job 20 reclaimed, got asset %d", reclaimed.AssetId)
	}
	if reclaimed.Attempts != 2 {
		t.Fatalf("Expected attempts=2 after reclaim, got %d", reclaimed.Attempts)
	}
}

func TestFailReschedulesWithBackoff(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()
	job := testJob(30)

	if _, _, err := repos.Jobs.Enqueue(ctx, job); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if _, err := repos.Jobs.Acquire(ctx, time.Minute); err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}

	failed, err := repos.Jobs.Fail(ctx, job.Key, "extraction error", time.Hour, 3)
	if err != nil {
		t.Fatalf("Failed to record failure: %v", err)
	}
	if failed.Status != core.JobDelayed {
		t.Fatalf("Expected delayed, got %s", failed.Status)
	}
	if failed.LastError != "extraction error" {
		t.Fatalf("Expected error recorded, got %q", failed.LastError)
	}
	if failed.NotBefore.Before(time.Now().UTC().Add(30 * time.Minute)) {
		t.Fatal("Expected NotBefore pushed out by backoff")
	}

	// The delayed job is not eligible until its backoff elapses.
	_, err = repos.Jobs.Acquire(ctx, time.Minute)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected no eligible job during backoff, got %v", err)
	}
}

func TestFailExhaustsAttempts(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()
	job := testJob(31)

	if _, _, err := repos.Jobs.Enqueue(ctx, job); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	// Drive the job through its full attempt budget. Zero backoff keeps
	// delayed jobs immediately eligible.
	var last *core.IngestionJob
	for attempt := 0; attempt < 3; attempt++ {
		if _, err := repos.Jobs.Acquire(ctx, time.Minute); err != nil {
			t.Fatalf("Failed to acquire on attempt %d: %v", attempt+1, err)
		}
		last, err = repos.Jobs.Fail(ctx, job.Key, "still broken", 0, 3)
		if err != nil {
			t.Fatalf("Failed to record failure %d: %v", attempt+1, err)
		}
	}

	if last.Status != core.JobFailed {
		t.Fatalf("Expected failed after exhausting attempts, got %s", last.Status)
	}

	// Failed jobs are retained for inspection, not picked up.
	_, err = repos.Jobs.Acquire(ctx, time.Minute)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected failed job to stay parked, got %v", err)
	}

	// RetryJob resets it for another run.
	retried, err := repos.Jobs.RetryJob(ctx, job.Key)
	if err != nil {
		t.Fatalf("Failed to retry job: %v", err)
	}
	if retried.Status != core.JobWaiting || retried.Attempts != 0 || retried.LastError != "" {
		t.Fatalf("Expected clean waiting job after retry, got %+v", retried)
	}
}

func TestDeleteJob(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()
	job := testJob(40)

	if _, _, err := repos.Jobs.Enqueue(ctx, job); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if err := repos.Jobs.DeleteJob(ctx, job.Key); err != nil {
		t.Fatalf("Failed to delete job: %v", err)
	}
	_, err = repos.Jobs.GetJob(ctx, job.Key)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound after delete, got %v", err)
	}

	if err := repos.Jobs.DeleteJob(ctx, "no-such-key"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for missing job, got %v", err)
	}
}
