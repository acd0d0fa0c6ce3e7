package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/storage"
)

func TestGetOrCreateRefDeduplicates(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()
	template := &core.Blob{
		Hash:      core.HashContent([]byte("identical bytes")),
		Tenant:    "acme",
		Location:  "acme/ab/abcd",
		SizeBytes: 15,
	}

	first, created, err := repos.Blobs.GetOrCreateRef(ctx, template)
	if err != nil {
		t.Fatalf("Failed to create blob: %v", err)
	}
	if !created {
		t.Fatal("Expected created=true on first reference")
	}
	if first.RefCount != 1 {
		t.Fatalf("Expected RefCount 1, got %d", first.RefCount)
	}

	// Same content submitted again under a different filename: one blob,
	// two references.
	second, created, err := repos.Blobs.GetOrCreateRef(ctx, template)
	if err != nil {
		t.Fatalf("Failed to re-reference blob: %v", err)
	}
	if created {
		t.Fatal("Expected created=false on second reference")
	}
	if second.RefCount != 2 {
		t.Fatalf("Expected RefCount 2, got %d", second.RefCount)
	}
}

func TestReleaseStampsUnreferencedAt(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()
	template := &core.Blob{Hash: "h1", Tenant: "acme", Location: "acme/h1", SizeBytes: 10}

	if _, _, err := repos.Blobs.GetOrCreateRef(ctx, template); err != nil {
		t.Fatalf("Failed to create blob: %v", err)
	}
	if _, _, err := repos.Blobs.GetOrCreateRef(ctx, template); err != nil {
		t.Fatalf("Failed to re-reference blob: %v", err)
	}

	blob, err := repos.Blobs.Release(ctx, "acme", "h1")
	if err != nil {
		t.Fatalf("Failed to release blob: %v", err)
	}
	if blob.RefCount != 1 {
		t.Fatalf("Expected RefCount 1, got %d", blob.RefCount)
	}
	if !blob.UnreferencedAt.IsZero() {
		t.Fatal("UnreferencedAt must stay zero while references remain")
	}

	blob, err = repos.Blobs.Release(ctx, "acme", "h1")
	if err != nil {
		t.Fatalf("Failed to release blob: %v", err)
	}
	if blob.RefCount != 0 {
		t.Fatalf("Expected RefCount 0, got %d", blob.RefCount)
	}
	if blob.UnreferencedAt.IsZero() {
		t.Fatal("Expected UnreferencedAt to be stamped at zero references")
	}

	// Re-referencing clears the orphan marker.
	blob, _, err = repos.Blobs.GetOrCreateRef(ctx, template)
	if err != nil {
		t.Fatalf("Failed to re-reference orphan: %v", err)
	}
	if blob.RefCount != 1 {
		t.Fatalf("Expected RefCount 1 after reuse, got %d", blob.RefCount)
	}
	if !blob.UnreferencedAt.IsZero() {
		t.Fatal("Expected UnreferencedAt cleared on reuse")
	}
}

func TestReleaseUnderflow(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()
	template := &core.Blob{Hash: "h2", Tenant: "acme", Location: "acme/h2", SizeBytes: 10}

	if _, _, err := repos.Blobs.GetOrCreateRef(ctx, template); err != nil {
		t.Fatalf("Failed to create blob: %v", err)
	}
	if _, err := repos.Blobs.Release(ctx, "acme", "h2"); err != nil {
		t.Fatalf("Failed to release blob: %v", err)
	}

	// Third release of a single-reference blob must surface the bug, not
	// clamp the count.
	_, err = repos.Blobs.Release(ctx, "acme", "h2")
	if !errors.Is(err, storage.ErrRefCountUnderflow) {
		t.Fatalf("Expected ErrRefCountUnderflow, got %v", err)
	}

	blob, err := repos.Blobs.GetBlob(ctx, "acme", "h2")
	if err != nil {
		t.Fatalf("Failed to get blob: %v", err)
	}
	if blob.RefCount != 0 {
		t.Fatalf("RefCount must never go negative, got %d", blob.RefCount)
	}
}

func TestReleaseMissingBlob(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	_, err = repos.Blobs.Release(context.Background(), "acme", "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestListOrphansHonorsGraceWindow(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	for _, hash := range []string{"old", "fresh", "live"} {
		if _, _, err := repos.Blobs.GetOrCreateRef(ctx, &core.Blob{
			Hash: hash, Tenant: "acme", Location: "acme/" + hash, SizeBytes: 5,
		}); err != nil {
			t.Fatalf("Failed to create blob %s: %v", hash, err)
		}
	}
	for _, hash := range []string{"old", "fresh"} {
		if _, err := repos.Blobs.Release(ctx, "acme", hash); err != nil {
			t.Fatalf("Failed to release blob %s: %v", hash, err)
		}
	}

	// Both orphans were unreferenced just now; only a cutoff in the future
	// picks them up.
	orphans, err := repos.Blobs.ListOrphans(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Failed to list orphans: %v", err)
	}
	if len(orphans) != 0 {
		t.Fatalf("Expected no orphans past an old cutoff, got %d", len(orphans))
	}

	orphans, err = repos.Blobs.ListOrphans(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("Failed to list orphans: %v", err)
	}
	if len(orphans) != 2 {
		t.Fatalf("Expected 2 orphans, got %d", len(orphans))
	}
	for _, orphan := range orphans {
		if orphan.Hash == "live" {
			t.Fatal("Referenced blob must never appear as orphan")
		}
	}
}

func TestDeleteBlob(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	if _, _, err := repos.Blobs.GetOrCreateRef(ctx, &core.Blob{
		Hash: "h3", Tenant: "acme", Location: "acme/h3", SizeBytes: 5,
	}); err != nil {
		t.Fatalf("Failed to create blob: %v", err)
	}
	if _, err := repos.Blobs.Release(ctx, "acme", "h3"); err != nil {
		t.Fatalf("Failed to release blob: %v", err)
	}

	if err := repos.Blobs.DeleteBlob(ctx, "acme", "h3"); err != nil {
		t.Fatalf("Failed to delete blob: %v", err)
	}

	_, err = repos.Blobs.GetBlob(ctx, "acme", "h3")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestDeleteBlobRefusesLiveReference(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()
	template := &core.Blob{Hash: "h4", Tenant: "acme", Location: "acme/h4", SizeBytes: 5}

	// A blob that looked like an orphan when the collector listed it...
	if _, _, err := repos.Blobs.GetOrCreateRef(ctx, template); err != nil {
		t.Fatalf("Failed to create blob: %v", err)
	}
	if _, err := repos.Blobs.Release(ctx, "acme", "h4"); err != nil {
		t.Fatalf("Failed to release blob: %v", err)
	}
	orphans, err := repos.Blobs.ListOrphans(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("Failed to list orphans: %v", err)
	}
	if len(orphans) != 1 {
		t.Fatalf("Expected 1 orphan, got %d", len(orphans))
	}

	// ...gets re-referenced by a concurrent upload before deletion runs.
	blob, _, err := repos.Blobs.GetOrCreateRef(ctx, template)
	if err != nil {
		t.Fatalf("Failed to re-reference blob: %v", err)
	}
	if blob.RefCount != 1 {
		t.Fatalf("Expected RefCount 1, got %d", blob.RefCount)
	}

	err = repos.Blobs.DeleteBlob(ctx, "acme", "h4")
	if !errors.Is(err, storage.ErrBlobStillReferenced) {
		t.Fatalf("Expected ErrBlobStillReferenced, got %v", err)
	}

	survivor, err := repos.Blobs.GetBlob(ctx, "acme", "h4")
	if err != nil {
		t.Fatalf("Referenced blob record must survive the delete attempt: %v", err)
	}
	if survivor.RefCount != 1 {
		t.Fatalf("Expected RefCount 1 after refused delete, got %d", survivor.RefCount)
	}
}
