package badger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/storage"
)

// BlobRepository implements storage.BlobRepository for BadgerDB.
//
// All reference count mutations run inside serializable transactions with
// conflict retry, so concurrent workers deduplicating the same hash can
// never lose an increment.
type BlobRepository struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.BlobRepository = (*BlobRepository)(nil)

// NewBlobRepository creates a new BlobRepository.
func NewBlobRepository(backend *Backend) *BlobRepository {
	return &BlobRepository{
		backend: backend,
		logger:  slog.Default().With("component", "blob-repository"),
	}
}

// Close is a no-op; the repository holds no resources beyond the backend.
func (r *BlobRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *BlobRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// GetOrCreateRef atomically resolves a blob record for the template's hash.
func (r *BlobRepository) GetOrCreateRef(ctx context.Context, template *core.Blob) (*core.Blob, bool, error) {
	var (
		result  *core.Blob
		created bool
	)

	err := r.backend.WithConflictRetry(func(tx *badger.Txn) error {
		key := makeBlobKey(template.Tenant, template.Hash)
		existing, err := readBlob(tx, key)
		if err != nil {
			return err
		}

		if existing != nil {
			existing.RefCount++
			existing.UnreferencedAt = time.Time{}
			if err := tx.Set(key, storage.MarshalBlob(existing)); err != nil {
				return err
			}
			result = existing
			created = false
			return tx.Commit()
		}

		blob := *template
		blob.RefCount = 1
		blob.CreatedAt = time.Now().UTC()
		blob.UnreferencedAt = time.Time{}
		if err := tx.Set(key, storage.MarshalBlob(&blob)); err != nil {
			return err
		}
		result = &blob
		created = true
		return tx.Commit()
	})
	if err != nil {
		return nil, false, err
	}

	return result, created, nil
}

// Release decrements the blob's reference count.
func (r *BlobRepository) Release(ctx context.Context, tenant, hash string) (*core.Blob, error) {
	var result *core.Blob

	err := r.backend.WithConflictRetry(func(tx *badger.Txn) error {
		key := makeBlobKey(tenant, hash)
		blob, err := readBlob(tx, key)
		if err != nil {
			return err
		}
		if blob == nil {
			return storage.ErrNotFound
		}

		if blob.RefCount <= 0 {
			// Bookkeeping bug; clamping here could let the GC delete
			// content that is still referenced.
			r.logger.Error("blob reference count underflow",
				"tenant", tenant,
				"hash", hash,
				"ref_count", blob.RefCount,
				"invariant_violation", true)
			return fmt.Errorf("%w: %s", storage.ErrRefCountUnderflow, hash)
		}

		blob.RefCount--
		if blob.RefCount == 0 {
			blob.UnreferencedAt = time.Now().UTC()
		}
		if err := tx.Set(key, storage.MarshalBlob(blob)); err != nil {
			return err
		}
		result = blob
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetBlob retrieves a blob record by tenant and hash.
func (r *BlobRepository) GetBlob(ctx context.Context, tenant, hash string) (*core.Blob, error) {
	var result *core.Blob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeBlobKey(tenant, hash)
		var err error
		result, err = readBlob(tx, key)
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

// ListOrphans returns blob records at zero references since before the cutoff.
func (r *BlobRepository) ListOrphans(ctx context.Context, unreferencedBefore time.Time) ([]*core.Blob, error) {
	var results []*core.Blob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := []byte(blobPrefix + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var blob *core.Blob
			err := iter.Item().Value(func(val []byte) error {
				var err error
				blob, err = storage.UnmarshalBlob(val)
				return err
			})
			if err != nil {
				return err
			}
			if blob == nil || blob.RefCount != 0 {
				continue
			}
			if blob.UnreferencedAt.IsZero() || !blob.UnreferencedAt.Before(unreferencedBefore) {
				continue
			}
			results = append(results, blob)
		}
		return nil
	}, false)
	return results, err
}

// DeleteBlob removes a blob record. The record is re-read inside the
// transaction: an upload can re-reference a listed orphan at any point
// before the delete commits, and that race must lose to the reference.
func (r *BlobRepository) DeleteBlob(ctx context.Context, tenant, hash string) error {
	return r.backend.WithConflictRetry(func(tx *badger.Txn) error {
		key := makeBlobKey(tenant, hash)
		blob, err := readBlob(tx, key)
		if err != nil {
			return err
		}
		if blob == nil {
			return storage.ErrNotFound
		}
		if blob.RefCount != 0 || blob.UnreferencedAt.IsZero() {
			return fmt.Errorf("%w: %s (ref_count %d)", storage.ErrBlobStillReferenced, hash, blob.RefCount)
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// readBlob reads a blob record from the transaction.
func readBlob(tx *badger.Txn, key []byte) (*core.Blob, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var blob *core.Blob
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		blob, unmarshalErr = storage.UnmarshalBlob(val)
		return unmarshalErr
	})
	return blob, err
}
