package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/storage"
)

// AssetRepository implements storage.AssetRepository for BadgerDB.
type AssetRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.AssetRepository = (*AssetRepository)(nil)

// NewAssetRepository creates a new AssetRepository.
func NewAssetRepository(backend *Backend) (*AssetRepository, error) {
	idSeq, err := backend.GetSequence(assetIDSeq)
	if err != nil {
		return nil, err
	}

	return &AssetRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *AssetRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *AssetRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddAsset persists a new knowledge asset.
func (r *AssetRepository) AddAsset(ctx context.Context, asset *core.KnowledgeAsset) (*core.KnowledgeAsset, error) {
	if err := core.ValidateAsset(asset); err != nil {
		return nil, err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if asset.Id == 0 {
			nextID, err := r.idSeq.Next()
			if err != nil {
				return err
			}
			// BadgerDB sequences can return 0 on first call, so we skip it
			if nextID == 0 {
				nextID, err = r.idSeq.Next()
				if err != nil {
					return err
				}
			}
			asset.Id = core.ID(nextID)
		}

		asset.CreatedAt = time.Now().UTC()
		asset.UpdatedAt = asset.CreatedAt

		if err := r.writeAsset(tx, asset); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	return asset, err
}

// UpdateAsset updates an existing asset and bumps UpdatedAt.
func (r *AssetRepository) UpdateAsset(ctx context.Context, asset *core.KnowledgeAsset) (*core.KnowledgeAsset, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeAssetKey(asset.Id)
		old, err := readAsset(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		asset.UpdatedAt = time.Now().UTC()

		// Refresh the hash index if the asset was re-pointed.
		if old.ContentHash != asset.ContentHash && old.ContentHash != "" {
			oldIdx := makeAssetHashKey(old.Tenant, old.Environment, old.ContentHash, old.Id)
			if err := tx.Delete(oldIdx); err != nil {
				return err
			}
		}

		if err := r.writeAsset(tx, asset); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	return asset, err
}

// MutateAsset atomically applies fn to the stored asset. The read, the
// mutation and the write share one conflict-retried transaction, so a
// status check inside fn can never act on a stale snapshot.
func (r *AssetRepository) MutateAsset(ctx context.Context, id core.ID, fn func(asset *core.KnowledgeAsset) error) (*core.KnowledgeAsset, error) {
	var result *core.KnowledgeAsset

	err := r.backend.WithConflictRetry(func(tx *badger.Txn) error {
		key := makeAssetKey(id)
		asset, err := readAsset(tx, key)
		if err != nil {
			return err
		}
		if asset == nil {
			return storage.ErrNotFound
		}

		oldHash := asset.ContentHash
		oldIdx := makeAssetHashKey(asset.Tenant, asset.Environment, oldHash, asset.Id)

		if err := fn(asset); err != nil {
			return err
		}
		asset.UpdatedAt = time.Now().UTC()

		if oldHash != asset.ContentHash && oldHash != "" {
			if err := tx.Delete(oldIdx); err != nil {
				return err
			}
		}
		if err := r.writeAsset(tx, asset); err != nil {
			return err
		}
		result = asset
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetAsset retrieves a single asset by ID.
func (r *AssetRepository) GetAsset(ctx context.Context, id core.ID) (*core.KnowledgeAsset, error) {
	var result *core.KnowledgeAsset
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeAssetKey(id)
		var err error
		result, err = readAsset(tx, key)
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

// FindAssetByHash finds a non-deleted asset by tenant, environment and content hash.
func (r *AssetRepository) FindAssetByHash(ctx context.Context, tenant, environment, hash string) (*core.KnowledgeAsset, error) {
	var result *core.KnowledgeAsset
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		startKey := makePartialAssetHashKey(tenant, environment, hash)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = startKey
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(startKey); iter.Valid(); iter.Next() {
			var assetID core.ID
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				assetID, err = storage.UnmarshalID(val)
				return err
			}); err != nil {
				return err
			}

			asset, err := readAsset(tx, makeAssetKey(assetID))
			if err != nil {
				return err
			}
			if asset != nil && !asset.Deleted {
				result = asset
				return nil
			}
		}
		return storage.ErrNotFound
	}, false)
	return result, err
}

// ListAssetsByStatus retrieves assets in the given status older than the cutoff.
func (r *AssetRepository) ListAssetsByStatus(ctx context.Context, status core.IngestionStatus, updatedBefore time.Time) ([]*core.KnowledgeAsset, error) {
	var results []*core.KnowledgeAsset
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return r.forEachAsset(tx, func(asset *core.KnowledgeAsset) error {
			if asset.Deleted || asset.Status != status {
				return nil
			}
			if !updatedBefore.IsZero() && !asset.UpdatedAt.Before(updatedBefore) {
				return nil
			}
			results = append(results, asset)
			return nil
		})
	}, false)
	return results, err
}

// ReferencedHashes returns the set of content hashes referenced by any non-deleted asset.
func (r *AssetRepository) ReferencedHashes(ctx context.Context) (map[string]bool, error) {
	hashes := make(map[string]bool)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return r.forEachAsset(tx, func(asset *core.KnowledgeAsset) error {
			if !asset.Deleted && asset.ContentHash != "" {
				hashes[asset.ContentHash] = true
			}
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

// Helper methods

// writeAsset stores the primary record and its hash index entry.
func (r *AssetRepository) writeAsset(tx *badger.Txn, asset *core.KnowledgeAsset) error {
	key := makeAssetKey(asset.Id)
	if err := tx.Set(key, storage.MarshalAsset(asset)); err != nil {
		return err
	}

	if asset.ContentHash != "" {
		idxKey := makeAssetHashKey(asset.Tenant, asset.Environment, asset.ContentHash, asset.Id)
		if err := tx.Set(idxKey, storage.MarshalID(asset.Id)); err != nil {
			return err
		}
	}
	return nil
}

// forEachAsset iterates every primary asset record.
func (r *AssetRepository) forEachAsset(tx *badger.Txn, fn func(*core.KnowledgeAsset) error) error {
	prefix := []byte(assetPrefix + ":")
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()

		var asset *core.KnowledgeAsset
		err := item.Value(func(val []byte) error {
			var err error
			asset, err = storage.UnmarshalAsset(val)
			return err
		})
		if err != nil {
			return err
		}
		if asset == nil {
			continue
		}
		if err := fn(asset); err != nil {
			return err
		}
	}
	return nil
}

// readAsset reads an asset record from the transaction.
func readAsset(tx *badger.Txn, key []byte) (*core.KnowledgeAsset, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var asset *core.KnowledgeAsset
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		asset, unmarshalErr = storage.UnmarshalAsset(val)
		return unmarshalErr
	})
	return asset, err
}
