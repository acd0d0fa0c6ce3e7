package badger

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) *ChunkRepository {
	return &ChunkRepository{backend: backend}
}

// Close is a no-op; the repository holds no resources beyond the backend.
func (r *ChunkRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *ChunkRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// ReplaceChunks atomically replaces an asset's chunk set. New chunks and
// old-chunk deletions commit in one transaction, so a reader sees either
// the previous complete set or the new complete set, never a mix.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, assetID core.ID, chunks []*core.DocumentChunk) ([]*core.DocumentChunk, error) {
	err := r.backend.WithConflictRetry(func(tx *badger.Txn) error {
		// Collect sequence numbers of the previous set first.
		oldSeqs, err := r.collectSeqs(tx, assetID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		newSeqs := make(map[int]bool, len(chunks))
		for i, chunk := range chunks {
			chunk.AssetId = assetID
			chunk.Seq = i
			if chunk.Id == 0 {
				chunk.Id = core.IDFromContent(fmt.Sprintf("%d:%d:%s", assetID, i, chunk.Text))
			}
			chunk.CreatedAt = now

			key := makeChunkKey(assetID, i)
			if err := tx.Set(key, storage.MarshalChunk(chunk)); err != nil {
				return err
			}
			newSeqs[i] = true
		}

		// Delete leftovers from a previously larger set.
		for _, seq := range oldSeqs {
			if newSeqs[seq] {
				continue
			}
			if err := tx.Delete(makeChunkKey(assetID, seq)); err != nil {
				return err
			}
		}

		return tx.Commit()
	})

	return chunks, err
}

// GetChunks retrieves all chunks for an asset ordered by sequence.
func (r *ChunkRepository) GetChunks(ctx context.Context, assetID core.ID) ([]*core.DocumentChunk, error) {
	var results []*core.DocumentChunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return r.forEachChunk(tx, assetID, func(chunk *core.DocumentChunk) error {
			results = append(results, chunk)
			return nil
		})
	}, false)
	return results, err
}

// DeleteChunks removes all chunks for an asset.
func (r *ChunkRepository) DeleteChunks(ctx context.Context, assetID core.ID) error {
	return r.backend.WithConflictRetry(func(tx *badger.Txn) error {
		seqs, err := r.collectSeqs(tx, assetID)
		if err != nil {
			return err
		}
		for _, seq := range seqs {
			if err := tx.Delete(makeChunkKey(assetID, seq)); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// FindSimilar finds a tenant's chunks similar to the given vector.
func (r *ChunkRepository) FindSimilar(ctx context.Context, tenant string, vector []float32, minSimilarity float32, limit int) ([]*core.ChunkMatch, error) {
	var results []*core.ChunkMatch

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := []byte(chunkPrefix + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var chunk *core.DocumentChunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			if chunk == nil || chunk.Tenant != tenant {
				continue
			}

			// Skip chunks without embeddings
			if len(chunk.Vector) == 0 {
				continue
			}

			// Cosine similarity (dot product for normalized vectors)
			similarity := dotProduct(vector, chunk.Vector)
			if similarity >= minSimilarity {
				results = append(results, &core.ChunkMatch{
					Chunk: chunk,
					Score: similarity,
				})
			}
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortFunc(results, func(a, b *core.ChunkMatch) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// Helper methods

// collectSeqs returns the sequence numbers currently stored for an asset.
func (r *ChunkRepository) collectSeqs(tx *badger.Txn, assetID core.ID) ([]int, error) {
	var seqs []int
	err := r.forEachChunk(tx, assetID, func(chunk *core.DocumentChunk) error {
		seqs = append(seqs, chunk.Seq)
		return nil
	})
	return seqs, err
}

// forEachChunk iterates one asset's chunks in sequence order.
func (r *ChunkRepository) forEachChunk(tx *badger.Txn, assetID core.ID, fn func(*core.DocumentChunk) error) error {
	startKey := makePartialChunkKey(assetID)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = startKey
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Seek(startKey); iter.Valid(); iter.Next() {
		var chunk *core.DocumentChunk
		err := iter.Item().Value(func(val []byte) error {
			var err error
			chunk, err = storage.UnmarshalChunk(val)
			return err
		})
		if err != nil {
			return err
		}
		if chunk == nil {
			continue
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
