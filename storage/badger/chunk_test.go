package badger

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/corpus/core"
)

func TestReplaceChunksOrdering(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()
	assetID := core.ID(42)

	chunks := []*core.DocumentChunk{
		{Tenant: "acme", Text: "first", StartIdx: 0, EndIdx: 5, Strategy: core.StrategySimple},
		{Tenant: "acme", Text: "second", StartIdx: 5, EndIdx: 11, Strategy: core.StrategySimple},
		{Tenant: "acme", Text: "third", StartIdx: 11, EndIdx: 16, Strategy: core.StrategySimple},
	}

	stored, err := repos.Chunks.ReplaceChunks(ctx, assetID, chunks)
	if err != nil {
		t.Fatalf("Failed to store chunks: %v", err)
	}
	for i, chunk := range stored {
		if chunk.Seq != i {
			t.Fatalf("Expected Seq %d, got %d", i, chunk.Seq)
		}
		if chunk.Id == 0 {
			t.Fatal("Expected non-zero chunk ID")
		}
	}

	retrieved, err := repos.Chunks.GetChunks(ctx, assetID)
	if err != nil {
		t.Fatalf("Failed to get chunks: %v", err)
	}
	if len(retrieved) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(retrieved))
	}
	for i, chunk := range retrieved {
		if chunk.Seq != i {
			t.Fatalf("Chunks out of order: position %d has Seq %d", i, chunk.Seq)
		}
	}
}

func TestReplaceChunksShrinksSet(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()
	assetID := core.ID(7)

	var big []*core.DocumentChunk
	for i := 0; i < 5; i++ {
		big = append(big, &core.DocumentChunk{
			Tenant: "acme", Text: fmt.Sprintf("chunk %d", i), Strategy: core.StrategySimple,
		})
	}
	if _, err := repos.Chunks.ReplaceChunks(ctx, assetID, big); err != nil {
		t.Fatalf("Failed to store initial chunks: %v", err)
	}

	small := []*core.DocumentChunk{
		{Tenant: "acme", Text: "only one now", Strategy: core.StrategySemantic},
	}
	if _, err := repos.Chunks.ReplaceChunks(ctx, assetID, small); err != nil {
		t.Fatalf("Failed to replace chunks: %v", err)
	}

	retrieved, err := repos.Chunks.GetChunks(ctx, assetID)
	if err != nil {
		t.Fatalf("Failed to get chunks: %v", err)
	}
	if len(retrieved) != 1 {
		t.Fatalf("Expected stale chunks removed, got %d chunks", len(retrieved))
	}
	if retrieved[0].Text != "only one now" {
		t.Fatalf("Unexpected chunk text: %s", retrieved[0].Text)
	}
}

func TestDeleteChunks(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	if _, err := repos.Chunks.ReplaceChunks(ctx, core.ID(1), []*core.DocumentChunk{
		{Tenant: "acme", Text: "a"}, {Tenant: "acme", Text: "b"},
	}); err != nil {
		t.Fatalf("Failed to store chunks: %v", err)
	}
	if _, err := repos.Chunks.ReplaceChunks(ctx, core.ID(2), []*core.DocumentChunk{
		{Tenant: "acme", Text: "c"},
	}); err != nil {
		t.Fatalf("Failed to store chunks: %v", err)
	}

	if err := repos.Chunks.DeleteChunks(ctx, core.ID(1)); err != nil {
		t.Fatalf("Failed to delete chunks: %v", err)
	}

	gone, err := repos.Chunks.GetChunks(ctx, core.ID(1))
	if err != nil {
		t.Fatalf("Failed to get chunks: %v", err)
	}
	if len(gone) != 0 {
		t.Fatalf("Expected no chunks for asset 1, got %d", len(gone))
	}

	kept, err := repos.Chunks.GetChunks(ctx, core.ID(2))
	if err != nil {
		t.Fatalf("Failed to get chunks: %v", err)
	}
	if len(kept) != 1 {
		t.Fatalf("Expected asset 2 chunks untouched, got %d", len(kept))
	}
}

func TestFindSimilar(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	chunks := []*core.DocumentChunk{
		{Tenant: "acme", Text: "close match", Vector: []float32{1, 0, 0}},
		{Tenant: "acme", Text: "partial match", Vector: []float32{0.5, 0.5, 0}},
		{Tenant: "acme", Text: "orthogonal", Vector: []float32{0, 0, 1}},
		{Tenant: "acme", Text: "no embedding"},
		{Tenant: "other", Text: "wrong tenant", Vector: []float32{1, 0, 0}},
	}
	if _, err := repos.Chunks.ReplaceChunks(ctx, core.ID(9), chunks); err != nil {
		t.Fatalf("Failed to store chunks: %v", err)
	}

	matches, err := repos.Chunks.FindSimilar(ctx, "acme", []float32{1, 0, 0}, 0.3, 10)
	if err != nil {
		t.Fatalf("Failed to search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(matches))
	}
	if matches[0].Chunk.Text != "close match" {
		t.Fatalf("Expected best match first, got %s", matches[0].Chunk.Text)
	}
	if matches[0].Score < matches[1].Score {
		t.Fatal("Expected descending score order")
	}

	limited, err := repos.Chunks.FindSimilar(ctx, "acme", []float32{1, 0, 0}, 0.3, 1)
	if err != nil {
		t.Fatalf("Failed to search with limit: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("Expected limit respected, got %d matches", len(limited))
	}
}
