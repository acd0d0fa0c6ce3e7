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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/corpus/ai/mock"
	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/ingestion"
	"github.com/poiesic/corpus/queue"
	"github.com/poiesic/corpus/recovery"
)

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()

	opts = append([]EngineOption{
		WithAIProvider(mock.NewMockProvider()),
		WithQueueOptions(queue.WithPollInterval(10 * time.Millisecond)),
	}, opts...)

	engine, err := NewEngine("", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func waitForStatus(t *testing.T, engine *Engine, assetID core.ID, want core.IngestionStatus) *core.KnowledgeAsset {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		asset, err := engine.Ingestion().GetStatus(context.Background(), assetID)
		require.NoError(t, err)
		if asset.Status == want {
			return asset
		}
		if asset.Status.Terminal() {
			t.Fatalf("asset reached terminal status %s, want %s (last error: %s)",
				asset.Status, want, asset.LastError)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("asset %d never reached %s", assetID, want)
	return nil
}

func TestEngineIngestsDocumentEndToEnd(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, engine.Start(ctx))

	text := strings.Repeat("Knowledge is organized into small retrievable pieces. ", 40)
	res, err := engine.Ingestion().RegisterAndEnqueue(ctx, ingestion.RegisterRequest{
		Tenant:        "acme",
		Environment:   "prod",
		Filename:      "handbook.txt",
		Content:       []byte(text),
		Strategy:      core.StrategySimple,
		CorrelationID: "e2e",
	})
	require.NoError(t, err)
	assert.True(t, res.Enqueued)

	asset := waitForStatus(t, engine, res.Asset.Id, core.StatusCompleted)
	assert.Equal(t, 100, asset.Progress)
	assert.Greater(t, asset.TotalChunks, 1)
	assert.Equal(t, 1, asset.Attempts)

	chunks, err := engine.ChunkRepository().GetChunks(ctx, asset.Id)
	require.NoError(t, err)
	require.Len(t, chunks, asset.TotalChunks)
	for _, chunk := range chunks {
		assert.NotEmpty(t, chunk.Vector)
	}

	// The mock embedder is deterministic, so a chunk's own text must be its
	// best match.
	queryVec, err := engine.provider.Embedder().EmbedText(ctx, chunks[0].Text)
	require.NoError(t, err)
	matches, err := engine.ChunkRepository().FindSimilar(ctx, "acme", queryVec, 0.5, 3)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, chunks[0].Id, matches[0].Chunk.Id)
}

func TestEngineDeduplicatesConcurrentContent(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, engine.Start(ctx))

	first, err := engine.Ingestion().RegisterAndEnqueue(ctx, ingestion.RegisterRequest{
		Tenant: "acme", Environment: "prod", Filename: "a.txt",
		Content: []byte("shared body of text"),
	})
	require.NoError(t, err)
	second, err := engine.Ingestion().RegisterAndEnqueue(ctx, ingestion.RegisterRequest{
		Tenant: "acme", Environment: "prod", Filename: "b.txt",
		Content: []byte("shared body of text"),
	})
	require.NoError(t, err)

	assert.True(t, first.BlobCreated)
	assert.False(t, second.BlobCreated)
	assert.Equal(t, 2, second.Blob.RefCount)

	waitForStatus(t, engine, first.Asset.Id, core.StatusCompleted)
	waitForStatus(t, engine, second.Asset.Id, core.StatusCompleted)
}

func TestEngineGarbageCollectionSparesSharedContent(t *testing.T) {
	engine := newTestEngine(t,
		WithCollectorOptions(recovery.WithGraceWindow(time.Millisecond)))
	ctx := context.Background()
	require.NoError(t, engine.Start(ctx))

	first, err := engine.Ingestion().RegisterAndEnqueue(ctx, ingestion.RegisterRequest{
		Tenant: "acme", Environment: "prod", Filename: "a.txt",
		Content: []byte("content shared by two documents"),
	})
	require.NoError(t, err)
	second, err := engine.Ingestion().RegisterAndEnqueue(ctx, ingestion.RegisterRequest{
		Tenant: "acme", Environment: "prod", Filename: "b.txt",
		Content: []byte("content shared by two documents"),
	})
	require.NoError(t, err)

	waitForStatus(t, engine, first.Asset.Id, core.StatusCompleted)
	waitForStatus(t, engine, second.Asset.Id, core.StatusCompleted)

	// Deleting one reference leaves the blob held by the other.
	require.NoError(t, engine.Ingestion().DeleteAsset(ctx, first.Asset.Id, "gc-test"))
	time.Sleep(5 * time.Millisecond)

	result, err := engine.GarbageCollector().Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.OrphansFound)

	// Dropping the last reference makes it collectable.
	require.NoError(t, engine.Ingestion().DeleteAsset(ctx, second.Asset.Id, "gc-test"))
	time.Sleep(5 * time.Millisecond)

	result, err = engine.GarbageCollector().Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.OrphansFound)
	assert.Equal(t, 1, result.OrphansDeleted)
	assert.Greater(t, result.BytesFreed, int64(0))
}

func TestEngineStartStop(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.Start(ctx))
	require.Error(t, engine.Start(ctx))
	engine.Stop()
}
