package chunking

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/corpus/ai"
	"github.com/poiesic/corpus/ai/mock"
	"github.com/poiesic/corpus/core"
)

func newTestOrchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(opts...)
	if err != nil {
		t.Fatalf("Failed to create orchestrator: %v", err)
	}
	return o
}

func TestSimpleCoverage(t *testing.T) {
	o := newTestOrchestrator(t, WithConfig(Config{
		ChunkSize: 100, Overlap: 20, SimilarityThreshold: 0.3,
	}))

	text := strings.Repeat("abcdefghij", 57) // 570 bytes, not window-aligned
	chunks, err := o.Chunk(context.Background(), text, core.StrategySimple, "acme", "corr-1")
	if err != nil {
		t.Fatalf("Failed to chunk: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("Expected at least one chunk")
	}

	// Concatenating chunks minus the overlap reconstructs the input.
	var rebuilt strings.Builder
	for i, chunk := range chunks {
		if chunk.Text != text[chunk.StartIdx:chunk.EndIdx] {
			t.Fatalf("Chunk %d text does not match its offsets", i)
		}
		if i == 0 {
			rebuilt.WriteString(chunk.Text)
			continue
		}
		prev := chunks[i-1]
		overlapLen := prev.EndIdx - chunk.StartIdx
		if overlapLen < 0 {
			t.Fatalf("Gap between chunk %d and %d", i-1, i)
		}
		rebuilt.WriteString(chunk.Text[overlapLen:])
	}
	if rebuilt.String() != text {
		t.Fatal("Chunks minus overlap do not reconstruct the original text")
	}

	// Offsets are monotonically increasing.
	for i := 1; i < len(chunks); i++ {
		if chunks[i].StartIdx <= chunks[i-1].StartIdx {
			t.Fatalf("Chunk offsets not increasing at %d", i)
		}
	}
}

func TestSimpleShortText(t *testing.T) {
	o := newTestOrchestrator(t)

	chunks, err := o.Chunk(context.Background(), "tiny", core.StrategySimple, "acme", "corr-2")
	if err != nil {
		t.Fatalf("Failed to chunk: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk for short text, got %d", len(chunks))
	}
	if chunks[0].StartIdx != 0 || chunks[0].EndIdx != 4 {
		t.Fatalf("Unexpected offsets: [%d, %d)", chunks[0].StartIdx, chunks[0].EndIdx)
	}
}

func TestEmptyTextYieldsNoChunks(t *testing.T) {
	o := newTestOrchestrator(t)

	chunks, err := o.Chunk(context.Background(), "", core.StrategySimple, "acme", "corr-3")
	if err != nil {
		t.Fatalf("Failed to chunk: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("Expected no chunks for empty text, got %d", len(chunks))
	}
}

func TestWhitespaceOnlyTextStillChunks(t *testing.T) {
	o := newTestOrchestrator(t)

	// Whitespace is non-empty input, so the at-least-one-chunk contract
	// applies to it like any other text.
	chunks, err := o.Chunk(context.Background(), "   \n\t  ", core.StrategySimple, "acme", "corr-3b")
	if err != nil {
		t.Fatalf("Failed to chunk: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("Expected at least one chunk for whitespace-only text")
	}
}

func TestInvalidStrategyRejected(t *testing.T) {
	o := newTestOrchestrator(t)

	_, err := o.Chunk(context.Background(), "text", core.ChunkStrategy(99), "acme", "corr-4")
	if !errors.Is(err, core.ErrInvalidStrategy) {
		t.Fatalf("Expected ErrInvalidStrategy, got %v", err)
	}
}

func TestSemanticGroupsParagraphs(t *testing.T) {
	o := newTestOrchestrator(t)

	text := "# Installation\n\n" +
		"Install the server with the package manager. The package manager resolves dependencies.\n\n" +
		"The package manager also verifies checksums and dependencies during install.\n\n" +
		"# Completely Different Topic\n\n" +
		"Giraffes are the tallest living terrestrial animals."

	chunks, err := o.Chunk(context.Background(), text, core.StrategySemantic, "acme", "corr-5")
	if err != nil {
		t.Fatalf("Failed to chunk: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("Expected topic boundaries to split the text, got %d chunks", len(chunks))
	}
	for _, chunk := range chunks {
		if chunk.Strategy != core.StrategySemantic {
			t.Fatalf("Expected SEMANTIC strategy tag, got %s", chunk.Strategy)
		}
		if chunk.Text != text[chunk.StartIdx:chunk.EndIdx] {
			t.Fatal("Chunk text does not match its offsets")
		}
	}
}

func TestSemanticWindowsOversizedGroups(t *testing.T) {
	o := newTestOrchestrator(t, WithConfig(Config{
		ChunkSize: 100, Overlap: 10, SimilarityThreshold: 0.3,
	}))

	// One long paragraph, far over the window size.
	text := strings.Repeat("the same words repeat here over and over again ", 20)
	chunks, err := o.Chunk(context.Background(), text, core.StrategySemantic, "acme", "corr-6")
	if err != nil {
		t.Fatalf("Failed to chunk: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("Expected oversized group to be windowed, got %d chunks", len(chunks))
	}
	for _, chunk := range chunks {
		if len(chunk.Text) > 100 {
			t.Fatalf("Chunk exceeds window size: %d bytes", len(chunk.Text))
		}
		if chunk.Text != text[chunk.StartIdx:chunk.EndIdx] {
			t.Fatal("Windowed chunk offsets are wrong")
		}
	}
}

func TestLLMChunksCarryKinds(t *testing.T) {
	detector := mock.NewMockBoundaryDetector()
	o := newTestOrchestrator(t, WithBoundaryDetector(detector))

	text := "# Title\n\n" + strings.Repeat("A paragraph about the system under test. ", 15) +
		"\n\n- item one\n- item two"
	chunks, err := o.Chunk(context.Background(), text, core.StrategyLLM, "acme", "corr-7")
	if err != nil {
		t.Fatalf("Failed to chunk: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("Expected 3 segments, got %d", len(chunks))
	}
	if chunks[0].Kind != "heading" {
		t.Fatalf("Expected heading kind, got %q", chunks[0].Kind)
	}
	if chunks[2].Kind != "list" {
		t.Fatalf("Expected list kind, got %q", chunks[2].Kind)
	}
	if detector.CallCount() != 1 {
		t.Fatalf("Expected 1 detector call, got %d", detector.CallCount())
	}
}

func TestLLMFailureFallsBackToSimple(t *testing.T) {
	detector := mock.NewMockBoundaryDetector()
	detector.DetectBoundariesFunc = func(ctx context.Context, text string) ([]ai.Segment, error) {
		return nil, errors.New("model unavailable")
	}
	o := newTestOrchestrator(t, WithBoundaryDetector(detector))

	text := strings.Repeat("some document text here ", 50)
	chunks, err := o.Chunk(context.Background(), text, core.StrategyLLM, "acme", "corr-8")
	if err != nil {
		t.Fatalf("Fallback must not surface the strategy error: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("Expected fallback chunks")
	}
	for _, chunk := range chunks {
		if chunk.Strategy != core.StrategySimple {
			t.Fatalf("Expected SIMPLE fallback tag, got %s", chunk.Strategy)
		}
	}
}

func TestLLMWithoutDetectorFallsBack(t *testing.T) {
	o := newTestOrchestrator(t)

	chunks, err := o.Chunk(context.Background(), strings.Repeat("text ", 200), core.StrategyLLM, "acme", "corr-9")
	if err != nil {
		t.Fatalf("Expected fallback, got error: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("Expected fallback chunks")
	}
}
