package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// Batch processing is more efficient than calling EmbedText multiple times.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// BoundaryDetector finds semantically meaningful split points in document
// text. Implementations must be thread-safe for concurrent use.
type BoundaryDetector interface {
	// DetectBoundaries analyzes text and returns an ordered list of segments
	// covering it, each tagged with a structural kind (heading, paragraph,
	// list, ...). Segments appear in document order.
	// Returns an empty slice if the text yields no segments.
	// Returns an error if detection fails; callers are expected to fall
	// back to a deterministic strategy.
	DetectBoundaries(ctx context.Context, text string) ([]Segment, error)
}

// Segment is one structural unit of a document identified by a
// BoundaryDetector.
type Segment struct {
	// Kind categorizes the segment (e.g., "heading", "paragraph", "table").
	// Must match one of the predefined segment kinds.
	Kind string

	// Text is the verbatim segment content.
	Text string
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
// A provider creates and manages Embedder and BoundaryDetector instances,
// ensuring they share configuration and resources appropriately.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// BoundaryDetector returns the document segmentation service.
	// The returned BoundaryDetector is safe for concurrent use.
	BoundaryDetector() BoundaryDetector

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
