package mock

import (
	"context"
	"strings"

	"github.com/poiesic/corpus/ai"
)

// MockBoundaryDetector is a test double for ai.BoundaryDetector.
// It allows custom behavior injection via function fields.
type MockBoundaryDetector struct {
	// DetectBoundariesFunc is called by DetectBoundaries if set.
	// If nil, uses default blank-line splitting.
	DetectBoundariesFunc func(ctx context.Context, text string) ([]ai.Segment, error)

	callCount int
}

// NewMockBoundaryDetector creates a mock boundary detector with default behavior.
// Note: Returns concrete type to allow test assertions via GetMockDetector().
func NewMockBoundaryDetector() *MockBoundaryDetector {
	return &MockBoundaryDetector{}
}

// DetectBoundaries splits text into mock segments.
// Default behavior: splits on blank lines; lines starting with '#' become
// headings, lines starting with '-' or '*' become lists, the rest paragraphs.
func (m *MockBoundaryDetector) DetectBoundaries(ctx context.Context, text string) ([]ai.Segment, error) {
	m.callCount++

	if m.DetectBoundariesFunc != nil {
		return m.DetectBoundariesFunc(ctx, text)
	}

	blocks := strings.Split(text, "\n\n")
	segments := make([]ai.Segment, 0, len(blocks))
	for _, block := range blocks {
		trimmed := strings.TrimSpace(block)
		if trimmed == "" {
			continue
		}

		kind := "paragraph"
		switch {
		case strings.HasPrefix(trimmed, "#"):
			kind = "heading"
		case strings.HasPrefix(trimmed, "-"), strings.HasPrefix(trimmed, "*"):
			kind = "list"
		}

		segments = append(segments, ai.Segment{Kind: kind, Text: trimmed})
	}

	return segments, nil
}

// CallCount returns the number of times DetectBoundaries was called.
func (m *MockBoundaryDetector) CallCount() int {
	return m.callCount
}

// Reset clears the call count and custom functions.
func (m *MockBoundaryDetector) Reset() {
	m.callCount = 0
	m.DetectBoundariesFunc = nil
}
