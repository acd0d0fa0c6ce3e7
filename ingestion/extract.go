package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// TextExtractor converts raw document bytes into plain text.
// Implementations must be thread-safe for concurrent use.
type TextExtractor interface {
	// Extract returns the plain text of a document. Failures are
	// validation errors: the content is malformed or unsupported, and
	// retrying will not help.
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

// PlainTextExtractor handles UTF-8 text documents. Format-specific
// extractors (PDF, office formats) plug in behind the TextExtractor
// interface.
type PlainTextExtractor struct{}

var _ TextExtractor = (*PlainTextExtractor)(nil)

// NewPlainTextExtractor creates the default extractor.
func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Extract validates the bytes as UTF-8 text, strips a leading BOM, and
// normalizes line endings.
func (e *PlainTextExtractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8 text", ErrExtractionFailed, filename)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("%w: %s contains binary content", ErrExtractionFailed, filename)
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return text, nil
}
