package chunking

import "errors"

// Config holds tuning parameters shared by all strategies.
type Config struct {
	// ChunkSize is the sliding window width in bytes for SIMPLE windows.
	// Default: 1000
	ChunkSize int

	// Overlap is how many bytes consecutive SIMPLE windows share.
	// Must be smaller than ChunkSize. Default: 200
	Overlap int

	// SimilarityThreshold is the minimum lexical similarity (0-1) for the
	// SEMANTIC strategy to merge adjacent text blocks into one group.
	// Default: 0.3
	SimilarityThreshold float64
}

// DefaultConfig returns chunking defaults suitable for prose documents.
func DefaultConfig() Config {
	return Config{
		ChunkSize:           1000,
		Overlap:             200,
		SimilarityThreshold: 0.3,
	}
}

// Validate checks the configuration for internally consistent values.
func (c Config) Validate() error {
	if c.ChunkSize < 1 {
		return errors.New("chunking config: ChunkSize must be positive")
	}
	if c.Overlap < 0 {
		return errors.New("chunking config: Overlap must not be negative")
	}
	if c.Overlap >= c.ChunkSize {
		return errors.New("chunking config: Overlap must be smaller than ChunkSize")
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return errors.New("chunking config: SimilarityThreshold must be between 0 and 1")
	}
	return nil
}
