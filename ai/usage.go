package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Usage is a snapshot of embedding traffic recorded by a UsageTracker.
type Usage struct {
	Texts  int
	Tokens int
}

// UsageTracker accumulates token counts for embedded text so operators can
// see what a backfill or large ingestion run will cost. Safe for concurrent
// use by worker goroutines.
type UsageTracker struct {
	mu       sync.Mutex
	encoding *tiktoken.Tiktoken
	usage    Usage
}

// NewUsageTracker creates a tracker counting with the given tiktoken
// encoding. Pass "" for the default cl100k_base.
func NewUsageTracker(encodingName string) (*UsageTracker, error) {
	if encodingName == "" {
		encodingName = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	return &UsageTracker{encoding: enc}, nil
}

// CountTokens returns the token count of one text without recording it.
func (t *UsageTracker) CountTokens(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// Record adds the given texts to the running totals and returns the tokens
// counted for this batch.
func (t *UsageTracker) Record(texts ...string) int {
	var tokens int
	for _, text := range texts {
		tokens += t.CountTokens(text)
	}

	t.mu.Lock()
	t.usage.Texts += len(texts)
	t.usage.Tokens += tokens
	t.mu.Unlock()

	return tokens
}

// Snapshot returns the totals recorded so far.
func (t *UsageTracker) Snapshot() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

// Reset zeroes the totals, typically between reporting intervals.
func (t *UsageTracker) Reset() {
	t.mu.Lock()
	t.usage = Usage{}
	t.mu.Unlock()
}
