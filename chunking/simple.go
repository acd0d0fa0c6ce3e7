package chunking

import (
	"strings"

	"github.com/poiesic/corpus/core"
)

// chunkSimple slides a fixed-size window with overlap across the text.
// Offsets are byte positions; consecutive windows advance by
// ChunkSize-Overlap, so concatenating chunks minus the overlap reconstructs
// the input.
func (o *Orchestrator) chunkSimple(text string, tenant string) []*core.DocumentChunk {
	size := o.config.ChunkSize
	step := size - o.config.Overlap

	var chunks []*core.DocumentChunk
	for start := 0; start < len(text); start += step {
		end := start + size
		if end > len(text) {
			end = len(text)
		}

		chunks = append(chunks, &core.DocumentChunk{
			Tenant:   tenant,
			StartIdx: start,
			EndIdx:   end,
			Strategy: core.StrategySimple,
			Text:     text[start:end],
		})

		if end == len(text) {
			break
		}
	}
	return chunks
}

// windowInto appends SIMPLE windows over one region of the text, keeping
// offsets relative to the full document. Used by the SEMANTIC strategy for
// groups that exceed the window size.
func (o *Orchestrator) windowInto(chunks []*core.DocumentChunk, text string, tenant string, base int, strategy core.ChunkStrategy) []*core.DocumentChunk {
	for _, c := range o.chunkSimple(text, tenant) {
		c.StartIdx += base
		c.EndIdx += base
		c.Strategy = strategy
		chunks = append(chunks, c)
	}
	return chunks
}

// tokenize lowercases and splits text into a word set for lexical
// similarity comparisons.
func tokenize(text string) map[string]bool {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()[]{}")
		if len(w) > 2 {
			set[w] = true
		}
	}
	return set
}

// jaccard computes set similarity between two word sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	var intersection int
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
