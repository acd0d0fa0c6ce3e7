package chunking

import (
	"strings"

	"github.com/poiesic/corpus/core"
)

// block is one paragraph-level unit of the document with its byte offsets.
type block struct {
	start int
	end   int
}

// chunkSemantic splits at paragraph and heading boundaries, merges adjacent
// blocks that remain lexically similar, and windows any group that grows
// past the configured chunk size.
func (o *Orchestrator) chunkSemantic(text string, tenant string) []*core.DocumentChunk {
	blocks := splitBlocks(text)
	if len(blocks) == 0 {
		return nil
	}

	groups := o.groupBlocks(text, blocks)

	var chunks []*core.DocumentChunk
	for _, g := range groups {
		groupText := text[g.start:g.end]
		if len(groupText) <= o.config.ChunkSize {
			chunks = append(chunks, &core.DocumentChunk{
				Tenant:   tenant,
				StartIdx: g.start,
				EndIdx:   g.end,
				Strategy: core.StrategySemantic,
				Text:     groupText,
			})
			continue
		}
		// Oversized topical group: window it, keeping document offsets.
		chunks = o.windowInto(chunks, groupText, tenant, g.start, core.StrategySemantic)
	}
	return chunks
}

// groupBlocks merges consecutive blocks whose word sets stay similar.
// A heading never merges backward into the previous group; it starts a new
// topic together with whatever follows it.
func (o *Orchestrator) groupBlocks(text string, blocks []block) []block {
	groups := []block{blocks[0]}
	prevWords := tokenize(text[blocks[0].start:blocks[0].end])

	for _, b := range blocks[1:] {
		blockText := text[b.start:b.end]
		words := tokenize(blockText)

		last := &groups[len(groups)-1]
		if !isHeading(blockText) && jaccard(prevWords, words) >= o.config.SimilarityThreshold {
			last.end = b.end
			for w := range words {
				prevWords[w] = true
			}
			continue
		}

		groups = append(groups, b)
		prevWords = words
	}
	return groups
}

// splitBlocks finds paragraph boundaries (blank lines) and returns the
// non-empty regions between them.
func splitBlocks(text string) []block {
	var blocks []block
	start := 0
	for start < len(text) {
		sep := strings.Index(text[start:], "\n\n")
		end := len(text)
		next := len(text)
		if sep >= 0 {
			end = start + sep
			next = end + 2
		}

		if strings.TrimSpace(text[start:end]) != "" {
			blocks = append(blocks, block{start: start, end: end})
		}
		start = next
	}
	return blocks
}

// isHeading reports whether a block looks like a section heading: a single
// short line, optionally markdown-marked.
func isHeading(blockText string) bool {
	trimmed := strings.TrimSpace(blockText)
	if strings.HasPrefix(trimmed, "#") {
		return true
	}
	return !strings.Contains(trimmed, "\n") && len(trimmed) < 80 && !strings.HasSuffix(trimmed, ".")
}
