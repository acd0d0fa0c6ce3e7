package chunking

import (
	"context"
	"errors"
	"strings"

	"github.com/poiesic/corpus/core"
)

// maxDetectorInput caps how much text is sent to the boundary detector in
// one call, to stay inside model context limits.
const maxDetectorInput = 12000

// errNoDetector is returned when the LLM strategy is requested but no
// boundary detector was configured; the orchestrator falls back to SIMPLE.
var errNoDetector = errors.New("chunking: no boundary detector configured")

// chunkLLM delegates boundary detection to the configured model. Each
// returned chunk carries the segment's structural kind; offsets are located
// by searching the original text, since the model may reformat slightly.
func (o *Orchestrator) chunkLLM(ctx context.Context, text string, tenant string) ([]*core.DocumentChunk, error) {
	if o.detector == nil {
		return nil, errNoDetector
	}

	// Short documents are a single chunk; no model call needed.
	if len(text) < 500 {
		return []*core.DocumentChunk{{
			Tenant:   tenant,
			StartIdx: 0,
			EndIdx:   len(text),
			Strategy: core.StrategyLLM,
			Text:     text,
		}}, nil
	}

	input := text
	if len(input) > maxDetectorInput {
		o.logger.Warn("text too long for boundary detector, truncating",
			"length", len(text),
			"cap", maxDetectorInput)
		input = input[:maxDetectorInput]
	}

	segments, err := o.detector.DetectBoundaries(ctx, input)
	if err != nil {
		return nil, err
	}

	var chunks []*core.DocumentChunk
	searchStart := 0
	for _, seg := range segments {
		segText := strings.TrimSpace(seg.Text)
		if segText == "" {
			continue
		}

		// Locate the segment in the original text to recover offsets,
		// scanning forward from the previous match to preserve order.
		start := strings.Index(text[searchStart:], segText)
		var startIdx, endIdx int
		if start >= 0 {
			startIdx = searchStart + start
			endIdx = startIdx + len(segText)
			searchStart = endIdx
		} else {
			// The model paraphrased; approximate the position.
			startIdx = searchStart
			endIdx = searchStart + len(segText)
		}

		chunks = append(chunks, &core.DocumentChunk{
			Tenant:   tenant,
			StartIdx: startIdx,
			EndIdx:   endIdx,
			Kind:     seg.Kind,
			Strategy: core.StrategyLLM,
			Text:     segText,
		})
	}
	return chunks, nil
}
