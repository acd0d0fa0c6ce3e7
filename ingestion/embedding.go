package ingestion

import (
	"context"

	"github.com/poiesic/corpus/ai"
	"github.com/poiesic/corpus/core"
)

// embedChunks generates a vector per chunk. Transient provider failures are
// retried with exponential backoff; once quota exhaustion is observed the
// remaining chunks are persisted without vectors rather than burning more
// calls. Returns how many chunks received a vector.
func (s *Service) embedChunks(ctx context.Context, chunks []*core.DocumentChunk, correlationID string) (int, error) {
	var embedded, attempted, tokens int
	var quotaHit bool

	for _, chunk := range chunks {
		if quotaHit {
			chunk.Vector = nil
			continue
		}

		// Count the text the moment it goes to the provider: a failed or
		// quota-rejected call still spent the tokens it was charged for.
		attempted++
		if s.usage != nil {
			tokens += s.usage.Record(chunk.Text)
		}

		var vector []float32
		var quotaErr error
		err := RetryWithBackoff(ctx, func() error {
			embedCtx, cancel := s.stageCtx(ctx)
			defer cancel()
			v, embedErr := s.embedder.EmbedText(embedCtx, chunk.Text)
			if embedErr != nil {
				if ai.IsQuotaExhausted(embedErr) {
					// Not retriable: capture and stop the retry loop.
					quotaErr = embedErr
					return nil
				}
				return embedErr
			}
			vector = v
			return nil
		}, s.embedAttempts, s.embedBaseDelay)
		if err != nil {
			return embedded, err
		}
		if quotaErr != nil {
			quotaHit = true
			chunk.Vector = nil
			s.logger.Warn("embedding quota exhausted, storing chunks without vectors",
				"seq", chunk.Seq,
				"correlation_id", correlationID,
				"err", quotaErr)
			continue
		}

		chunk.Vector = vector
		embedded++
	}

	if s.usage != nil && attempted > 0 {
		s.logger.Info("embedding usage",
			"texts", attempted,
			"embedded", embedded,
			"tokens", tokens,
			"correlation_id", correlationID)
	}
	return embedded, nil
}
