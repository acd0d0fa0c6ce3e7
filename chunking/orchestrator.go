// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chunking

import (
	"context"
	"log/slog"

	"github.com/poiesic/corpus/ai"
	"github.com/poiesic/corpus/core"
)

// Orchestrator selects and runs a chunking strategy over document text.
type Orchestrator struct {
	config   Config
	detector ai.BoundaryDetector
	logger   *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithConfig overrides the default chunking configuration.
func WithConfig(config Config) Option {
	return func(o *Orchestrator) error {
		if err := config.Validate(); err != nil {
			return err
		}
		o.config = config
		return nil
	}
}

// WithBoundaryDetector supplies the model-backed detector used by the LLM
// strategy. Without one, LLM requests fall back to SIMPLE.
func WithBoundaryDetector(detector ai.BoundaryDetector) Option {
	return func(o *Orchestrator) error {
		o.detector = detector
		return nil
	}
}

// NewOrchestrator creates an orchestrator with default configuration,
// applying the provided options.
func NewOrchestrator(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		config: DefaultConfig(),
		logger: slog.Default().With("component", "chunking"),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Chunk splits text using the requested strategy.
//
// Output is never empty for non-empty input: strategy failures downgrade to
// SIMPLE, which always produces at least one chunk. Only empty text yields
// an empty slice and no error.
func (o *Orchestrator) Chunk(ctx context.Context, text string, strategy core.ChunkStrategy, tenant, correlationID string) ([]*core.DocumentChunk, error) {
	if err := core.ValidateStrategy(strategy); err != nil {
		return nil, err
	}
	if len(text) == 0 {
		return []*core.DocumentChunk{}, nil
	}

	var chunks []*core.DocumentChunk
	var err error

	switch strategy {
	case core.StrategySimple:
		chunks = o.chunkSimple(text, tenant)
	case core.StrategySemantic:
		chunks = o.chunkSemantic(text, tenant)
	case core.StrategyLLM:
		chunks, err = o.chunkLLM(ctx, text, tenant)
		if err != nil {
			o.logger.Warn("llm chunking failed, falling back to simple",
				"tenant", tenant,
				"correlation_id", correlationID,
				"err", err)
			chunks = o.chunkSimple(text, tenant)
		}
	}

	// A strategy that produced nothing from non-empty text still owes the
	// caller at least one chunk.
	if len(chunks) == 0 {
		o.logger.Warn("strategy produced no chunks, falling back to simple",
			"strategy", strategy.String(),
			"tenant", tenant,
			"correlation_id", correlationID)
		chunks = o.chunkSimple(text, tenant)
	}

	o.logger.Debug("chunked document",
		"strategy", strategy.String(),
		"tenant", tenant,
		"correlation_id", correlationID,
		"input_bytes", len(text),
		"chunks", len(chunks))

	return chunks, nil
}
