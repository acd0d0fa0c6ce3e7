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

package openai

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/poiesic/corpus/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// BoundaryDetector implements ai.BoundaryDetector using OpenAI-compatible chat APIs.
type BoundaryDetector struct {
	client          llms.Model
	maxSegmentChars int
	logger          *slog.Logger
}

// segment is an internal type used for JSON unmarshaling.
// It matches the structure expected from the LLM.
type segment struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// segmentation is the wrapper structure for the LLM's JSON response.
type segmentation struct {
	Segments []segment `json:"segments"`
}

// newBoundaryDetector is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newBoundaryDetector(config *ai.Config) (*BoundaryDetector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Use "none" as token for local OpenAI-compatible services that don't require authentication
	client, err := openai.New(
		openai.WithBaseURL(config.ChunkerHost),
		openai.WithToken("none"),
		openai.WithModel(config.ChunkerModel),
	)
	if err != nil {
		return nil, err
	}

	return &BoundaryDetector{
		client:          client,
		maxSegmentChars: config.MaxSegmentChars,
		logger:          slog.Default().With("component", "openai-chunker"),
	}, nil
}

// NewBoundaryDetector creates a new boundary detector using the provided configuration.
//
// Returns ai.BoundaryDetector interface to enforce abstraction.
func NewBoundaryDetector(config *ai.Config) (ai.BoundaryDetector, error) {
	return newBoundaryDetector(config)
}

// DetectBoundaries asks the model to split document text into typed segments.
// Segments with unknown kinds are downgraded to "paragraph" rather than
// dropped; oversized segments are truncated to the configured cap.
func (d *BoundaryDetector) DetectBoundaries(ctx context.Context, text string) ([]ai.Segment, error) {
	systemPrompt := buildSystemPrompt()
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(systemPrompt),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(text),
			},
		},
	}

	// Try up to 3 times in case of malformed JSON
	var result segmentation
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		response, err := d.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			d.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return nil, err
		}

		if len(response.Choices) < 1 {
			d.logger.Debug("no choices returned from model")
			return []ai.Segment{}, nil
		}

		choice := response.Choices[0]

		// Strip markdown code fences if present
		responseText := strings.TrimSpace(choice.Content)
		responseText = strings.TrimPrefix(responseText, "```json")
		responseText = strings.TrimPrefix(responseText, "```")
		responseText = strings.TrimSuffix(responseText, "```")
		responseText = strings.TrimSpace(responseText)

		// Try to repair common JSON issues
		responseText = repairJSON(responseText)

		if err := json.Unmarshal([]byte(responseText), &result); err != nil {
			lastErr = err
			d.logger.Warn("error parsing segmentation response",
				"attempt", attempt+1,
				"err", err)
			continue
		}

		lastErr = nil
		break
	}

	if lastErr != nil {
		d.logger.Error("failed to parse segmentation response after retries", "err", lastErr)
		return nil, lastErr
	}

	segments := make([]ai.Segment, 0, len(result.Segments))
	for _, s := range result.Segments {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		kind := strings.ToLower(strings.TrimSpace(s.Kind))
		if !ai.ValidSegmentKind(kind) {
			kind = "paragraph"
		}
		segText := s.Text
		if len(segText) > d.maxSegmentChars {
			d.logger.Warn("model returned oversized segment, truncating",
				"length", len(segText),
				"cap", d.maxSegmentChars)
			segText = segText[:d.maxSegmentChars]
		}
		segments = append(segments, ai.Segment{Kind: kind, Text: segText})
	}

	d.logger.Debug("detected segments",
		"returned", len(result.Segments),
		"kept", len(segments))

	return segments, nil
}
