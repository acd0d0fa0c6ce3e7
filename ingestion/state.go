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

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/corpus/core"
)

// validTransitions is the document lifecycle. Transitions are forward-only
// with one exception: STUCK -> PENDING, the recovery loop's re-queue path.
// Workers never set STUCK themselves.
var validTransitions = map[core.IngestionStatus][]core.IngestionStatus{
	core.StatusPending:    {core.StatusProcessing, core.StatusFailed},
	core.StatusProcessing: {core.StatusCompleted, core.StatusStoredNoIndex, core.StatusFailed, core.StatusStuck},
	core.StatusStuck:      {core.StatusPending, core.StatusFailed},
}

// CanTransition reports whether the lifecycle permits from -> to.
func CanTransition(from, to core.IngestionStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AdvanceDetails carries the optional mutations applied alongside a status
// transition.
type AdvanceDetails struct {
	Progress      int
	TotalChunks   int
	Error         string // recorded when transitioning to FAILED
	CorrelationID string
	Actor         string
	BumpAttempts  bool // increment the attempt counter (PROCESSING entry)
}

// Advance transitions a document's status, updating progress, attempts and
// error details atomically with the status change. The transition check and
// the write share one storage transaction, so a concurrent transition can
// never be overwritten from a stale read of the status. Invalid transitions
// are rejected and logged as invariant violations; every accepted
// transition emits a structured audit event.
func (s *Service) Advance(ctx context.Context, assetID core.ID, newStatus core.IngestionStatus, details AdvanceDetails) (*core.KnowledgeAsset, error) {
	start := time.Now()

	var before core.IngestionStatus
	var tenant string

	updated, err := s.assets.MutateAsset(ctx, assetID, func(asset *core.KnowledgeAsset) error {
		before = asset.Status
		tenant = asset.Tenant
		if !CanTransition(before, newStatus) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, before, newStatus)
		}

		asset.Status = newStatus
		if details.Progress > 0 {
			asset.Progress = details.Progress
		}
		if details.TotalChunks > 0 {
			asset.TotalChunks = details.TotalChunks
		}
		if details.BumpAttempts {
			asset.Attempts++
		}
		if newStatus == core.StatusFailed {
			asset.LastError = details.Error
		} else if newStatus == core.StatusPending {
			// Re-queue clears the previous run's error.
			asset.LastError = ""
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			s.logger.Error("rejected status transition",
				"asset_id", assetID,
				"tenant", tenant,
				"from", before.String(),
				"to", newStatus.String(),
				"correlation_id", details.CorrelationID,
				"invariant_violation", true)
		}
		return nil, err
	}

	s.logger.Info("ingestion status advanced",
		"asset_id", assetID,
		"tenant", updated.Tenant,
		"before", before.String(),
		"after", newStatus.String(),
		"progress", updated.Progress,
		"attempts", updated.Attempts,
		"actor", details.Actor,
		"correlation_id", details.CorrelationID,
		"duration", time.Since(start))

	return updated, nil
}

// setProgress records a progress milestone without a status change. Only
// the progress field is written, so a concurrent status transition is
// never clobbered from this path.
func (s *Service) setProgress(ctx context.Context, asset *core.KnowledgeAsset, percent int) {
	asset.Progress = percent
	if _, err := s.assets.MutateAsset(ctx, asset.Id, func(a *core.KnowledgeAsset) error {
		a.Progress = percent
		return nil
	}); err != nil {
		s.logger.Warn("failed to record progress",
			"asset_id", asset.Id,
			"progress", percent,
			"err", err)
	}
}

// resetForResubmission returns a terminal asset to PENDING for a fresh
// ingestion run. This is not a lifecycle transition: it begins a new run,
// so it bypasses the forward-only table and clears run-scoped fields.
func (s *Service) resetForResubmission(ctx context.Context, asset *core.KnowledgeAsset) (*core.KnowledgeAsset, error) {
	return s.assets.MutateAsset(ctx, asset.Id, func(a *core.KnowledgeAsset) error {
		a.Status = core.StatusPending
		a.Progress = 0
		a.Attempts = 0
		a.LastError = ""
		return nil
	})
}
