package ingestion

import (
	"testing"

	"github.com/poiesic/corpus/core"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from core.IngestionStatus
		to   core.IngestionStatus
		want bool
	}{
		{"pending to processing", core.StatusPending, core.StatusProcessing, true},
		{"pending to failed", core.StatusPending, core.StatusFailed, true},
		{"pending to completed", core.StatusPending, core.StatusCompleted, false},
		{"processing to completed", core.StatusProcessing, core.StatusCompleted, true},
		{"processing to stored no index", core.StatusProcessing, core.StatusStoredNoIndex, true},
		{"processing to failed", core.StatusProcessing, core.StatusFailed, true},
		{"processing to stuck", core.StatusProcessing, core.StatusStuck, true},
		{"processing to pending", core.StatusProcessing, core.StatusPending, false},
		{"stuck to pending", core.StatusStuck, core.StatusPending, true},
		{"stuck to failed", core.StatusStuck, core.StatusFailed, true},
		{"stuck to completed", core.StatusStuck, core.StatusCompleted, false},
		{"completed is terminal", core.StatusCompleted, core.StatusPending, false},
		{"failed is terminal", core.StatusFailed, core.StatusPending, false},
		{"stored no index is terminal", core.StatusStoredNoIndex, core.StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	terminal := []core.IngestionStatus{core.StatusCompleted, core.StatusStoredNoIndex, core.StatusFailed}
	all := []core.IngestionStatus{
		core.StatusPending, core.StatusProcessing, core.StatusCompleted,
		core.StatusStoredNoIndex, core.StatusFailed, core.StatusStuck,
	}

	for _, from := range terminal {
		for _, to := range all {
			if CanTransition(from, to) {
				t.Errorf("terminal status %s permits transition to %s", from, to)
			}
		}
	}
}
