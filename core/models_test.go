package core

import (
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "same content produces same ID", content: "test content"},
		{name: "empty string", content: ""},
		{name: "long content", content: "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestHashContent(t *testing.T) {
	h1 := HashContent([]byte("manual revision A"))
	h2 := HashContent([]byte("manual revision A"))
	if h1 != h2 {
		t.Errorf("HashContent() produced different hashes for identical bytes")
	}
	if len(h1) != 64 {
		t.Errorf("HashContent() expected 64 hex chars, got %d", len(h1))
	}

	// One byte of difference must produce a distinct hash.
	h3 := HashContent([]byte("manual revision B"))
	if h1 == h3 {
		t.Errorf("HashContent() produced same hash for different bytes")
	}
}

func TestIngestionStatus_String(t *testing.T) {
	tests := []struct {
		status IngestionStatus
		want   string
	}{
		{StatusPending, "PENDING"},
		{StatusProcessing, "PROCESSING"},
		{StatusCompleted, "COMPLETED"},
		{StatusStoredNoIndex, "STORED_NO_INDEX"},
		{StatusFailed, "FAILED"},
		{StatusStuck, "STUCK"},
		{IngestionStatus(99), "UNKNOWN(99)"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("IngestionStatus(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestIngestionStatus_Terminal(t *testing.T) {
	terminal := []IngestionStatus{StatusCompleted, StatusStoredNoIndex, StatusFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	open := []IngestionStatus{StatusPending, StatusProcessing, StatusStuck}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestJobKey_Deterministic(t *testing.T) {
	k1 := JobKey(42, "PRODUCTION")
	k2 := JobKey(42, "PRODUCTION")
	if k1 != k2 {
		t.Errorf("JobKey() not deterministic: %q vs %q", k1, k2)
	}

	if JobKey(42, "PRODUCTION") == JobKey(42, "SANDBOX") {
		t.Errorf("JobKey() should differ per environment")
	}
	if JobKey(42, "PRODUCTION") == JobKey(43, "PRODUCTION") {
		t.Errorf("JobKey() should differ per asset")
	}
}

func TestJobStatus_Unresolved(t *testing.T) {
	unresolved := []JobStatus{JobWaiting, JobActive, JobDelayed}
	for _, s := range unresolved {
		if !s.Unresolved() {
			t.Errorf("%s should be unresolved", s)
		}
	}

	resolved := []JobStatus{JobCompleted, JobFailed}
	for _, s := range resolved {
		if s.Unresolved() {
			t.Errorf("%s should be resolved", s)
		}
	}
}
