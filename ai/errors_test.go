package ai

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsQuotaExhausted(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrQuotaExhausted, true},
		{"wrapped sentinel", fmt.Errorf("embed: %w", ErrQuotaExhausted), true},
		{"provider message", errors.New("openai: insufficient_quota for this account"), true},
		{"quota exceeded", errors.New("quota exceeded for project"), true},
		{"rate limit is transient not quota", errors.New("429 too many requests"), false},
		{"unrelated", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsQuotaExhausted(tt.err); got != tt.want {
				t.Errorf("IsQuotaExhausted(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrTransient, true},
		{"rate limit", errors.New("429 too many requests"), true},
		{"timeout", errors.New("request timeout"), true},
		{"bad gateway", errors.New("502 bad gateway"), true},
		{"quota is not transient", ErrQuotaExhausted, false},
		{"quota message is not transient", errors.New("quota exceeded"), false},
		{"validation error", errors.New("model not found"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
