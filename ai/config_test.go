package ai

import (
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.EmbeddingHost == "" || cfg.ChunkerHost == "" {
		t.Fatal("Expected default hosts to be set")
	}
	if cfg.EmbeddingModel == "" || cfg.ChunkerModel == "" {
		t.Fatal("Expected default models to be set")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config must validate: %v", err)
	}
}

func TestNewConfigOptions(t *testing.T) {
	cfg := NewConfig(
		WithHost("http://example.com:9000"),
		WithEmbeddingModel("text-embedding-3-small"),
		WithChunkerModel("gpt-4o-mini"),
		WithMaxSegmentChars(4000),
	)

	if cfg.EmbeddingHost != "http://example.com:9000" {
		t.Fatalf("Unexpected embedding host: %s", cfg.EmbeddingHost)
	}
	if cfg.ChunkerHost != "http://example.com:9000" {
		t.Fatalf("Unexpected chunker host: %s", cfg.ChunkerHost)
	}
	if cfg.EmbeddingModel != "text-embedding-3-small" {
		t.Fatalf("Unexpected embedding model: %s", cfg.EmbeddingModel)
	}
	if cfg.MaxSegmentChars != 4000 {
		t.Fatalf("Unexpected segment cap: %d", cfg.MaxSegmentChars)
	}
}

func TestNormalizeAddsV1Suffix(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"bare host", "http://localhost:11434", "http://localhost:11434/v1"},
		{"trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"already suffixed", "http://localhost:11434/v1", "http://localhost:11434/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig(WithHost(tt.host))
			cfg.Normalize()
			if cfg.EmbeddingHost != tt.want {
				t.Errorf("EmbeddingHost = %s, want %s", cfg.EmbeddingHost, tt.want)
			}
			if cfg.ChunkerHost != tt.want {
				t.Errorf("ChunkerHost = %s, want %s", cfg.ChunkerHost, tt.want)
			}
		})
	}
}

func TestValidateRejectsIncomplete(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing embedding host", func(c *Config) { c.EmbeddingHost = "" }, "EmbeddingHost"},
		{"missing chunker host", func(c *Config) { c.ChunkerHost = "" }, "ChunkerHost"},
		{"missing embedding model", func(c *Config) { c.EmbeddingModel = "" }, "EmbeddingModel"},
		{"missing chunker model", func(c *Config) { c.ChunkerModel = "" }, "ChunkerModel"},
		{"bad segment cap", func(c *Config) { c.MaxSegmentChars = 0 }, "MaxSegmentChars"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Expected error naming %s, got: %v", tt.want, err)
			}
		})
	}
}
