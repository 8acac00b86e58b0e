package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/lorekeeper/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{name: "defaults with providers", mutate: func(*config.Config) {}},
		{
			name:    "invalid log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = "verbose" },
			wantErr: "server.log_level",
		},
		{
			name:    "tls without key",
			mutate:  func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "cert.pem"} },
			wantErr: "server.tls",
		},
		{
			name: "fallback without name",
			mutate: func(c *config.Config) {
				c.Providers.FallbackLLMs = []config.ProviderEntry{{Model: "x"}}
			},
			wantErr: "providers.fallback_llms[0].name",
		},
		{
			name:    "zero dimensions",
			mutate:  func(c *config.Config) { c.Storage.EmbeddingDimensions = 0 },
			wantErr: "storage.embedding_dimensions",
		},
		{
			name:    "negative pool size",
			mutate:  func(c *config.Config) { c.Storage.MaxConns = -1 },
			wantErr: "storage.max_conns",
		},
		{
			name:    "sampling disabled",
			mutate:  func(c *config.Config) { c.Telemetry.SampleRatio = 0 },
			wantErr: "telemetry.sample_ratio",
		},
		{
			name:    "threshold above one",
			mutate:  func(c *config.Config) { c.Retrieval.SimilarityThreshold = 1.5 },
			wantErr: "retrieval.similarity_threshold",
		},
		{
			name:    "zero token limit",
			mutate:  func(c *config.Config) { c.Retrieval.TokenLimit = 0 },
			wantErr: "retrieval.token_limit",
		},
		{
			name:    "negative weight",
			mutate:  func(c *config.Config) { c.Retrieval.Weights.Trigram = -0.1 },
			wantErr: "must not be negative",
		},
		{
			name:    "all-zero weights",
			mutate:  func(c *config.Config) { c.Retrieval.Weights = config.Weights{} },
			wantErr: "must not all be zero",
		},
		{
			name:    "answer temperature",
			mutate:  func(c *config.Config) { c.Retrieval.AnswerTemperature = 3 },
			wantErr: "retrieval.answer_temperature",
		},
		{
			name:    "inverted n-gram range",
			mutate:  func(c *config.Config) { c.Resolver.MinN, c.Resolver.MaxN = 3, 2 },
			wantErr: "n-gram range",
		},
		{
			name:    "resolver threshold one",
			mutate:  func(c *config.Config) { c.Resolver.Threshold = 1 },
			wantErr: "resolver.threshold",
		},
		{
			name:    "zero memory budget",
			mutate:  func(c *config.Config) { c.Memory.Budget = 0 },
			wantErr: "memory.budget",
		},
		{
			name:    "zero cache ttl",
			mutate:  func(c *config.Config) { c.Cache.TTL = 0 },
			wantErr: "cache.ttl",
		},
		{
			name:   "disabled cache ignores ttl",
			mutate: func(c *config.Config) { c.Cache.Enabled = false; c.Cache.TTL = 0 },
		},
		{
			name:    "bad purge schedule",
			mutate:  func(c *config.Config) { c.Cache.PurgeSchedule = "every tuesday" },
			wantErr: "cache.purge_schedule",
		},
		{
			name:    "overlap not below size",
			mutate:  func(c *config.Config) { c.Ingest.ChunkOverlap = c.Ingest.ChunkSize },
			wantErr: "ingest chunking",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			cfg.Providers.LLM.Name = "openai"
			cfg.Providers.Embeddings.Name = "openai"
			tt.mutate(cfg)

			err := config.Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "lorekeeper.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.LLM.Name != "openai" {
		t.Errorf("providers.llm.name: got %q", cfg.Providers.LLM.Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
