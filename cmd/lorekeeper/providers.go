package main

import (
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/lorekeeper/internal/app"
	"github.com/MrWong99/lorekeeper/internal/config"
	"github.com/MrWong99/lorekeeper/internal/resilience"
	"github.com/MrWong99/lorekeeper/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/lorekeeper/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/lorekeeper/pkg/provider/embeddings/openai"
	"github.com/MrWong99/lorekeeper/pkg/provider/llm"
	"github.com/MrWong99/lorekeeper/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/lorekeeper/pkg/provider/llm/openai"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai talks to the API natively so that Options can carry an
	// organization and a timeout.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oallm.WithTimeout(d))
		}
		if n := optInt(entry.Options, "max_retries"); n > 0 {
			opts = append(opts, oallm.WithMaxRetries(n))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// Every other backend goes through any-llm-go. Local servers (ollama,
	// llamacpp, llamafile) simply leave APIKey empty.
	for _, backend := range anyllm.Backends() {
		if backend == "openai" {
			continue
		}
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaembed.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oaembed.WithTimeout(d))
		}
		if n := optInt(entry.Options, "dimensions"); n > 0 {
			opts = append(opts, oaembed.WithDimensions(n))
		}
		if n := optInt(entry.Options, "max_retries"); n > 0 {
			opts = append(opts, oaembed.WithMaxRetries(n))
		}
		p, err := oaembed.New(entry.APIKey, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return withPrefixes(entry, p), nil
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, ollamaembed.WithTimeout(d))
		}
		if n := optInt(entry.Options, "dimensions"); n > 0 {
			opts = append(opts, ollamaembed.WithDimensions(n))
		}
		if n := optInt(entry.Options, "batch_size"); n > 0 {
			opts = append(opts, ollamaembed.WithBatchSize(n))
		}
		if d := optDuration(entry.Options, "keep_alive"); d > 0 {
			opts = append(opts, ollamaembed.WithKeepAlive(d))
		}
		p, err := ollamaembed.New(entry.BaseURL, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return withPrefixes(entry, p), nil
	})

	slog.Debug("providers registered", "llm", reg.Names("llm"), "embeddings", reg.Names("embeddings"))
}

// buildProviders instantiates all providers named in cfg using the registry.
// The primary and fallback backends of each kind are combined into a
// resilience fallback group with one circuit breaker per backend.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)
	llmGroup := resilience.NewLLMFallback(primary, providerLabel(cfg.Providers.LLM), resilience.FallbackConfig{})
	for _, entry := range cfg.Providers.FallbackLLMs {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("create fallback llm provider %q: %w", entry.Name, err)
		}
		llmGroup.AddFallback(providerLabel(entry), p)
		slog.Info("fallback provider created", "kind", "llm", "name", entry.Name, "model", entry.Model)
	}
	ps.LLM = llmGroup

	if cfg.Providers.SummaryLLM.Name != "" {
		p, err := reg.CreateLLM(cfg.Providers.SummaryLLM)
		if err != nil {
			return nil, fmt.Errorf("create summary llm provider %q: %w", cfg.Providers.SummaryLLM.Name, err)
		}
		ps.SummaryLLM = resilience.NewLLMFallback(p, providerLabel(cfg.Providers.SummaryLLM), resilience.FallbackConfig{})
		slog.Info("provider created", "kind", "summary_llm", "name", cfg.Providers.SummaryLLM.Name)
	}

	emb, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("create embeddings provider %q: %w", cfg.Providers.Embeddings.Name, err)
	}
	slog.Info("provider created", "kind", "embeddings", "name", cfg.Providers.Embeddings.Name, "model", cfg.Providers.Embeddings.Model)
	embGroup := resilience.NewEmbeddingsFallback(emb, providerLabel(cfg.Providers.Embeddings), resilience.FallbackConfig{})
	for _, entry := range cfg.Providers.FallbackEmbeddings {
		p, err := reg.CreateEmbeddings(entry)
		if err != nil {
			return nil, fmt.Errorf("create fallback embeddings provider %q: %w", entry.Name, err)
		}
		if err := embGroup.AddFallback(providerLabel(entry), p); err != nil {
			return nil, err
		}
		slog.Info("fallback provider created", "kind", "embeddings", "name", entry.Name, "model", entry.Model)
	}
	ps.Embeddings = embGroup

	return ps, nil
}

// withPrefixes applies the query_prefix and document_prefix options.
func withPrefixes(entry config.ProviderEntry, p embeddings.Provider) embeddings.Provider {
	return embeddings.WithPrefixes(p, optString(entry.Options, "query_prefix"), optString(entry.Options, "document_prefix"))
}

// providerLabel names a backend in breaker logs and metrics.
func providerLabel(e config.ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + "/" + e.Model
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option. YAML decodes whole numbers as int.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// optDuration extracts a duration option written as a Go duration string
// ("30s") or as whole seconds.
func optDuration(opts map[string]any, key string) time.Duration {
	switch v := opts[key].(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("ignoring invalid duration option", "key", key, "value", v, "err", err)
			return 0
		}
		return d
	case int:
		return time.Duration(v) * time.Second
	default:
		return 0
	}
}
