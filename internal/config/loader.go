package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"regexp"
	"slices"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// envRef matches ${NAME} references. Bare $NAME is left alone so that DSNs and
// keys containing a dollar sign survive.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces every ${NAME} in data with the value of the environment
// variable NAME. Unset variables expand to the empty string.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		return []byte(os.Getenv(string(m[2 : len(m)-1])))
	})
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. ${NAME} references are replaced with environment
// variables before decoding. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(expandEnv(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found. Issues
// that do not prevent startup are logged as warnings.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.Embeddings.Name == "" {
		errs = append(errs, errors.New("providers.embeddings.name is required"))
	}
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("llm", cfg.Providers.SummaryLLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	for i, e := range cfg.Providers.FallbackLLMs {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.fallback_llms[%d].name is required", i))
		}
		validateProviderName("llm", e.Name)
	}
	for i, e := range cfg.Providers.FallbackEmbeddings {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.fallback_embeddings[%d].name is required", i))
		}
		validateProviderName("embeddings", e.Name)
	}

	// Storage
	if cfg.Storage.EmbeddingDimensions <= 0 {
		errs = append(errs, fmt.Errorf("storage.embedding_dimensions must be positive, got %d", cfg.Storage.EmbeddingDimensions))
	}
	if cfg.Storage.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("storage.max_conns must not be negative, got %d", cfg.Storage.MaxConns))
	}
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; using the in-memory store, content and sessions are lost on restart")
	}

	errs = append(errs, validateRetrieval(&cfg.Retrieval)...)

	// Resolver
	rc := cfg.Resolver
	if rc.MinN < 1 || rc.MaxN < rc.MinN {
		errs = append(errs, fmt.Errorf("resolver n-gram range [%d, %d] is invalid", rc.MinN, rc.MaxN))
	}
	if rc.Threshold < 0 || rc.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("resolver.threshold %.2f is out of range [0, 1)", rc.Threshold))
	}
	if rc.PerNGram <= 0 || rc.Cap <= 0 {
		errs = append(errs, errors.New("resolver.per_ngram and resolver.cap must be positive"))
	}

	// Memory
	if cfg.Memory.Budget <= 0 {
		errs = append(errs, fmt.Errorf("memory.budget must be positive, got %d", cfg.Memory.Budget))
	}
	if cfg.Memory.Target > cfg.Memory.Budget {
		slog.Warn("memory.target exceeds memory.budget; clamping to budget",
			"target", cfg.Memory.Target,
			"budget", cfg.Memory.Budget,
		)
	}

	// Cache
	if cfg.Cache.Enabled {
		if cfg.Cache.TTL <= 0 {
			errs = append(errs, fmt.Errorf("cache.ttl must be positive when the cache is enabled, got %s", cfg.Cache.TTL))
		}
		if cfg.Cache.PurgeSchedule != "" {
			if _, err := cron.ParseStandard(cfg.Cache.PurgeSchedule); err != nil {
				errs = append(errs, fmt.Errorf("cache.purge_schedule %q: %w", cfg.Cache.PurgeSchedule, err))
			}
		}
	}

	// Ingest
	ic := cfg.Ingest
	if ic.ChunkSize <= 0 || ic.ChunkOverlap < 0 || ic.ChunkOverlap >= ic.ChunkSize {
		errs = append(errs, fmt.Errorf("ingest chunking size=%d overlap=%d is invalid; need 0 <= overlap < size", ic.ChunkSize, ic.ChunkOverlap))
	}
	if ic.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest.batch_size must be positive, got %d", ic.BatchSize))
	}

	// Telemetry
	if r := cfg.Telemetry.SampleRatio; r <= 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio %.2f is out of range (0, 1]", r))
	}

	return errors.Join(errs...)
}

func validateRetrieval(rc *RetrievalConfig) []error {
	var errs []error
	if rc.SimilarityThreshold < 0 || rc.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("retrieval.similarity_threshold %.2f is out of range [0, 1]", rc.SimilarityThreshold))
	}
	if rc.TokenLimit <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.token_limit must be positive, got %d", rc.TokenLimit))
	}
	if rc.MaxContextChunks <= 0 || rc.MaxLogs <= 0 || rc.MaxEntities <= 0 {
		errs = append(errs, errors.New("retrieval.max_context_chunks, max_logs and max_entities must be positive"))
	}
	w := rc.Weights
	if w.Semantic < 0 || w.FullText < 0 || w.Trigram < 0 {
		errs = append(errs, errors.New("retrieval.weights must not be negative"))
	} else if sum := w.Semantic + w.FullText + w.Trigram; sum == 0 {
		errs = append(errs, errors.New("retrieval.weights must not all be zero"))
	} else if math.Abs(sum-1) > 1e-6 {
		slog.Warn("retrieval.weights do not sum to 1; fused scores are not normalised", "sum", sum)
	}
	if rc.AnswerTemperature < 0 || rc.AnswerTemperature > 2 {
		errs = append(errs, fmt.Errorf("retrieval.answer_temperature %.2f is out of range [0, 2]", rc.AnswerTemperature))
	}
	if rc.AnswerMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.answer_max_tokens must be positive, got %d", rc.AnswerMaxTokens))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
