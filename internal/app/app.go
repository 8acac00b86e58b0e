// Package app wires all Lorekeeper subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, the serving surfaces (HTTP, MCP, CLI) call into it, and
// Shutdown tears everything down in order.
//
// For testing, inject implementations via functional options (WithStore,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/lorekeeper/internal/cache"
	"github.com/MrWong99/lorekeeper/internal/chat"
	"github.com/MrWong99/lorekeeper/internal/config"
	"github.com/MrWong99/lorekeeper/internal/enhance"
	"github.com/MrWong99/lorekeeper/internal/entity"
	"github.com/MrWong99/lorekeeper/internal/feedback"
	"github.com/MrWong99/lorekeeper/internal/health"
	"github.com/MrWong99/lorekeeper/internal/ingest"
	"github.com/MrWong99/lorekeeper/internal/observe"
	"github.com/MrWong99/lorekeeper/internal/prompt"
	"github.com/MrWong99/lorekeeper/internal/resilience"
	"github.com/MrWong99/lorekeeper/internal/resolve"
	"github.com/MrWong99/lorekeeper/internal/resolve/phonetic"
	"github.com/MrWong99/lorekeeper/internal/search"
	"github.com/MrWong99/lorekeeper/internal/session"
	"github.com/MrWong99/lorekeeper/internal/tokens"
	"github.com/MrWong99/lorekeeper/pkg/lore"
	"github.com/MrWong99/lorekeeper/pkg/lore/memstore"
	"github.com/MrWong99/lorekeeper/pkg/lore/postgres"
	"github.com/MrWong99/lorekeeper/pkg/provider/embeddings"
	"github.com/MrWong99/lorekeeper/pkg/provider/llm"
)

// ingestRetryDelay is the initial back-off between embedding batch retries.
const ingestRetryDelay = 500 * time.Millisecond

// Providers holds the model backends. Populated by main.go via the config
// registry, usually wrapped in resilience fallbacks.
type Providers struct {
	// LLM rewrites queries and generates answers. Required.
	LLM llm.Provider

	// SummaryLLM folds old turns into the session summary. Nil selects LLM.
	SummaryLLM llm.Provider

	// Embeddings embeds queries and content chunks. Required.
	Embeddings embeddings.Provider
}

// breakerReporter is implemented by the resilience fallback wrappers.
type breakerReporter interface {
	States() map[string]resilience.State
}

// App owns all subsystem lifetimes.
type App struct {
	providers *Providers
	metrics   *observe.Metrics
	logLevel  *slog.LevelVar

	mu  sync.Mutex
	cfg *config.Config

	// Subsystems, initialised in New and torn down in Shutdown.
	store    lore.Store
	counter  *tokens.Counter
	resolver *resolve.Resolver
	semantic *search.Semantic
	fulltext *search.FullText
	memory   *session.Memory
	cache    *cache.Cache
	indexer  *ingest.Indexer
	importer *entity.Importer
	health   *health.Handler
	feedback *feedback.FileStore

	// chat is rebuilt when retrieval tunables are reloaded.
	chat atomic.Pointer[chat.Service]

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a storage backend instead of creating one from config.
// The App does not close an injected store.
func WithStore(s lore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the App the level variable of the process logger so
// that config reloads can change verbosity.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil || providers.Embeddings == nil {
		return nil, fmt.Errorf("app: llm and embeddings providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		metrics:   observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Storage ───────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Retrieval signals ─────────────────────────────────────────────
	if err := a.initRetrieval(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init retrieval: %w", err)
	}

	// ── 3. Conversation memory ───────────────────────────────────────────
	summaryLLM := providers.SummaryLLM
	if summaryLLM == nil {
		summaryLLM = providers.LLM
	}
	a.memory = session.NewMemory(a.store, session.MemoryConfig{
		Budget:     cfg.Memory.Budget,
		Target:     cfg.Memory.Target,
		Counter:    a.counter,
		Summariser: session.NewLLMSummariser(summaryLLM, cfg.Memory.SummaryTimeout),
		Metrics:    a.metrics,
	})

	// ── 4. Response cache ────────────────────────────────────────────────
	if cfg.Cache.Enabled {
		a.cache = cache.New(a.store, cache.WithTTL(cfg.Cache.TTL), cache.WithMetrics(a.metrics))
	}

	// ── 5. Ingestion ─────────────────────────────────────────────────────
	a.indexer = ingest.NewIndexer(a.store, providers.Embeddings,
		ingest.WithChunking(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap, cfg.Ingest.SplitThreshold),
		ingest.WithBatchSize(cfg.Ingest.BatchSize),
		ingest.WithRetry(cfg.Ingest.RetryAttempts, ingestRetryDelay),
		ingest.WithMetrics(a.metrics),
	)
	a.importer = entity.NewImporter(a.store, a.store, a.indexer)

	if cfg.Storage.FeedbackPath != "" {
		a.feedback = feedback.NewFileStore(cfg.Storage.FeedbackPath)
	}

	// ── 6. Chat pipeline ─────────────────────────────────────────────────
	a.chat.Store(a.buildChat(cfg.Retrieval))

	// ── 7. Health ────────────────────────────────────────────────────────
	a.initHealth()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore connects to PostgreSQL, or falls back to the in-memory store
// when no DSN is configured.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	if dsn := a.cfg.Storage.PostgresDSN; dsn != "" {
		store, err := postgres.NewStore(ctx, dsn, a.cfg.Storage.EmbeddingDimensions,
			postgres.WithMaxConns(a.cfg.Storage.MaxConns))
		if err != nil {
			return err
		}
		if dims := a.providers.Embeddings.Dimensions(); dims > 0 && dims != a.cfg.Storage.EmbeddingDimensions {
			store.Close()
			return fmt.Errorf("embedding provider produces %d dimensions, storage is configured for %d",
				dims, a.cfg.Storage.EmbeddingDimensions)
		}
		a.store = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
		slog.Info("connected to postgres store", "dimensions", a.cfg.Storage.EmbeddingDimensions)
		return nil
	}

	store, err := memstore.New(memstore.WithCacheSize(a.cfg.Cache.LRUSize))
	if err != nil {
		return err
	}
	slog.Warn("storage.postgres_dsn is empty, using the in-memory store; data is lost on exit")
	a.store = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// initRetrieval builds the trigram resolver and both search services.
func (a *App) initRetrieval() error {
	a.counter = tokens.New(a.cfg.Retrieval.TokenizerModel)

	rc := a.cfg.Resolver
	opts := []resolve.Option{
		resolve.WithNGramRange(rc.MinN, rc.MaxN),
		resolve.WithThreshold(rc.Threshold),
		resolve.WithPerNGram(rc.PerNGram),
		resolve.WithCap(rc.Cap),
		resolve.WithMinAliasLength(rc.MinAliasLength),
		resolve.WithStopwordFilter(rc.StopwordFilter),
	}
	if rc.Phonetic {
		opts = append(opts, resolve.WithPhonetic(phonetic.New()))
	}
	r, err := resolve.New(a.store, a.store, opts...)
	if err != nil {
		return err
	}
	a.resolver = r

	a.semantic = search.NewSemantic(a.providers.Embeddings, a.store,
		search.StoreLoaders(a.store, a.store),
		search.WithSemanticMetrics(a.metrics),
	)
	a.fulltext = search.NewFullText(a.store, a.store, search.WithFullTextMetrics(a.metrics))
	return nil
}

// buildChat assembles the enhancer, context assembler and chat service for
// the given retrieval tunables.
func (a *App) buildChat(rc config.RetrievalConfig) *chat.Service {
	enh := enhance.New(a.resolver, a.semantic, a.fulltext, a.store, a.providers.LLM, enhance.Config{
		SimilarityThreshold: rc.SimilarityThreshold,
		MaxContextChunks:    rc.MaxContextChunks,
		FullTextLimit:       rc.FullTextLimit,
		MaxLogs:             rc.MaxLogs,
		MaxEntities:         rc.MaxEntities,
		Weights: enhance.Weights{
			Semantic: rc.Weights.Semantic,
			FullText: rc.Weights.FullText,
			Trigram:  rc.Weights.Trigram,
		},
		RewriteTemperature: rc.RewriteTemperature,
		RewriteTimeout:     rc.RewriteTimeout,
	})
	enh.SetMetrics(a.metrics)

	asm := prompt.NewAssembler(a.store,
		prompt.WithTokenLimit(rc.TokenLimit),
		prompt.WithCounter(a.counter),
		prompt.WithMetrics(a.metrics),
	)

	temperature := rc.AnswerTemperature
	if temperature == 0 {
		// chat.Config treats zero as "use the default".
		temperature = -1
	}
	opts := []chat.Option{chat.WithMetrics(a.metrics)}
	if a.cache != nil {
		opts = append(opts, chat.WithCache(a.cache))
	}
	return chat.New(a.store, a.memory, enh, asm, a.providers.LLM, chat.Config{
		SystemPrompt:      rc.SystemPrompt,
		AnswerTemperature: temperature,
		AnswerMaxTokens:   rc.AnswerMaxTokens,
		AnswerTimeout:     rc.AnswerTimeout,
	}, opts...)
}

// initHealth registers readiness checks for the store and every provider
// kind that reports breaker states.
func (a *App) initHealth() {
	var checks []health.Checker
	if p, ok := a.store.(health.Pinger); ok {
		checks = append(checks, health.Ping("store", p))
	}
	if br, ok := a.providers.LLM.(breakerReporter); ok {
		checks = append(checks, health.Breakers("llm", br.States))
	}
	if br, ok := a.providers.Embeddings.(breakerReporter); ok {
		checks = append(checks, health.Breakers("embeddings", br.States))
	}
	a.health = health.New(checks...)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Store returns the storage backend.
func (a *App) Store() lore.Store { return a.store }

// Resolver returns the trigram entity resolver.
func (a *App) Resolver() *resolve.Resolver { return a.resolver }

// Importer returns the campaign importer.
func (a *App) Importer() *entity.Importer { return a.importer }

// Feedback returns the answer rating store, nil when
// storage.feedback_path is unset.
func (a *App) Feedback() *feedback.FileStore { return a.feedback }

// Health returns the health handler.
func (a *App) Health() *health.Handler { return a.health }

// Metrics returns the metrics sink.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// CreateSession starts a new chat session.
func (a *App) CreateSession(ctx context.Context, userID, title string) (lore.ChatSession, error) {
	return a.chat.Load().CreateSession(ctx, userID, title)
}

// Messages lists the turns of a session.
func (a *App) Messages(ctx context.Context, sessionID string, limit int) ([]lore.ChatMessage, error) {
	return a.chat.Load().Messages(ctx, sessionID, limit)
}

// Ask answers a question with the current chat pipeline.
func (a *App) Ask(ctx context.Context, req chat.Request) (*chat.Response, error) {
	return a.chat.Load().Ask(ctx, req)
}

// ─── Background jobs ─────────────────────────────────────────────────────────

// StartCachePurger schedules expired-entry sweeps of the response cache. It
// is a no-op when the cache is disabled. The scheduler is stopped by
// Shutdown.
func (a *App) StartCachePurger() error {
	if a.cache == nil {
		return nil
	}
	stop, err := a.cache.StartPurger(a.Config().Cache.PurgeSchedule)
	if err != nil {
		return err
	}
	a.mu.Lock()
	// Stop the scheduler before the store it sweeps is closed.
	a.closers = append([]func() error{func() error { stop(); return nil }}, a.closers...)
	a.mu.Unlock()
	return nil
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of next: the log level and
// the retrieval tunables. Sections that need a restart are logged and
// otherwise ignored. It is meant as the [config.Watcher] callback.
func (a *App) ApplyConfig(old, next *config.Config) {
	d := config.Diff(old, next)
	if !d.Changed() {
		return
	}

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	a.mu.Lock()
	cfg := *a.cfg
	cfg.Server.LogLevel = next.Server.LogLevel
	cfg.Retrieval = next.Retrieval
	a.cfg = &cfg
	a.mu.Unlock()

	if d.RetrievalChanged {
		a.chat.Store(a.buildChat(next.Retrieval))
		slog.Info("retrieval settings reloaded",
			"similarity_threshold", next.Retrieval.SimilarityThreshold,
			"token_limit", next.Retrieval.TokenLimit,
		)
	}

	if len(d.Restart) > 0 {
		slog.Warn("config sections changed that only apply after a restart", "sections", d.Restart)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.mu.Lock()
		closers := a.closers
		a.mu.Unlock()
		slog.Info("shutting down", "closers", len(closers))

		for i, closer := range closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases what New acquired before failing.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
}
