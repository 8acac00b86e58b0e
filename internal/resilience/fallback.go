package resilience

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/lorekeeper/internal/observe"
)

// ErrAllFailed is returned once every backend of a [FallbackGroup] has failed
// or been skipped for an open circuit.
var ErrAllFailed = errors.New("all providers failed")

// Provider request statuses recorded by a [FallbackGroup].
const (
	statusOK      = "ok"
	statusError   = "error"
	statusSkipped = "skipped"
)

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is copied for every backend, named after it.
	CircuitBreaker CircuitBreakerConfig

	// Kind is "llm" or "embeddings". It labels metrics, spans and logs.
	Kind string

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds backends of one kind in failover order, the configured
// primary first. Backends are added during construction only; after that the
// group is safe for concurrent use.
type FallbackGroup[T any] struct {
	members []member[T]
	cfg     FallbackConfig
}

// NewFallbackGroup starts a group with primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a backend behind its own circuit breaker.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cb := fg.cfg.CircuitBreaker
	cb.Name = name
	fg.members = append(fg.members, member[T]{name: name, value: fallback, breaker: NewCircuitBreaker(cb)})
}

// Primary returns the first backend.
func (fg *FallbackGroup[T]) Primary() T {
	return fg.members[0].value
}

// Members returns every backend in failover order.
func (fg *FallbackGroup[T]) Members() []T {
	out := make([]T, len(fg.members))
	for i, m := range fg.members {
		out[i] = m.value
	}
	return out
}

// States maps each backend name to its breaker state.
func (fg *FallbackGroup[T]) States() map[string]State {
	out := make(map[string]State, len(fg.members))
	for _, m := range fg.members {
		out[m.name] = m.breaker.State()
	}
	return out
}

// Execute is [ExecuteWithResult] for calls without a result.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(context.Context, T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(ctx context.Context, v T) (struct{}, error) {
		return struct{}{}, fn(ctx, v)
	})
	return err
}

// ExecuteWithResult calls fn on each backend in order and returns the first
// success. Backends with an open circuit are skipped without a call. Each
// attempt runs in its own span. Once ctx is done no further backend is tried
// and ctx's error is returned; otherwise exhausting the group returns
// [ErrAllFailed] wrapping the last backend's error.
func ExecuteWithResult[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(context.Context, T) (R, error)) (R, error) {
	var zero R
	var lastErr error
	log := observe.Logger(ctx)
	for i := range fg.members {
		m := &fg.members[i]
		res, err := attempt(ctx, fg.cfg.Kind, m, fn)
		switch {
		case err == nil:
			fg.cfg.Metrics.RecordProviderRequest(ctx, m.name, fg.cfg.Kind, statusOK)
			if i > 0 {
				log.Info("fallback provider answered", "provider", m.name, "kind", fg.cfg.Kind)
			}
			return res, nil
		case ctx.Err() != nil:
			return zero, ctx.Err()
		case errors.Is(err, ErrCircuitOpen):
			fg.cfg.Metrics.RecordProviderRequest(ctx, m.name, fg.cfg.Kind, statusSkipped)
			log.Debug("provider circuit open, skipping", "provider", m.name, "kind", fg.cfg.Kind)
		default:
			fg.cfg.Metrics.RecordProviderRequest(ctx, m.name, fg.cfg.Kind, statusError)
			fg.cfg.Metrics.RecordProviderError(ctx, m.name, fg.cfg.Kind)
			log.Warn("provider failed", "provider", m.name, "kind", fg.cfg.Kind, "err", err,
				"remaining", len(fg.members)-i-1)
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

func attempt[T, R any](ctx context.Context, kind string, m *member[T], fn func(context.Context, T) (R, error)) (R, error) {
	ctx, span := observe.StartSpan(ctx, "provider."+kind)
	defer span.End()
	span.SetAttributes(attribute.String("lorekeeper.provider", m.name))

	var res R
	err := m.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		res, err = fn(ctx, m.value)
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}
