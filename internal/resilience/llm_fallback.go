package resilience

import (
	"context"

	"github.com/MrWong99/lorekeeper/pkg/provider/llm"
)

// LLMFallback is an [llm.Provider] that fails over across chat backends, each
// behind its own circuit breaker.
//
// Any backend may end up answering, so token accounting is conservative:
// CountTokens reports the largest estimate and Capabilities the smallest
// limits of all backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback returns an [LLMFallback] that prefers primary.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	if cfg.Kind == "" {
		cfg.Kind = "llm"
	}
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a backend after the ones already registered.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// States reports the breaker state of every backend by name.
func (f *LLMFallback) States() map[string]State {
	return f.group.States()
}

// Complete sends req unchanged to each healthy backend in turn until one
// answers.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// CountTokens returns the highest count any backend reports.
func (f *LLMFallback) CountTokens(messages []llm.Message) (int, error) {
	highest := 0
	for _, p := range f.group.Members() {
		n, err := p.CountTokens(messages)
		if err != nil {
			return 0, err
		}
		highest = max(highest, n)
	}
	return highest, nil
}

// Capabilities returns the tightest context window and output limit across
// backends. Zero limits are treated as unknown and skipped.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	var caps llm.ModelCapabilities
	for _, p := range f.group.Members() {
		c := p.Capabilities()
		caps.ContextWindow = tighter(caps.ContextWindow, c.ContextWindow)
		caps.MaxOutputTokens = tighter(caps.MaxOutputTokens, c.MaxOutputTokens)
	}
	return caps
}

func tighter(cur, next int) int {
	switch {
	case next <= 0:
		return cur
	case cur <= 0:
		return next
	}
	return min(cur, next)
}
