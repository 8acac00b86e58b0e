// Package mock provides a scriptable [llm.Provider] for tests.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/lorekeeper/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// CompleteCall records one Complete invocation.
type CompleteCall struct {
	Req llm.CompletionRequest
}

// Provider answers Complete from CompleteFunc, or else from CompleteResponse
// and CompleteErr, and records every request. Configure it before use.
type Provider struct {
	// CompleteFunc lets a test answer per request, e.g. a query rewrite
	// differently from the final answer. It wins over the fixed fields.
	CompleteFunc     func(req llm.CompletionRequest) (*llm.CompletionResponse, error)
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	TokenCount     int
	CountTokensErr error

	ModelCapabilities llm.ModelCapabilities

	mu            sync.Mutex
	CompleteCalls []CompleteCall
}

// Reply returns a Provider whose every completion has content.
func Reply(content string) *Provider {
	return &Provider{CompleteResponse: &llm.CompletionResponse{Content: content}}
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Req: req})
	p.mu.Unlock()

	if p.CompleteFunc != nil {
		return p.CompleteFunc(req)
	}
	return p.CompleteResponse, p.CompleteErr
}

// CountTokens implements [llm.Provider].
func (p *Provider) CountTokens([]llm.Message) (int, error) {
	return p.TokenCount, p.CountTokensErr
}

// Capabilities implements [llm.Provider].
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return p.ModelCapabilities
}

// Calls returns a copy of the recorded Complete invocations.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.CompleteCalls)
}
