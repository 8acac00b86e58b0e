// Package mock provides a scriptable [embeddings.Provider] for tests.
//
//	p := &mock.Provider{DimensionsValue: 3, EmbedFunc: func(text string) []float32 {
//	    return []float32{float32(len(text)), 0, 1}
//	}}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/lorekeeper/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// EmbedCall records one Embed invocation.
type EmbedCall struct {
	Text string
}

// EmbedBatchCall records one EmbedBatch invocation. Texts is a copy.
type EmbedBatchCall struct {
	Texts []string
}

// Provider returns canned vectors and records what it was asked to embed.
// Exported fields may be set before use; the call logs are guarded by an
// internal mutex and should be read once the code under test is done.
type Provider struct {
	// EmbedFunc, when set, produces the vector for every text in both Embed
	// and EmbedBatch.
	EmbedFunc func(text string) []float32

	// EmbedResult is returned by Embed when EmbedFunc is nil.
	EmbedResult []float32
	EmbedErr    error

	// EmbedBatchResult is returned by EmbedBatch when EmbedFunc is nil. When
	// it is nil too, EmbedBatch returns one nil vector per text.
	EmbedBatchResult [][]float32
	EmbedBatchErr    error

	DimensionsValue int
	ModelIDValue    string

	mu              sync.Mutex
	EmbedCalls      []EmbedCall
	EmbedBatchCalls []EmbedBatchCall
}

// Embed implements [embeddings.Provider].
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Text: text})
	p.mu.Unlock()

	switch {
	case p.EmbedErr != nil:
		return nil, p.EmbedErr
	case p.EmbedFunc != nil:
		return p.EmbedFunc(text), nil
	}
	return p.EmbedResult, nil
}

// EmbedBatch implements [embeddings.Provider].
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, EmbedBatchCall{Texts: slices.Clone(texts)})
	p.mu.Unlock()

	switch {
	case p.EmbedBatchErr != nil:
		return nil, p.EmbedBatchErr
	case p.EmbedFunc != nil:
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = p.EmbedFunc(text)
		}
		return out, nil
	case p.EmbedBatchResult != nil:
		return p.EmbedBatchResult, nil
	}
	return make([][]float32, len(texts)), nil
}

// Dimensions implements [embeddings.Provider].
func (p *Provider) Dimensions() int { return p.DimensionsValue }

// ModelID implements [embeddings.Provider].
func (p *Provider) ModelID() string { return p.ModelIDValue }

// BatchTexts returns every text passed to EmbedBatch so far, flattened in
// call order.
func (p *Provider) BatchTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, c := range p.EmbedBatchCalls {
		out = append(out, c.Texts...)
	}
	return out
}
