// Package ollama embeds lore chunks and player questions with a model served
// by a local Ollama instance (nomic-embed-text, mxbai-embed-large, all-minilm
// and friends) through the official api client.
//
// Campaign imports can produce thousands of chunks, so [Provider.EmbedBatch]
// splits its input into requests of at most [DefaultBatchSize] texts and keeps
// the model loaded between them.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/MrWong99/lorekeeper/pkg/provider/embeddings"
)

const (
	// DefaultBaseURL is where a stock Ollama install listens.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultBatchSize caps the number of texts sent in one /api/embed call.
	DefaultBatchSize = 64
)

var _ embeddings.Provider = (*Provider)(nil)

// errEmptyResponse is returned when Ollama answers without any vectors.
var errEmptyResponse = errors.New("response carried no embeddings")

// Provider implements [embeddings.Provider] on top of Ollama.
//
// The vector width comes from WithDimensions, else from a table of known
// models, else from a single detection request issued on the first Dimensions
// call. Provider is safe for concurrent use.
type Provider struct {
	client    *api.Client
	model     string
	batchSize int
	keepAlive *api.Duration

	detect sync.Once
	dims   int
}

// Option customises a [Provider].
type Option func(*options)

type options struct {
	timeout   time.Duration
	dims      int
	batchSize int
	keepAlive time.Duration
}

// WithTimeout bounds each HTTP request. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithDimensions fixes the vector width and disables probing.
func WithDimensions(n int) Option {
	return func(o *options) { o.dims = n }
}

// WithBatchSize overrides [DefaultBatchSize]. Values below one are ignored.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithKeepAlive asks Ollama to keep the model in memory for d after each
// request. Zero leaves the server default in place.
func WithKeepAlive(d time.Duration) Option {
	return func(o *options) { o.keepAlive = d }
}

// New returns a Provider for model on the Ollama server at baseURL. An empty
// baseURL selects [DefaultBaseURL].
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("ollama embeddings: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: parse base url: %w", err)
	}

	o := options{batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Provider{
		client:    api.NewClient(base, &http.Client{Timeout: max(o.timeout, 0)}),
		model:     model,
		batchSize: o.batchSize,
		dims:      o.dims,
	}
	if p.dims == 0 {
		p.dims = knownDimensions(model)
	}
	if o.keepAlive > 0 {
		p.keepAlive = &api.Duration{Duration: o.keepAlive}
	}
	return p, nil
}

// Embed returns the vector for a single text. The text is sent as is; query
// prefixes are applied by [embeddings.WithPrefixes].
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed: %w", err)
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per text, in input order. Inputs larger than
// the batch size are sent as consecutive requests. Either every vector is
// returned or none is. An empty input returns (nil, nil) without a request.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		vecs, err := p.embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("ollama embeddings: embed batch [%d:%d]: %w", start, end, err)
		}
		out = append(out, vecs...)
	}
	if err := sameWidth(out); err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed batch: %w", err)
	}
	return out, nil
}

// Dimensions returns the vector width, probing the server once if the model
// is unknown. A failed detection yields 0.
func (p *Provider) Dimensions() int {
	p.detect.Do(func() {
		if p.dims != 0 {
			return
		}
		vecs, err := p.embed(context.Background(), []string{"dimension check"})
		if err == nil {
			p.dims = len(vecs[0])
		}
	})
	return p.dims
}

// ModelID returns the Ollama model name.
func (p *Provider) ModelID() string {
	return p.model
}

// embed issues one /api/embed request and checks that exactly one vector came
// back per input.
func (p *Provider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.Embed(ctx, &api.EmbedRequest{
		Model:     p.model,
		Input:     texts,
		KeepAlive: p.keepAlive,
	})
	if err != nil {
		return nil, err
	}
	switch {
	case len(resp.Embeddings) == 0:
		return nil, errEmptyResponse
	case len(resp.Embeddings) != len(texts):
		return nil, fmt.Errorf("sent %d texts, received %d embeddings", len(texts), len(resp.Embeddings))
	}
	return resp.Embeddings, nil
}

// sameWidth rejects a batch whose vectors disagree on length, which a
// fixed-width vector column could not store.
func sameWidth(vecs [][]float32) error {
	for i := 1; i < len(vecs); i++ {
		if len(vecs[i]) != len(vecs[0]) {
			return fmt.Errorf("vector %d has %d dimensions, vector 0 has %d", i, len(vecs[i]), len(vecs[0]))
		}
	}
	return nil
}

// knownDimensions maps popular Ollama embedding models to their width. Tags
// such as ":latest" are ignored.
func knownDimensions(model string) int {
	name, _, _ := strings.Cut(strings.ToLower(model), ":")
	switch name {
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large", "bge-large", "snowflake-arctic-embed":
		return 1024
	case "all-minilm":
		return 384
	}
	return 0
}
