// Package openai embeds lore with the OpenAI embeddings endpoint, or any
// compatible server reachable through [WithBaseURL].
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/lorekeeper/pkg/provider/embeddings"
)

// DefaultModel is used when New receives an empty model name.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

// maxInputs is the largest input array the endpoint accepts per request.
const maxInputs = 2048

var _ embeddings.Provider = (*Provider)(nil)

// Provider implements [embeddings.Provider] for OpenAI embedding models.
type Provider struct {
	client oai.Client
	model  string
	// dims is the requested output width. Zero keeps the model's native width.
	dims int
}

type settings struct {
	baseURL      string
	organization string
	timeout      time.Duration
	dims         int
	maxRetries   int
}

// Option customises a [Provider].
type Option func(*settings)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.baseURL = url }
}

// WithOrganization sends the OpenAI-Organization header.
func WithOrganization(org string) Option {
	return func(s *settings) { s.organization = org }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithDimensions shortens text-embedding-3 vectors to n so they fit a fixed
// vector column. Older models reject it at construction.
func WithDimensions(n int) Option {
	return func(s *settings) { s.dims = n }
}

// WithMaxRetries sets the SDK retry count. The default is 0 because the
// ingest indexer retries whole batches itself.
func WithMaxRetries(n int) Option {
	return func(s *settings) { s.maxRetries = max(n, 0) }
}

// New returns a Provider for model. An empty model selects [DefaultModel].
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai embeddings: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	switch {
	case s.dims < 0:
		return nil, errors.New("openai embeddings: dimensions must not be negative")
	case s.dims > 0 && !shortenable(model):
		return nil, fmt.Errorf("openai embeddings: model %q cannot shorten its vectors", model)
	case s.dims > 0 && s.dims > nativeDimensions(model):
		return nil, fmt.Errorf("openai embeddings: %d dimensions exceed the %d produced by %q", s.dims, nativeDimensions(model), model)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(s.maxRetries),
	}
	if s.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(s.baseURL))
	}
	if s.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(s.organization))
	}
	if s.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: s.timeout}))
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: model, dims: s.dims}, nil
}

// Embed returns the vector for one text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.request(ctx, oai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)}, 1)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed: %w", err)
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per text in input order, splitting inputs
// that exceed the endpoint limit into consecutive requests.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxInputs {
		batch := texts[start:min(start+maxInputs, len(texts))]
		vecs, err := p.request(ctx, oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch}, len(batch))
		if err != nil {
			return nil, fmt.Errorf("openai embeddings: embed batch at %d: %w", start, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// request sends one call and places each returned vector at its reported
// index, since the API does not promise response order.
func (p *Provider) request(ctx context.Context, input oai.EmbeddingNewParamsInputUnion, n int) ([][]float32, error) {
	params := oai.EmbeddingNewParams{Model: p.model, Input: input}
	if p.dims > 0 {
		params.Dimensions = param.NewOpt(int64(p.dims))
	}
	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != n {
		return nil, fmt.Errorf("sent %d inputs, received %d embeddings", n, len(resp.Data))
	}
	vecs := make([][]float32, n)
	for _, e := range resp.Data {
		i := int(e.Index)
		if i < 0 || i >= n || vecs[i] != nil {
			return nil, fmt.Errorf("bad embedding index %d", e.Index)
		}
		vecs[i] = toFloat32(e.Embedding)
	}
	return vecs, nil
}

// Dimensions returns the requested width, or the model's native width.
func (p *Provider) Dimensions() int {
	if p.dims > 0 {
		return p.dims
	}
	return nativeDimensions(p.model)
}

// ModelID returns the model name.
func (p *Provider) ModelID() string {
	return p.model
}

// nativeDimensions is the full vector width of a model. Unknown models are
// assumed to match text-embedding-3-small.
func nativeDimensions(model string) int {
	if strings.Contains(strings.ToLower(model), "text-embedding-3-large") {
		return 3072
	}
	return 1536
}

// shortenable reports whether the model accepts the dimensions parameter.
func shortenable(model string) bool {
	return !strings.Contains(strings.ToLower(model), "ada-002")
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
