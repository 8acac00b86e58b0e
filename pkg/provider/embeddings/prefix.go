package embeddings

import "context"

// WithPrefixes returns a Provider that prepends query to every text passed to
// Embed and document to every text passed to EmbedBatch. Instruction-tuned
// models such as nomic-embed-text ("search_query: ", "search_document: ")
// and e5 ("query: ", "passage: ") need this to rank well. When both
// prefixes are empty p is returned unchanged.
func WithPrefixes(p Provider, query, document string) Provider {
	if query == "" && document == "" {
		return p
	}
	return &prefixed{Provider: p, query: query, document: document}
}

type prefixed struct {
	Provider
	query    string
	document string
}

func (p *prefixed) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.Provider.Embed(ctx, p.query+text)
}

func (p *prefixed) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if p.document == "" {
		return p.Provider.EmbedBatch(ctx, texts)
	}
	in := make([]string, len(texts))
	for i, t := range texts {
		in[i] = p.document + t
	}
	return p.Provider.EmbedBatch(ctx, in)
}
