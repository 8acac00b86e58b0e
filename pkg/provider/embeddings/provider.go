// Package embeddings defines the Provider interface for vector embedding
// backends.
//
// Lorekeeper embeds every content chunk when a campaign is imported and every
// search query at retrieval time. Both sides must come from the same model,
// otherwise cosine similarity between them is meaningless.
package embeddings

import "context"

// Provider maps text to dense vectors.
//
// By convention Embed is used for search queries and EmbedBatch for indexed
// documents; [WithPrefixes] relies on this to add model-specific instruction
// prefixes. Text is otherwise passed through verbatim.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Embed returns the vector for one text. Its length is Dimensions().
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in input order. On error no
	// partial result is returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the fixed vector length of the model. It must match the
	// dimension of the pgvector column chunks are stored in.
	Dimensions() int

	// ModelID names the embedding model, e.g. "text-embedding-3-small".
	ModelID() string
}
