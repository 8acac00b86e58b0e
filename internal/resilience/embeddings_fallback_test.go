package resilience

import (
	"context"
	"errors"
	"testing"

	embmock "github.com/MrWong99/lorekeeper/pkg/provider/embeddings/mock"
)

func TestEmbeddingsFallback_Failover(t *testing.T) {
	t.Parallel()
	primary := &embmock.Provider{EmbedErr: errors.New("down"), EmbedBatchErr: errors.New("down"), DimensionsValue: 3, ModelIDValue: "a"}
	secondary := &embmock.Provider{EmbedResult: []float32{1, 0, 0}, DimensionsValue: 3, ModelIDValue: "b"}

	fb := NewEmbeddingsFallback(primary, "primary", FallbackConfig{})
	if err := fb.AddFallback("secondary", secondary); err != nil {
		t.Fatalf("AddFallback: %v", err)
	}

	vec, err := fb.Embed(context.Background(), "Strider")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 1 {
		t.Fatalf("vec = %v, want the secondary's vector", vec)
	}

	batch, err := fb.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("batch len = %d, want 2", len(batch))
	}
	if len(secondary.EmbedBatchCalls) != 1 {
		t.Fatalf("secondary batch calls = %d, want 1", len(secondary.EmbedBatchCalls))
	}

	if fb.Dimensions() != 3 || fb.ModelID() != "a" {
		t.Errorf("Dimensions/ModelID = %d/%q, want the primary's", fb.Dimensions(), fb.ModelID())
	}
}

func TestEmbeddingsFallback_RejectsDimensionMismatch(t *testing.T) {
	t.Parallel()
	fb := NewEmbeddingsFallback(&embmock.Provider{DimensionsValue: 1536}, "primary", FallbackConfig{})
	if err := fb.AddFallback("small", &embmock.Provider{DimensionsValue: 768}); err == nil {
		t.Fatal("expected error for mismatched dimensions, got nil")
	}
	if len(fb.States()) != 1 {
		t.Fatalf("states = %v, want only the primary", fb.States())
	}
}
