package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		apiKey   string
		model    string
		opts     []Option
		wantDims int
		wantErr  string
	}{
		{name: "default model", apiKey: "sk", wantDims: 1536},
		{name: "large native width", apiKey: "sk", model: "text-embedding-3-large", wantDims: 3072},
		{name: "large shortened", apiKey: "sk", model: "text-embedding-3-large", opts: []Option{WithDimensions(1024)}, wantDims: 1024},
		{name: "ada native width", apiKey: "sk", model: "text-embedding-ada-002", wantDims: 1536},
		{name: "unknown model", apiKey: "sk", model: "acme-embed", wantDims: 1536},
		{name: "missing key", model: "text-embedding-3-small", wantErr: "apiKey"},
		{name: "negative width", apiKey: "sk", opts: []Option{WithDimensions(-1)}, wantErr: "negative"},
		{name: "ada cannot shorten", apiKey: "sk", model: "text-embedding-ada-002", opts: []Option{WithDimensions(512)}, wantErr: "cannot shorten"},
		{name: "wider than native", apiKey: "sk", model: "text-embedding-3-small", opts: []Option{WithDimensions(3072)}, wantErr: "exceed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := append([]Option{WithOrganization("org-1"), WithMaxRetries(1)}, tt.opts...)
			p, err := New(tt.apiKey, tt.model, opts...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want it to mention %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got := p.Dimensions(); got != tt.wantDims {
				t.Errorf("Dimensions() = %d, want %d", got, tt.wantDims)
			}
			if tt.model == "" && p.ModelID() != DefaultModel {
				t.Errorf("ModelID() = %q, want %q", p.ModelID(), DefaultModel)
			}
		})
	}
}

// embeddingsServer serves a fixed /embeddings response body.
func embeddingsServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbed(t *testing.T) {
	t.Parallel()
	srv := embeddingsServer(t, `{"object":"list","model":"text-embedding-3-small",
		"data":[{"object":"embedding","index":0,"embedding":[0.25,-0.5,1]}]}`)

	p, err := New("sk", "", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.Embed(context.Background(), "query: the Amber Temple")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	want := []float32{0.25, -0.5, 1}
	if len(got) != len(want) {
		t.Fatalf("vector = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("vector[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEmbedBatch_RejectsBadResponses(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{name: "too few vectors", body: `{"object":"list","data":[{"index":0,"embedding":[1]}]}`},
		{name: "duplicate index", body: `{"object":"list","data":[{"index":0,"embedding":[1]},{"index":0,"embedding":[2]}]}`},
		{name: "index out of range", body: `{"object":"list","data":[{"index":0,"embedding":[1]},{"index":5,"embedding":[2]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := embeddingsServer(t, tt.body)
			p, err := New("sk", "", WithBaseURL(srv.URL))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if _, err := p.EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	t.Parallel()
	p, err := New("sk", "", WithBaseURL("http://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, err := p.EmbedBatch(context.Background(), nil); got != nil || err != nil {
		t.Errorf("EmbedBatch(nil) = %v, %v; want nil, nil", got, err)
	}
}

// TestEmbedBatch_SplitsAndForwardsDimensions runs EmbedBatch against a fake
// endpoint and checks batching, ordering and the dimension override.
func TestEmbedBatch_SplitsAndForwardsDimensions(t *testing.T) {
	var (
		mu    sync.Mutex
		sizes []int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input      []string `json:"input"`
			Dimensions int      `json:"dimensions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.Dimensions != 2 {
			t.Errorf("dimensions = %d, want 2", req.Dimensions)
		}
		mu.Lock()
		sizes = append(sizes, len(req.Input))
		mu.Unlock()

		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			// Reverse order to exercise index-based placement.
			j := len(req.Input) - 1 - i
			data[i] = map[string]any{"object": "embedding", "index": j, "embedding": []float64{float64(j), 1}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "text-embedding-3-small",
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	p, err := New("sk-test", "text-embedding-3-small", WithBaseURL(srv.URL+"/"), WithDimensions(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Dimensions() != 2 {
		t.Errorf("Dimensions() = %d, want 2", p.Dimensions())
	}

	texts := make([]string, maxInputs+3)
	for i := range texts {
		texts[i] = "chunk"
	}
	got, err := p.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(got) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(got), len(texts))
	}
	if got[0][0] != 0 || got[maxInputs][0] != 0 || got[maxInputs+2][0] != 2 {
		t.Errorf("vectors misplaced: first=%v split=%v last=%v", got[0], got[maxInputs], got[maxInputs+2])
	}

	mu.Lock()
	defer mu.Unlock()
	if len(sizes) != 2 || sizes[0] != maxInputs || sizes[1] != 3 {
		t.Errorf("request sizes = %v, want [%d 3]", sizes, maxInputs)
	}
}
