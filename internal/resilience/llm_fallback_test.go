package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/lorekeeper/pkg/provider/llm"
	llmmock "github.com/MrWong99/lorekeeper/pkg/provider/llm/mock"
)

func newLLMFallback(primary llm.Provider, fallbacks ...llm.Provider) *LLMFallback {
	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	for i, p := range fallbacks {
		fb.AddFallback(string(rune('a'+i)), p)
	}
	return fb
}

func TestLLMFallback_Complete(t *testing.T) {
	t.Parallel()
	ask := llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: "Who is Strider?"}},
		Temperature: 0.3,
	}
	down := errors.New("backend down")

	tests := []struct {
		name      string
		primary   *llmmock.Provider
		secondary *llmmock.Provider
		want      string
		wantErr   error
	}{
		{
			name:      "primary answers",
			primary:   llmmock.Reply("Aragorn, heir of Isildur."),
			secondary: llmmock.Reply("from the fallback"),
			want:      "Aragorn, heir of Isildur.",
		},
		{
			name:      "fallback answers the same request",
			primary:   &llmmock.Provider{CompleteErr: down},
			secondary: llmmock.Reply("A ranger of the North."),
			want:      "A ranger of the North.",
		},
		{
			name:      "all fail",
			primary:   &llmmock.Provider{CompleteErr: down},
			secondary: &llmmock.Provider{CompleteErr: down},
			wantErr:   ErrAllFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp, err := newLLMFallback(tt.primary, tt.secondary).Complete(context.Background(), ask)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Complete: %v", err)
			}
			if resp.Content != tt.want {
				t.Errorf("Content = %q, want %q", resp.Content, tt.want)
			}
			for _, p := range []*llmmock.Provider{tt.primary, tt.secondary} {
				for _, c := range p.Calls() {
					if c.Req.Messages[0].Content != "Who is Strider?" || c.Req.Temperature != 0.3 {
						t.Errorf("backend received %+v, want the original request", c.Req)
					}
				}
			}
			if tt.primary.CompleteErr == nil && len(tt.secondary.Calls()) != 0 {
				t.Error("fallback called although the primary answered")
			}
		})
	}
}

func TestLLMFallback_CountTokensTakesHighest(t *testing.T) {
	t.Parallel()
	msgs := []llm.Message{{Role: "user", Content: "test"}}

	n, err := newLLMFallback(&llmmock.Provider{TokenCount: 42}, &llmmock.Provider{TokenCount: 57}, &llmmock.Provider{TokenCount: 7}).CountTokens(msgs)
	if err != nil || n != 57 {
		t.Fatalf("CountTokens = %d, %v; want 57", n, err)
	}

	broken := errors.New("no tokenizer")
	if _, err := newLLMFallback(&llmmock.Provider{TokenCount: 1}, &llmmock.Provider{CountTokensErr: broken}).CountTokens(msgs); !errors.Is(err, broken) {
		t.Fatalf("err = %v, want %v", err, broken)
	}
}

func TestLLMFallback_CapabilitiesTakeTightest(t *testing.T) {
	t.Parallel()
	fb := newLLMFallback(
		&llmmock.Provider{ModelCapabilities: llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 4_096}},
		&llmmock.Provider{ModelCapabilities: llm.ModelCapabilities{ContextWindow: 32_000, MaxOutputTokens: 8_192}},
		&llmmock.Provider{},
	)
	want := llm.ModelCapabilities{ContextWindow: 32_000, MaxOutputTokens: 4_096}
	if got := fb.Capabilities(); got != want {
		t.Fatalf("Capabilities() = %+v, want %+v", got, want)
	}
}
