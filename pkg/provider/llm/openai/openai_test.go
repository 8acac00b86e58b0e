package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/lorekeeper/internal/tokens"
	"github.com/MrWong99/lorekeeper/pkg/provider/llm"
)

// chatServer answers /chat/completions with body and hands the decoded
// request to inspect.
func chatServer(t *testing.T, status int, body string, inspect func(map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %q, want .../chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		raw, _ := io.ReadAll(r.Body)
		var req map[string]any
		if err := json.Unmarshal(raw, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if inspect != nil {
			inspect(req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const answerBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "message": {"role": "assistant", "content": "Strahd rules Barovia from Castle Ravenloft."},
    "finish_reason": "stop"
  }],
  "usage": {"prompt_tokens": 120, "completion_tokens": 9, "total_tokens": 129}
}`

func TestComplete(t *testing.T) {
	t.Parallel()
	reqs := make(chan map[string]any, 1)
	srv := chatServer(t, http.StatusOK, answerBody, func(req map[string]any) { reqs <- req })

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "Answer from the lore.",
		Messages:     []llm.Message{{Role: "user", Content: "Who rules Barovia?", Name: "mira"}},
		MaxTokens:    300,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Strahd rules Barovia from Castle Ravenloft." {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage != (llm.Usage{PromptTokens: 120, CompletionTokens: 9, TotalTokens: 129}) {
		t.Errorf("Usage = %+v", resp.Usage)
	}

	sent := <-reqs
	if sent["model"] != "gpt-4o-mini" {
		t.Errorf("model sent = %v", sent["model"])
	}
	if sent["temperature"] != float64(0) {
		t.Errorf("temperature sent = %v, want explicit 0", sent["temperature"])
	}
	if sent["max_completion_tokens"] != float64(300) {
		t.Errorf("max_completion_tokens sent = %v, want 300", sent["max_completion_tokens"])
	}
	msgs, _ := sent["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages sent = %v, want system and user", sent["messages"])
	}
	user, _ := msgs[1].(map[string]any)
	if user["role"] != "user" || user["name"] != "mira" {
		t.Errorf("user message = %v, want role user named mira", user)
	}
}

func TestComplete_Failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":{"message":"slow down","type":"rate_limit"}}`},
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":{"message":"boom"}}`},
		{name: "no choices", status: http.StatusOK, body: `{"id":"x","object":"chat.completion","model":"gpt-4o","choices":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls atomic.Int32
			srv := chatServer(t, tt.status, tt.body, func(map[string]any) { calls.Add(1) })

			p, err := New("sk-test", "gpt-4o", WithBaseURL(srv.URL))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			_, err = p.Complete(context.Background(), llm.CompletionRequest{
				Messages: []llm.Message{{Role: "user", Content: "hi"}},
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if n := calls.Load(); n != 1 {
				t.Errorf("server saw %d requests, want 1 (no SDK retries)", n)
			}
		})
	}
}

func TestComplete_UnknownRole(t *testing.T) {
	t.Parallel()
	p, err := New("sk-test", "gpt-4o", WithBaseURL("http://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}, {Role: "narrator", Content: "x"}},
	})
	if err == nil || !strings.Contains(err.Error(), "message 1") {
		t.Fatalf("err = %v, want it to name message 1", err)
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		role  string
		check func(t *testing.T, m llm.Message)
	}{
		{"system", func(t *testing.T, m llm.Message) {
			if got, _ := message(m); got.OfSystem == nil {
				t.Error("OfSystem not set")
			}
		}},
		{"user", func(t *testing.T, m llm.Message) {
			got, _ := message(m)
			if got.OfUser == nil || got.OfUser.Name.Value != "mira" {
				t.Errorf("OfUser = %+v, want named user", got.OfUser)
			}
		}},
		{"assistant", func(t *testing.T, m llm.Message) {
			got, _ := message(m)
			if got.OfAssistant == nil || got.OfAssistant.Content.OfString.Value != "text" {
				t.Errorf("OfAssistant = %+v", got.OfAssistant)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			t.Parallel()
			tt.check(t, llm.Message{Role: tt.role, Content: "text", Name: "mira"})
		})
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("sk-test", "gpt-4o", WithOrganization("org-1"), WithMaxRetries(-3)); err != nil {
		t.Errorf("New with options: %v", err)
	}
}

func TestCountTokensAndCapabilities(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gpt-4o", counter: tokens.Heuristic()}
	n, err := p.CountTokens([]llm.Message{{Role: "user", Content: "Where is Barovia"}})
	if err != nil {
		t.Fatalf("CountTokens: %v", err)
	}
	if n != 4+perMessageTokens {
		t.Errorf("CountTokens = %d, want %d", n, 4+perMessageTokens)
	}
	if got := p.Capabilities(); got != llm.LookupCapabilities("gpt-4o") {
		t.Errorf("Capabilities() = %+v", got)
	}
}
