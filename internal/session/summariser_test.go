package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/lorekeeper/pkg/lore"
	"github.com/MrWong99/lorekeeper/pkg/provider/llm"
	llmmock "github.com/MrWong99/lorekeeper/pkg/provider/llm/mock"
)

func TestLLMSummariser_Summarise(t *testing.T) {
	t.Parallel()

	turns := []lore.ChatMessage{
		{Message: "Who is Elrond?", Response: "The lord of Rivendell."},
		{Message: "And his daughter?", Response: "Arwen."},
	}

	t.Run("no turns keeps existing summary without a call", func(t *testing.T) {
		t.Parallel()
		p := &llmmock.Provider{}
		got, err := NewLLMSummariser(p, 0).Summarise(context.Background(), "old", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "old" {
			t.Errorf("got %q, want old", got)
		}
		if len(p.CompleteCalls) != 0 {
			t.Errorf("expected no LLM calls, got %d", len(p.CompleteCalls))
		}
	})

	t.Run("merges turns into existing summary", func(t *testing.T) {
		t.Parallel()
		p := &llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{Content: "  Elrond rules Rivendell; Arwen is his daughter.\n"},
		}
		got, err := NewLLMSummariser(p, 0).Summarise(context.Background(), "The party met elves.", turns)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "Elrond rules Rivendell; Arwen is his daughter." {
			t.Errorf("summary not trimmed: %q", got)
		}

		if len(p.CompleteCalls) != 1 {
			t.Fatalf("expected 1 Complete call, got %d", len(p.CompleteCalls))
		}
		req := p.CompleteCalls[0].Req
		if req.SystemPrompt != summarySystemPrompt {
			t.Errorf("system prompt = %q", req.SystemPrompt)
		}
		if req.Temperature != 0.2 {
			t.Errorf("temperature = %v, want 0.2", req.Temperature)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Fatalf("messages = %+v, want one user message", req.Messages)
		}
		content := req.Messages[0].Content
		for _, want := range []string{
			"Existing summary:\nThe party met elves.",
			"User: Who is Elrond?\nAssistant: The lord of Rivendell.\nUser: And his daughter?\nAssistant: Arwen.",
			"Do NOT simply shorten",
		} {
			if !strings.Contains(content, want) {
				t.Errorf("prompt missing %q:\n%s", want, content)
			}
		}
	})

	t.Run("blank reply is an error", func(t *testing.T) {
		t.Parallel()
		p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: " \n"}}
		_, err := NewLLMSummariser(p, 0).Summarise(context.Background(), "", turns)
		if !errors.Is(err, ErrEmptySummary) {
			t.Errorf("err = %v, want ErrEmptySummary", err)
		}
	})

	t.Run("propagates LLM errors", func(t *testing.T) {
		t.Parallel()
		p := &llmmock.Provider{CompleteErr: errors.New("model overloaded")}
		_, err := NewLLMSummariser(p, 0).Summarise(context.Background(), "", turns)
		if err == nil || !strings.Contains(err.Error(), "model overloaded") {
			t.Errorf("expected wrapped error, got %v", err)
		}
	})
}
