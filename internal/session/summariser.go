// Package session keeps the conversational memory of chat sessions within a
// token budget.
//
// Recent turns are replayed verbatim. When the unfolded history would exceed
// the budget, the oldest turns are folded into an evolving per-session summary
// by a [Summariser] ([LLMSummariser] in production) and marked as folded so
// they are never summarised twice.
//
// All exported types are safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/lorekeeper/internal/observe"
	"github.com/MrWong99/lorekeeper/pkg/lore"
	"github.com/MrWong99/lorekeeper/pkg/provider/llm"
)

// summarySystemPrompt is the system prompt of every fold call.
const summarySystemPrompt = "You summarize past conversation context."

// summaryPromptTemplate is filled with the existing summary and the turns to
// merge into it.
const summaryPromptTemplate = `You are summarizing a chat log for long-term memory.
Preserve important facts, entities, and context that may be useful later.
Do NOT simply shorten; keep key details.

Existing summary:
%s

New content to summarize and merge:
%s
`

const (
	summaryTemperature    = 0.2
	defaultSummaryTimeout = 30 * time.Second
)

// ErrEmptySummary is returned when the model produced no usable summary.
var ErrEmptySummary = errors.New("session: empty summary")

// Summariser merges conversation turns into an existing summary.
type Summariser interface {
	// Summarise returns a new summary covering existing and turns. turns are
	// in chronological order.
	Summarise(ctx context.Context, existing string, turns []lore.ChatMessage) (string, error)
}

// LLMSummariser uses an LLM provider to fold turns into the summary.
type LLMSummariser struct {
	llm     llm.Provider
	timeout time.Duration
}

// NewLLMSummariser creates a new [LLMSummariser] backed by the given provider.
// A non-positive timeout selects the default of 30 seconds.
func NewLLMSummariser(provider llm.Provider, timeout time.Duration) *LLMSummariser {
	if timeout <= 0 {
		timeout = defaultSummaryTimeout
	}
	return &LLMSummariser{llm: provider, timeout: timeout}
}

// Summarise sends the existing summary and the formatted turns to the model
// and returns the trimmed reply. A blank reply is reported as
// [ErrEmptySummary].
func (s *LLMSummariser) Summarise(ctx context.Context, existing string, turns []lore.ChatMessage) (string, error) {
	if len(turns) == 0 {
		return existing, nil
	}

	lines := make([]string, 0, len(turns))
	for _, m := range turns {
		lines = append(lines, fmt.Sprintf("User: %s\nAssistant: %s", m.Message, m.Response))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarySystemPrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf(summaryPromptTemplate, existing, strings.Join(lines, "\n")),
		}},
		Temperature: summaryTemperature,
	})
	observe.DefaultMetrics().RecordLLM(ctx, "summary", start)
	if err != nil {
		return "", fmt.Errorf("summarise: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptySummary
	}
	return strings.TrimSpace(resp.Content), nil
}
