// Package llm is the seam between Lorekeeper and its generation backends.
//
// The retrieval pipeline uses a [Provider] three ways: to rewrite a follow-up
// question into a standalone one, to fold old chat turns into a session
// summary, and to write the final answer from the assembled lore context.
// Backends live in sub-packages; implementations must be safe for concurrent
// use and return promptly once ctx is done.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation. Name optionally identifies the
// player who asked.
type Message struct {
	Role    string
	Content string
	Name    string
}

// Usage is the token accounting reported by a backend, in its own tokeniser's
// units. Backends that omit TotalTokens have it filled from the parts.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest is a single generation call. Messages must not be empty.
type CompletionRequest struct {
	// SystemPrompt precedes Messages. Backends without a system field send it
	// as a leading system message.
	SystemPrompt string
	Messages     []Message

	// Temperature is always sent, so the zero value asks for greedy decoding.
	// Lorekeeper keeps answers at 0 to stay close to the lore.
	Temperature float64

	// MaxTokens caps the completion; 0 leaves it to the backend.
	MaxTokens int
}

// CompletionResponse is the full reply to a [CompletionRequest].
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// ModelCapabilities are the static limits of a model. Answer calls never
// request more than MaxOutputTokens.
type ModelCapabilities struct {
	ContextWindow   int
	MaxOutputTokens int
}

// Provider generates text.
type Provider interface {
	// Complete waits for the whole reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how much of the context window messages would
	// take. It may overcount but should not undercount.
	CountTokens(messages []Message) (int, error)

	// Capabilities must not change over the provider's lifetime.
	Capabilities() ModelCapabilities
}
