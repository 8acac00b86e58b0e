// Package anyllm adapts github.com/mozilla-ai/any-llm-go to [llm.Provider],
// giving Lorekeeper one code path for every hosted or local chat backend that
// library knows (Anthropic, Gemini, Ollama, Mistral, Groq and others).
//
//	p, err := anyllm.New("anthropic", "claude-sonnet-4-5", anyllmlib.WithAPIKey(key))
//
// Without an API key option each backend reads its usual environment variable
// (ANTHROPIC_API_KEY, GEMINI_API_KEY and so on).
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/lorekeeper/internal/tokens"
	"github.com/MrWong99/lorekeeper/pkg/provider/llm"
)

// ErrNoChoices is returned when a backend answers without any completion.
var ErrNoChoices = errors.New("anyllm: response contained no choices")

type constructor func(...anyllmlib.Option) (anyllmlib.Provider, error)

// backends maps the provider names accepted by [New] to their any-llm-go
// constructors.
var backends = map[string]constructor{
	"openai":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(o...) },
	"anthropic": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(o...) },
	"gemini":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(o...) },
	"ollama":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(o...) },
	"deepseek":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(o...) },
	"mistral":   func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(o...) },
	"groq":      func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(o...) },
	"llamacpp":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(o...) },
	"llamafile": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(o...) },
}

// Backends lists the provider names accepted by [New], sorted.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Provider implements [llm.Provider] on top of an any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
	counter *tokens.Counter
}

var _ llm.Provider = (*Provider)(nil)

// New builds a Provider for model on the backend called name (case
// insensitive, see [Backends]).
func New(name, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}
	name = strings.ToLower(name)
	ctor, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported backend %q (known: %s)", name, strings.Join(Backends(), ", "))
	}
	backend, err := ctor(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %s backend: %w", name, err)
	}
	return &Provider{backend: backend, name: name, model: model, counter: tokens.New(model)}, nil
}

// Backend returns the lower-cased backend name.
func (p *Provider) Backend() string { return p.name }

// Complete sends req to the backend and returns the first choice.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}
	out := &llm.CompletionResponse{Content: resp.Choices[0].Message.ContentString()}
	if u := resp.Usage; u != nil {
		out.Usage = usage(u.PromptTokens, u.CompletionTokens, u.TotalTokens)
	}
	return out, nil
}

// usage fills in the total when a backend only reports the parts.
func usage(prompt, completion, total int) llm.Usage {
	if total == 0 {
		total = prompt + completion
	}
	return llm.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total}
}

// perMessageTokens covers role markers and separators around each message.
const perMessageTokens = 4

// CountTokens estimates with the tiktoken encoding of the model, or
// cl100k_base for models tiktoken does not know. Backends tokenise
// differently, so the count is an estimate for budgeting only.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += perMessageTokens + p.counter.Count(m.Content)
	}
	return n, nil
}

// Capabilities returns the limits of the configured model.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return llm.LookupCapabilities(p.model)
}

// params translates req. The system prompt becomes a leading system message
// and the temperature is always sent so that 0 means greedy decoding.
func (p *Provider) params(req llm.CompletionRequest) anyllmlib.CompletionParams {
	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, anyllmlib.Message{Role: m.Role, Content: m.Content, Name: m.Name})
	}

	temperature := req.Temperature
	params := anyllmlib.CompletionParams{
		Model:       p.model,
		Messages:    msgs,
		Temperature: &temperature,
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		params.MaxTokens = &maxTokens
	}
	return params
}
