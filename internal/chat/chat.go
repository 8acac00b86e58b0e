// Package chat answers questions about the campaign, optionally within a chat
// session.
//
// One turn runs the full pipeline: the session memory renders the prior
// conversation, the enhancer rewrites the question and retrieves fused
// entities and logs, the assembler packs them into a context block, and the
// generation service answers. The turn is then persisted to the session.
//
// Standalone questions (no session, or the first turn of a session) are
// answered from and stored into the response cache when one is configured.
// Conversational turns are never cached because their answer depends on the
// history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/lorekeeper/internal/cache"
	"github.com/MrWong99/lorekeeper/internal/enhance"
	"github.com/MrWong99/lorekeeper/internal/observe"
	"github.com/MrWong99/lorekeeper/internal/prompt"
	"github.com/MrWong99/lorekeeper/internal/session"
	"github.com/MrWong99/lorekeeper/pkg/lore"
	"github.com/MrWong99/lorekeeper/pkg/provider/llm"
)

// NotFoundMessage is the answer given when retrieval finds nothing.
const NotFoundMessage = "I couldn't find any relevant information for that question. Could you try rephrasing it or asking about something more specific?"

// errorMessagePrefix introduces the answer given when generation fails.
const errorMessagePrefix = "I encountered an error while processing your question: "

// Turn outcomes, also used as metric attributes.
const (
	outcomeAnswered = "answered"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
	outcomeCached   = "cached"
)

var (
	// ErrEmptyMessage is returned for a blank question.
	ErrEmptyMessage = errors.New("chat: empty message")

	// ErrInvalidContentType is returned when a request names an unknown
	// content type.
	ErrInvalidContentType = errors.New("chat: invalid content type")
)

// Retriever runs the two-pass retrieval loop.
type Retriever interface {
	EnhanceAndRetrieve(ctx context.Context, rawQuery string, sess enhance.Session) (enhance.Result, error)
	SimilarityThreshold() float64
}

// Assembler packs retrieved content into the answer context.
type Assembler interface {
	Assemble(ctx context.Context, history string, entities []lore.Entity, logs []lore.GameLog) (*prompt.Context, error)
}

// Memory renders the prior conversation of a session.
type Memory interface {
	History(ctx context.Context, sessionID, newMessage string) (string, error)
}

// Request is one question.
type Request struct {
	// SessionID is the chat session the question belongs to. Empty asks a
	// standalone question that is neither remembered nor persisted.
	SessionID string

	// Message is the question.
	Message string

	// SimilarityThreshold overrides the default semantic threshold when
	// non-nil.
	SimilarityThreshold *float64

	// ContentTypes restricts the answer to these content types. Empty means
	// all types.
	ContentTypes []lore.ContentType
}

// Response is the answer to a [Request].
type Response struct {
	Response            string       `json:"response"`
	Sources             lore.Sources `json:"sources"`
	TokensUsed          int          `json:"tokens_used"`
	SimilarityThreshold float64      `json:"similarity_threshold"`
	UsedSessionContext  bool         `json:"used_session_context"`
	ChunksFound         int          `json:"chunks_found"`
	Cached              bool         `json:"cached"`

	// MessageID is the ID of the persisted turn, empty for standalone
	// questions.
	MessageID string `json:"message_id,omitempty"`

	// EnhancedQuery is the query retrieval ran with.
	EnhancedQuery string `json:"enhanced_query,omitempty"`
}

// Config tunes the answer call.
type Config struct {
	// SystemPrompt is the persona of the answer call. Defaults to
	// [prompt.DefaultSystemPrompt].
	SystemPrompt string

	// AnswerTemperature defaults to 0.3. Use a negative value for 0.
	AnswerTemperature float64

	// AnswerMaxTokens defaults to 2000 and is lowered to the model's output
	// limit when that is smaller.
	AnswerMaxTokens int

	// AnswerTimeout bounds the answer call. Defaults to 2 minutes.
	AnswerTimeout time.Duration

	// SourceTurns caps how many recent turns contribute their sources to the
	// pass-1 entity evidence. Zero means every turn of the session.
	SourceTurns int
}

func (c Config) withDefaults() Config {
	if c.SystemPrompt == "" {
		c.SystemPrompt = prompt.DefaultSystemPrompt
	}
	switch {
	case c.AnswerTemperature == 0:
		c.AnswerTemperature = 0.3
	case c.AnswerTemperature < 0:
		c.AnswerTemperature = 0
	}
	if c.AnswerMaxTokens <= 0 {
		c.AnswerMaxTokens = 2000
	}
	if c.AnswerTimeout <= 0 {
		c.AnswerTimeout = 2 * time.Minute
	}
	c.SourceTurns = max(c.SourceTurns, 0)
	return c
}

// Option is a functional option for [New].
type Option func(*Service)

// WithCache enables the response cache for standalone questions.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service answers questions. It is safe for concurrent use.
type Service struct {
	store     lore.ChatStore
	turns     *session.Guard
	memory    Memory
	retriever Retriever
	assembler Assembler
	llm       llm.Provider
	cache     *cache.Cache
	cfg       Config
	metrics   *observe.Metrics
}

// New creates a Service. Turn persistence goes through a [session.Guard] so
// a failing chat store never loses an answer.
func New(store lore.ChatStore, memory Memory, retriever Retriever, assembler Assembler, provider llm.Provider, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:     store,
		turns:     session.NewGuard(store),
		memory:    memory,
		retriever: retriever,
		assembler: assembler,
		llm:       provider,
		cfg:       cfg.withDefaults(),
		metrics:   observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateSession starts a new chat session.
func (s *Service) CreateSession(ctx context.Context, userID, title string) (lore.ChatSession, error) {
	sess, err := s.store.CreateSession(ctx, userID, title)
	if err != nil {
		return lore.ChatSession{}, fmt.Errorf("chat: create session: %w", err)
	}
	return sess, nil
}

// Messages returns the turns of a session in chronological order.
func (s *Service) Messages(ctx context.Context, sessionID string, limit int) ([]lore.ChatMessage, error) {
	if _, err := s.store.Session(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("chat: load session: %w", err)
	}
	msgs, err := s.store.Messages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("chat: list messages: %w", err)
	}
	return msgs, nil
}

// Ask answers req. Retrieval and generation failures are reported in the
// answer text; the returned error is reserved for invalid requests, unknown
// sessions, storage failures and cancellation.
func (s *Service) Ask(ctx context.Context, req Request) (*Response, error) {
	ctx, span := observe.StartSpan(ctx, "chat.ask")
	defer span.End()

	question := strings.TrimSpace(req.Message)
	if question == "" {
		return nil, ErrEmptyMessage
	}
	types, err := contentTypes(req.ContentTypes)
	if err != nil {
		return nil, err
	}
	threshold := s.retriever.SimilarityThreshold()
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
	}

	ctx = observe.WithSessionID(ctx, req.SessionID)
	log := observe.Logger(ctx)

	var prior []lore.ChatMessage
	if req.SessionID != "" {
		if _, err := s.store.Session(ctx, req.SessionID); err != nil {
			return nil, fmt.Errorf("chat: load session: %w", err)
		}
		prior, _ = s.turns.Messages(ctx, req.SessionID, s.cfg.SourceTurns)
	}

	params := cache.RetrievalParams(threshold, types)
	cacheable := s.cache != nil && len(prior) == 0
	if cacheable {
		var hit Response
		ok, err := s.cache.Get(ctx, question, params, &hit)
		if err != nil {
			log.Warn("chat: cache lookup failed, answering live", "err", err)
		}
		if ok {
			hit.Cached = true
			hit.UsedSessionContext = req.SessionID != ""
			s.persist(ctx, req.SessionID, question, types, &hit)
			s.metrics.RecordChatTurn(ctx, outcomeCached)
			return &hit, nil
		}
	}

	resp, outcome, err := s.generate(ctx, req.SessionID, question, prior, threshold, types)
	if err != nil {
		s.metrics.RecordChatTurn(ctx, outcomeError)
		return nil, err
	}
	s.metrics.RecordChatTurn(ctx, outcome)
	log.Info("chat: answered", "outcome", outcome, "tokens", resp.TokensUsed, "sources", len(resp.Sources.Items))

	if cacheable && outcome == outcomeAnswered {
		if err := s.cache.Put(ctx, question, params, resp, resp.TokensUsed); err != nil {
			log.Warn("chat: cache store failed", "err", err)
		}
	}
	s.persist(ctx, req.SessionID, question, types, resp)
	return resp, nil
}

// generate runs retrieval, assembly and the answer call.
func (s *Service) generate(ctx context.Context, sessionID, question string, prior []lore.ChatMessage, threshold float64, types []lore.ContentType) (*Response, string, error) {
	var history string
	if sessionID != "" {
		h, err := s.memory.History(ctx, sessionID, question)
		if err != nil {
			return nil, "", fmt.Errorf("chat: conversation memory: %w", err)
		}
		history = h
	}

	res, err := s.retriever.EnhanceAndRetrieve(ctx, question, enhance.Session{
		History:             history,
		Sources:             priorSources(prior),
		SimilarityThreshold: &threshold,
	})
	if err != nil {
		return nil, "", fmt.Errorf("chat: retrieve: %w", err)
	}

	resp := &Response{
		Sources:             lore.NewSources(),
		SimilarityThreshold: threshold,
		UsedSessionContext:  sessionID != "",
		EnhancedQuery:       res.EnhancedQuery,
	}

	ents, logs := filterTypes(res.Entities, res.Logs, types)
	if res.NotFound || (len(ents) == 0 && len(logs) == 0) {
		resp.Response = NotFoundMessage
		return resp, outcomeNotFound, nil
	}

	pc, err := s.assembler.Assemble(ctx, history, ents, logs)
	if err != nil {
		return nil, "", fmt.Errorf("chat: assemble context: %w", err)
	}

	answer, err := s.answer(ctx, question, pc.Prompt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		observe.Logger(ctx).Error("chat: answer generation failed", "err", err)
		resp.Response = errorMessagePrefix + err.Error()
		return resp, outcomeError, nil
	}

	refs := make([]lore.Ref, 0, len(ents)+len(pc.IncludedLogs))
	for _, e := range ents {
		refs = append(refs, e.Ref())
	}
	for _, g := range pc.IncludedLogs {
		refs = append(refs, g.Ref())
	}
	resp.Response = answer.Content
	resp.Sources = lore.NewSources(refs...)
	resp.TokensUsed = totalTokens(answer.Usage)
	resp.ChunksFound = len(ents) + len(logs)
	return resp, outcomeAnswered, nil
}

func (s *Service) answer(ctx context.Context, question, contextBlock string) (*llm.CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AnswerTimeout)
	defer cancel()

	maxTokens := s.cfg.AnswerMaxTokens
	if limit := s.llm.Capabilities().MaxOutputTokens; limit > 0 && limit < maxTokens {
		maxTokens = limit
	}

	start := time.Now()
	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: s.cfg.SystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleAssistant, Content: contextBlock},
			{Role: llm.RoleUser, Content: question},
		},
		Temperature: s.cfg.AnswerTemperature,
		MaxTokens:   maxTokens,
	})
	s.metrics.RecordLLM(ctx, "answer", start)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("empty completion")
	}
	return resp, nil
}

// persist stores the turn when it belongs to a session.
func (s *Service) persist(ctx context.Context, sessionID, question string, types []lore.ContentType, resp *Response) {
	if sessionID == "" {
		return
	}
	stored, _ := s.turns.AppendMessage(ctx, lore.ChatMessage{
		SessionID:           sessionID,
		Message:             question,
		Response:            resp.Response,
		TokensUsed:          resp.TokensUsed,
		SimilarityThreshold: resp.SimilarityThreshold,
		ContentTypes:        types,
		Sources:             resp.Sources,
	})
	resp.MessageID = stored.ID
}

// priorSources lists the sources of earlier turns, newest turn first.
func priorSources(prior []lore.ChatMessage) []lore.Ref {
	var refs []lore.Ref
	for i := len(prior) - 1; i >= 0; i-- {
		refs = append(refs, prior[i].Sources.Refs()...)
	}
	return refs
}

func contentTypes(in []lore.ContentType) ([]lore.ContentType, error) {
	if len(in) == 0 {
		return slices.Clone(lore.AllContentTypes), nil
	}
	out := make([]lore.ContentType, 0, len(in))
	for _, t := range in {
		if !t.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidContentType, t)
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// filterTypes drops entities and logs whose type is not in types.
func filterTypes(ents []lore.Entity, logs []lore.GameLog, types []lore.ContentType) ([]lore.Entity, []lore.GameLog) {
	var keptEnts []lore.Entity
	for _, e := range ents {
		if slices.Contains(types, e.Type) {
			keptEnts = append(keptEnts, e)
		}
	}
	if !slices.Contains(types, lore.TypeGameLog) {
		logs = nil
	}
	return keptEnts, logs
}

func totalTokens(u llm.Usage) int {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.PromptTokens + u.CompletionTokens
}
