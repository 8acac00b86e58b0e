// Package prompt assembles the context block handed to the model for the final
// answer.
//
// The assembled context always contains three sections: the conversation
// history, the retrieved entities and the narrative summary of every known
// game log. Full texts of the retrieved logs follow, walked in rank order and
// appended only while the running token count stays within the limit. The
// walk stops at the first log that does not fit; later, smaller logs are not
// tried, so the included logs are always a prefix of the ranked list.
package prompt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/lorekeeper/internal/observe"
	"github.com/MrWong99/lorekeeper/internal/tokens"
	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// DefaultTokenLimit is the default context window reserved for the assembled
// prompt.
const DefaultTokenLimit = 120000

// Context is the result of [Assembler.Assemble].
type Context struct {
	// Prompt is the rendered context.
	Prompt string

	// IncludedLogs are the logs whose full text made it into Prompt, in rank
	// order.
	IncludedLogs []lore.GameLog

	// Tokens is the token count the budget was charged with.
	Tokens int

	// Headroom is how many tokens were left under the limit.
	Headroom int

	// Truncated is true when at least one ranked log was left out.
	Truncated bool
}

// Option is a functional option for [NewAssembler].
type Option func(*Assembler)

// WithTokenLimit sets the token limit of the assembled context. Non-positive
// values are ignored.
func WithTokenLimit(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.limit = n
		}
	}
}

// WithCounter sets the token counter. Defaults to the characters/4 heuristic.
func WithCounter(c *tokens.Counter) Option {
	return func(a *Assembler) {
		if c != nil {
			a.counter = c
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Assembler) {
		if m != nil {
			a.metrics = m
		}
	}
}

// Assembler builds answer contexts. It is safe for concurrent use.
type Assembler struct {
	logs    lore.LogStore
	limit   int
	counter *tokens.Counter
	metrics *observe.Metrics
}

// NewAssembler creates an [Assembler] reading log summaries from logs.
func NewAssembler(logs lore.LogStore, opts ...Option) *Assembler {
	a := &Assembler{
		logs:    logs,
		limit:   DefaultTokenLimit,
		counter: tokens.Heuristic(),
		metrics: observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assemble renders history, entities and the summaries of all known logs, then
// appends the full text of ranked logs while they fit.
func (a *Assembler) Assemble(ctx context.Context, history string, entities []lore.Entity, ranked []lore.GameLog) (*Context, error) {
	ctx, span := observe.StartSpan(ctx, "prompt.assemble")
	defer span.End()
	start := time.Now()
	defer a.metrics.RecordStage(ctx, "assemble", start)

	all, err := a.logs.AllGameLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("prompt: load log summaries: %w", err)
	}

	out := Build(history, entities, all, ranked, a.limit, a.counter)
	observe.Logger(ctx).Debug("prompt: assembled",
		"tokens", out.Tokens,
		"headroom", out.Headroom,
		"truncated", out.Truncated,
		"full_logs", len(out.IncludedLogs),
		"candidates", len(ranked),
	)
	return out, nil
}

// Build is the pure core of [Assembler.Assemble]. summaries lists every known
// log in session order; ranked lists the retrieved logs in rank order.
func Build(history string, entities []lore.Entity, summaries, ranked []lore.GameLog, limit int, counter *tokens.Counter) *Context {
	if strings.TrimSpace(history) == "" {
		history = noHistory
	}

	var b strings.Builder
	b.WriteString(section(headingHistory, history))
	b.WriteString(section(headingEntities, FormatEntities(entities)))
	b.WriteString(section(headingSummaries, FormatSummaries(summaries)))

	budget := tokens.NewBudget(limit, counter.Count(b.String()))
	header := "=== " + headingFullLogs + " ===\n"
	headerCost := counter.Count(header)

	var (
		included []lore.GameLog
		blocks   []string
	)
	for _, g := range ranked {
		block := FormatFullLog(g)
		cost := counter.Count(block + "\n\n")
		if len(included) == 0 {
			cost += headerCost
		}
		if !budget.TryAdd(cost) {
			break
		}
		included = append(included, g)
		blocks = append(blocks, block)
	}

	if len(blocks) > 0 {
		b.WriteString(section(headingFullLogs, strings.Join(blocks, "\n\n")))
	}

	return &Context{
		Prompt:       b.String(),
		IncludedLogs: included,
		Tokens:       budget.Used(),
		Headroom:     budget.Remaining(),
		Truncated:    budget.Exhausted(),
	}
}
