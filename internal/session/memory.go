package session

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/lorekeeper/internal/observe"
	"github.com/MrWong99/lorekeeper/internal/tokens"
	"github.com/MrWong99/lorekeeper/pkg/lore"
	"github.com/MrWong99/lorekeeper/pkg/provider/llm"
)

// DefaultBudget is the default token budget of the verbatim history.
const DefaultBudget = 1500

// summaryPrefix introduces the summary block of the prompt.
const summaryPrefix = "Summary of earlier conversation: "

// MemoryConfig configures a [Memory].
type MemoryConfig struct {
	// Budget is the high watermark: while the whole unfolded history plus the
	// new message fits, nothing is folded. Defaults to [DefaultBudget].
	Budget int

	// Target is the low watermark used for greedy packing once Budget is
	// exceeded. Defaults to Budget and is clamped to it.
	Target int

	// Counter counts tokens. Nil selects the characters/4 heuristic.
	Counter *tokens.Counter

	// Summariser folds overflowing turns into the summary. Must not be nil.
	Summariser Summariser

	// Metrics receives fold counts. Nil selects [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Memory builds prior-turn context for a session and folds old turns into the
// session summary.
//
// Memory holds no per-session state; all state lives in the [lore.ChatStore],
// whose UpdateMemory serialises folds of the same session.
type Memory struct {
	store      lore.ChatStore
	budget     int
	target     int
	counter    *tokens.Counter
	summariser Summariser
	metrics    *observe.Metrics
}

// NewMemory creates a new [Memory] over store.
func NewMemory(store lore.ChatStore, cfg MemoryConfig) *Memory {
	budget := cfg.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	target := cfg.Target
	if target <= 0 || target > budget {
		target = budget
	}
	counter := cfg.Counter
	if counter == nil {
		counter = tokens.Heuristic()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Memory{
		store:      store,
		budget:     budget,
		target:     target,
		counter:    counter,
		summariser: cfg.Summariser,
		metrics:    metrics,
	}
}

// PromptMessages returns the prior-turn context for a new message: a leading
// system block with the session summary (omitted when the summary is empty)
// followed by the verbatim turns, oldest first, as user/assistant pairs. The
// caller appends the new message itself.
//
// If the history overflows the budget, the overflowing turns are folded into
// the summary before the context is built. A failed fold is logged and leaves
// those turns unfolded so the next call retries them; this call's context
// then carries the whole unfolded history verbatim under the old summary.
func (m *Memory) PromptMessages(ctx context.Context, sessionID, newMessage string) ([]llm.Message, error) {
	ctx, span := observe.StartSpan(ctx, "session.prompt_messages")
	defer span.End()

	var (
		summary string
		keep    []lore.ChatMessage
		foldErr error
	)
	err := m.store.UpdateMemory(ctx, sessionID, func(snap lore.MemorySnapshot) (lore.MemoryUpdate, error) {
		summary = snap.Session.Summary
		var fold []lore.ChatMessage
		keep, fold = m.divide(snap.Unfolded, newMessage)
		if len(fold) == 0 {
			return lore.MemoryUpdate{}, nil
		}

		// fold is newest first; the summariser reads chronologically.
		chrono := slices.Clone(fold)
		slices.Reverse(chrono)
		next, err := m.summariser.Summarise(ctx, summary, chrono)
		if err != nil {
			foldErr = err
			keep = snap.Unfolded
			return lore.MemoryUpdate{}, err
		}

		ids := make([]string, len(fold))
		for i, msg := range fold {
			ids[i] = msg.ID
		}
		summary = next
		m.metrics.MemoryFolds.Add(ctx, int64(len(ids)))
		return lore.MemoryUpdate{Summary: next, Fold: ids}, nil
	})

	log := observe.Logger(ctx).With("session_id", sessionID)
	switch {
	case foldErr != nil:
		log.Warn("session: fold failed, history left unfolded", "err", foldErr)
	case err != nil:
		return nil, fmt.Errorf("session: update memory: %w", err)
	}
	log.Debug("session: context built", "verbatim", len(keep), "has_summary", summary != "")

	out := make([]llm.Message, 0, 2*len(keep)+1)
	if summary != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: summaryPrefix + summary})
	}
	for i := len(keep) - 1; i >= 0; i-- {
		out = append(out,
			llm.Message{Role: llm.RoleUser, Content: keep[i].Message},
			llm.Message{Role: llm.RoleAssistant, Content: keep[i].Response},
		)
	}
	return out, nil
}

// History renders [Memory.PromptMessages] as "role: content" lines for
// prompts that take the conversation as plain text.
func (m *Memory) History(ctx context.Context, sessionID, newMessage string) (string, error) {
	msgs, err := m.PromptMessages(ctx, sessionID, newMessage)
	if err != nil {
		return "", err
	}
	return FormatHistory(msgs), nil
}

// FormatHistory renders msgs as "role: content" lines.
func FormatHistory(msgs []llm.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		lines = append(lines, msg.Role+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}

// divide splits unfolded (newest first) into the turns kept verbatim and the
// turns to fold. Once a turn overflows the target, it and every older turn
// are folded.
func (m *Memory) divide(unfolded []lore.ChatMessage, newMessage string) (keep, fold []lore.ChatMessage) {
	used := m.counter.Count(newMessage)
	total := used
	costs := make([]int, len(unfolded))
	for i, msg := range unfolded {
		costs[i] = m.counter.Count(msg.Message) + m.counter.Count(msg.Response)
		total += costs[i]
	}
	if total <= m.budget {
		return unfolded, nil
	}

	b := tokens.NewBudget(m.target, used)
	for i := range unfolded {
		if !b.TryAdd(costs[i]) {
			return unfolded[:i], unfolded[i:]
		}
	}
	return unfolded, nil
}
