package enhance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/lorekeeper/internal/observe"
	"github.com/MrWong99/lorekeeper/pkg/lore"
	"github.com/MrWong99/lorekeeper/pkg/provider/llm"
)

const rewriteSystemPrompt = `You are a helpful assistant that rewrites user queries into enriched,
contextually clear forms suitable for retrieving information from narrative logs
and entity databases.

- Always resolve vague references by grounding them in entity names and aliases.
- Incorporate relevant details from the conversation history and summary.
- Do not hallucinate: only use information provided.
- Output only the rewritten enriched query, nothing else.`

const rewriteUserTemplate = `
Conversation History:
%s

Entities Retrieved:
%s

Original User Query:
%s

Task:
Rewrite the original query so that it is explicit, unambiguous, and makes
use of relevant entities, aliases, or prior context. Output only the enriched query.
`

// rewrite asks the model for an explicit version of rawQuery. Any failure or
// a blank reply yields rawQuery unchanged.
func (e *Enhancer) rewrite(ctx context.Context, rawQuery, history string, hints []lore.Entity) string {
	if history == "" {
		history = "No prior conversation."
	}
	prompt := fmt.Sprintf(rewriteUserTemplate, history, formatHints(hints), rawQuery)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.RewriteTimeout)
	defer cancel()

	start := time.Now()
	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: rewriteSystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature:  e.cfg.RewriteTemperature,
	})
	e.metrics.RecordLLM(ctx, "rewrite", start)

	log := observe.Logger(ctx)
	if err != nil {
		log.Warn("enhance: rewrite failed, using raw query", "err", err)
		return rawQuery
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		log.Warn("enhance: empty rewrite, using raw query")
		return rawQuery
	}
	q := strings.TrimSpace(resp.Content)
	log.Debug("enhance: rewritten", "query", q)
	return q
}

// formatHints renders entities for the rewrite prompt.
func formatHints(ents []lore.Entity) string {
	if len(ents) == 0 {
		return "No entities retrieved."
	}
	blocks := make([]string, 0, len(ents))
	for _, e := range ents {
		aliases := "none"
		if len(e.Aliases) > 0 {
			aliases = strings.Join(e.Aliases, ", ")
		}
		blocks = append(blocks, fmt.Sprintf("- **%s** (%s)\n  Aliases: %s\n  %s", e.Name, e.Type.Label(), aliases, e.Description))
	}
	return strings.Join(blocks, "\n")
}
