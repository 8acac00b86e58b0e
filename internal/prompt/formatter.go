package prompt

import (
	"fmt"
	"strings"

	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// DefaultSystemPrompt is the persona used for the final answer call when the
// configuration does not supply one.
const DefaultSystemPrompt = `You are a knowledgeable campaign assistant with access to detailed information from an ongoing role-playing campaign including session logs, characters, places, items, artifacts, races, associations, and other campaign elements.

Your role is to help players and the game master recall information, understand relationships, remember important details, and connect story elements across different aspects of the campaign.

Guidelines:
- Answer questions using the provided context from various sources.
- When referencing game sessions, mention specific session titles, numbers and dates when available.
- When discussing characters, places or items, use their proper names and reference where they appeared.
- You have access to summaries of all logs and the full text of logs possibly relevant to the question. If two logs are separated by time, the events in them also happened at different times.
- If information spans multiple sources, weave them together naturally.
- If you can't find relevant information, say so clearly and suggest related topics that might help.
- Distinguish between different types of sources (session logs, character descriptions, place details).
- Do not make up information or editorialize.`

// Section headings of the assembled context.
const (
	headingHistory   = "Conversation History"
	headingEntities  = "Retrieved Entities"
	headingSummaries = "Narrative Summaries of All Logs"
	headingFullLogs  = "Full Logs (Retrieved Subset)"

	noHistory  = "No prior conversation."
	noEntities = "No entities retrieved."
	noLogs     = "No logs recorded."
)

// section renders one "=== title ===" block followed by a blank line.
func section(title, content string) string {
	return "=== " + title + " ===\n" + content + "\n\n"
}

// FormatEntity renders an entity for the model.
//
// Example output:
//
//	## Gandalf (Character)
//	Aliases: Mithrandir, Grey Pilgrim
//	A wizard of the Istari order.
func FormatEntity(e lore.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s (%s)\n", e.Name, e.Type.Label())
	if len(e.Aliases) > 0 {
		b.WriteString("Aliases: " + strings.Join(e.Aliases, ", ") + "\n")
	}
	b.WriteString(strings.TrimSpace(e.Description))
	return b.String()
}

// FormatEntities renders ents in order, one block per entity.
func FormatEntities(ents []lore.Entity) string {
	if len(ents) == 0 {
		return noEntities
	}
	blocks := make([]string, len(ents))
	for i, e := range ents {
		blocks[i] = FormatEntity(e)
	}
	return strings.Join(blocks, "\n\n")
}

// FormatSummaries renders the summary of every log, in the order given.
func FormatSummaries(logs []lore.GameLog) string {
	if len(logs) == 0 {
		return noLogs
	}
	lines := make([]string, len(logs))
	for i, g := range logs {
		lines[i] = fmt.Sprintf("Log %d - %s:\n%s", g.SessionNumber, g.Title, strings.TrimSpace(g.Summary))
	}
	return strings.Join(lines, "\n")
}

// FormatFullLog renders the full text of one log. The game date line is
// omitted when the log has none.
func FormatFullLog(g lore.GameLog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Log %d (Full) - %s:\n", g.SessionNumber, g.Title)
	if g.GameDate != "" {
		b.WriteString("Game date: " + g.GameDate + "\n")
	}
	b.WriteString(strings.TrimSpace(g.FullText))
	return b.String()
}
