package enhance

import (
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/lorekeeper/internal/keywords"
	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// Limits of the enriched semantic log query.
const (
	enrichedAliasCap   = 2
	enrichedTermCap    = 5
	enrichedMaxChars   = 512
	enrichedHeaderLine = "Entities:"
)

// EnrichedQuery appends an "Entities:" block describing entities to query so
// that a vector search over game logs picks up their names, aliases and key
// terms. Each entity contributes one line of the form
//
//   - Name (aka: a, b; about: k1, k2; )
//
// with at most two aliases and five key terms. When a line would push the
// text past 512 characters, key terms are dropped from the end first, then
// aliases; if the line still does not fit it is dropped and no further
// entities are added. The result never exceeds 512 bytes.
func EnrichedQuery(query string, entities []lore.Entity) string {
	lines := []string{strings.TrimSpace(query), enrichedHeaderLine}
	length := func() int { return len(strings.Join(lines, "\n")) }

	for _, e := range entities {
		aliases := e.Aliases
		if len(aliases) > enrichedAliasCap {
			aliases = aliases[:enrichedAliasCap]
		}
		terms := keywords.Extract(e.Description, enrichedTermCap)

		lines = append(lines, entityLine(e.Name, aliases, terms))
		if length() <= enrichedMaxChars {
			continue
		}
		for len(terms) > 0 && length() > enrichedMaxChars {
			terms = terms[:len(terms)-1]
			lines[len(lines)-1] = entityLine(e.Name, aliases, terms)
		}
		for len(aliases) > 0 && length() > enrichedMaxChars {
			aliases = aliases[:len(aliases)-1]
			lines[len(lines)-1] = entityLine(e.Name, aliases, terms)
		}
		if length() > enrichedMaxChars {
			lines = lines[:len(lines)-1]
			break
		}
	}
	return truncate(strings.Join(lines, "\n"), enrichedMaxChars)
}

func entityLine(name string, aliases, terms []string) string {
	var b strings.Builder
	b.WriteString("- ")
	b.WriteString(name)
	b.WriteString(" (")
	if len(aliases) > 0 {
		b.WriteString("aka: ")
		b.WriteString(strings.Join(aliases, ", "))
		b.WriteString("; ")
	}
	if len(terms) > 0 {
		b.WriteString("about: ")
		b.WriteString(strings.Join(terms, ", "))
		b.WriteString("; ")
	}
	b.WriteString(")")
	return b.String()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
