// Package lore defines the campaign knowledge model used by Lorekeeper and the
// storage interfaces the retrieval pipeline depends on.
//
// The model has two kinds of content:
//
//   - Game logs ([GameLog]): narrative session write-ups ordered by session
//     number, each with a short summary and a full text.
//   - Entities ([Entity]): structured domain objects (characters, places,
//     items, artifacts, races, associations) with a canonical name, a set of
//     aliases and a description.
//
// Both are chunked, embedded and indexed for vector search ([Chunk]). Every
// piece of content is addressed by a [Ref], whose [Ref.Key] is the global
// identifier used to merge results from different retrieval signals.
//
// All interfaces are public so that external packages can supply alternative
// storage backends. Every implementation must be safe for concurrent use.
package lore

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("lore: not found")

// ContentType identifies the kind of record a [Ref] points to.
type ContentType string

// Content types. Every entity type is also a content type.
const (
	TypeGameLog     ContentType = "gamelog"
	TypeCharacter   ContentType = "character"
	TypePlace       ContentType = "place"
	TypeItem        ContentType = "item"
	TypeArtifact    ContentType = "artifact"
	TypeRace        ContentType = "race"
	TypeAssociation ContentType = "association"
)

// EntityTypes lists every content type that denotes an [Entity], in display
// order.
var EntityTypes = []ContentType{
	TypeCharacter,
	TypePlace,
	TypeItem,
	TypeArtifact,
	TypeRace,
	TypeAssociation,
}

// AllContentTypes lists every valid content type.
var AllContentTypes = append([]ContentType{TypeGameLog}, EntityTypes...)

// IsValid reports whether t is a known content type.
func (t ContentType) IsValid() bool {
	return slices.Contains(AllContentTypes, t)
}

// IsEntity reports whether t denotes an entity rather than a game log.
func (t ContentType) IsEntity() bool {
	return t != TypeGameLog && t.IsValid()
}

// Label returns a human-readable, capitalised name for t.
func (t ContentType) Label() string {
	switch t {
	case TypeGameLog:
		return "Game Log"
	case "":
		return ""
	default:
		s := string(t)
		return strings.ToUpper(s[:1]) + s[1:]
	}
}

// ParseContentType validates s and returns it as a ContentType.
func ParseContentType(s string) (ContentType, error) {
	t := ContentType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("lore: unknown content type %q", s)
	}
	return t, nil
}

// Ref is a typed pointer to a game log or entity.
type Ref struct {
	Type ContentType `json:"type" yaml:"type"`
	ID   string      `json:"id" yaml:"id"`
}

// Key returns the global identifier "<type>:<id>". Two refs denote the same
// record if and only if their keys are equal.
func (r Ref) Key() string {
	return string(r.Type) + ":" + r.ID
}

// String implements [fmt.Stringer].
func (r Ref) String() string { return r.Key() }

// ─────────────────────────────────────────────────────────────────────────────
// Content records
// ─────────────────────────────────────────────────────────────────────────────

// Entity is a structured campaign object.
type Entity struct {
	// ID is unique within Type.
	ID string

	// Type is one of [EntityTypes].
	Type ContentType

	// Name is the canonical name. It is always matched as a primary alias.
	Name string

	// Description is free-form prose describing the entity.
	Description string

	// Aliases are alternative names (nicknames, titles, translations). The
	// canonical name need not be repeated here.
	Aliases []string
}

// Ref returns the entity's [Ref].
func (e Entity) Ref() Ref { return Ref{Type: e.Type, ID: e.ID} }

// AllAliases returns the canonical name followed by every distinct alias.
func (e Entity) AllAliases() []Alias {
	out := []Alias{{Name: e.Name, Entity: e.Ref(), Primary: true}}
	seen := map[string]bool{strings.ToLower(e.Name): true}
	for _, a := range e.Aliases {
		k := strings.ToLower(strings.TrimSpace(a))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, Alias{Name: strings.TrimSpace(a), Entity: e.Ref()})
	}
	return out
}

// Alias is an alternative name for an entity, used only for fuzzy matching.
type Alias struct {
	Name    string
	Entity  Ref
	Primary bool
}

// GameLog is the narrative record of one play session.
type GameLog struct {
	// ID uniquely identifies the log.
	ID string

	// SessionNumber orders logs chronologically.
	SessionNumber int

	// Title is a short human-readable title.
	Title string

	// GameDate is the in-world date of the session, free-form.
	GameDate string

	// Summary is a short narrative summary. Summaries of every log are always
	// part of the assembled context.
	Summary string

	// FullText is the complete narrative.
	FullText string

	// PreviousID optionally points to the log of the previous session.
	PreviousID string
}

// Ref returns the log's [Ref].
func (g GameLog) Ref() Ref { return Ref{Type: TypeGameLog, ID: g.ID} }

// Chunk is an embedded segment of an entity description or a game log.
type Chunk struct {
	// ID uniquely identifies the chunk.
	ID string

	// Owner is the record this chunk was cut from.
	Owner Ref

	// Index is the position of the chunk within its owner.
	Index int

	// Text is the chunk content.
	Text string

	// Embedding is the vector representation of Text. Its dimension must match
	// the index configuration.
	Embedding []float32

	// Metadata carries free-form attributes (title, session number, chunk i/n).
	Metadata map[string]any
}
