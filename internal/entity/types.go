// Package entity loads campaign content into Lorekeeper.
//
// A campaign is a set of entity definitions (characters, places, items,
// artifacts, races, associations) and game logs. It is written by hand as a
// YAML campaign file or converted from a virtual tabletop export, validated,
// and imported into the content stores, where every record is also chunked
// and embedded for retrieval.
//
// Supported input formats:
//   - Native YAML campaign files ([LoadCampaignFile], [LoadCampaignFromReader])
//   - Foundry VTT world exports ([ParseFoundryVTT])
//   - Roll20 campaign exports ([ParseRoll20])
package entity

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// CampaignFile is the top-level structure of a campaign YAML file.
//
// Example:
//
//	campaign:
//	  name: "The Fellowship"
//	  system: "dnd5e"
//	entities:
//	  - name: "Gandalf"
//	    type: character
//	    aliases: ["Mithrandir", "Grey Pilgrim"]
//	    description: "A wizard of the Istari order."
//	logs:
//	  - session: 1
//	    title: "A Long-expected Party"
//	    summary: "Bilbo vanishes at his birthday party."
//	    text: |
//	      The party began at noon...
type CampaignFile struct {
	Campaign CampaignMeta `yaml:"campaign" json:"campaign"`
	Entities []EntityDef  `yaml:"entities" json:"entities"`
	Logs     []LogDef     `yaml:"logs" json:"logs"`
}

// CampaignMeta holds top-level metadata for a campaign.
type CampaignMeta struct {
	// Name is the campaign's display name.
	Name string `yaml:"name" json:"name"`

	// Description is a free-text summary of the campaign.
	Description string `yaml:"description" json:"description"`

	// System is the game system identifier (e.g., "dnd5e", "pf2e", "custom").
	System string `yaml:"system" json:"system"`
}

// EntityDef is the declarative form of a [lore.Entity].
type EntityDef struct {
	// ID is unique within Type. Derived from Name when empty.
	ID string `yaml:"id,omitempty" json:"id,omitempty"`

	Name string           `yaml:"name" json:"name"`
	Type lore.ContentType `yaml:"type" json:"type"`

	Description string   `yaml:"description" json:"description"`
	Aliases     []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Entity converts d into a [lore.Entity].
func (d EntityDef) Entity() lore.Entity {
	id := d.ID
	if id == "" {
		id = Slug(d.Name)
	}
	return lore.Entity{
		ID:          id,
		Type:        d.Type,
		Name:        strings.TrimSpace(d.Name),
		Description: strings.TrimSpace(d.Description),
		Aliases:     d.Aliases,
	}
}

// LogDef is the declarative form of a [lore.GameLog].
type LogDef struct {
	// ID uniquely identifies the log. Defaults to "session-<n>".
	ID string `yaml:"id,omitempty" json:"id,omitempty"`

	SessionNumber int    `yaml:"session" json:"session"`
	Title         string `yaml:"title" json:"title"`
	GameDate      string `yaml:"game_date,omitempty" json:"game_date,omitempty"`
	Summary       string `yaml:"summary" json:"summary"`
	FullText      string `yaml:"text" json:"text"`

	// PreviousID links the log of the previous session. When empty it is
	// filled in from session order during import.
	PreviousID string `yaml:"previous,omitempty" json:"previous,omitempty"`
}

// GameLog converts d into a [lore.GameLog].
func (d LogDef) GameLog() lore.GameLog {
	return lore.GameLog{
		ID:            d.LogID(),
		SessionNumber: d.SessionNumber,
		Title:         strings.TrimSpace(d.Title),
		GameDate:      d.GameDate,
		Summary:       strings.TrimSpace(d.Summary),
		FullText:      d.FullText,
		PreviousID:    d.PreviousID,
	}
}

// LogID returns the log's ID, derived from the session number when unset.
func (d LogDef) LogID() string {
	if d.ID != "" {
		return d.ID
	}
	return "session-" + strconv.Itoa(d.SessionNumber)
}

// Slug returns a lower-case, dash-separated identifier for name.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	return b.String()
}
