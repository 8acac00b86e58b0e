package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// The virtual tabletop converters return campaigns whose logs carry no
// session number. [CampaignFile.Merge] numbers them after the sessions that
// are already known.

// decodeExport reads one JSON export of the given tabletop into T. Fields the
// importer does not use are ignored.
func decodeExport[T any](r io.Reader, vtt string) (T, error) {
	var export T
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return export, fmt.Errorf("entity: %s export: %w", vtt, err)
	}
	return export, nil
}

type foundryExport struct {
	Actors []struct {
		ID     string `json:"_id"`
		Name   string `json:"name"`
		System struct {
			Details struct {
				Biography struct {
					Value string `json:"value"`
				} `json:"biography"`
			} `json:"details"`
		} `json:"system"`
	} `json:"actors"`
	Items []struct {
		ID     string `json:"_id"`
		Name   string `json:"name"`
		System struct {
			Rarity      string `json:"rarity"`
			Description struct {
				Value string `json:"value"`
			} `json:"description"`
		} `json:"system"`
	} `json:"items"`
	Journal []struct {
		ID      string `json:"_id"`
		Name    string `json:"name"`
		Content string `json:"content"`
		Pages   []struct {
			Text struct {
				Content string `json:"content"`
			} `json:"text"`
		} `json:"pages"`
	} `json:"journal"`
}

// ParseFoundryVTT converts a Foundry VTT world export. Actors become
// characters, legendary and artifact-rarity items become artifacts, other
// items stay items, and journal entries become logs in export order. Journals
// from Foundry v10 onwards keep their text in pages, which are concatenated.
func ParseFoundryVTT(r io.Reader) (*CampaignFile, error) {
	world, err := decodeExport[foundryExport](r, "foundry")
	if err != nil {
		return nil, err
	}
	cf := &CampaignFile{Campaign: CampaignMeta{System: "foundry"}}

	for _, a := range world.Actors {
		cf.addEntity(a.ID, a.Name, lore.TypeCharacter, htmlText(a.System.Details.Biography.Value))
	}
	for _, it := range world.Items {
		typ := lore.TypeItem
		if r := strings.ToLower(it.System.Rarity); r == "legendary" || r == "artifact" {
			typ = lore.TypeArtifact
		}
		cf.addEntity(it.ID, it.Name, typ, htmlText(it.System.Description.Value))
	}
	for _, j := range world.Journal {
		body := j.Content
		if body == "" {
			var pages strings.Builder
			for _, p := range j.Pages {
				pages.WriteString(p.Text.Content)
				pages.WriteString("<p>")
			}
			body = pages.String()
		}
		cf.addLog(j.ID, j.Name, htmlText(body))
	}
	return cf, nil
}

type roll20Export struct {
	Characters []struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Bio     string `json:"bio"`
		Attribs []struct {
			Name    string `json:"name"`
			Current any    `json:"current"`
		} `json:"attribs"`
	} `json:"characters"`
	Handouts []struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Notes   string `json:"notes"`
		GMNotes string `json:"gmnotes"`
	} `json:"handouts"`
}

// ParseRoll20 converts a Roll20 campaign export. Characters become characters
// with their race attribute appended to the biography, and handouts become
// logs in export order. A handout without player notes falls back to its GM
// notes.
func ParseRoll20(r io.Reader) (*CampaignFile, error) {
	export, err := decodeExport[roll20Export](r, "roll20")
	if err != nil {
		return nil, err
	}
	cf := &CampaignFile{Campaign: CampaignMeta{System: "roll20"}}

	for _, c := range export.Characters {
		desc := htmlText(c.Bio)
		for _, a := range c.Attribs {
			if a.Name == "race" && a.Current != nil {
				desc = strings.TrimSpace(fmt.Sprintf("%s\n\nRace: %v", desc, a.Current))
			}
		}
		cf.addEntity(c.ID, c.Name, lore.TypeCharacter, desc)
	}
	for _, h := range export.Handouts {
		text := htmlText(h.Notes)
		if text == "" {
			text = htmlText(h.GMNotes)
		}
		cf.addLog(h.ID, h.Name, text)
	}
	return cf, nil
}

// addEntity appends a definition unless the export left it unnamed.
func (cf *CampaignFile) addEntity(id, name string, typ lore.ContentType, desc string) {
	if name == "" {
		return
	}
	cf.Entities = append(cf.Entities, EntityDef{ID: id, Name: name, Type: typ, Description: desc})
}

func (cf *CampaignFile) addLog(id, title, text string) {
	if title == "" {
		return
	}
	cf.Logs = append(cf.Logs, LogDef{ID: id, Title: title, FullText: text})
}

// blockTags end a line in the plain text of a rich-text field.
var blockTags = map[string]bool{
	"p": true, "br": true, "div": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// htmlText flattens the rich-text HTML that tabletops store in descriptions
// and notes into plain text. Entities are decoded, block elements become line
// breaks, and blank lines never repeat.
func htmlText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if !errors.Is(z.Err(), io.EOF) {
				return strings.TrimSpace(s)
			}
			return tidyLines(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			if name, _ := z.TagName(); blockTags[string(name)] {
				b.WriteByte('\n')
			}
		}
	}
}

// tidyLines trims every line and collapses runs of empty lines to one.
func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	blank := false
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, l)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
