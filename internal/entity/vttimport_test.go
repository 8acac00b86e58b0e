package entity_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/MrWong99/lorekeeper/internal/entity"
	"github.com/MrWong99/lorekeeper/pkg/lore"
)

const foundryWorldJSON = `{
  "actors": [
    {
      "_id": "actor-001",
      "name": "Balthazar the Wizard",
      "type": "npc",
      "img": "icons/wizard.png",
      "flags": {},
      "system": {"details": {"biography": {"value": "<p>An old <b>conjurer</b>.</p>"}}}
    },
    {
      "_id": "actor-002",
      "name": "Town Guard",
      "type": "npc",
      "img": "",
      "flags": {}
    }
  ],
  "items": [
    {
      "_id": "item-001",
      "name": "Sword of Dawn",
      "type": "weapon",
      "img": "icons/sword.png",
      "flags": {},
      "system": {"rarity": "legendary", "description": {"value": "<p>Glows at sunrise.</p>"}}
    },
    {
      "_id": "item-002",
      "name": "Rope",
      "type": "loot",
      "flags": {}
    }
  ],
  "journal": [
    {
      "_id": "journal-001",
      "name": "History of the Realm",
      "content": "<p>Long ago, in a land far away...</p>",
      "flags": {}
    },
    {
      "_id": "journal-002",
      "name": "The Prophecy",
      "content": "",
      "pages": [
        {
          "name": "Part 1",
          "text": { "content": "<p>Stars will align when...</p>" }
        }
      ],
      "flags": {}
    }
  ]
}`

const foundryEmptyJSON = `{
  "actors": [],
  "items": [],
  "journal": []
}`

const roll20JSON = `{
  "schema": 2,
  "characters": [
    {
      "id": "char-001",
      "name": "Seraphina",
      "bio": "<p>A skilled rogue from the eastern provinces.</p>",
      "attribs": [
        {"name": "strength", "current": 10, "max": 10},
        {"name": "dexterity", "current": 18, "max": 18},
        {"name": "race", "current": "Half-elf"}
      ]
    },
    {
      "id": "char-002",
      "name": "Bron the Smith",
      "bio": "",
      "attribs": []
    }
  ],
  "handouts": [
    {
      "id": "handout-001",
      "name": "The Ancient Map",
      "notes": "<p>A tattered map showing the path to the dungeon.</p>",
      "gmnotes": ""
    },
    {
      "id": "handout-002",
      "name": "Secret Notes",
      "notes": "",
      "gmnotes": "<p>Only for the DM: the treasure is cursed.</p>"
    }
  ]
}`

const roll20EmptyJSON = `{
  "schema": 2,
  "characters": [],
  "handouts": []
}`

func findEntity(t *testing.T, cf *entity.CampaignFile, name string) entity.EntityDef {
	t.Helper()
	for _, d := range cf.Entities {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("entity %q not found", name)
	return entity.EntityDef{}
}

func findLog(t *testing.T, cf *entity.CampaignFile, title string) entity.LogDef {
	t.Helper()
	for _, l := range cf.Logs {
		if l.Title == title {
			return l
		}
	}
	t.Fatalf("log %q not found", title)
	return entity.LogDef{}
}

func TestParseFoundryVTT(t *testing.T) {
	t.Parallel()

	cf, err := entity.ParseFoundryVTT(strings.NewReader(foundryWorldJSON))
	if err != nil {
		t.Fatalf("ParseFoundryVTT: unexpected error: %v", err)
	}
	// 2 actors + 2 items
	if len(cf.Entities) != 4 {
		t.Fatalf("ParseFoundryVTT: expected 4 entities, got %d", len(cf.Entities))
	}
	if len(cf.Logs) != 2 {
		t.Fatalf("ParseFoundryVTT: expected 2 logs, got %d", len(cf.Logs))
	}

	wizard := findEntity(t, cf, "Balthazar the Wizard")
	if wizard.Type != lore.TypeCharacter {
		t.Errorf("actor type = %q, want character", wizard.Type)
	}
	if wizard.ID != "actor-001" {
		t.Errorf("actor id = %q, want actor-001", wizard.ID)
	}
	if wizard.Description != "An old conjurer." {
		t.Errorf("actor description = %q, want %q", wizard.Description, "An old conjurer.")
	}
	if guard := findEntity(t, cf, "Town Guard"); guard.Description != "" {
		t.Errorf("actor without system data: description = %q, want empty", guard.Description)
	}

	sword := findEntity(t, cf, "Sword of Dawn")
	if sword.Type != lore.TypeArtifact {
		t.Errorf("legendary item type = %q, want artifact", sword.Type)
	}
	if sword.Description != "Glows at sunrise." {
		t.Errorf("item description = %q", sword.Description)
	}
	if rope := findEntity(t, cf, "Rope"); rope.Type != lore.TypeItem {
		t.Errorf("plain item type = %q, want item", rope.Type)
	}

	history := findLog(t, cf, "History of the Realm")
	if strings.Contains(history.FullText, "<p>") {
		t.Errorf("HTML not stripped from journal content: %q", history.FullText)
	}
	if history.SessionNumber != 0 {
		t.Errorf("journal session = %d, want 0 (unnumbered)", history.SessionNumber)
	}

	prophecy := findLog(t, cf, "The Prophecy")
	if prophecy.FullText != "Stars will align when..." {
		t.Errorf("page fallback text = %q", prophecy.FullText)
	}
}

func TestParseFoundryVTT_EmptyData(t *testing.T) {
	t.Parallel()

	cf, err := entity.ParseFoundryVTT(strings.NewReader(foundryEmptyJSON))
	if err != nil {
		t.Fatalf("ParseFoundryVTT empty: unexpected error: %v", err)
	}
	if len(cf.Entities) != 0 || len(cf.Logs) != 0 {
		t.Fatalf("ParseFoundryVTT empty: got %d entities, %d logs", len(cf.Entities), len(cf.Logs))
	}
}

func TestParseFoundryVTT_InvalidJSON(t *testing.T) {
	t.Parallel()

	if _, err := entity.ParseFoundryVTT(strings.NewReader("{not json}")); err == nil {
		t.Fatal("ParseFoundryVTT invalid: expected error, got nil")
	}
}

func TestParseRoll20(t *testing.T) {
	t.Parallel()

	cf, err := entity.ParseRoll20(strings.NewReader(roll20JSON))
	if err != nil {
		t.Fatalf("ParseRoll20: unexpected error: %v", err)
	}
	if len(cf.Entities) != 2 {
		t.Fatalf("ParseRoll20: expected 2 entities, got %d", len(cf.Entities))
	}
	if len(cf.Logs) != 2 {
		t.Fatalf("ParseRoll20: expected 2 logs, got %d", len(cf.Logs))
	}

	seraphina := findEntity(t, cf, "Seraphina")
	if seraphina.Type != lore.TypeCharacter {
		t.Errorf("character type = %q, want character", seraphina.Type)
	}
	want := "A skilled rogue from the eastern provinces.\n\nRace: Half-elf"
	if seraphina.Description != want {
		t.Errorf("character description = %q, want %q", seraphina.Description, want)
	}

	if notes := findLog(t, cf, "The Ancient Map"); notes.FullText != "A tattered map showing the path to the dungeon." {
		t.Errorf("handout text = %q", notes.FullText)
	}
	if secret := findLog(t, cf, "Secret Notes"); secret.FullText != "Only for the DM: the treasure is cursed." {
		t.Errorf("gmnotes fallback = %q", secret.FullText)
	}
}

func TestParseRoll20_EmptyData(t *testing.T) {
	t.Parallel()

	cf, err := entity.ParseRoll20(strings.NewReader(roll20EmptyJSON))
	if err != nil {
		t.Fatalf("ParseRoll20 empty: unexpected error: %v", err)
	}
	if len(cf.Entities) != 0 || len(cf.Logs) != 0 {
		t.Fatalf("ParseRoll20 empty: got %d entities, %d logs", len(cf.Entities), len(cf.Logs))
	}
}

func TestParseRoll20_InvalidJSON(t *testing.T) {
	t.Parallel()

	if _, err := entity.ParseRoll20(strings.NewReader("not json at all")); err == nil {
		t.Fatal("ParseRoll20 invalid: expected error, got nil")
	}
}

func TestParsedCampaign_MergeNumbersLogs(t *testing.T) {
	t.Parallel()

	parsed, err := entity.ParseRoll20(strings.NewReader(roll20JSON))
	if err != nil {
		t.Fatalf("ParseRoll20: %v", err)
	}
	base := &entity.CampaignFile{Logs: []entity.LogDef{{SessionNumber: 3, Title: "Existing"}}}
	base.Merge(parsed)

	if err := entity.Validate(base); err != nil {
		t.Fatalf("Validate after merge: %v", err)
	}
	if got := findLog(t, base, "The Ancient Map").SessionNumber; got != 4 {
		t.Errorf("first handout session = %d, want 4", got)
	}
	if got := findLog(t, base, "Secret Notes").SessionNumber; got != 5 {
		t.Errorf("second handout session = %d, want 5", got)
	}
	if got := findLog(t, base, "The Ancient Map").Summary; got != "A tattered map showing the path to the dungeon." {
		t.Errorf("fallback summary = %q", got)
	}
}

func TestParseRoll20_RichText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, bio, want string
	}{
		{"plain", "  Keeper of the Amber Temple  ", "Keeper of the Amber Temple"},
		{"entities", "Fighter &amp; poet", "Fighter & poet"},
		{"line breaks", "Born in Vallaki<br/>Raised in Krezk", "Born in Vallaki\nRaised in Krezk"},
		{"paragraphs", "<p>Fighter</p><p></p><p>Hates <i>Strahd</i></p>", "Fighter\n\nHates Strahd"},
		{"list", "<ul><li>sword</li><li>shield</li></ul>", "sword\nshield"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw, err := json.Marshal(map[string]any{
				"characters": []map[string]any{{"id": "c1", "name": "Ireena", "bio": tt.bio}},
			})
			if err != nil {
				t.Fatal(err)
			}
			cf, err := entity.ParseRoll20(bytes.NewReader(raw))
			if err != nil {
				t.Fatalf("ParseRoll20: %v", err)
			}
			if got := findEntity(t, cf, "Ireena").Description; got != tt.want {
				t.Errorf("description = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseFoundryVTT_SkipsUnnamed(t *testing.T) {
	t.Parallel()
	cf, err := entity.ParseFoundryVTT(strings.NewReader(`{"actors":[{"_id":"a1","name":""}],"journal":[{"_id":"j1"}]}`))
	if err != nil {
		t.Fatalf("ParseFoundryVTT: %v", err)
	}
	if len(cf.Entities) != 0 || len(cf.Logs) != 0 {
		t.Errorf("got %d entities and %d logs, want none", len(cf.Entities), len(cf.Logs))
	}
}
