package entity_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/lorekeeper/internal/entity"
	"github.com/MrWong99/lorekeeper/pkg/lore"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *entity.CampaignFile {
		return &entity.CampaignFile{
			Entities: []entity.EntityDef{
				{Name: "Gandalf", Type: lore.TypeCharacter},
				{Name: "Gandalf", Type: lore.TypePlace},
			},
			Logs: []entity.LogDef{
				{SessionNumber: 1, Title: "One"},
				{SessionNumber: 2, Title: "Two", PreviousID: "session-1"},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(cf *entity.CampaignFile)
		wantErr string
	}{
		{name: "valid", mutate: func(*entity.CampaignFile) {}},
		{
			name:    "empty name",
			mutate:  func(cf *entity.CampaignFile) { cf.Entities[0].Name = "" },
			wantErr: "name must not be empty",
		},
		{
			name:    "game log is not an entity type",
			mutate:  func(cf *entity.CampaignFile) { cf.Entities[0].Type = lore.TypeGameLog },
			wantErr: "not an entity type",
		},
		{
			name:    "duplicate entity",
			mutate:  func(cf *entity.CampaignFile) { cf.Entities[1].Type = lore.TypeCharacter },
			wantErr: "duplicate of entities[0]",
		},
		{
			name:    "zero session",
			mutate:  func(cf *entity.CampaignFile) { cf.Logs[0].SessionNumber = 0 },
			wantErr: "session number must be positive",
		},
		{
			name:    "duplicate session",
			mutate:  func(cf *entity.CampaignFile) { cf.Logs[1].SessionNumber = 1; cf.Logs[1].ID = "other" },
			wantErr: "session 1 already used",
		},
		{
			name:    "missing title",
			mutate:  func(cf *entity.CampaignFile) { cf.Logs[1].Title = "" },
			wantErr: "title must not be empty",
		},
		{
			name:    "duplicate id",
			mutate:  func(cf *entity.CampaignFile) { cf.Logs[1].ID = "session-1"; cf.Logs[1].PreviousID = "" },
			wantErr: `id "session-1" already used`,
		},
		{
			name:    "dangling previous",
			mutate:  func(cf *entity.CampaignFile) { cf.Logs[1].PreviousID = "session-9" },
			wantErr: `previous log "session-9" not found`,
		},
		{
			name:    "self previous",
			mutate:  func(cf *entity.CampaignFile) { cf.Logs[0].PreviousID = "session-1" },
			wantErr: `previous log "session-1" not found`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cf := valid()
			tt.mutate(cf)
			err := entity.Validate(cf)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate: expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate: error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllViolations(t *testing.T) {
	t.Parallel()

	cf := &entity.CampaignFile{
		Entities: []entity.EntityDef{{Type: lore.TypeCharacter, ID: "x"}},
		Logs:     []entity.LogDef{{SessionNumber: -1}},
	}
	err := entity.Validate(cf)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"name must not be empty", "session number must be positive", "title must not be empty"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestValidate_Nil(t *testing.T) {
	t.Parallel()

	if err := entity.Validate(nil); err == nil {
		t.Fatal("expected error for nil campaign")
	}
}
