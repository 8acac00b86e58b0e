package entity

import (
	"errors"
	"fmt"
)

// Validate checks a campaign before import.
//
// Rules:
//   - Every entity has a name and an entity type.
//   - Entity IDs (explicit or derived) are unique per type.
//   - Every log has a positive session number and a title.
//   - Session numbers and log IDs are unique.
//   - An explicit previous link names a log of the same campaign.
//
// All violations are reported together.
func Validate(cf *CampaignFile) error {
	if cf == nil {
		return errors.New("entity: campaign must not be nil")
	}
	var errs []error

	seen := make(map[string]int)
	for i, d := range cf.Entities {
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("entities[%d]: name must not be empty", i))
		}
		if !d.Type.IsEntity() {
			errs = append(errs, fmt.Errorf("entities[%d]: type %q is not an entity type", i, d.Type))
			continue
		}
		key := d.Entity().Ref().Key()
		if j, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("entities[%d]: duplicate of entities[%d] (%s)", i, j, key))
			continue
		}
		seen[key] = i
	}

	ids := make(map[string]int)
	sessions := make(map[int]int)
	for i, d := range cf.Logs {
		if d.SessionNumber <= 0 {
			errs = append(errs, fmt.Errorf("logs[%d]: session number must be positive", i))
		} else if j, dup := sessions[d.SessionNumber]; dup {
			errs = append(errs, fmt.Errorf("logs[%d]: session %d already used by logs[%d]", i, d.SessionNumber, j))
		} else {
			sessions[d.SessionNumber] = i
		}
		if d.Title == "" {
			errs = append(errs, fmt.Errorf("logs[%d]: title must not be empty", i))
		}
		if j, dup := ids[d.LogID()]; dup {
			errs = append(errs, fmt.Errorf("logs[%d]: id %q already used by logs[%d]", i, d.LogID(), j))
		} else {
			ids[d.LogID()] = i
		}
	}
	for i, d := range cf.Logs {
		if d.PreviousID == "" {
			continue
		}
		if _, ok := ids[d.PreviousID]; !ok || d.PreviousID == d.LogID() {
			errs = append(errs, fmt.Errorf("logs[%d]: previous log %q not found", i, d.PreviousID))
		}
	}

	return errors.Join(errs...)
}
