package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// UpsertEntity implements [lore.EntityStore].
func (s *Store) UpsertEntity(_ context.Context, e lore.Entity) error {
	if !e.Type.IsEntity() {
		return fmt.Errorf("memstore: upsert entity %q: invalid type %q", e.ID, e.Type)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Aliases = slices.Clone(e.Aliases)
	s.entities[e.Ref().Key()] = e
	s.aliases[e.Ref().Key()] = e.AllAliases()
	return nil
}

// Entities implements [lore.EntityStore].
func (s *Store) Entities(_ context.Context, refs []lore.Ref) ([]lore.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lore.Entity, 0, len(refs))
	for _, r := range refs {
		if e, ok := s.entities[r.Key()]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListEntities implements [lore.EntityStore].
func (s *Store) ListEntities(_ context.Context, f lore.EntityFilter) ([]lore.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lore.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b lore.Entity) int {
		if c := cmp.Compare(a.Type, b.Type); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out, nil
}

// MatchAliases implements [lore.AliasIndex] with pg_trgm-compatible
// similarity.
func (s *Store) MatchAliases(_ context.Context, phrase string, q lore.AliasQuery) ([]lore.AliasMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []lore.AliasMatch
	for _, set := range s.aliases {
		for _, a := range set {
			if q.MinLength > 0 && utf8.RuneCountInString(a.Name) < q.MinLength {
				continue
			}
			sim := Similarity(a.Name, phrase)
			if sim <= q.Threshold {
				continue
			}
			out = append(out, lore.AliasMatch{Alias: a.Name, Entity: a.Entity, Similarity: sim})
		}
	}
	slices.SortFunc(out, func(a, b lore.AliasMatch) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Entity.Key(), b.Entity.Key()); c != 0 {
			return c
		}
		return cmp.Compare(a.Alias, b.Alias)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// UpsertGameLog implements [lore.LogStore].
func (s *Store) UpsertGameLog(_ context.Context, g lore.GameLog) error {
	if g.ID == "" {
		return fmt.Errorf("memstore: upsert game log: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[g.ID] = g
	return nil
}

// GameLogs implements [lore.LogStore].
func (s *Store) GameLogs(_ context.Context, ids []string) ([]lore.GameLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lore.GameLog, 0, len(ids))
	for _, id := range ids {
		if g, ok := s.logs[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

// AllGameLogs implements [lore.LogStore].
func (s *Store) AllGameLogs(_ context.Context) ([]lore.GameLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lore.GameLog, 0, len(s.logs))
	for _, g := range s.logs {
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b lore.GameLog) int {
		if c := cmp.Compare(a.SessionNumber, b.SessionNumber); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}
