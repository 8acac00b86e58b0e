package search

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// Loader resolves the owners of a batch of chunks of one content type. It
// returns the loaded objects keyed by ID; IDs that do not resolve are simply
// absent from the map.
type Loader func(ctx context.Context, ids []string) (map[string]any, error)

// Loaders maps content types to the [Loader] that resolves them. It is safe
// for concurrent use.
type Loaders struct {
	mu      sync.RWMutex
	loaders map[lore.ContentType]Loader
}

// NewLoaders returns an empty registry.
func NewLoaders() *Loaders {
	return &Loaders{loaders: make(map[lore.ContentType]Loader)}
}

// StoreLoaders returns a registry resolving the six entity types through es
// (as [lore.Entity]) and game logs through ls (as [lore.GameLog]).
func StoreLoaders(es lore.EntityStore, ls lore.LogStore) *Loaders {
	r := NewLoaders()
	for _, t := range lore.EntityTypes {
		r.Register(t, entityLoader(es, t))
	}
	r.Register(lore.TypeGameLog, func(ctx context.Context, ids []string) (map[string]any, error) {
		logs, err := ls.GameLogs(ctx, ids)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(logs))
		for _, g := range logs {
			out[g.ID] = g
		}
		return out, nil
	})
	return r
}

func entityLoader(es lore.EntityStore, t lore.ContentType) Loader {
	return func(ctx context.Context, ids []string) (map[string]any, error) {
		refs := make([]lore.Ref, len(ids))
		for i, id := range ids {
			refs[i] = lore.Ref{Type: t, ID: id}
		}
		ents, err := es.Entities(ctx, refs)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(ents))
		for _, e := range ents {
			out[e.ID] = e
		}
		return out, nil
	}
}

// Register installs l for content type t, replacing any previous loader.
func (r *Loaders) Register(t lore.ContentType, l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[t] = l
}

// Resolve loads every owner in refs. The result is keyed by [lore.Ref.Key].
// Refs of a type without a registered loader are treated as orphans.
func (r *Loaders) Resolve(ctx context.Context, refs []lore.Ref) (map[string]any, error) {
	byType := make(map[lore.ContentType][]string)
	var order []lore.ContentType
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if seen[ref.Key()] {
			continue
		}
		seen[ref.Key()] = true
		if _, ok := byType[ref.Type]; !ok {
			order = append(order, ref.Type)
		}
		byType[ref.Type] = append(byType[ref.Type], ref.ID)
	}

	out := make(map[string]any, len(seen))
	for _, t := range order {
		r.mu.RLock()
		load, ok := r.loaders[t]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		objs, err := load(ctx, byType[t])
		if err != nil {
			return nil, fmt.Errorf("load %s owners: %w", t, err)
		}
		for id, obj := range objs {
			out[lore.Ref{Type: t, ID: id}.Key()] = obj
		}
	}
	return out, nil
}
