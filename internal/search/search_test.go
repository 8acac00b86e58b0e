package search

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/lorekeeper/pkg/lore"
	"github.com/MrWong99/lorekeeper/pkg/lore/memstore"
	"github.com/MrWong99/lorekeeper/pkg/lore/mock"
	embmock "github.com/MrWong99/lorekeeper/pkg/provider/embeddings/mock"
)

func newStore(t *testing.T) *memstore.Store {
	t.Helper()
	s, err := memstore.New()
	if err != nil {
		t.Fatalf("memstore.New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func chunk(id string, owner lore.Ref, sim float64) lore.ChunkMatch {
	return lore.ChunkMatch{
		Chunk:      lore.Chunk{ID: id, Owner: owner, Text: "text of " + id},
		Similarity: sim,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Semantic
// ─────────────────────────────────────────────────────────────────────────────

func TestSemantic_ThresholdKeepsOnlyStrongChunk(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)
	for _, id := range []string{"g1", "g2"} {
		if err := store.UpsertGameLog(ctx, lore.GameLog{ID: id, Title: id}); err != nil {
			t.Fatalf("UpsertGameLog: %v", err)
		}
	}
	idx := &mock.ChunkIndex{Results: []lore.ChunkMatch{
		chunk("c-low", lore.Ref{Type: lore.TypeGameLog, ID: "g2"}, 0.2),
		chunk("c-high", lore.Ref{Type: lore.TypeGameLog, ID: "g1"}, 0.9),
	}}
	emb := &embmock.Provider{EmbedResult: []float32{1, 0}}
	s := NewSemantic(emb, idx, StoreLoaders(store, store))

	got, err := s.Search(ctx, "query", SemanticQuery{Limit: 8, Threshold: 0.5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].ChunkID != "c-high" {
		t.Fatalf("got %+v, want only c-high", got)
	}
	if _, ok := got[0].Object.(lore.GameLog); !ok {
		t.Errorf("owner object is %T, want lore.GameLog", got[0].Object)
	}
	if got[0].ContentType() != lore.TypeGameLog {
		t.Errorf("content type = %q, want gamelog", got[0].ContentType())
	}
	if q := idx.SearchCalls[0].Query; q.MinSimilarity != 0.5 || q.Limit != 16 {
		t.Errorf("index query = %+v, want threshold 0.5 and twice the limit", q)
	}
}

func TestSemantic_FiltersOrdersAndSkipsOrphans(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)
	if err := store.UpsertEntity(ctx, lore.Entity{ID: "frodo", Type: lore.TypeCharacter, Name: "Frodo"}); err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}
	if err := store.UpsertEntity(ctx, lore.Entity{ID: "shire", Type: lore.TypePlace, Name: "The Shire"}); err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}
	idx := &mock.ChunkIndex{Results: []lore.ChunkMatch{
		chunk("place", lore.Ref{Type: lore.TypePlace, ID: "shire"}, 0.95),
		chunk("orphan", lore.Ref{Type: lore.TypeCharacter, ID: "deleted"}, 0.9),
		chunk("frodo-1", lore.Ref{Type: lore.TypeCharacter, ID: "frodo"}, 0.4),
		chunk("frodo-2", lore.Ref{Type: lore.TypeCharacter, ID: "frodo"}, 0.7),
	}}
	s := NewSemantic(&embmock.Provider{EmbedResult: []float32{1}}, idx, StoreLoaders(store, store))

	got, err := s.Search(ctx, "hobbit", SemanticQuery{
		Threshold:    0.1,
		ContentTypes: []lore.ContentType{lore.TypeCharacter},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	var ids []string
	for _, r := range got {
		ids = append(ids, r.ChunkID)
	}
	if want := []string{"frodo-2", "frodo-1"}; !slices.Equal(ids, want) {
		t.Errorf("chunks = %v, want %v", ids, want)
	}
}

func TestSemantic_Limit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)
	_ = store.UpsertGameLog(ctx, lore.GameLog{ID: "g"})
	owner := lore.Ref{Type: lore.TypeGameLog, ID: "g"}
	idx := &mock.ChunkIndex{Results: []lore.ChunkMatch{
		chunk("a", owner, 0.9), chunk("b", owner, 0.8), chunk("c", owner, 0.7),
	}}
	s := NewSemantic(&embmock.Provider{EmbedResult: []float32{1}}, idx, StoreLoaders(store, store))

	got, err := s.Search(ctx, "q", SemanticQuery{Limit: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d results, want 2", len(got))
	}
}

func TestSemantic_OrphansDoNotShrinkLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)
	_ = store.UpsertGameLog(ctx, lore.GameLog{ID: "g"})
	live := lore.Ref{Type: lore.TypeGameLog, ID: "g"}
	gone := lore.Ref{Type: lore.TypeGameLog, ID: "deleted"}
	if err := store.IndexChunks(ctx, []lore.Chunk{
		{ID: "orphan-1", Owner: gone, Embedding: []float32{1, 0}},
		{ID: "orphan-2", Owner: gone, Embedding: []float32{1, 0}},
		{ID: "live-1", Owner: live, Embedding: []float32{0.9, 0.1}},
		{ID: "live-2", Owner: live, Embedding: []float32{0.8, 0.2}},
	}); err != nil {
		t.Fatalf("IndexChunks: %v", err)
	}
	s := NewSemantic(&embmock.Provider{EmbedResult: []float32{1, 0}}, store, StoreLoaders(store, store))

	got, err := s.Search(ctx, "q", SemanticQuery{Limit: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || got[0].ChunkID != "live-1" || got[1].ChunkID != "live-2" {
		t.Errorf("got %+v, want live-1 and live-2", got)
	}
}

func TestSemantic_EmbeddingFailureYieldsEmpty(t *testing.T) {
	t.Parallel()
	idx := &mock.ChunkIndex{Results: []lore.ChunkMatch{chunk("a", lore.Ref{Type: lore.TypeGameLog, ID: "g"}, 1)}}
	s := NewSemantic(&embmock.Provider{EmbedErr: errors.New("unreachable")}, idx, NewLoaders())

	got, err := s.Search(context.Background(), "q", SemanticQuery{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
	if len(idx.SearchCalls) != 0 {
		t.Error("index searched despite embedding failure")
	}
}

func TestSemantic_IndexErrorPropagates(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	s := NewSemantic(&embmock.Provider{EmbedResult: []float32{1}}, &mock.ChunkIndex{SearchErr: boom}, NewLoaders())
	if _, err := s.Search(context.Background(), "q", SemanticQuery{}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestLoaders_UnregisteredTypeIsOrphan(t *testing.T) {
	t.Parallel()
	r := NewLoaders()
	r.Register(lore.TypeItem, func(_ context.Context, ids []string) (map[string]any, error) {
		out := map[string]any{}
		for _, id := range ids {
			out[id] = "item " + id
		}
		return out, nil
	})
	got, err := r.Resolve(context.Background(), []lore.Ref{
		{Type: lore.TypeItem, ID: "sword"},
		{Type: lore.TypeRace, ID: "elf"},
		{Type: lore.TypeItem, ID: "sword"},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 1 || got["item:sword"] != "item sword" {
		t.Errorf("got %v, want only item:sword", got)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// FullText
// ─────────────────────────────────────────────────────────────────────────────

func TestFullText_WeightsAndFloor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)
	for _, id := range []string{"a", "b", "c"} {
		_ = store.UpsertGameLog(ctx, lore.GameLog{ID: id, Title: "Log " + id})
	}
	idx := &mock.TextIndex{RankFunc: func(q lore.TextQuery) []lore.LogRank {
		switch {
		case slices.Contains(q.AnyOf, "fireworks"):
			return []lore.LogRank{{LogID: "a", Rank: 0.1}}
		case slices.Contains(q.AnyOf, "Gandalf"):
			return []lore.LogRank{{LogID: "b", Rank: 0.2}, {LogID: "c", Rank: 0.01}}
		default:
			return []lore.LogRank{{LogID: "b", Rank: 0.1}}
		}
	}}
	f := NewFullText(idx, store)

	entities := []lore.Entity{{
		ID: "gandalf", Type: lore.TypeCharacter, Name: "Gandalf",
		Aliases:     []string{"Mithrandir"},
		Description: "A wandering wizard with a grey cloak.",
	}}
	got, err := f.Search(ctx, "wizard fireworks", entities, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	// a: 3*0.1 = 0.3; b: 2*0.2 + 1*0.1 = 0.5; c: 2*0.01 = 0.02 < floor.
	if len(got) != 2 {
		t.Fatalf("got %d hits %+v, want 2", len(got), got)
	}
	if got[0].Log.ID != "b" || got[1].Log.ID != "a" {
		t.Errorf("order = %s, %s; want b, a", got[0].Log.ID, got[1].Log.ID)
	}
	if diff := got[0].Score - 0.5; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("b score = %v, want 0.5", got[0].Score)
	}
	if len(idx.Calls) != 3 {
		t.Errorf("text index called %d times, want 3", len(idx.Calls))
	}
}

func TestFullText_Queries(t *testing.T) {
	t.Parallel()
	f := NewFullText(&mock.TextIndex{}, newStore(t))
	qs := f.Queries("where is the ring", []lore.Entity{
		{ID: "frodo", Type: lore.TypeCharacter, Name: "Frodo", Aliases: []string{"Mr. Underhill", "frodo"}},
		{ID: "sam", Type: lore.TypeCharacter, Name: "Sam"},
	})
	if want := []string{"ring"}; !slices.Equal(qs[0].AnyOf, want) {
		t.Errorf("question terms = %v, want %v", qs[0].AnyOf, want)
	}
	if want := []string{"Frodo", "Mr. Underhill", "Sam"}; !slices.Equal(qs[1].AnyOf, want) {
		t.Errorf("names = %v, want %v", qs[1].AnyOf, want)
	}
	if !qs[2].IsEmpty() {
		t.Errorf("keywords = %v, want none without descriptions", qs[2].AnyOf)
	}
}

func TestFullText_NoEntitiesOnlyRawQuery(t *testing.T) {
	t.Parallel()
	idx := &mock.TextIndex{}
	f := NewFullText(idx, newStore(t))
	got, err := f.Search(context.Background(), "Where are the dragons?", nil, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want none", got)
	}
	if len(idx.Calls) != 1 || !slices.Equal(idx.Calls[0].AnyOf, []string{"dragons"}) {
		t.Errorf("calls = %+v, want a single question-terms query", idx.Calls)
	}
}

// A log that only mentions Rivendell is found by the lexical signal alone,
// although the question has other words and no entity of that name exists.
func TestFullText_RivendellWithoutEntity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)
	_ = store.UpsertGameLog(ctx, lore.GameLog{
		ID: "s12", SessionNumber: 12, Title: "The Council",
		FullText: "The party rested in Rivendell for a week.",
	})
	_ = store.UpsertGameLog(ctx, lore.GameLog{
		ID: "s13", SessionNumber: 13, Title: "Moria", FullText: "The party entered the mines.",
	})
	f := NewFullText(store, store)

	got, err := f.Search(ctx, "What happened at Rivendell?", nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Log.ID != "s12" {
		t.Fatalf("got %+v, want only s12", got)
	}
}

func TestFullText_IndexError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	f := NewFullText(&mock.TextIndex{Err: boom}, newStore(t))
	if _, err := f.Search(context.Background(), "q", nil, 5); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}
