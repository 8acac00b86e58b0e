package rank

import (
	"math"
	"testing"
)

func scored(pairs ...any) []Scored[string] {
	var out []Scored[string]
	for i := 0; i < len(pairs); i += 2 {
		k := pairs[i].(string)
		out = append(out, Scored[string]{Key: k, Item: k, Score: pairs[i+1].(float64)})
	}
	return out
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	t.Run("zero mean unit stddev", func(t *testing.T) {
		in := scored("a", 3.0, "b", 7.0, "c", 1.0, "d", 9.0)
		out := Normalize(in)
		var sum, sq float64
		for _, s := range out {
			sum += s.Score
		}
		mean := sum / float64(len(out))
		for _, s := range out {
			sq += (s.Score - mean) * (s.Score - mean)
		}
		std := math.Sqrt(sq / float64(len(out)))
		if math.Abs(mean) > 1e-9 {
			t.Errorf("mean = %v, want 0", mean)
		}
		if math.Abs(std-1) > 1e-9 {
			t.Errorf("stddev = %v, want 1", std)
		}
		if in[0].Score != 3 {
			t.Error("Normalize must not mutate its input")
		}
	})

	t.Run("zero variance maps to one", func(t *testing.T) {
		out := Normalize(scored("a", 0.4, "b", 0.4, "c", 0.4))
		for _, s := range out {
			if s.Score != 1 {
				t.Errorf("%s score = %v, want 1", s.Key, s.Score)
			}
		}
	})

	t.Run("single element", func(t *testing.T) {
		out := Normalize(scored("a", 0.2))
		if out[0].Score != 1 {
			t.Errorf("score = %v, want 1", out[0].Score)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if out := Normalize[string](nil); len(out) != 0 {
			t.Errorf("len = %d, want 0", len(out))
		}
	})
}

func TestFuse(t *testing.T) {
	t.Parallel()

	semantic := scored("log:1", 0.9, "log:2", 0.5, "log:3", 0.1)
	fulltext := scored("log:2", 6.0, "log:4", 3.0)

	t.Run("weighted sum", func(t *testing.T) {
		out := Fuse(Weighted[string]{List: semantic, Weight: 0.6}, Weighted[string]{List: fulltext, Weight: 0.3})
		if len(out) != 4 {
			t.Fatalf("len = %d, want 4", len(out))
		}
		if out[0].Key != "log:2" {
			t.Errorf("top = %s, want log:2 (present in both lists)", out[0].Key)
		}
		for i := 1; i < len(out); i++ {
			if out[i].Score > out[i-1].Score {
				t.Fatalf("not sorted descending at %d", i)
			}
		}
	})

	t.Run("order invariant", func(t *testing.T) {
		a := Fuse(Weighted[string]{List: semantic, Weight: 0.6}, Weighted[string]{List: fulltext, Weight: 0.3})
		b := Fuse(Weighted[string]{List: fulltext, Weight: 0.3}, Weighted[string]{List: semantic, Weight: 0.6})
		if len(a) != len(b) {
			t.Fatalf("len mismatch %d vs %d", len(a), len(b))
		}
		for i := range a {
			if a[i].Key != b[i].Key || math.Abs(a[i].Score-b[i].Score) > 1e-12 {
				t.Errorf("position %d: %s/%v vs %s/%v", i, a[i].Key, a[i].Score, b[i].Key, b[i].Score)
			}
		}
	})

	t.Run("ties ordered by key", func(t *testing.T) {
		out := Fuse(Weighted[string]{List: scored("b", 1.0, "a", 1.0), Weight: 1})
		if out[0].Key != "a" || out[1].Key != "b" {
			t.Errorf("order = %s,%s, want a,b", out[0].Key, out[1].Key)
		}
	})

	t.Run("empty lists", func(t *testing.T) {
		out := Fuse[string](Weighted[string]{Weight: 0.6}, Weighted[string]{Weight: 0.3})
		if out == nil || len(out) != 0 {
			t.Errorf("want empty non-nil slice, got %v", out)
		}
	})
}

func TestTrim(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []Scored[string]
		want []string
	}{
		{name: "empty", in: nil, want: nil},
		{name: "drops low tail", in: scored("a", 2.0, "b", 1.0, "c", 0.9, "d", -3.0), want: []string{"a", "b", "c"}},
		{name: "equal scores keep all", in: scored("a", 0.5, "b", 0.5), want: []string{"a", "b"}},
		{name: "single item kept", in: scored("a", -4.0), want: []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Trim(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d items, want %d", len(got), len(tt.want))
			}
			for i, k := range tt.want {
				if got[i].Key != k {
					t.Errorf("item %d = %s, want %s", i, got[i].Key, k)
				}
			}
		})
	}
}

func TestTrimKeepsTop(t *testing.T) {
	t.Parallel()
	lists := [][]Scored[string]{
		scored("a", 10.0, "b", 0.0, "c", 0.0, "d", 0.0),
		scored("a", 1.0, "b", 0.99, "c", 0.98),
		scored("a", 0.0, "b", -100.0),
	}
	for i, l := range lists {
		got := Trim(l)
		if len(got) == 0 || got[0].Key != "a" {
			t.Errorf("list %d: top item removed", i)
		}
	}
}

func TestTop(t *testing.T) {
	t.Parallel()
	s := scored("a", 3.0, "b", 2.0, "c", 1.0)
	if got := Top(s, 2); len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
	if got := Top(s, 0); len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}
	if got := Items(Top(s, 1)); got[0] != "a" {
		t.Errorf("item = %s, want a", got[0])
	}
}
