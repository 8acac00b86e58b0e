package tokens

import "testing"

func TestHeuristicCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "short", text: "abc", want: 0},
		{name: "exact", text: "abcdefgh", want: 2},
		{name: "runes not bytes", text: "ääää", want: 1},
	}
	c := Heuristic()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Count(tt.text); got != tt.want {
				t.Errorf("Count(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestNilCounterUsesHeuristic(t *testing.T) {
	t.Parallel()
	var c *Counter
	if got := c.Count("12345678"); got != 2 {
		t.Errorf("Count = %d, want 2", got)
	}
}

func TestCountAll(t *testing.T) {
	t.Parallel()
	c := Heuristic()
	if got := c.CountAll("abcd", "", "abcdefgh"); got != 3 {
		t.Errorf("CountAll = %d, want 3", got)
	}
}

func TestBudget(t *testing.T) {
	t.Parallel()

	t.Run("accepts within limit", func(t *testing.T) {
		b := NewBudget(10, 2)
		if !b.TryAdd(8) {
			t.Fatal("expected 8 tokens to fit")
		}
		if b.Used() != 10 || b.Remaining() != 0 {
			t.Errorf("used=%d remaining=%d, want 10/0", b.Used(), b.Remaining())
		}
	})

	t.Run("monotonic after overflow", func(t *testing.T) {
		b := NewBudget(10, 0)
		if b.TryAdd(11) {
			t.Fatal("expected overflow")
		}
		if !b.Exhausted() {
			t.Error("expected budget to be exhausted")
		}
		if b.TryAdd(1) {
			t.Error("small addition after overflow must be rejected")
		}
		if b.Used() != 0 {
			t.Errorf("used = %d, want 0", b.Used())
		}
	})

	t.Run("initial usage above limit", func(t *testing.T) {
		b := NewBudget(5, 7)
		if b.Remaining() != 0 {
			t.Errorf("remaining = %d, want 0", b.Remaining())
		}
		if b.TryAdd(0) {
			t.Error("nothing fits when already over the limit")
		}
	})
}
