package tokens

// Budget tracks token consumption against a fixed limit. Consumption is
// monotonic: once [Budget.TryAdd] rejects an addition the budget is marked
// exhausted and every later TryAdd is rejected too, even if the new item would
// fit. This keeps greedy packing from skipping an item and then including a
// smaller one after it.
type Budget struct {
	limit     int
	used      int
	exhausted bool
}

// NewBudget returns a Budget with the given limit and an initial consumption of
// used tokens.
func NewBudget(limit, used int) *Budget {
	return &Budget{limit: limit, used: used}
}

// TryAdd consumes n tokens if they fit within the limit and the budget has not
// been exhausted yet. It reports whether the tokens were consumed.
func (b *Budget) TryAdd(n int) bool {
	if b.exhausted || b.used+n > b.limit {
		b.exhausted = true
		return false
	}
	b.used += n
	return true
}

// Used returns the number of tokens consumed so far.
func (b *Budget) Used() int { return b.used }

// Remaining returns the number of tokens left before the limit. It is never
// negative.
func (b *Budget) Remaining() int {
	return max(b.limit-b.used, 0)
}

// Exhausted reports whether an addition has been rejected.
func (b *Budget) Exhausted() bool { return b.exhausted }
