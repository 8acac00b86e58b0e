// Package rank normalises, fuses and trims scored retrieval results.
//
// Every retrieval signal (vector similarity, full-text rank, trigram
// similarity) produces scores on its own scale. The functions here bring them
// onto a common z-score scale, combine them with per-signal weights keyed by a
// global identifier, and drop statistical outliers from the tail.
package rank

import (
	"cmp"
	"math"
	"slices"
)

// Scored is one ranked item. Key is the global identifier used to merge the
// same item across signals (see lore.Ref.Key).
type Scored[T any] struct {
	Key   string
	Item  T
	Score float64
}

// Weighted pairs a result list with its fusion weight.
type Weighted[T any] struct {
	List   []Scored[T]
	Weight float64
}

// Normalize returns a copy of in with every score replaced by its z-score
// (population standard deviation). When all scores are equal the standard
// deviation is zero and every score becomes exactly 1, so a signal that cannot
// discriminate still contributes its full weight to fusion.
func Normalize[T any](in []Scored[T]) []Scored[T] {
	out := make([]Scored[T], len(in))
	copy(out, in)
	if len(out) == 0 {
		return out
	}
	mean, std := stats(out)
	for i := range out {
		if std == 0 {
			out[i].Score = 1
			continue
		}
		out[i].Score = (out[i].Score - mean) / std
	}
	return out
}

// Fuse normalises each list independently and sums weight × normalised score
// per key. An item absent from a list receives nothing from it. The item
// payload of the last list that contains a key wins. The result is sorted by
// score descending; equal scores are ordered by key so the ranking does not
// depend on the order in which lists are passed.
func Fuse[T any](lists ...Weighted[T]) []Scored[T] {
	byKey := make(map[string]*Scored[T])
	var order []string
	for _, w := range lists {
		for _, s := range Normalize(w.List) {
			acc, ok := byKey[s.Key]
			if !ok {
				acc = &Scored[T]{Key: s.Key}
				byKey[s.Key] = acc
				order = append(order, s.Key)
			}
			acc.Item = s.Item
			acc.Score += w.Weight * s.Score
		}
	}
	out := make([]Scored[T], 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	Sort(out)
	return out
}

// Trim keeps the items whose score is strictly greater than mean − stddev of
// the list, preserving order. When every score is equal nothing is an outlier
// and the list is returned unchanged. The highest-scoring item is never
// removed.
func Trim[T any](in []Scored[T]) []Scored[T] {
	if len(in) == 0 {
		return []Scored[T]{}
	}
	mean, std := stats(in)
	if std == 0 {
		out := make([]Scored[T], len(in))
		copy(out, in)
		return out
	}
	cutoff := mean - std
	out := make([]Scored[T], 0, len(in))
	for _, s := range in {
		if s.Score > cutoff {
			out = append(out, s)
		}
	}
	return out
}

// Sort orders s by score descending, breaking ties by key ascending.
func Sort[T any](s []Scored[T]) {
	slices.SortStableFunc(s, func(a, b Scored[T]) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
}

// Items returns the payloads of s in order.
func Items[T any](s []Scored[T]) []T {
	out := make([]T, len(s))
	for i, v := range s {
		out[i] = v.Item
	}
	return out
}

// Top returns at most n leading elements of s. A non-positive n returns s.
func Top[T any](s []Scored[T], n int) []Scored[T] {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}

func stats[T any](s []Scored[T]) (mean, std float64) {
	for _, v := range s {
		mean += v.Score
	}
	mean /= float64(len(s))
	var variance float64
	for _, v := range s {
		d := v.Score - mean
		variance += d * d
	}
	variance /= float64(len(s))
	std = math.Sqrt(variance)
	// Rounding can leave a tiny residue for identical scores.
	if std < 1e-12 {
		std = 0
	}
	return mean, std
}
