// Package dice evaluates tabletop dice expressions such as "2d6+3".
package dice

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

// Limits on a single expression.
const (
	MaxCount = 100
	MaxSides = 1000
)

// ErrInvalidExpression is wrapped by every [Parse] error.
var ErrInvalidExpression = errors.New("dice: invalid expression")

// Expression is a parsed NdS+M expression.
type Expression struct {
	Count    int
	Sides    int
	Modifier int
}

// String renders e in canonical form, e.g. "2d6+3" or "1d20".
func (e Expression) String() string {
	s := fmt.Sprintf("%dd%d", e.Count, e.Sides)
	switch {
	case e.Modifier > 0:
		s += "+" + strconv.Itoa(e.Modifier)
	case e.Modifier < 0:
		s += strconv.Itoa(e.Modifier)
	}
	return s
}

// Result is the outcome of rolling an [Expression].
type Result struct {
	Expression string `json:"expression"`
	Rolls      []int  `json:"rolls"`
	Modifier   int    `json:"modifier,omitempty"`
	Total      int    `json:"total"`
}

// Parse reads NdS, NdS+M or NdS-M. N defaults to 1 when omitted. Case and
// surrounding whitespace are ignored.
func Parse(expr string) (Expression, error) {
	s := strings.ToLower(strings.ReplaceAll(expr, " ", ""))
	countStr, rest, ok := strings.Cut(s, "d")
	if !ok {
		return Expression{}, fmt.Errorf("%w %q: missing 'd'", ErrInvalidExpression, expr)
	}

	e := Expression{Count: 1}
	if countStr != "" {
		n, err := strconv.Atoi(countStr)
		if err != nil {
			return Expression{}, fmt.Errorf("%w %q: bad dice count", ErrInvalidExpression, expr)
		}
		e.Count = n
	}

	sidesStr := rest
	if i := strings.IndexAny(rest, "+-"); i >= 0 {
		sidesStr = rest[:i]
		m, err := strconv.Atoi(rest[i:])
		if err != nil {
			return Expression{}, fmt.Errorf("%w %q: bad modifier", ErrInvalidExpression, expr)
		}
		e.Modifier = m
	}
	n, err := strconv.Atoi(sidesStr)
	if err != nil {
		return Expression{}, fmt.Errorf("%w %q: bad sides", ErrInvalidExpression, expr)
	}
	e.Sides = n

	if e.Count < 1 || e.Count > MaxCount {
		return Expression{}, fmt.Errorf("%w %q: dice count must be between 1 and %d", ErrInvalidExpression, expr, MaxCount)
	}
	if e.Sides < 1 || e.Sides > MaxSides {
		return Expression{}, fmt.Errorf("%w %q: sides must be between 1 and %d", ErrInvalidExpression, expr, MaxSides)
	}
	return e, nil
}

// Roller rolls expressions. The zero value uses the global source.
type Roller struct {
	// IntN returns a value in [0, n). Nil selects math/rand/v2.IntN.
	IntN func(n int) int
}

// Roll parses expr and rolls it.
func (r Roller) Roll(expr string) (Result, error) {
	e, err := Parse(expr)
	if err != nil {
		return Result{}, err
	}
	return r.RollExpression(e), nil
}

// RollExpression rolls an already parsed expression.
func (r Roller) RollExpression(e Expression) Result {
	intN := r.IntN
	if intN == nil {
		intN = rand.IntN
	}
	res := Result{Expression: e.String(), Rolls: make([]int, e.Count), Modifier: e.Modifier, Total: e.Modifier}
	for i := range res.Rolls {
		res.Rolls[i] = intN(e.Sides) + 1
		res.Total += res.Rolls[i]
	}
	return res
}
