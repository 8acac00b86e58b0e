// Package health serves Lorekeeper's liveness and readiness checks.
//
// GET /healthz answers 200 whenever the process can serve HTTP. GET /readyz
// runs every [Checker] concurrently and answers 503 when any of them fails.
// A checker may instead report [ErrDegraded]: the service keeps answering
// questions on its remaining backends, so readiness holds at 200 while the
// body says "degraded".
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lorekeeper/internal/resilience"
)

// checkTimeout bounds every individual check.
const checkTimeout = 5 * time.Second

// ErrDegraded marks a check result that is worth reporting but does not make
// the service unready.
var ErrDegraded = errors.New("degraded")

// Report statuses, from best to worst.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker checks one dependency, such as the lore store or a provider kind.
// Check must honour ctx.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Pinger is implemented by lore stores that can ping their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks a store connection.
func Ping(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// Breakers checks the circuit breakers of one provider kind. It fails once
// every backend is open and reports [ErrDegraded] while only some are.
func Breakers(name string, states func() map[string]resilience.State) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		st := states()
		var open []string
		for backend, s := range st {
			if s == resilience.StateOpen {
				open = append(open, backend)
			}
		}
		slices.Sort(open)
		switch {
		case len(open) == 0:
			return nil
		case len(open) == len(st):
			return fmt.Errorf("all circuits open: %s", strings.Join(open, ", "))
		}
		return fmt.Errorf("%w: circuits open: %s", ErrDegraded, strings.Join(open, ", "))
	}}
}

// Report is the /readyz response body.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the checks. The checker list is fixed by [New].
type Handler struct {
	checkers []Checker
}

// New returns a Handler running checkers on every readiness request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: slices.Clone(checkers)}
}

// Register adds /healthz and /readyz to r.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
}

// Healthz is the liveness check.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, Report{Status: StatusOK})
}

// Readyz is the readiness check.
func (h *Handler) Readyz(c *gin.Context) {
	rep := h.Check(c.Request.Context())
	code := http.StatusOK
	if rep.Status == StatusFail {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, rep)
}

// Check runs every checker and summarises the worst result.
func (h *Handler) Check(ctx context.Context) Report {
	errs := h.run(ctx)
	rep := Report{Status: StatusOK, Checks: make(map[string]string, len(h.checkers))}
	for i, ch := range h.checkers {
		switch err := errs[i]; {
		case err == nil:
			rep.Checks[ch.Name] = StatusOK
		case errors.Is(err, ErrDegraded):
			rep.Checks[ch.Name] = err.Error()
			if rep.Status == StatusOK {
				rep.Status = StatusDegraded
			}
		default:
			rep.Checks[ch.Name] = StatusFail + ": " + err.Error()
			rep.Status = StatusFail
		}
	}
	return rep
}

// Ready returns the failures of every checker, each prefixed with its name.
// Degraded results are not failures.
func (h *Handler) Ready(ctx context.Context) error {
	var failed []error
	for i, err := range h.run(ctx) {
		if err != nil && !errors.Is(err, ErrDegraded) {
			failed = append(failed, fmt.Errorf("%s: %w", h.checkers[i].Name, err))
		}
	}
	return errors.Join(failed...)
}

func (h *Handler) run(ctx context.Context) []error {
	errs := make([]error, len(h.checkers))
	var g errgroup.Group
	for i, ch := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			errs[i] = ch.Check(cctx)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
