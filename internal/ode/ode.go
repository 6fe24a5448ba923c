// Package ode integrates systems of ordinary differential equations and
// reports the state at a caller-supplied grid of times.
//
// The adaptive methods are embedded Runge-Kutta pairs with the usual
// error-per-step control; the maximum internal step defaults to the grid
// spacing so that features narrower than a sample (e.g. a disable edge) are
// not stepped over.
package ode

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrBadTimeGrid       = errors.New("time grid must have at least two strictly increasing finite values")
	ErrStepSizeUnderflow = errors.New("step size underflow")
	ErrTooManySteps      = errors.New("maximum number of steps exceeded")
	ErrNonFiniteState    = errors.New("state became non-finite")
	ErrUnknownMethod     = errors.New("unknown integration method")
	ErrDimensionMismatch = errors.New("initial state is empty")
)

// Func evaluates dy/dt at (t, y) into dy. dy has the same length as y and
// must be fully overwritten.
type Func func(t float64, y, dy []float64)

// Method selects the integration scheme.
type Method string

const (
	RK45  Method = "RK45"  // Dormand-Prince 5(4)
	RK23  Method = "RK23"  // Bogacki-Shampine 3(2)
	Euler Method = "Euler" // explicit Euler, fixed step
)

// ParseMethod parses a method name, ignoring case. Empty selects RK45.
func ParseMethod(s string) (Method, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "RK45":
		return RK45, nil
	case "RK23":
		return RK23, nil
	case "EULER":
		return Euler, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// Options configures Solve. Zero values select the defaults.
type Options struct {
	Method   Method
	RelTol   float64 // default 1e-3
	AbsTol   float64 // default 1e-6
	MaxStep  float64 // default: spacing of the first two grid points
	MaxSteps int     // default 1e6 accepted+rejected steps
}

const (
	defaultRelTol   = 1e-3
	defaultAbsTol   = 1e-6
	defaultMaxSteps = 1_000_000

	safety    = 0.9
	minFactor = 0.2
	maxFactor = 10.0
)

func (o Options) withDefaults(times []float64) Options {
	if o.Method == "" {
		o.Method = RK45
	}
	if o.RelTol <= 0 {
		o.RelTol = defaultRelTol
	}
	if o.AbsTol <= 0 {
		o.AbsTol = defaultAbsTol
	}
	if o.MaxStep <= 0 {
		o.MaxStep = times[1] - times[0]
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = defaultMaxSteps
	}
	return o
}

// Solve integrates f from times[0] with initial state y0 and returns the
// state at every entry of times. The returned slice has len(times) rows,
// each a fresh copy of length len(y0).
func Solve(f Func, times, y0 []float64, opts Options) ([][]float64, error) {
	if err := checkGrid(times); err != nil {
		return nil, err
	}
	if len(y0) == 0 {
		return nil, ErrDimensionMismatch
	}
	opts = opts.withDefaults(times)

	var tab *tableau
	switch opts.Method {
	case RK45:
		tab = dormandPrince
	case RK23:
		tab = bogackiShampine
	case Euler:
		return solveEuler(f, times, y0, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, opts.Method)
	}

	s := newStepper(tab, len(y0))
	out := make([][]float64, len(times))
	y := append([]float64(nil), y0...)
	out[0] = append([]float64(nil), y...)

	t := times[0]
	h := math.Min(opts.MaxStep, times[1]-times[0])
	steps := 0
	for k := 1; k < len(times); k++ {
		target := times[k]
		for t < target {
			if steps >= opts.MaxSteps {
				return nil, fmt.Errorf("%w at t=%g", ErrTooManySteps, t)
			}
			steps++

			hTry := math.Min(h, target-t)
			if hTry <= 1e-12*math.Max(1, math.Abs(t)) {
				// Rounding left a sliver of the interval; snap to the target.
				if target-t <= 1e-12*math.Max(1, math.Abs(t)) {
					t = target
					break
				}
				return nil, fmt.Errorf("%w at t=%g (h=%g)", ErrStepSizeUnderflow, t, hTry)
			}

			errNorm := s.step(f, t, y, hTry, opts.RelTol, opts.AbsTol)
			if errNorm <= 1 {
				t += hTry
				copy(y, s.yNew)
				if !allFinite(y) {
					return nil, fmt.Errorf("%w at t=%g", ErrNonFiniteState, t)
				}
				factor := maxFactor
				if errNorm > 0 {
					factor = math.Min(maxFactor, safety*math.Pow(errNorm, -tab.exponent))
				}
				// Only grow from the step actually taken when it was not
				// clipped to land on the grid.
				if hTry == h {
					h = hTry * factor
				} else {
					h = math.Max(h, hTry*factor)
				}
			} else {
				h = hTry * math.Max(minFactor, safety*math.Pow(errNorm, -tab.exponent))
			}
			h = math.Min(h, opts.MaxStep)
		}
		out[k] = append([]float64(nil), y...)
	}
	return out, nil
}

func solveEuler(f Func, times, y0 []float64, opts Options) ([][]float64, error) {
	n := len(y0)
	y := append([]float64(nil), y0...)
	dy := make([]float64, n)
	out := make([][]float64, len(times))
	out[0] = append([]float64(nil), y...)

	for k := 1; k < len(times); k++ {
		t := times[k-1]
		span := times[k] - t
		sub := int(math.Ceil(span/opts.MaxStep - 1e-9))
		if sub < 1 {
			sub = 1
		}
		h := span / float64(sub)
		for i := 0; i < sub; i++ {
			f(t, y, dy)
			for j := range y {
				y[j] += h * dy[j]
			}
			t += h
		}
		if !allFinite(y) {
			return nil, fmt.Errorf("%w at t=%g", ErrNonFiniteState, times[k])
		}
		out[k] = append([]float64(nil), y...)
	}
	return out, nil
}

func checkGrid(times []float64) error {
	if len(times) < 2 {
		return ErrBadTimeGrid
	}
	for i, v := range times {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: times[%d]=%v", ErrBadTimeGrid, i, v)
		}
		if i > 0 && v <= times[i-1] {
			return fmt.Errorf("%w: times[%d]=%v <= times[%d]=%v", ErrBadTimeGrid, i, v, i-1, times[i-1])
		}
	}
	return nil
}

func allFinite(xs []float64) bool {
	for _, v := range xs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
