package fit

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/lpi-control/internal/lpi"
	"github.com/banshee-data/lpi-control/internal/model"
)

// ErrInvalidBounds is returned when a search range is empty or not finite.
var ErrInvalidBounds = errors.New("invalid search bounds")

// Parameter names, in the order they appear in a search vector.
const (
	ParamDamping = "dcoef"
	ParamGainP   = "pgain"
	ParamGainI   = "igain"
	ParamLeak    = "ileak"
)

// Bounds are the [lo, hi] search ranges for each model parameter.
type Bounds struct {
	Damping [2]float64 `json:"dcoef"`
	GainP   [2]float64 `json:"pgain"`
	GainI   [2]float64 `json:"igain"`
	Leak    [2]float64 `json:"ileak"`
}

// DefaultBounds searches every parameter over (1e-8, 4).
func DefaultBounds() Bounds {
	r := [2]float64{1e-8, 4}
	return Bounds{Damping: r, GainP: r, GainI: r, Leak: r}
}

// ParamNames lists the parameters fitted for a controller kind.
func ParamNames(k lpi.Kind) []string {
	names := []string{ParamDamping, ParamGainP, ParamGainI, ParamLeak}
	return names[:k.NumParams()]
}

// Range returns the bounds for a named parameter.
func (b Bounds) Range(name string) ([2]float64, bool) {
	switch name {
	case ParamDamping:
		return b.Damping, true
	case ParamGainP:
		return b.GainP, true
	case ParamGainI:
		return b.GainI, true
	case ParamLeak:
		return b.Leak, true
	}
	return [2]float64{}, false
}

func (b *Bounds) set(name string, r [2]float64) {
	switch name {
	case ParamDamping:
		b.Damping = r
	case ParamGainP:
		b.GainP = r
	case ParamGainI:
		b.GainI = r
	case ParamLeak:
		b.Leak = r
	}
}

// Validate checks the ranges used by kind k: finite with lo < hi.
func (b Bounds) Validate(k lpi.Kind) error {
	for _, name := range ParamNames(k) {
		r, _ := b.Range(name)
		if math.IsNaN(r[0]) || math.IsInf(r[0], 0) || math.IsNaN(r[1]) || math.IsInf(r[1], 0) {
			return fmt.Errorf("%w: %s bounds must be finite, got %v", ErrInvalidBounds, name, r)
		}
		if r[0] >= r[1] {
			return fmt.Errorf("%w: %s lower bound %v must be less than upper bound %v", ErrInvalidBounds, name, r[0], r[1])
		}
	}
	return nil
}

// space maps search vectors for one controller kind onto model parameters.
type space struct {
	kind   lpi.Kind
	names  []string
	ranges [][2]float64
}

func newSpace(k lpi.Kind, b Bounds) space {
	s := space{kind: k, names: ParamNames(k)}
	for _, name := range s.names {
		r, _ := b.Range(name)
		s.ranges = append(s.ranges, r)
	}
	return s
}

func (s space) dim() int { return len(s.names) }

// vector is the inverse of params for the terms this kind has.
func (s space) vector(p model.Params) []float64 {
	x := make([]float64, len(s.names))
	for i, name := range s.names {
		switch name {
		case ParamDamping:
			x[i] = p.Damping
		case ParamGainP:
			x[i] = p.GainP
		case ParamGainI:
			x[i] = p.GainI
		case ParamLeak:
			x[i] = p.Leak
		}
	}
	return x
}

// params converts a vector of raw parameter values; missing terms are zero.
func (s space) params(x []float64) model.Params {
	var p model.Params
	for i, name := range s.names {
		switch name {
		case ParamDamping:
			p.Damping = x[i]
		case ParamGainP:
			p.GainP = x[i]
		case ParamGainI:
			p.GainI = x[i]
		case ParamLeak:
			p.Leak = x[i]
		}
	}
	return p
}

// The unconstrained optimisers search u in R^n; each coordinate is mapped
// into its range with a logistic so every probe is in bounds.

func (s space) fromUnbounded(u []float64) []float64 {
	x := make([]float64, len(u))
	for i, v := range u {
		lo, hi := s.ranges[i][0], s.ranges[i][1]
		x[i] = lo + (hi-lo)/(1+math.Exp(-v))
	}
	return x
}

func (s space) toUnbounded(x []float64) []float64 {
	u := make([]float64, len(x))
	for i, v := range x {
		lo, hi := s.ranges[i][0], s.ranges[i][1]
		f := (v - lo) / (hi - lo)
		f = math.Min(math.Max(f, 1e-12), 1-1e-12)
		u[i] = math.Log(f / (1 - f))
	}
	return u
}
