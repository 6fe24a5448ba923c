package signal

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
)

// ErrBadSamples is returned when sample points cannot be interpolated.
var ErrBadSamples = errors.New("samples must have equal length >= 2 and strictly increasing times")

// Interpolator is a piecewise-linear fit through sampled points that
// extrapolates linearly from the end segments.
type Interpolator struct {
	pl     interp.PiecewiseLinear
	xs, ys []float64
}

// NewInterpolator fits xs (strictly increasing) against ys. The inputs are
// copied.
func NewInterpolator(xs, ys []float64) (*Interpolator, error) {
	if len(xs) < 2 || len(xs) != len(ys) {
		return nil, fmt.Errorf("%w: len(xs)=%d len(ys)=%d", ErrBadSamples, len(xs), len(ys))
	}
	for i := 1; i < len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return nil, fmt.Errorf("%w: xs[%d]=%v after xs[%d]=%v", ErrBadSamples, i, xs[i], i-1, xs[i-1])
		}
	}
	for i, y := range ys {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, fmt.Errorf("%w: ys[%d] is %v", ErrBadSamples, i, y)
		}
	}

	ip := &Interpolator{
		xs: append([]float64(nil), xs...),
		ys: append([]float64(nil), ys...),
	}
	if err := ip.pl.Fit(ip.xs, ip.ys); err != nil {
		return nil, fmt.Errorf("fit interpolator: %w", err)
	}
	return ip, nil
}

// At returns the interpolated value at x.
func (ip *Interpolator) At(x float64) float64 {
	n := len(ip.xs)
	switch {
	case x < ip.xs[0]:
		return extrapolate(ip.xs[0], ip.ys[0], ip.xs[1], ip.ys[1], x)
	case x > ip.xs[n-1]:
		return extrapolate(ip.xs[n-2], ip.ys[n-2], ip.xs[n-1], ip.ys[n-1], x)
	}
	return ip.pl.Predict(x)
}

// Domain returns the first and last sample times.
func (ip *Interpolator) Domain() (lo, hi float64) {
	return ip.xs[0], ip.xs[len(ip.xs)-1]
}

func extrapolate(x0, y0, x1, y1, x float64) float64 {
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}

// Interpolated returns a Func through the given samples.
func Interpolated(xs, ys []float64) (Func, error) {
	ip, err := NewInterpolator(xs, ys)
	if err != nil {
		return nil, err
	}
	return ip.At, nil
}

// GateFromSamples interpolates 0/1 samples and reports true wherever the
// interpolated value is nonzero, so a gate switching between samples reads
// as set across the whole transition.
func GateFromSamples(xs, vs []float64) (Gate, error) {
	ip, err := NewInterpolator(xs, vs)
	if err != nil {
		return nil, err
	}
	return func(t float64) bool {
		return ip.At(t) != 0
	}, nil
}

// Linspace returns n evenly spaced values from a to b inclusive.
func Linspace(a, b float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{a}
	}
	return floats.Span(make([]float64, n), a, b)
}
