// Package model describes the closed-loop system formed by an LPI controller
// driving a first-order plant with unit inertia and linear damping:
//
//	e      = setpoint(t) - omega
//	omega' = -d*omega + y + p*e
//	y'     = -leak*y + i*e
//
// omega is the plant output (angular velocity) and y is the integrator
// output, i.e. gain_i times the controller's accumulator. While the disable
// gate is set, the error terms drop out and y bleeds off at the leak rate.
package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/lpi-control/internal/lpi"
	"github.com/banshee-data/lpi-control/internal/ode"
	"github.com/banshee-data/lpi-control/internal/signal"
)

var (
	// ErrInvalidParams is returned for non-finite model parameters.
	ErrInvalidParams = errors.New("invalid model parameters")
	// ErrBadInitialState is returned when an initial state cannot be used.
	ErrBadInitialState = errors.New("invalid initial state")
)

// Params are the coefficients of the closed-loop model. The JSON names follow
// the ones used by recorded fit results.
type Params struct {
	Damping float64 `json:"dcoef"`
	GainP   float64 `json:"pgain"`
	GainI   float64 `json:"igain"`
	Leak    float64 `json:"ileak"`
}

// Validate checks that every coefficient is finite.
func (p Params) Validate() error {
	for name, v := range map[string]float64{
		"dcoef": p.Damping,
		"pgain": p.GainP,
		"igain": p.GainI,
		"ileak": p.Leak,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidParams, name, v)
		}
	}
	return nil
}

// Controller returns the discrete controller coefficients equivalent to p.
func (p Params) Controller() lpi.Params {
	return lpi.Params{LeakRate: p.Leak, GainP: p.GainP, GainI: p.GainI}
}

// ForKind zeroes the terms the given controller kind does not have.
func (p Params) ForKind(k lpi.Kind) Params {
	switch k {
	case lpi.KindPI:
		p.Leak = 0
	case lpi.KindP:
		p.Leak = 0
		p.GainI = 0
	}
	return p
}

// System couples model parameters with the setpoint and disable inputs.
type System struct {
	Params
	Setpoint signal.Func
	Disable  signal.Gate
}

// NewSystem validates p and returns a system. A nil disable gate means the
// controller is always enabled; a nil setpoint is an error.
func NewSystem(p Params, setpoint signal.Func, disable signal.Gate) (*System, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if setpoint == nil {
		return nil, fmt.Errorf("%w: setpoint function is required", ErrInvalidParams)
	}
	if disable == nil {
		disable = signal.Never
	}
	return &System{Params: p, Setpoint: setpoint, Disable: disable}, nil
}

// Derivative evaluates the right-hand side of the model. y = [omega, y].
func (s *System) Derivative(t float64, y, dy []float64) {
	if s.Disable(t) {
		dy[0] = -s.Damping*y[0] + y[1]
		dy[1] = -s.Leak * y[1]
		return
	}
	e := s.Setpoint(t) - y[0]
	dy[0] = -s.Damping*y[0] + y[1] + s.GainP*e
	dy[1] = -s.Leak*y[1] + s.GainI*e
}

// Trajectory is the model state sampled on a time grid.
type Trajectory struct {
	T          []float64 `json:"t"`
	Omega      []float64 `json:"omega"`
	Integrator []float64 `json:"integrator"`
}

// Final returns the last sampled state.
func (tr *Trajectory) Final() (omega, integrator float64) {
	n := len(tr.T) - 1
	return tr.Omega[n], tr.Integrator[n]
}

// Solve integrates the model over times starting from y0 = [omega, y]. A
// nil y0 starts at rest.
func (s *System) Solve(times, y0 []float64, opts ode.Options) (*Trajectory, error) {
	y, err := initialState(y0)
	if err != nil {
		return nil, err
	}
	ys, err := ode.Solve(s.Derivative, times, y, opts)
	if err != nil {
		return nil, fmt.Errorf("solve model: %w", err)
	}

	tr := &Trajectory{
		T:          append([]float64(nil), times...),
		Omega:      make([]float64, len(ys)),
		Integrator: make([]float64, len(ys)),
	}
	for i, row := range ys {
		tr.Omega[i] = row[0]
		tr.Integrator[i] = row[1]
	}
	return tr, nil
}

// Discrete runs the sampled-time version of the loop: an lpi.Controller is
// stepped once per grid interval against an explicit-Euler plant, coasting
// while the disable gate is set. For a fine grid it tracks Solve.
//
// The controller requires a leak rate in [0, 1].
func (s *System) Discrete(times, y0 []float64) (*Trajectory, error) {
	if len(times) < 2 {
		return nil, ode.ErrBadTimeGrid
	}
	y, err := initialState(y0)
	if err != nil {
		return nil, err
	}
	ctrl, err := lpi.New(s.Controller())
	if err != nil {
		return nil, fmt.Errorf("discrete model: %w", err)
	}
	switch {
	case s.GainI != 0:
		if err := ctrl.SetIntegral(y[1] / s.GainI); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadInitialState, err)
		}
	case y[1] != 0:
		return nil, fmt.Errorf("%w: integrator output %v with zero gain_i", ErrBadInitialState, y[1])
	}

	tr := &Trajectory{
		T:          append([]float64(nil), times...),
		Omega:      make([]float64, len(times)),
		Integrator: make([]float64, len(times)),
	}
	omega := y[0]
	tr.Omega[0] = omega
	tr.Integrator[0] = y[1]

	for k := 1; k < len(times); k++ {
		t := times[k-1]
		dt := times[k] - t
		if !(dt > 0) {
			return nil, fmt.Errorf("%w: times[%d]=%v", ode.ErrBadTimeGrid, k, times[k])
		}

		var u float64
		if s.Disable(t) {
			u, err = ctrl.Coast(dt)
		} else {
			u, err = ctrl.Step(s.Setpoint(t), omega, dt)
		}
		if err != nil {
			return nil, fmt.Errorf("discrete model at t=%g: %w", t, err)
		}

		omega += dt * (-s.Damping*omega + u)
		if math.IsNaN(omega) || math.IsInf(omega, 0) {
			return nil, fmt.Errorf("discrete model at t=%g: %w", t, ode.ErrNonFiniteState)
		}
		tr.Omega[k] = omega
		tr.Integrator[k] = s.GainI * ctrl.Integral()
	}
	return tr, nil
}

func initialState(y0 []float64) ([]float64, error) {
	if y0 == nil {
		return []float64{0, 0}, nil
	}
	if len(y0) != 2 {
		return nil, fmt.Errorf("%w: want [omega, integrator], got %d values", ErrBadInitialState, len(y0))
	}
	for _, v := range y0 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %v", ErrBadInitialState, y0)
		}
	}
	return append([]float64(nil), y0...), nil
}
