// Package lpi implements a leaky proportional-integral (LPI) controller: a PI
// controller whose integral term decays over time so that a sustained error
// cannot wind the accumulator up without bound.
//
// A Controller is owned by the loop that drives it and is not safe for
// concurrent use.
package lpi

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidInput is returned when a setpoint, measurement, or dt is not
	// a usable number. Controller state is left untouched.
	ErrInvalidInput = errors.New("invalid controller input")

	// ErrInvalidParams is returned when controller parameters are out of range.
	ErrInvalidParams = errors.New("invalid controller parameters")
)

// Params holds the tunable coefficients of the controller.
type Params struct {
	LeakRate float64 `json:"leak_rate"` // integrator leak per second, in [0, 1]
	GainP    float64 `json:"gain_p"`
	GainI    float64 `json:"gain_i"`
}

// Validate checks that all coefficients are finite and the leak rate lies in [0, 1].
func (p Params) Validate() error {
	if !isFinite(p.GainP) {
		return fmt.Errorf("%w: gain_p must be finite, got %v", ErrInvalidParams, p.GainP)
	}
	if !isFinite(p.GainI) {
		return fmt.Errorf("%w: gain_i must be finite, got %v", ErrInvalidParams, p.GainI)
	}
	if !isFinite(p.LeakRate) || p.LeakRate < 0 || p.LeakRate > 1 {
		return fmt.Errorf("%w: leak_rate must be between 0 and 1, got %v", ErrInvalidParams, p.LeakRate)
	}
	return nil
}

// ForKind returns a copy of p with the terms that the given controller kind
// does not have forced to zero.
func (p Params) ForKind(k Kind) Params {
	switch k {
	case KindPI:
		p.LeakRate = 0
	case KindP:
		p.LeakRate = 0
		p.GainI = 0
	}
	return p
}

// State is a snapshot of a controller's accumulator and coefficients.
type State struct {
	Params
	Integral float64 `json:"integral"`
}

// Controller is a single-loop leaky PI controller.
type Controller struct {
	params   Params
	integral float64
}

// New creates a controller with an empty integrator.
func New(p Params) (*Controller, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Controller{params: p}, nil
}

// Step advances the controller by dt seconds and returns the control output.
//
//	error    = setpoint - measurement
//	integral = integral*(1 - leak*dt) + error*dt
//	output   = gain_p*error + gain_i*integral
func (c *Controller) Step(setpoint, measurement, dt float64) (float64, error) {
	if !isFinite(setpoint) || !isFinite(measurement) {
		return 0, fmt.Errorf("%w: setpoint=%v measurement=%v", ErrInvalidInput, setpoint, measurement)
	}
	if err := checkDt(dt); err != nil {
		return 0, err
	}

	e := setpoint - measurement
	next := c.integral*c.decay(dt) + e*dt
	out := c.params.GainP*e + c.params.GainI*next
	if !isFinite(next) || !isFinite(out) {
		return 0, fmt.Errorf("%w: integral overflow at error=%v dt=%v", ErrInvalidInput, e, dt)
	}

	c.integral = next
	return out, nil
}

// Coast advances the controller by dt seconds while it is disabled. No error
// is integrated; the accumulator only leaks, and the output is the integral
// term alone.
func (c *Controller) Coast(dt float64) (float64, error) {
	if err := checkDt(dt); err != nil {
		return 0, err
	}
	c.integral *= c.decay(dt)
	return c.params.GainI * c.integral, nil
}

// Reset empties the integrator.
func (c *Controller) Reset() {
	c.integral = 0
}

// Integral returns the current accumulator value.
func (c *Controller) Integral() float64 {
	return c.integral
}

// SetIntegral seeds the accumulator, e.g. when resuming a session.
func (c *Controller) SetIntegral(v float64) error {
	if !isFinite(v) {
		return fmt.Errorf("%w: integral must be finite, got %v", ErrInvalidInput, v)
	}
	c.integral = v
	return nil
}

// Params returns the controller coefficients.
func (c *Controller) Params() Params {
	return c.params
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	return State{Params: c.params, Integral: c.integral}
}

// decay is the fraction of the integral retained over dt. Clamped at zero so
// a long tick with a strong leak empties the accumulator rather than
// flipping its sign.
func (c *Controller) decay(dt float64) float64 {
	return math.Max(0, 1-c.params.LeakRate*dt)
}

func checkDt(dt float64) error {
	if !isFinite(dt) || dt < 0 {
		return fmt.Errorf("%w: dt must be finite and non-negative, got %v", ErrInvalidInput, dt)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
