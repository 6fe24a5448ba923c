package model

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when the closed loop has no unique equilibrium.
var ErrSingular = errors.New("system matrix is singular")

// Matrix returns the state matrix A of the enabled closed loop, so that
// x' = A*x + b*setpoint with x = [omega, y].
func (p Params) Matrix() *mat.Dense {
	return mat.NewDense(2, 2, []float64{
		-(p.GainP + p.Damping), 1,
		-p.GainI, -p.Leak,
	})
}

// Determinant of the state matrix: leak*(p+d) + i.
func (p Params) Determinant() float64 {
	return p.Leak*(p.GainP+p.Damping) + p.GainI
}

// Trace of the state matrix: -(p+d+leak).
func (p Params) Trace() float64 {
	return -(p.GainP + p.Damping + p.Leak)
}

// Discriminant of the characteristic polynomial, trace^2 - 4*det. Negative
// values mean the step response oscillates.
func (p Params) Discriminant() float64 {
	tr := p.Trace()
	return tr*tr - 4*p.Determinant()
}

// Eigenvalues returns the closed-loop poles.
func (p Params) Eigenvalues() ([]complex128, error) {
	var eig mat.Eigen
	if ok := eig.Factorize(p.Matrix(), mat.EigenNone); !ok {
		return nil, errors.New("eigen decomposition failed")
	}
	return eig.Values(nil), nil
}

// IsStable reports whether both poles lie strictly in the left half-plane.
// For a 2x2 system that is det > 0 and trace < 0.
func (p Params) IsStable() bool {
	return p.Determinant() > 0 && p.Trace() < 0
}

// IsOscillatory reports whether the poles are a complex pair.
func (p Params) IsOscillatory() bool {
	return p.Discriminant() < 0
}

// SteadyState returns the equilibrium for a constant setpoint s:
//
//	omega* = s*(leak*p + i)/det
//	y*     = s*d*i/det
//
// With no leak the integrator removes the offset entirely (omega* = s).
func (p Params) SteadyState(setpoint float64) (omega, integrator float64, err error) {
	det := p.Determinant()
	if det == 0 {
		return 0, 0, ErrSingular
	}
	omega = setpoint * (p.Leak*p.GainP + p.GainI) / det
	integrator = setpoint * p.Damping * p.GainI / det
	return omega, integrator, nil
}

// Analysis summarises the linear behaviour of a parameter set.
type Analysis struct {
	Determinant  float64      `json:"determinant"`
	Trace        float64      `json:"trace"`
	Discriminant float64      `json:"discriminant"`
	Eigenvalues  []complex128 `json:"-"`
	Stable       bool         `json:"stable"`
	Oscillatory  bool         `json:"oscillatory"`

	// SteadyStateGain is omega*/setpoint; zero when the system is singular.
	SteadyStateGain float64 `json:"steady_state_gain"`
}

// Analyze computes an Analysis for p.
func (p Params) Analyze() (Analysis, error) {
	ev, err := p.Eigenvalues()
	if err != nil {
		return Analysis{}, err
	}
	a := Analysis{
		Determinant:  p.Determinant(),
		Trace:        p.Trace(),
		Discriminant: p.Discriminant(),
		Eigenvalues:  ev,
		Stable:       p.IsStable(),
		Oscillatory:  p.IsOscillatory(),
	}
	if g, _, err := p.SteadyState(1); err == nil {
		a.SteadyStateGain = g
	}
	return a, nil
}
