package ode

import "math"

// tableau is the Butcher tableau of an embedded Runge-Kutta pair.
type tableau struct {
	c []float64
	a [][]float64
	b []float64 // propagated (higher-order) weights
	e []float64 // b minus the embedded lower-order weights

	// exponent is 1/(q+1) where q is the order of the embedded solution.
	exponent float64
}

var dormandPrince = &tableau{
	c: []float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1},
	a: [][]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	},
	b: []float64{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84, 0},
	e: []float64{
		35.0/384 - 5179.0/57600,
		0,
		500.0/1113 - 7571.0/16695,
		125.0/192 - 393.0/640,
		-2187.0/6784 + 92097.0/339200,
		11.0/84 - 187.0/2100,
		-1.0 / 40,
	},
	exponent: 1.0 / 5,
}

var bogackiShampine = &tableau{
	c: []float64{0, 1.0 / 2, 3.0 / 4, 1},
	a: [][]float64{
		{},
		{1.0 / 2},
		{0, 3.0 / 4},
		{2.0 / 9, 1.0 / 3, 4.0 / 9},
	},
	b: []float64{2.0 / 9, 1.0 / 3, 4.0 / 9, 0},
	e: []float64{
		2.0/9 - 7.0/24,
		1.0/3 - 1.0/4,
		4.0/9 - 1.0/3,
		-1.0 / 8,
	},
	exponent: 1.0 / 3,
}

// stepper holds the scratch buffers for one embedded RK step.
type stepper struct {
	tab  *tableau
	k    [][]float64
	yTmp []float64
	yNew []float64
}

func newStepper(tab *tableau, n int) *stepper {
	k := make([][]float64, len(tab.c))
	for i := range k {
		k[i] = make([]float64, n)
	}
	return &stepper{
		tab:  tab,
		k:    k,
		yTmp: make([]float64, n),
		yNew: make([]float64, n),
	}
}

// step computes a trial step of size h from (t, y) into s.yNew and returns
// the RMS error norm scaled by the tolerances. A norm <= 1 means accept.
func (s *stepper) step(f Func, t float64, y []float64, h, rtol, atol float64) float64 {
	tab := s.tab
	for i := range tab.c {
		copy(s.yTmp, y)
		for j, aij := range tab.a[i] {
			if aij == 0 {
				continue
			}
			for n := range s.yTmp {
				s.yTmp[n] += h * aij * s.k[j][n]
			}
		}
		f(t+tab.c[i]*h, s.yTmp, s.k[i])
	}

	copy(s.yNew, y)
	for i, bi := range tab.b {
		if bi == 0 {
			continue
		}
		for n := range s.yNew {
			s.yNew[n] += h * bi * s.k[i][n]
		}
	}

	var sum float64
	for n := range y {
		var errN float64
		for i, ei := range tab.e {
			errN += ei * s.k[i][n]
		}
		errN *= h
		scale := atol + rtol*math.Max(math.Abs(y[n]), math.Abs(s.yNew[n]))
		r := errN / scale
		sum += r * r
	}
	norm := math.Sqrt(sum / float64(len(y)))
	if math.IsNaN(norm) {
		return math.Inf(1)
	}
	return norm
}
