package signal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPulse(t *testing.T) {
	p := Pulse(1, 3, 5)

	testCases := []struct {
		t    float64
		want float64
	}{
		{0, 0},
		{1, 0},
		{1.5, 5},
		{2.999, 5},
		{3, 0},
		{10, 0},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, p(tc.t), "t=%v", tc.t)
	}
}

func TestSquareWave(t *testing.T) {
	w := SquareWave{Amplitude: 10, Period: 25, T0: 50, Cycles: 2.5}

	testCases := []struct {
		name string
		t    float64
		want float64
	}{
		{"before_start", 49.9, 0},
		{"start_high", 50, 10},
		{"first_half", 60, 10},
		{"second_half", 63, -10},
		{"second_period_high", 76, 10},
		{"last_half_cycle", 112, 10},
		{"at_stop", 112.5, -10},
		{"after_stop", 113, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, w.At(tc.t))
			assert.Equal(t, tc.want, w.Func()(tc.t))
		})
	}
}

func TestSquareWave_Unbounded(t *testing.T) {
	w := SquareWave{Amplitude: 1, Period: 2}
	assert.Equal(t, 1.0, w.At(1000.5))
	assert.Equal(t, -1.0, w.At(1001.5))

	assert.Equal(t, 0.0, SquareWave{Amplitude: 1}.At(5), "zero period reads as off")
}

func TestGates(t *testing.T) {
	td := TimedDisable(10)
	assert.False(t, td(0))
	assert.False(t, td(10))
	assert.True(t, td(10.001))

	pd := PeriodicDisable(4, 2)
	assert.False(t, pd(0))
	assert.False(t, pd(2))
	assert.False(t, pd(3.9))
	assert.True(t, pd(4))
	assert.True(t, pd(5.9))
	assert.False(t, pd(6))

	assert.False(t, Never(123))
	assert.Equal(t, 4.5, Constant(4.5)(-7))
}

func TestSample(t *testing.T) {
	times := []float64{0, 1, 2, 3}
	assert.Equal(t, []float64{0, 2, 4, 6}, Sample(func(t float64) float64 { return 2 * t }, times))
	assert.Equal(t, []float64{0, 0, 1, 1}, SampleGate(TimedDisable(1.5), times))
}

func TestInterpolator(t *testing.T) {
	ip, err := NewInterpolator([]float64{0, 1, 3}, []float64{0, 2, 6})
	require.NoError(t, err)

	testCases := []struct {
		name string
		x    float64
		want float64
	}{
		{"first_knot", 0, 0},
		{"inside_first", 0.5, 1},
		{"knot", 1, 2},
		{"inside_second", 2, 4},
		{"last_knot", 3, 6},
		{"extrapolate_low", -1, -2},
		{"extrapolate_high", 4, 8},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, ip.At(tc.x), 1e-12)
		})
	}

	lo, hi := ip.Domain()
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 3.0, hi)
}

func TestInterpolator_CopiesInput(t *testing.T) {
	xs := []float64{0, 1}
	ys := []float64{0, 1}
	f, err := Interpolated(xs, ys)
	require.NoError(t, err)

	ys[1] = 100
	assert.InDelta(t, 0.5, f(0.5), 1e-12)
}

func TestInterpolator_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		xs, ys []float64
	}{
		{"too_short", []float64{0}, []float64{0}},
		{"length_mismatch", []float64{0, 1, 2}, []float64{0, 1}},
		{"not_increasing", []float64{0, 1, 1}, []float64{0, 1, 2}},
		{"nan_x", []float64{0, math.NaN()}, []float64{0, 1}},
		{"inf_y", []float64{0, 1}, []float64{0, math.Inf(1)}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewInterpolator(tc.xs, tc.ys)
			assert.ErrorIs(t, err, ErrBadSamples)
		})
	}
}

func TestGateFromSamples(t *testing.T) {
	g, err := GateFromSamples([]float64{0, 1, 2, 3}, []float64{0, 0, 1, 1})
	require.NoError(t, err)

	assert.False(t, g(0.5))
	assert.False(t, g(1))
	assert.True(t, g(1.01), "any nonzero interpolated value is set")
	assert.True(t, g(2.5))
	assert.True(t, g(10))
}

func TestLinspace(t *testing.T) {
	assert.Nil(t, Linspace(0, 1, 0))
	assert.Equal(t, []float64{2}, Linspace(2, 5, 1))

	xs := Linspace(0, 1, 5)
	require.Len(t, xs, 5)
	assert.InDeltaSlice(t, []float64{0, 0.25, 0.5, 0.75, 1}, xs, 1e-12)
}
