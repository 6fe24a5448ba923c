// Package signal provides the time-varying inputs of a control experiment:
// setpoint waveforms, controller disable gates, and interpolation of sampled
// recordings back into continuous functions of time.
package signal

import "math"

// Func is a scalar signal of time (seconds).
type Func func(t float64) float64

// Gate reports whether a condition holds at time t. Used for the controller
// disable input.
type Gate func(t float64) bool

// Constant returns a signal fixed at v.
func Constant(v float64) Func {
	return func(float64) float64 { return v }
}

// Pulse returns step while t0 < t < t1 and 0 otherwise. The edges themselves
// read as 0.
func Pulse(t0, t1, step float64) Func {
	return func(t float64) float64 {
		if t > t0 && t < t1 {
			return step
		}
		return 0
	}
}

// SquareWave is a symmetric square wave that starts at T0. Before T0 it reads
// 0; the first half of each period is +Amplitude, the second -Amplitude.
// When Cycles > 0 the wave returns to 0 after T0 + Period*Cycles.
type SquareWave struct {
	Amplitude float64 `json:"amplitude"`
	Period    float64 `json:"period"`
	T0        float64 `json:"t0"`
	Cycles    float64 `json:"num_cycle,omitempty"`
}

// At evaluates the wave at time t.
func (w SquareWave) At(t float64) float64 {
	if t < w.T0 || w.Period <= 0 {
		return 0
	}
	if w.Cycles > 0 && t > w.T0+w.Period*w.Cycles {
		return 0
	}
	if math.Mod(t-w.T0, w.Period) < 0.5*w.Period {
		return w.Amplitude
	}
	return -w.Amplitude
}

// Func returns the wave as a Func.
func (w SquareWave) Func() Func {
	return w.At
}

// Never is a gate that is always false.
func Never(float64) bool { return false }

// TimedDisable is false up to and including t0 and true afterwards.
func TimedDisable(t0 float64) Gate {
	return func(t float64) bool {
		return t > t0
	}
}

// PeriodicDisable is false before t0, then alternates: false for the first
// half of each period and true for the second half.
func PeriodicDisable(period, t0 float64) Gate {
	return func(t float64) bool {
		if t < t0 || period <= 0 {
			return false
		}
		return math.Mod(t-t0, period) >= 0.5*period
	}
}

// Sample evaluates f at each time.
func Sample(f Func, times []float64) []float64 {
	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = f(t)
	}
	return out
}

// SampleGate evaluates g at each time, encoding true as 1 and false as 0.
func SampleGate(g Gate, times []float64) []float64 {
	out := make([]float64, len(times))
	for i, t := range times {
		if g(t) {
			out[i] = 1
		}
	}
	return out
}
