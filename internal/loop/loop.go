// Package loop drives an lpi.Controller in real time: on every tick it reads
// the plant, steps (or coasts) the controller by the elapsed time and applies
// the output.
package loop

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/lpi-control/internal/lpi"
	"github.com/banshee-data/lpi-control/internal/timeutil"
	"github.com/banshee-data/lpi-control/internal/version"
)

//go:generate mockgen -destination mock_loop_test.go -package loop -write_package_comment=false github.com/banshee-data/lpi-control/internal/loop Sensor,Actuator

var (
	// ErrInvalidOptions is returned by New for unusable loop options.
	ErrInvalidOptions = errors.New("invalid loop options")
	// ErrSkipped is returned by Tick when the reading was not usable. The
	// controller state is unchanged.
	ErrSkipped = errors.New("reading skipped")
)

// Reading is one sample from the plant.
type Reading struct {
	Measurement float64
	// Setpoint is used only when HasSetpoint is set; otherwise the loop's
	// own setpoint applies.
	Setpoint    float64
	HasSetpoint bool
	Disabled    bool
}

// Sensor reads the current plant state.
type Sensor interface {
	Read(ctx context.Context) (Reading, error)
}

// Actuator applies a control output to the plant.
type Actuator interface {
	Apply(ctx context.Context, output float64) error
}

// Options configure a Loop.
type Options struct {
	Interval time.Duration `json:"interval"`
	Setpoint float64       `json:"setpoint"`
	// MaxDt caps the step after a stall so a late tick cannot dump a large
	// error into the integrator. Zero means 10 intervals.
	MaxDt time.Duration `json:"max_dt"`
	// Name labels the loop's metrics.
	Name string `json:"name"`
}

// Stats counts what the loop has done so far.
type Stats struct {
	Ticks          uint64    `json:"ticks"`
	Steps          uint64    `json:"steps"`
	Coasts         uint64    `json:"coasts"`
	Skipped        uint64    `json:"skipped"`
	SensorErrors   uint64    `json:"sensor_errors"`
	ActuatorErrors uint64    `json:"actuator_errors"`
	LastTick       time.Time `json:"last_tick"`
	LastDtSeconds  float64   `json:"last_dt_seconds"`
	LastSetpoint   float64   `json:"last_setpoint"`
	LastMeasured   float64   `json:"last_measured"`
	LastError      float64   `json:"last_error"`
	LastDisabled   bool      `json:"last_disabled"`
	LastOutput     float64   `json:"last_output"`
	LastIntegral   float64   `json:"last_integral"`
}

// Loop owns a controller and is the only thing that steps it.
type Loop struct {
	ctrl     *lpi.Controller
	sensor   Sensor
	actuator Actuator
	clock    timeutil.Clock
	opts     Options
	metrics  *Metrics

	mu       sync.Mutex
	setpoint float64
	last     time.Time
	stats    Stats
}

// New validates opts and builds a loop. A nil clock uses the real clock.
func New(ctrl *lpi.Controller, sensor Sensor, actuator Actuator, opts Options, clock timeutil.Clock) (*Loop, error) {
	if ctrl == nil || sensor == nil || actuator == nil {
		return nil, fmt.Errorf("%w: controller, sensor and actuator are required", ErrInvalidOptions)
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive, got %v", ErrInvalidOptions, opts.Interval)
	}
	if math.IsNaN(opts.Setpoint) || math.IsInf(opts.Setpoint, 0) {
		return nil, fmt.Errorf("%w: setpoint must be finite, got %v", ErrInvalidOptions, opts.Setpoint)
	}
	if opts.MaxDt < 0 {
		return nil, fmt.Errorf("%w: max_dt must not be negative, got %v", ErrInvalidOptions, opts.MaxDt)
	}
	if opts.MaxDt == 0 {
		opts.MaxDt = 10 * opts.Interval
	}
	if opts.Name == "" {
		opts.Name = "lpi"
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Loop{
		ctrl:     ctrl,
		sensor:   sensor,
		actuator: actuator,
		clock:    clock,
		opts:     opts,
		metrics:  newMetrics(opts.Name),
		setpoint: opts.Setpoint,
	}, nil
}

// SetSetpoint changes the target used when readings carry no setpoint.
func (l *Loop) SetSetpoint(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: setpoint=%v", lpi.ErrInvalidInput, v)
	}
	l.mu.Lock()
	l.setpoint = v
	l.mu.Unlock()
	opsf("setpoint changed to %g", v)
	return nil
}

// Setpoint returns the loop's current setpoint.
func (l *Loop) Setpoint() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.setpoint
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Metrics returns the loop's metric collectors.
func (l *Loop) Metrics() *Metrics {
	return l.metrics
}

// Tick runs one iteration at time now and returns the applied output. The
// first tick has dt = 0 and so only applies the proportional term (plus any
// seeded integral).
//
// The sensor is read and the output applied without holding the loop lock,
// so Stats and SetSetpoint stay responsive while either blocks. Ticks must
// not be called concurrently.
func (l *Loop) Tick(ctx context.Context, now time.Time) (float64, error) {
	r, err := l.sensor.Read(ctx)

	out, err := l.step(now, r, err)
	if err != nil {
		return out, err
	}

	if err := l.actuator.Apply(ctx, out); err != nil {
		l.mu.Lock()
		l.stats.ActuatorErrors++
		l.mu.Unlock()
		l.metrics.actuatorErrors.Inc()
		return out, fmt.Errorf("apply output: %w", err)
	}
	return out, nil
}

// step advances the controller with reading r under the loop lock.
func (l *Loop) step(now time.Time, r Reading, readErr error) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stats.Ticks++
	l.metrics.ticks.Inc()
	if readErr != nil {
		l.stats.SensorErrors++
		l.metrics.sensorErrors.Inc()
		return 0, fmt.Errorf("read sensor: %w", readErr)
	}

	setpoint := l.setpoint
	if r.HasSetpoint {
		setpoint = r.Setpoint
	}
	if !isFinite(r.Measurement) || !isFinite(setpoint) {
		l.stats.Skipped++
		l.metrics.skipped.Inc()
		diagf("skipping reading: measurement=%v setpoint=%v", r.Measurement, setpoint)
		return 0, fmt.Errorf("%w: measurement=%v setpoint=%v", ErrSkipped, r.Measurement, setpoint)
	}

	dt := 0.0
	if !l.last.IsZero() {
		elapsed := now.Sub(l.last)
		if elapsed < 0 {
			elapsed = 0
		}
		if elapsed > l.opts.MaxDt {
			diagf("tick late by %v, capping dt at %v", elapsed-l.opts.Interval, l.opts.MaxDt)
			elapsed = l.opts.MaxDt
		}
		dt = elapsed.Seconds()
	}

	var out float64
	var err error
	if r.Disabled {
		out, err = l.ctrl.Coast(dt)
	} else {
		out, err = l.ctrl.Step(setpoint, r.Measurement, dt)
	}
	if err != nil {
		l.stats.Skipped++
		l.metrics.skipped.Inc()
		return 0, fmt.Errorf("%w: %v", ErrSkipped, err)
	}
	l.last = now

	if r.Disabled {
		l.stats.Coasts++
		l.metrics.coasts.Inc()
	} else {
		l.stats.Steps++
		l.metrics.steps.Inc()
	}
	l.stats.LastTick = now
	l.stats.LastDtSeconds = dt
	l.stats.LastSetpoint = setpoint
	l.stats.LastMeasured = r.Measurement
	l.stats.LastError = setpoint - r.Measurement
	l.stats.LastDisabled = r.Disabled
	l.stats.LastOutput = out
	l.stats.LastIntegral = l.ctrl.Integral()
	l.metrics.observe(l.stats)
	tracef("dt=%.4fs sp=%g meas=%g disabled=%v out=%g integral=%g", dt, setpoint, r.Measurement, r.Disabled, out, l.stats.LastIntegral)
	return out, nil
}

// Run ticks every Interval until ctx is done. Per-tick errors are logged and
// counted; they do not stop the loop. Run returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	opsf("control loop %q started (%s): interval=%v setpoint=%g params=%+v", l.opts.Name, version.String(), l.opts.Interval, l.Setpoint(), l.ctrl.Params())
	defer func() {
		s := l.Stats()
		opsf("control loop %q stopped after %d ticks (%d steps, %d coasts, %d skipped)", l.opts.Name, s.Ticks, s.Steps, s.Coasts, s.Skipped)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C():
			if _, err := l.Tick(ctx, now); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				diagf("tick failed: %v", err)
			}
		}
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
