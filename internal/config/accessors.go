package config

import (
	"time"

	"github.com/banshee-data/lpi-control/internal/fit"
	"github.com/banshee-data/lpi-control/internal/loop"
	"github.com/banshee-data/lpi-control/internal/lpi"
	"github.com/banshee-data/lpi-control/internal/model"
	"github.com/banshee-data/lpi-control/internal/ode"
	"github.com/banshee-data/lpi-control/internal/serialmux"
)

// Built-in defaults used when a field is unset.
const (
	defaultKind       = lpi.KindLPI
	defaultLeakRate   = 0.05
	defaultGainP      = 1.0
	defaultGainI      = 0.5
	defaultDamping    = 1.0
	defaultInterval   = 100 * time.Millisecond
	defaultLoopName   = "lpi"
	defaultStaleAfter = time.Second
	defaultSerialPort = "/dev/ttyUSB0"
	defaultDBPath     = "lpi.db"
)

func (c *ControllerConfig) GetKind() lpi.Kind {
	if c.Kind == nil {
		return defaultKind
	}
	k, err := lpi.ParseKind(*c.Kind)
	if err != nil {
		return defaultKind
	}
	return k
}

func (c *ControllerConfig) GetLeakRate() float64 {
	if c.LeakRate == nil {
		return defaultLeakRate
	}
	return *c.LeakRate
}

func (c *ControllerConfig) GetGainP() float64 {
	if c.GainP == nil {
		return defaultGainP
	}
	return *c.GainP
}

func (c *ControllerConfig) GetGainI() float64 {
	if c.GainI == nil {
		return defaultGainI
	}
	return *c.GainI
}

func (c *ControllerConfig) GetDamping() float64 {
	if c.Damping == nil {
		return defaultDamping
	}
	return *c.Damping
}

// GetInterval returns the loop period. Invalid or empty values use the
// default.
func (c *ControllerConfig) GetInterval() time.Duration {
	return durationOr(c.Interval, defaultInterval)
}

func (c *ControllerConfig) GetSetpoint() float64 {
	if c.Setpoint == nil {
		return 0
	}
	return *c.Setpoint
}

// GetMaxDt returns the late-tick cap, or zero to let the loop choose.
func (c *ControllerConfig) GetMaxDt() time.Duration {
	return durationOr(c.MaxDt, 0)
}

func (c *ControllerConfig) GetLoopName() string {
	if c.LoopName == nil || *c.LoopName == "" {
		return defaultLoopName
	}
	return *c.LoopName
}

func (c *ControllerConfig) GetStaleAfter() time.Duration {
	return durationOr(c.StaleAfter, defaultStaleAfter)
}

func (c *ControllerConfig) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return defaultSerialPort
	}
	return *c.SerialPort
}

func (c *ControllerConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return defaultDBPath
	}
	return *c.DBPath
}

func durationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// ToParams returns the controller coefficients, with the terms the
// configured kind lacks zeroed.
func (c *ControllerConfig) ToParams() lpi.Params {
	return c.ToModelParams().Controller()
}

// ToModelParams returns the closed-loop model coefficients.
func (c *ControllerConfig) ToModelParams() model.Params {
	return model.Params{
		Damping: c.GetDamping(),
		GainP:   c.GetGainP(),
		GainI:   c.GetGainI(),
		Leak:    c.GetLeakRate(),
	}.ForKind(c.GetKind())
}

// ToFitBounds overlays the configured ranges on fit.DefaultBounds.
func (c *ControllerConfig) ToFitBounds() fit.Bounds {
	b := fit.DefaultBounds()
	for name, r := range c.FitBounds {
		if len(r) != 2 {
			continue
		}
		v := [2]float64{r[0], r[1]}
		switch name {
		case fit.ParamDamping:
			b.Damping = v
		case fit.ParamGainP:
			b.GainP = v
		case fit.ParamGainI:
			b.GainI = v
		case fit.ParamLeak:
			b.Leak = v
		}
	}
	return b
}

// ToFitOptions returns the search options. Unset fields stay zero so the
// fit package applies its own defaults.
func (c *ControllerConfig) ToFitOptions() fit.Options {
	opts := fit.Options{
		PopSize:        intOr(c.FitPopSize, 0),
		Workers:        intOr(c.FitWorkers, 0),
		MaxEvaluations: intOr(c.FitMaxEvaluations, 0),
		Rounds:         intOr(c.GridRounds, 0),
		ValuesPerParam: intOr(c.GridValuesPerParam, 0),
		TopK:           intOr(c.GridTopK, 0),
	}
	if c.FitMethod != nil {
		if m, err := fit.ParseMethod(*c.FitMethod); err == nil {
			opts.Method = m
		}
	}
	if c.SolverMethod != nil {
		if m, err := ode.ParseMethod(*c.SolverMethod); err == nil {
			opts.SolverMethod = m
		}
	}
	if c.FitTol != nil {
		opts.Tol = *c.FitTol
	}
	if c.FitLogCost != nil {
		opts.LogCost = *c.FitLogCost
	}
	return opts
}

// ToLoopOptions returns the control loop options.
func (c *ControllerConfig) ToLoopOptions() loop.Options {
	return loop.Options{
		Interval: c.GetInterval(),
		Setpoint: c.GetSetpoint(),
		MaxDt:    c.GetMaxDt(),
		Name:     c.GetLoopName(),
	}
}

// ToPortOptions returns the serial settings. Unset fields stay zero and are
// filled in by PortOptions.Normalise.
func (c *ControllerConfig) ToPortOptions() serialmux.PortOptions {
	opts := serialmux.PortOptions{
		BaudRate: intOr(c.BaudRate, 0),
		DataBits: intOr(c.DataBits, 0),
		StopBits: intOr(c.StopBits, 0),
	}
	if c.Parity != nil {
		opts.Parity = *c.Parity
	}
	return opts
}
