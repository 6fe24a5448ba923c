package dataset

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lpi-control/internal/model"
	"github.com/banshee-data/lpi-control/internal/ode"
)

// Summary describes a dataset at a glance.
type Summary struct {
	Name             string  `json:"name"`
	Samples          int     `json:"samples"`
	Duration         float64 `json:"duration"`
	OmegaMean        float64 `json:"omega_mean"`
	OmegaStd         float64 `json:"omega_std"`
	OmegaMin         float64 `json:"omega_min"`
	OmegaMax         float64 `json:"omega_max"`
	SetpointMax      float64 `json:"setpt_max"`
	DisabledFraction float64 `json:"disabled_fraction"`
}

// Summary computes descriptive statistics. d must be valid.
func (d *Dataset) Summary() Summary {
	s := Summary{
		Name:        d.Name,
		Samples:     d.Len(),
		Duration:    d.Duration(),
		OmegaMin:    floats.Min(d.Omega),
		OmegaMax:    floats.Max(d.Omega),
		SetpointMax: floats.Max(d.Setpoint),
	}
	s.OmegaMean, s.OmegaStd = stat.MeanStdDev(d.Omega, nil)
	if d.Disable != nil {
		n := 0
		for _, v := range d.Disable {
			if v != 0 {
				n++
			}
		}
		s.DisabledFraction = float64(n) / float64(len(d.Disable))
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%s: %d samples over %.3gs, omega mean=%.4g std=%.4g range=[%.4g, %.4g], max setpt=%.4g, disabled %.0f%%",
		s.Name, s.Samples, s.Duration, s.OmegaMean, s.OmegaStd, s.OmegaMin, s.OmegaMax, s.SetpointMax, 100*s.DisabledFraction)
}

// Synthesize simulates sys over times and records the result as a dataset,
// sampling the setpoint and disable inputs on the same grid.
func Synthesize(name string, sys *model.System, times []float64, opts ode.Options) (*Dataset, error) {
	tr, err := sys.Solve(times, nil, opts)
	if err != nil {
		return nil, fmt.Errorf("synthesize %s: %w", name, err)
	}
	d := &Dataset{
		Name:     name,
		T:        tr.T,
		Omega:    tr.Omega,
		Setpoint: make([]float64, len(times)),
		Disable:  make([]float64, len(times)),
	}
	for i, t := range tr.T {
		d.Setpoint[i] = sys.Setpoint(t)
		if sys.Disable(t) {
			d.Disable[i] = 1
		}
	}
	return d, nil
}

// MeanSquaredError returns the mean squared difference between the recorded
// omega and a simulated trajectory sampled on the same grid.
func (d *Dataset) MeanSquaredError(simulated []float64) (float64, error) {
	if len(simulated) != len(d.Omega) {
		return 0, fmt.Errorf("%w: %s: omega=%d simulated=%d", ErrMismatchedLength, d.Name, len(d.Omega), len(simulated))
	}
	diff := make([]float64, len(simulated))
	floats.SubTo(diff, simulated, d.Omega)
	return floats.Dot(diff, diff) / float64(len(diff)), nil
}
