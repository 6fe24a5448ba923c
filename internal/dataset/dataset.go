// Package dataset holds recorded (or simulated) runs of a speed control loop:
// sampled time, measured angular velocity, setpoint and the controller
// disable flag.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/banshee-data/lpi-control/internal/signal"
	"github.com/banshee-data/lpi-control/internal/units"
)

var (
	// ErrMismatchedLength is returned when the columns of a dataset differ in length.
	ErrMismatchedLength = errors.New("dataset columns have different lengths")
	// ErrInvalidDataset is returned for datasets that cannot be fit or simulated.
	ErrInvalidDataset = errors.New("invalid dataset")
	// ErrNoDuration is returned when a name carries no duration suffix.
	ErrNoDuration = errors.New("no duration in name")
)

// Dataset is one run. All columns share the time base T (seconds). Omega and
// Setpoint are in Units (rad/s when empty). Disable holds 0/1 flags; a nil
// Disable means the controller was enabled throughout.
type Dataset struct {
	Name     string    `json:"name"`
	Units    string    `json:"units,omitempty"`
	T        []float64 `json:"t"`
	Omega    []float64 `json:"omega"`
	Setpoint []float64 `json:"setpt"`
	Disable  []float64 `json:"disable,omitempty"`
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.T)
}

// Duration returns the time covered by the samples.
func (d *Dataset) Duration() float64 {
	if len(d.T) == 0 {
		return 0
	}
	return d.T[len(d.T)-1] - d.T[0]
}

// Validate checks column lengths, the time base and that every value is finite.
func (d *Dataset) Validate() error {
	n := len(d.T)
	if len(d.Omega) != n || len(d.Setpoint) != n || (d.Disable != nil && len(d.Disable) != n) {
		return fmt.Errorf("%w: %s: t=%d omega=%d setpt=%d disable=%d",
			ErrMismatchedLength, d.Name, n, len(d.Omega), len(d.Setpoint), len(d.Disable))
	}
	if n < 2 {
		return fmt.Errorf("%w: %s: need at least 2 samples, got %d", ErrInvalidDataset, d.Name, n)
	}
	if d.Units != "" && !units.IsValid(d.Units) {
		return fmt.Errorf("%w: %s: units %q must be one of %s", ErrInvalidDataset, d.Name, d.Units, units.GetValidUnitsString())
	}
	for i, t := range d.T {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Errorf("%w: %s: t[%d] is %v", ErrInvalidDataset, d.Name, i, t)
		}
		if i > 0 && !(t > d.T[i-1]) {
			return fmt.Errorf("%w: %s: t must be strictly increasing (t[%d]=%v, t[%d]=%v)",
				ErrInvalidDataset, d.Name, i-1, d.T[i-1], i, t)
		}
	}
	for _, col := range []struct {
		name string
		vs   []float64
	}{{"omega", d.Omega}, {"setpt", d.Setpoint}, {"disable", d.Disable}} {
		for i, v := range col.vs {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: %s: %s[%d] is %v", ErrInvalidDataset, d.Name, col.name, i, v)
			}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (d *Dataset) Clone() *Dataset {
	c := *d
	c.T = clone(d.T)
	c.Omega = clone(d.Omega)
	c.Setpoint = clone(d.Setpoint)
	c.Disable = clone(d.Disable)
	return &c
}

func clone(vs []float64) []float64 {
	if vs == nil {
		return nil
	}
	return append([]float64(nil), vs...)
}

// ClampNegativeSetpoint replaces negative setpoints with 0 and returns how
// many samples were changed. Some recorders log a small negative setpoint
// while the motor is commanded off.
func (d *Dataset) ClampNegativeSetpoint() int {
	n := 0
	for i, v := range d.Setpoint {
		if v < 0 {
			d.Setpoint[i] = 0
			n++
		}
	}
	return n
}

// AddNoise adds zero-mean Gaussian noise with standard deviation std to
// Omega. The same seed always produces the same noise.
func (d *Dataset) AddNoise(std float64, seed uint64) {
	if std <= 0 {
		return
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i := range d.Omega {
		d.Omega[i] += std * rng.NormFloat64()
	}
}

// ConvertUnits rescales Omega and Setpoint into the given units.
func (d *Dataset) ConvertUnits(to string) error {
	from := d.Units
	if from == "" {
		from = units.RadPerSec
	}
	if _, err := units.Convert(0, from, to); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDataset, d.Name, err)
	}
	for i := range d.Omega {
		d.Omega[i], _ = units.Convert(d.Omega[i], from, to)
	}
	for i := range d.Setpoint {
		d.Setpoint[i], _ = units.Convert(d.Setpoint[i], from, to)
	}
	d.Units = to
	return nil
}

// Signals returns the setpoint and disable inputs as continuous functions of
// time, linearly interpolated between samples.
func (d *Dataset) Signals() (signal.Func, signal.Gate, error) {
	setpoint, err := signal.Interpolated(d.T, d.Setpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: setpoint: %w", d.Name, err)
	}
	if d.Disable == nil {
		return setpoint, signal.Never, nil
	}
	disable, err := signal.GateFromSamples(d.T, d.Disable)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: disable: %w", d.Name, err)
	}
	return setpoint, disable, nil
}

var durationRe = regexp.MustCompile(`_(\d+(?:\.\d+)?)s$`)

// DurationFromName extracts the nominal run length from names like
// "data_30s" or "runs/data_2.5s.csv".
func DurationFromName(name string) (float64, error) {
	base := filepath.Base(name)
	switch ext := filepath.Ext(base); strings.ToLower(ext) {
	case ".csv", ".json":
		base = strings.TrimSuffix(base, ext)
	}
	m := durationRe.FindStringSubmatch(base)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrNoDuration, name)
	}
	return strconv.ParseFloat(m[1], 64)
}
