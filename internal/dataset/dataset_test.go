package dataset

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lpi-control/internal/fsutil"
	"github.com/banshee-data/lpi-control/internal/model"
	"github.com/banshee-data/lpi-control/internal/ode"
	"github.com/banshee-data/lpi-control/internal/signal"
	"github.com/banshee-data/lpi-control/internal/units"
)

func sample() *Dataset {
	return &Dataset{
		Name:     "data_3s",
		T:        []float64{0, 1, 2, 3},
		Omega:    []float64{0, 1.5, 2.25, 2.5},
		Setpoint: []float64{-0.1, 3, 3, 0},
		Disable:  []float64{0, 0, 0, 1},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, sample().Validate())

	noDisable := sample()
	noDisable.Disable = nil
	require.NoError(t, noDisable.Validate())

	testCases := []struct {
		name    string
		mutate  func(d *Dataset)
		wantErr error
	}{
		{"short_omega", func(d *Dataset) { d.Omega = d.Omega[:3] }, ErrMismatchedLength},
		{"short_disable", func(d *Dataset) { d.Disable = d.Disable[:1] }, ErrMismatchedLength},
		{"single_sample", func(d *Dataset) {
			d.T, d.Omega, d.Setpoint, d.Disable = d.T[:1], d.Omega[:1], d.Setpoint[:1], d.Disable[:1]
		}, ErrInvalidDataset},
		{"repeated_time", func(d *Dataset) { d.T[2] = 1 }, ErrInvalidDataset},
		{"nan_time", func(d *Dataset) { d.T[0] = math.NaN() }, ErrInvalidDataset},
		{"inf_omega", func(d *Dataset) { d.Omega[1] = math.Inf(-1) }, ErrInvalidDataset},
		{"nan_setpoint", func(d *Dataset) { d.Setpoint[3] = math.NaN() }, ErrInvalidDataset},
		{"bad_units", func(d *Dataset) { d.Units = "mph" }, ErrInvalidDataset},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := sample()
			tc.mutate(d)
			assert.ErrorIs(t, d.Validate(), tc.wantErr)
		})
	}
}

func TestClone(t *testing.T) {
	d := sample()
	c := d.Clone()
	if diff := cmp.Diff(d, c); diff != "" {
		t.Fatalf("clone mismatch (-want +got):\n%s", diff)
	}
	c.Omega[0] = 42
	assert.Equal(t, 0.0, d.Omega[0])
	assert.Nil(t, (&Dataset{}).Clone().Disable)
}

func TestClampNegativeSetpoint(t *testing.T) {
	d := sample()
	assert.Equal(t, 1, d.ClampNegativeSetpoint())
	assert.Equal(t, []float64{0, 3, 3, 0}, d.Setpoint)
	assert.Equal(t, 0, d.ClampNegativeSetpoint())
}

func TestAddNoise(t *testing.T) {
	base := &Dataset{Name: "flat", T: signal.Linspace(0, 1, 5000), Omega: make([]float64, 5000), Setpoint: make([]float64, 5000)}

	a := base.Clone()
	a.AddNoise(2.0, 7)
	b := base.Clone()
	b.AddNoise(2.0, 7)
	assert.Equal(t, a.Omega, b.Omega, "same seed gives same noise")

	s := a.Summary()
	assert.InDelta(t, 0, s.OmegaMean, 0.15)
	assert.InDelta(t, 2.0, s.OmegaStd, 0.1)

	c := base.Clone()
	c.AddNoise(0, 7)
	assert.Equal(t, base.Omega, c.Omega)
}

func TestConvertUnits(t *testing.T) {
	d := sample()
	require.NoError(t, d.ConvertUnits(units.RPM))
	assert.Equal(t, units.RPM, d.Units)
	assert.InDelta(t, 1.5*60/(2*math.Pi), d.Omega[1], 1e-9)
	assert.InDelta(t, 3*60/(2*math.Pi), d.Setpoint[1], 1e-9)

	assert.ErrorIs(t, d.ConvertUnits("furlongs"), ErrInvalidDataset)
	assert.Equal(t, units.RPM, d.Units)
}

func TestSignals(t *testing.T) {
	sp, dis, err := sample().Signals()
	require.NoError(t, err)
	assert.InDelta(t, 3, sp(1.5), 1e-12)
	assert.InDelta(t, 1.5, sp(2.5), 1e-12)
	assert.False(t, dis(2))
	assert.True(t, dis(2.5))

	d := sample()
	d.Disable = nil
	_, dis, err = d.Signals()
	require.NoError(t, err)
	assert.False(t, dis(10))
}

func TestDurationFromName(t *testing.T) {
	testCases := []struct {
		name string
		want float64
	}{
		{"data_30s", 30},
		{"data_files/data_180s.csv", 180},
		{"run_2.5s.json", 2.5},
		{"run_2.5s", 2.5},
	}
	for _, tc := range testCases {
		got, err := DurationFromName(tc.name)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, got)
	}

	for _, bad := range []string{"data", "data_30", "data_s", "30s_data"} {
		_, err := DurationFromName(bad)
		assert.ErrorIs(t, err, ErrNoDuration, bad)
	}
}

func TestSummary(t *testing.T) {
	s := sample().Summary()
	assert.Equal(t, "data_3s", s.Name)
	assert.Equal(t, 4, s.Samples)
	assert.Equal(t, 3.0, s.Duration)
	assert.InDelta(t, 1.5625, s.OmegaMean, 1e-12)
	assert.Equal(t, 0.0, s.OmegaMin)
	assert.Equal(t, 2.5, s.OmegaMax)
	assert.Equal(t, 3.0, s.SetpointMax)
	assert.Equal(t, 0.25, s.DisabledFraction)
	assert.Contains(t, s.String(), "4 samples")
}

func TestMeanSquaredError(t *testing.T) {
	d := sample()
	mse, err := d.MeanSquaredError([]float64{1, 1.5, 2.25, 1.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, mse, 1e-12)

	_, err = d.MeanSquaredError([]float64{1})
	assert.ErrorIs(t, err, ErrMismatchedLength)
}

func TestSynthesize(t *testing.T) {
	sys, err := model.NewSystem(
		model.Params{Damping: 0.5, GainP: 2, GainI: 1, Leak: 0.3},
		signal.Pulse(1, 20, 10),
		signal.TimedDisable(14.95),
	)
	require.NoError(t, err)

	d, err := Synthesize("pulse_20s", sys, signal.Linspace(0, 20, 201), ode.Options{})
	require.NoError(t, err)
	require.NoError(t, d.Validate())
	assert.Equal(t, 10.0, d.Setpoint[100])
	assert.Equal(t, 0.0, d.Disable[149])
	assert.Equal(t, 1.0, d.Disable[150])
	assert.Greater(t, d.Omega[140], 8.0, "close to steady state before disable")
}

func TestCSVRoundTrip(t *testing.T) {
	d := sample()
	d.Units = units.RadPerSec

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, d))
	assert.True(t, strings.HasPrefix(buf.String(), "# name=data_3s\n# units=rad/s\nt,omega,setpt,disable\n"))

	got, err := ReadCSV(&buf, "ignored")
	require.NoError(t, err)
	if diff := cmp.Diff(d, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSV_ColumnOrderAndOptionalDisable(t *testing.T) {
	in := "setpoint, t, omega\n1, 0, 0\n1, 0.5, 0.25\n"
	d, err := ReadCSV(strings.NewReader(in), "reordered")
	require.NoError(t, err)
	assert.Equal(t, "reordered", d.Name)
	assert.Equal(t, []float64{0, 0.5}, d.T)
	assert.Equal(t, []float64{0, 0.25}, d.Omega)
	assert.Equal(t, []float64{1, 1}, d.Setpoint)
	assert.Nil(t, d.Disable)
}

func TestReadCSV_Errors(t *testing.T) {
	testCases := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"missing_column", "t,omega\n0,0\n1,1\n"},
		{"bad_number", "t,omega,setpt\n0,0,0\n1,x,0\n"},
		{"ragged_row", "t,omega,setpt\n0,0,0\n1,1\n"},
		{"too_few_rows", "t,omega,setpt\n0,0,0\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tc.in), tc.name)
			assert.Error(t, err)
		})
	}
}

func TestJSONRoundTrip(t *testing.T) {
	d := sample()
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, d))
	assert.Contains(t, buf.String(), `"setpt"`)

	got, err := ReadJSON(&buf, "fallback")
	require.NoError(t, err)
	if diff := cmp.Diff(d, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	_, err = ReadJSON(strings.NewReader(`{"t":[0,1],"omega":[0,1],"setpt":[0,1],"extra":1}`), "x")
	assert.Error(t, err, "unknown fields are rejected")

	got, err = ReadJSON(strings.NewReader(`{"t":[0,1],"omega":[0,1],"setpt":[0,1]}`), "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", got.Name)
}

func TestSaveLoadAll(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()

	a := sample()
	b := sample()
	b.Name = "data_10s"
	require.NoError(t, Save(mfs, "/runs/data_3s.csv", a))
	require.NoError(t, Save(mfs, "/runs/data_10s.json", b))
	assert.True(t, mfs.Exists("/runs"))

	got, err := Load(mfs, "/runs/data_3s.csv")
	require.NoError(t, err)
	assert.Equal(t, a.Omega, got.Omega)

	all, err := LoadAll(mfs, "/runs/*.json", "/runs/*", "/runs/data_3s.csv")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "data_10s", all[0].Name)
	assert.Equal(t, "data_3s", all[1].Name)

	_, err = LoadAll(mfs, "/nothing/*.csv")
	assert.ErrorIs(t, err, ErrNoFiles)

	assert.Error(t, Save(mfs, "/runs/data.pkl", a))
	_, err = Load(mfs, "/runs/missing.csv")
	assert.Error(t, err)
}
