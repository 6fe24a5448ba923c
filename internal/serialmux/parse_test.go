package serialmux

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/lpi-control/internal/loop"
)

func TestParseReading(t *testing.T) {
	tests := []struct {
		name string
		line string
		want loop.Reading
	}{
		{
			name: "json full",
			line: `{"omega": 101.5, "setpt": 120, "disable": 0}`,
			want: loop.Reading{Measurement: 101.5, Setpoint: 120, HasSetpoint: true},
		},
		{
			name: "json with time",
			line: `{"t": 1.25, "omega": 9, "setpt": 10, "disable": 0}`,
			want: loop.Reading{Measurement: 9, Setpoint: 10, HasSetpoint: true},
		},
		{
			name: "bare number",
			line: "101.5",
			want: loop.Reading{Measurement: 101.5},
		},
		{
			name: "json omega only",
			line: `{"omega": -3}`,
			want: loop.Reading{Measurement: -3},
		},
		{
			name: "json disabled",
			line: `{"omega": 5, "disable": 1}`,
			want: loop.Reading{Measurement: 5, Disabled: true},
		},
		{
			name: "key value",
			line: "t=12.3 omega=101.5 setpt=120 disable=0",
			want: loop.Reading{Measurement: 101.5, Setpoint: 120, HasSetpoint: true},
		},
		{
			name: "short keys with commas",
			line: "m=7,s=8,d=1",
			want: loop.Reading{Measurement: 7, Setpoint: 8, HasSetpoint: true, Disabled: true},
		},
		{
			name: "upper case keys and padding",
			line: "  OMEGA=2.5\tSETPT=3  \r",
			want: loop.Reading{Measurement: 2.5, Setpoint: 3, HasSetpoint: true},
		},
		{
			name: "unknown keys ignored",
			line: "omega=1 temp=40",
			want: loop.Reading{Measurement: 1},
		},
		{
			name: "non-numeric values of skipped keys",
			line: "omega=1.5 mode=auto t=12:00:01 fw=v2.1",
			want: loop.Reading{Measurement: 1.5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReading(tt.line)
			if err != nil {
				t.Fatalf("ParseReading(%q) error = %v", tt.line, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseReading(%q) mismatch (-want +got):\n%s", tt.line, diff)
			}
		})
	}
}

func TestParseReading_NaNPassesThrough(t *testing.T) {
	// the loop decides what to do with non-finite samples
	got, err := ParseReading("omega=NaN")
	if err != nil {
		t.Fatalf("ParseReading error = %v", err)
	}
	if !math.IsNaN(got.Measurement) {
		t.Errorf("Measurement = %v, want NaN", got.Measurement)
	}
}

func TestParseReading_Errors(t *testing.T) {
	for _, line := range []string{
		"",
		"   ",
		"OK",
		"setpt=3",
		"omega=abc",
		"omega=1 d=yes",
		`{"setpt": 3}`,
		`{"omega": "fast"}`,
		`{"omega": 1`,
	} {
		if _, err := ParseReading(line); !errors.Is(err, ErrBadReading) {
			t.Errorf("ParseReading(%q) error = %v, want ErrBadReading", line, err)
		}
	}
}

func TestFormatOutput(t *testing.T) {
	tests := map[float64]string{
		0:       "U=0",
		1.5:     "U=1.5",
		-0.125:  "U=-0.125",
		1e-9:    "U=1e-09",
		12345.0: "U=12345",
	}
	for v, want := range tests {
		if got := FormatOutput(v); got != want {
			t.Errorf("FormatOutput(%v) = %q, want %q", v, got, want)
		}
	}
}
