package serialmux

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortOptions_Normalise_Defaults(t *testing.T) {
	got, err := PortOptions{}.Normalise()
	if err != nil {
		t.Fatalf("Normalise() error = %v", err)
	}
	want := PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}
	if got != want {
		t.Errorf("Normalise() = %+v, want %+v", got, want)
	}
}

func TestPortOptions_Normalise_ExplicitValues(t *testing.T) {
	got, err := PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "even"}.Normalise()
	if err != nil {
		t.Fatalf("Normalise() error = %v", err)
	}
	want := PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"}
	if got != want {
		t.Errorf("Normalise() = %+v, want %+v", got, want)
	}
}

func TestPortOptions_Normalise_NegativeBaudRate(t *testing.T) {
	got, err := PortOptions{BaudRate: -5}.Normalise()
	if err != nil {
		t.Fatalf("Normalise() error = %v", err)
	}
	if got.BaudRate != 115200 {
		t.Errorf("negative baud rate should default to 115200, got %d", got.BaudRate)
	}
}

func TestPortOptions_Normalise_Errors(t *testing.T) {
	tests := []struct {
		name string
		opts PortOptions
	}{
		{"non-standard baud", PortOptions{BaudRate: 12345}},
		{"data bits too small", PortOptions{DataBits: 4}},
		{"data bits too large", PortOptions{DataBits: 9}},
		{"stop bits", PortOptions{StopBits: 3}},
		{"parity", PortOptions{Parity: "mark"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.opts.Normalise(); err == nil {
				t.Errorf("Normalise(%+v) expected error", tt.opts)
			}
		})
	}
}

func TestPortOptions_Normalise_Parity(t *testing.T) {
	tests := map[string]string{
		"":      "N",
		"n":     "N",
		"none":  "N",
		" E ":   "E",
		"even":  "E",
		"o":     "O",
		"ODD":   "O",
		"NoNe":  "N",
		"Even ": "E",
	}
	for in, want := range tests {
		got, err := PortOptions{Parity: in}.Normalise()
		if err != nil {
			t.Errorf("Normalise(parity=%q) error = %v", in, err)
			continue
		}
		if got.Parity != want {
			t.Errorf("Normalise(parity=%q) = %q, want %q", in, got.Parity, want)
		}
	}
}

func TestPortOptions_Equal(t *testing.T) {
	if !(PortOptions{}).Equal(PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "none"}) {
		t.Error("zero options should equal explicit defaults")
	}
	if (PortOptions{BaudRate: 9600}).Equal(PortOptions{BaudRate: 19200}) {
		t.Error("different baud rates should not be equal")
	}
	if (PortOptions{BaudRate: 12345}).Equal(PortOptions{BaudRate: 12345}) {
		t.Error("invalid options should never be equal")
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	tests := []struct {
		name string
		opts PortOptions
		want serial.Mode
	}{
		{
			name: "defaults",
			opts: PortOptions{},
			want: serial.Mode{BaudRate: 115200, DataBits: 8, StopBits: serial.OneStopBit, Parity: serial.NoParity},
		},
		{
			name: "two stop bits even parity",
			opts: PortOptions{BaudRate: 57600, DataBits: 7, StopBits: 2, Parity: "E"},
			want: serial.Mode{BaudRate: 57600, DataBits: 7, StopBits: serial.TwoStopBits, Parity: serial.EvenParity},
		},
		{
			name: "odd parity",
			opts: PortOptions{BaudRate: 9600, Parity: "O"},
			want: serial.Mode{BaudRate: 9600, DataBits: 8, StopBits: serial.OneStopBit, Parity: serial.OddParity},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, err := tt.opts.SerialMode()
			if err != nil {
				t.Fatalf("SerialMode() error = %v", err)
			}
			if mode.BaudRate != tt.want.BaudRate || mode.DataBits != tt.want.DataBits ||
				mode.StopBits != tt.want.StopBits || mode.Parity != tt.want.Parity {
				t.Errorf("SerialMode() = %+v, want %+v", *mode, tt.want)
			}
		})
	}

	if _, err := (PortOptions{DataBits: 9}).SerialMode(); err == nil {
		t.Error("SerialMode() expected error for invalid options")
	}
}
