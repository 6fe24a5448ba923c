package serialmux

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/lpi-control/internal/loop"
)

// ErrBadReading is returned by ParseReading for lines that carry no sample.
var ErrBadReading = errors.New("bad reading")

type jsonReport struct {
	Omega   *float64 `json:"omega"`
	Setpt   *float64 `json:"setpt"`
	Disable *float64 `json:"disable"`
}

// ParseReading decodes one line reported by the plant board. Three formats
// are accepted:
//
//	{"t": 12.3, "omega": 101.5, "setpt": 120, "disable": 0}
//	t=12.3 omega=101.5 setpt=120 disable=0
//	101.5
//
// In the key=value form the short keys m, s and d may stand for omega, setpt
// and disable, and tokens may be separated by spaces or commas. Other keys,
// including t, are skipped without looking at their values. Only omega is
// required. A bare number is a measurement alone. A non-zero disable marks
// the sample as disabled.
func ParseReading(line string) (loop.Reading, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return loop.Reading{}, fmt.Errorf("%w: empty line", ErrBadReading)
	}
	if strings.HasPrefix(line, "{") {
		return parseJSONReading(line)
	}
	if v, err := strconv.ParseFloat(line, 64); err == nil {
		return loop.Reading{Measurement: v}, nil
	}
	return parseKeyValueReading(line)
}

func parseJSONReading(line string) (loop.Reading, error) {
	var rep jsonReport
	if err := json.Unmarshal([]byte(line), &rep); err != nil {
		return loop.Reading{}, fmt.Errorf("%w: %v", ErrBadReading, err)
	}
	if rep.Omega == nil {
		return loop.Reading{}, fmt.Errorf("%w: missing omega in %q", ErrBadReading, line)
	}
	r := loop.Reading{Measurement: *rep.Omega}
	if rep.Setpt != nil {
		r.Setpoint, r.HasSetpoint = *rep.Setpt, true
	}
	if rep.Disable != nil {
		r.Disabled = *rep.Disable != 0
	}
	return r, nil
}

func parseKeyValueReading(line string) (loop.Reading, error) {
	var (
		r        loop.Reading
		hasOmega bool
	)
	fields := strings.FieldsFunc(line, func(c rune) bool { return c == ' ' || c == '\t' || c == ',' })
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return loop.Reading{}, fmt.Errorf("%w: token %q is not key=value", ErrBadReading, field)
		}
		key = strings.ToLower(key)
		switch key {
		case "omega", "m", "setpt", "s", "disable", "d":
		default:
			// t and anything the firmware adds later
			continue
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return loop.Reading{}, fmt.Errorf("%w: %s: %v", ErrBadReading, key, err)
		}
		switch key {
		case "omega", "m":
			r.Measurement, hasOmega = v, true
		case "setpt", "s":
			r.Setpoint, r.HasSetpoint = v, true
		default:
			r.Disabled = v != 0
		}
	}
	if !hasOmega {
		return loop.Reading{}, fmt.Errorf("%w: missing omega in %q", ErrBadReading, line)
	}
	return r, nil
}

// FormatOutput renders the command that sets the actuator to v.
func FormatOutput(v float64) string {
	return "U=" + strconv.FormatFloat(v, 'g', -1, 64)
}
