// Package config loads controller, loop, serial and fit settings from a single
// file. Every field is optional; the Get* accessors fall back to the built-in
// defaults so partial files are safe.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/lpi-control/internal/fit"
	"github.com/banshee-data/lpi-control/internal/lpi"
	"github.com/banshee-data/lpi-control/internal/ode"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/lpi.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// ControllerConfig is the root configuration. The same keys are used in
// JSON, YAML and TOML files.
type ControllerConfig struct {
	// Controller
	Kind     *string  `json:"kind,omitempty" yaml:"kind,omitempty" toml:"kind,omitempty"`
	LeakRate *float64 `json:"leak_rate,omitempty" yaml:"leak_rate,omitempty" toml:"leak_rate,omitempty"`
	GainP    *float64 `json:"gain_p,omitempty" yaml:"gain_p,omitempty" toml:"gain_p,omitempty"`
	GainI    *float64 `json:"gain_i,omitempty" yaml:"gain_i,omitempty" toml:"gain_i,omitempty"`

	// Plant model
	Damping *float64 `json:"damping,omitempty" yaml:"damping,omitempty" toml:"damping,omitempty"`

	// Control loop
	Interval   *string  `json:"interval,omitempty" yaml:"interval,omitempty" toml:"interval,omitempty"` // duration string like "100ms"
	Setpoint   *float64 `json:"setpoint,omitempty" yaml:"setpoint,omitempty" toml:"setpoint,omitempty"`
	MaxDt      *string  `json:"max_dt,omitempty" yaml:"max_dt,omitempty" toml:"max_dt,omitempty"`
	LoopName   *string  `json:"loop_name,omitempty" yaml:"loop_name,omitempty" toml:"loop_name,omitempty"`
	StaleAfter *string  `json:"stale_after,omitempty" yaml:"stale_after,omitempty" toml:"stale_after,omitempty"`

	// Serial link to the plant board
	SerialPort *string `json:"serial_port,omitempty" yaml:"serial_port,omitempty" toml:"serial_port,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty" toml:"baud_rate,omitempty"`
	DataBits   *int    `json:"data_bits,omitempty" yaml:"data_bits,omitempty" toml:"data_bits,omitempty"`
	StopBits   *int    `json:"stop_bits,omitempty" yaml:"stop_bits,omitempty" toml:"stop_bits,omitempty"`
	Parity     *string `json:"parity,omitempty" yaml:"parity,omitempty" toml:"parity,omitempty"`

	// Fitting
	FitMethod          *string              `json:"fit_method,omitempty" yaml:"fit_method,omitempty" toml:"fit_method,omitempty"`
	FitTol             *float64             `json:"fit_tol,omitempty" yaml:"fit_tol,omitempty" toml:"fit_tol,omitempty"`
	FitPopSize         *int                 `json:"fit_popsize,omitempty" yaml:"fit_popsize,omitempty" toml:"fit_popsize,omitempty"`
	FitWorkers         *int                 `json:"fit_workers,omitempty" yaml:"fit_workers,omitempty" toml:"fit_workers,omitempty"`
	FitMaxEvaluations  *int                 `json:"fit_max_evaluations,omitempty" yaml:"fit_max_evaluations,omitempty" toml:"fit_max_evaluations,omitempty"`
	GridRounds         *int                 `json:"grid_rounds,omitempty" yaml:"grid_rounds,omitempty" toml:"grid_rounds,omitempty"`
	GridValuesPerParam *int                 `json:"grid_values_per_param,omitempty" yaml:"grid_values_per_param,omitempty" toml:"grid_values_per_param,omitempty"`
	GridTopK           *int                 `json:"grid_top_k,omitempty" yaml:"grid_top_k,omitempty" toml:"grid_top_k,omitempty"`
	SolverMethod       *string              `json:"solver_method,omitempty" yaml:"solver_method,omitempty" toml:"solver_method,omitempty"`
	FitLogCost         *bool                `json:"fit_log_cost,omitempty" yaml:"fit_log_cost,omitempty" toml:"fit_log_cost,omitempty"`
	FitBounds          map[string][]float64 `json:"fit_bounds,omitempty" yaml:"fit_bounds,omitempty" toml:"fit_bounds,omitempty"` // keyed by dcoef, pgain, igain, ileak

	// Storage
	DBPath *string `json:"db_path,omitempty" yaml:"db_path,omitempty" toml:"db_path,omitempty"`
}

// EmptyControllerConfig returns a config with every field unset.
func EmptyControllerConfig() *ControllerConfig {
	return &ControllerConfig{}
}

// LoadControllerConfig reads a config file. The format follows the
// extension: .json, .yaml/.yml or .toml. Unknown keys are rejected.
func LoadControllerConfig(path string) (*ControllerConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if !slices.Contains([]string{".json", ".yaml", ".yml", ".toml"}, ext) {
		return nil, fmt.Errorf("config file must have .json, .yaml, .yml or .toml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyControllerConfig()
	if err := cfg.decode(ext, data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *ControllerConfig) decode(ext string, data []byte) error {
	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(c); err != nil {
			return fmt.Errorf("failed to parse config JSON: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// an empty document leaves every field unset
		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to parse config YAML: %w", err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), c)
		if err != nil {
			return fmt.Errorf("failed to parse config TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("failed to parse config TOML: unknown keys %v", undecoded)
		}
	}
	return nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. It panics if the file
// cannot be loaded and is intended for tests and tools.
func MustLoadDefaultConfig() *ControllerConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadControllerConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the fields that are set.
func (c *ControllerConfig) Validate() error {
	if c.Kind != nil {
		if _, err := lpi.ParseKind(*c.Kind); err != nil {
			return err
		}
	}
	if c.LeakRate != nil && (math.IsNaN(*c.LeakRate) || *c.LeakRate < 0 || *c.LeakRate > 1) {
		return fmt.Errorf("leak_rate must be between 0 and 1, got %v", *c.LeakRate)
	}
	for name, v := range map[string]*float64{
		"gain_p":   c.GainP,
		"gain_i":   c.GainI,
		"damping":  c.Damping,
		"setpoint": c.Setpoint,
	} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%s must be finite, got %v", name, *v)
		}
	}

	if err := validateDuration("interval", c.Interval, true); err != nil {
		return err
	}
	if err := validateDuration("max_dt", c.MaxDt, false); err != nil {
		return err
	}
	if err := validateDuration("stale_after", c.StaleAfter, false); err != nil {
		return err
	}

	if _, err := c.ToPortOptions().Normalise(); err != nil {
		return err
	}

	if c.FitMethod != nil {
		if _, err := fit.ParseMethod(*c.FitMethod); err != nil {
			return err
		}
	}
	if c.SolverMethod != nil {
		if _, err := ode.ParseMethod(*c.SolverMethod); err != nil {
			return err
		}
	}
	if c.FitTol != nil && !(*c.FitTol > 0) {
		return fmt.Errorf("fit_tol must be positive, got %v", *c.FitTol)
	}
	for name, v := range map[string]*int{
		"fit_popsize":           c.FitPopSize,
		"fit_workers":           c.FitWorkers,
		"fit_max_evaluations":   c.FitMaxEvaluations,
		"grid_rounds":           c.GridRounds,
		"grid_values_per_param": c.GridValuesPerParam,
		"grid_top_k":            c.GridTopK,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, *v)
		}
	}
	for name, r := range c.FitBounds {
		if _, ok := fit.DefaultBounds().Range(name); !ok {
			return fmt.Errorf("fit_bounds: unknown parameter %q", name)
		}
		if len(r) != 2 {
			return fmt.Errorf("fit_bounds: %s must be [lower, upper], got %v", name, r)
		}
		if !(r[0] < r[1]) {
			return fmt.Errorf("fit_bounds: %s lower bound %v must be less than upper bound %v", name, r[0], r[1])
		}
	}
	return nil
}

func validateDuration(name string, s *string, positive bool) error {
	if s == nil || *s == "" {
		return nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *s, err)
	}
	if d < 0 || (positive && d == 0) {
		return fmt.Errorf("%s must be positive, got %s", name, *s)
	}
	return nil
}
