package fit

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/banshee-data/lpi-control/internal/model"
	"github.com/banshee-data/lpi-control/internal/ode"
)

// ErrInvalidOptions is returned for out-of-range fit options.
var ErrInvalidOptions = errors.New("invalid fit options")

// Method selects the search strategy.
type Method string

const (
	MethodCMAES      Method = "cmaes"
	MethodNelderMead Method = "neldermead"
	MethodGrid       Method = "grid"
)

// ParseMethod parses a search method name, ignoring case. Empty selects CMA-ES.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MethodCMAES, nil
	case MethodCMAES, MethodNelderMead, MethodGrid:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown method %q: expected cmaes, neldermead or grid", ErrInvalidOptions, s)
}

// Options tunes the search. Zero values select defaults.
type Options struct {
	Method Method  `json:"method"`
	Tol    float64 `json:"tol"` // relative cost improvement below which the search has converged

	// PopSize multiplies the number of free parameters to give the CMA-ES
	// population size.
	PopSize        int `json:"popsize"`
	Workers        int `json:"workers"` // <= 0 uses every CPU
	MaxEvaluations int `json:"max_evaluations"`

	// Grid search.
	Rounds         int `json:"rounds"`
	ValuesPerParam int `json:"values_per_param"`
	TopK           int `json:"top_k"`

	SolverMethod ode.Method `json:"solver_method"`
	LogCost      bool       `json:"log_cost"` // log every evaluation on the diag stream

	// Start seeds CMA-ES and Nelder-Mead. Values outside the bounds are
	// pulled just inside them. Nil starts from the middle of every range.
	Start *model.Params `json:"start,omitempty"`
}

const (
	defaultTol            = 0.01
	defaultPopSize        = 15
	defaultMaxEvaluations = 20000
	defaultRounds         = 3
	defaultValuesPerParam = 5
	defaultTopK           = 5

	maxRounds         = 10
	maxValuesPerParam = 20
	maxTopK           = 50
	maxCombosPerRound = 10000

	// convergeIterations is how many iterations without a Tol improvement
	// end the search.
	convergeIterations = 20
)

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	o, _ := Options{}.withDefaults()
	return o
}

func (o Options) withDefaults() (Options, error) {
	m, err := ParseMethod(string(o.Method))
	if err != nil {
		return o, err
	}
	o.Method = m
	if o.Tol <= 0 {
		o.Tol = defaultTol
	}
	if o.PopSize <= 0 {
		o.PopSize = defaultPopSize
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.MaxEvaluations <= 0 {
		o.MaxEvaluations = defaultMaxEvaluations
	}
	if o.Rounds <= 0 {
		o.Rounds = defaultRounds
	}
	if o.Rounds > maxRounds {
		return o, fmt.Errorf("%w: rounds must not exceed %d, got %d", ErrInvalidOptions, maxRounds, o.Rounds)
	}
	if o.ValuesPerParam <= 0 {
		o.ValuesPerParam = defaultValuesPerParam
	}
	if o.ValuesPerParam < 2 || o.ValuesPerParam > maxValuesPerParam {
		return o, fmt.Errorf("%w: values_per_param must be between 2 and %d, got %d", ErrInvalidOptions, maxValuesPerParam, o.ValuesPerParam)
	}
	if o.TopK <= 0 {
		o.TopK = defaultTopK
	}
	if o.TopK > maxTopK {
		return o, fmt.Errorf("%w: top_k must not exceed %d, got %d", ErrInvalidOptions, maxTopK, o.TopK)
	}
	if o.SolverMethod == "" {
		o.SolverMethod = ode.RK23
	}
	sm, err := ode.ParseMethod(string(o.SolverMethod))
	if err != nil {
		return o, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	o.SolverMethod = sm
	if o.Start != nil {
		if err := o.Start.Validate(); err != nil {
			return o, fmt.Errorf("%w: start: %v", ErrInvalidOptions, err)
		}
	}
	return o, nil
}
