// Package fit estimates closed-loop model parameters (damping and controller
// gains) from recorded runs by minimising the simulation error.
package fit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/banshee-data/lpi-control/internal/dataset"
	"github.com/banshee-data/lpi-control/internal/lpi"
	"github.com/banshee-data/lpi-control/internal/model"
	"github.com/banshee-data/lpi-control/internal/ode"
)

var (
	// ErrUnknownKind is returned for a controller kind other than lpi, pi or p.
	ErrUnknownKind = lpi.ErrUnknownKind
	// ErrNoFiniteCost is returned when every probed parameter set failed to simulate.
	ErrNoFiniteCost = errors.New("no parameter set produced a finite cost")
)

// failedCost stands in for +Inf inside the optimisers.
const failedCost = 1e300

// Result is the outcome of a fit.
type Result struct {
	Kind        lpi.Kind       `json:"kind"`
	Method      Method         `json:"method"`
	Params      model.Params   `json:"params"`
	Cost        float64        `json:"cost"`
	Evaluations int            `json:"evaluations"`
	Status      string         `json:"status"`
	Rounds      []RoundSummary `json:"rounds,omitempty"`
	Datasets    []string       `json:"datasets"`
	Duration    time.Duration  `json:"duration"`
}

// Fit fits a model of controller kind k to a single dataset.
func Fit(ctx context.Context, ds *dataset.Dataset, b Bounds, k lpi.Kind, opts Options) (*Result, error) {
	if ds == nil {
		return nil, ErrNoDatasets
	}
	return FitEnsemble(ctx, []*dataset.Dataset{ds}, b, k, opts)
}

// FitEnsemble fits one parameter set to several datasets at once, minimising
// the mean of the per-dataset costs.
func FitEnsemble(ctx context.Context, datasets []*dataset.Dataset, b Bounds, k lpi.Kind, opts Options) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if k.NumParams() == 0 {
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, k)
	}
	if err := b.Validate(k); err != nil {
		return nil, err
	}
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	obj, err := NewObjective(datasets, ode.Options{Method: opts.SolverMethod})
	if err != nil {
		return nil, err
	}
	obj.logCost = opts.LogCost
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sp := newSpace(k, b)
	start := time.Now()
	opsf("fitting %s model to %d dataset(s) with %s (%d workers)", k, len(datasets), opts.Method, opts.Workers)

	var res *Result
	switch opts.Method {
	case MethodGrid:
		res, err = fitGrid(ctx, obj, sp, opts)
	default:
		res, err = fitOptimize(ctx, obj, sp, opts)
	}
	if err != nil {
		opsf("fit failed after %d evaluations: %v", obj.Evaluations(), err)
		return nil, err
	}
	if math.IsInf(res.Cost, 1) {
		return nil, ErrNoFiniteCost
	}

	res.Kind = k
	res.Method = opts.Method
	res.Params = res.Params.ForKind(k)
	res.Evaluations = obj.Evaluations()
	res.Datasets = obj.Names()
	res.Duration = time.Since(start)
	opsf("fit complete: cost=%.6g params=%+v evaluations=%d in %s", res.Cost, res.Params, res.Evaluations, res.Duration.Round(time.Millisecond))
	return res, nil
}

func fitOptimize(ctx context.Context, obj *Objective, sp space, opts Options) (*Result, error) {
	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			c := obj.Cost(sp.params(sp.fromUnbounded(u)))
			if math.IsInf(c, 0) || math.IsNaN(c) {
				return failedCost
			}
			return c
		},
	}

	var method optimize.Method
	switch opts.Method {
	case MethodNelderMead:
		method = &optimize.NelderMead{SimplexSize: 1}
	default:
		method = &optimize.CmaEsChol{
			InitStepSize: 1,
			Population:   opts.PopSize * sp.dim(),
		}
	}

	settings := &optimize.Settings{
		FuncEvaluations: opts.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Relative:   opts.Tol,
			Iterations: convergeIterations,
		},
		Concurrent: opts.Workers,
		Recorder:   &ctxRecorder{ctx: ctx},
	}

	// Start from the caller's guess, or the middle of every range.
	x0 := make([]float64, sp.dim())
	if opts.Start != nil {
		x0 = sp.toUnbounded(sp.vector(*opts.Start))
	}
	result, err := optimize.Minimize(problem, x0, settings, method)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("fit cancelled: %w", ctxErr)
	}
	if err != nil {
		if result == nil || len(result.X) != sp.dim() {
			return nil, fmt.Errorf("optimize: %w", err)
		}
		diagf("optimizer stopped early: %v", err)
	}

	cost := result.F
	if cost >= failedCost {
		cost = math.Inf(1)
	}
	return &Result{
		Params: sp.params(sp.fromUnbounded(result.X)),
		Cost:   cost,
		Status: result.Status.String(),
	}, nil
}

// ctxRecorder stops the optimiser once ctx is done and traces progress.
type ctxRecorder struct {
	ctx context.Context
}

func (r *ctxRecorder) Init() error {
	return r.ctx.Err()
}

func (r *ctxRecorder) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	if op == optimize.MajorIteration && loc != nil && stats != nil {
		tracef("iteration %d: best cost %.6g after %d evaluations", stats.MajorIterations, loc.F, stats.FuncEvaluations)
	}
	return nil
}
