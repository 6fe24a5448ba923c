package fit

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/banshee-data/lpi-control/internal/dataset"
	"github.com/banshee-data/lpi-control/internal/model"
	"github.com/banshee-data/lpi-control/internal/ode"
	"github.com/banshee-data/lpi-control/internal/signal"
)

// ErrNoDatasets is returned when a fit is requested without data.
var ErrNoDatasets = errors.New("no datasets to fit")

// stepsPerSample bounds the solver effort spent on one simulation. A
// parameter set that needs more is treated as a failed simulation.
const stepsPerSample = 200

type target struct {
	ds       *dataset.Dataset
	setpoint signal.Func
	disable  signal.Gate
	solver   ode.Options
}

// Objective is the fitting cost: the mean over datasets of the mean squared
// error between simulated and recorded omega. It is safe for concurrent use.
type Objective struct {
	targets []target
	evals   atomic.Int64
	logCost bool
}

// NewObjective validates the datasets and prepares their interpolated inputs.
func NewObjective(datasets []*dataset.Dataset, solver ode.Options) (*Objective, error) {
	if len(datasets) == 0 {
		return nil, ErrNoDatasets
	}
	o := &Objective{}
	for _, ds := range datasets {
		if err := ds.Validate(); err != nil {
			return nil, err
		}
		setpoint, disable, err := ds.Signals()
		if err != nil {
			return nil, err
		}
		s := solver
		if s.MaxSteps <= 0 {
			s.MaxSteps = stepsPerSample * ds.Len()
		}
		o.targets = append(o.targets, target{ds: ds, setpoint: setpoint, disable: disable, solver: s})
	}
	return o, nil
}

// Cost evaluates p against every dataset. A simulation that fails (diverges,
// or exceeds its step budget) costs +Inf.
func (o *Objective) Cost(p model.Params) float64 {
	o.evals.Add(1)
	total := 0.0
	for _, tg := range o.targets {
		c, err := tg.cost(p)
		if err != nil {
			tracef("cost %+v on %s: %v", p, tg.ds.Name, err)
			return math.Inf(1)
		}
		total += c
	}
	total /= float64(len(o.targets))

	if o.logCost {
		diagf("cost: %.6g  %+v", total, p)
	} else {
		tracef("cost: %.6g  %+v", total, p)
	}
	return total
}

func (tg target) cost(p model.Params) (float64, error) {
	sys := &model.System{Params: p, Setpoint: tg.setpoint, Disable: tg.disable}
	tr, err := sys.Solve(tg.ds.T, nil, tg.solver)
	if err != nil {
		return 0, err
	}
	return tg.ds.MeanSquaredError(tr.Omega)
}

// Evaluations returns how many times Cost has been called.
func (o *Objective) Evaluations() int {
	return int(o.evals.Load())
}

// Names returns the dataset names in order.
func (o *Objective) Names() []string {
	names := make([]string, len(o.targets))
	for i, tg := range o.targets {
		names[i] = tg.ds.Name
	}
	return names
}

// Simulate runs the model with p against the inputs recorded in ds, starting
// at rest, and returns the trajectory on the dataset's time base.
func Simulate(ds *dataset.Dataset, p model.Params, solver ode.Options) (*model.Trajectory, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	setpoint, disable, err := ds.Signals()
	if err != nil {
		return nil, err
	}
	sys, err := model.NewSystem(p, setpoint, disable)
	if err != nil {
		return nil, err
	}
	tr, err := sys.Solve(ds.T, nil, solver)
	if err != nil {
		return nil, fmt.Errorf("simulate %s: %w", ds.Name, err)
	}
	return tr, nil
}
