package fit

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/banshee-data/lpi-control/internal/model"
)

const (
	// singleValueMarginRatio is the fraction of a single value to use as margin when narrowing
	// bounds around a single result (e.g., if value is 0.05, margin = 0.05 * 0.1 = 0.005).
	singleValueMarginRatio = 0.1

	// minMargin is the minimum absolute margin to add around a single value when narrowing bounds.
	minMargin = 0.001

	// defaultMarginSteps is the number of grid steps to add as margin on each side when narrowing bounds.
	defaultMarginSteps = 1.0
)

// ScoredPoint is one evaluated grid point.
type ScoredPoint struct {
	Params model.Params `json:"params"`
	Cost   float64      `json:"cost"`

	x []float64
}

// RoundSummary holds the results of one round of grid search.
type RoundSummary struct {
	Round      int                   `json:"round"`
	Bounds     map[string][2]float64 `json:"bounds"`
	BestCost   float64               `json:"best_cost"`
	BestParams model.Params          `json:"best_params"`
	NumCombos  int                   `json:"num_combos"`
	TopK       []ScoredPoint         `json:"top_k"`
}

// fitGrid evaluates a full grid over the current bounds, keeps the TopK
// points, and narrows the bounds around them for the next round.
func fitGrid(ctx context.Context, obj *Objective, sp space, opts Options) (*Result, error) {
	current := append([][2]float64(nil), sp.ranges...)
	var (
		best   *ScoredPoint
		rounds []RoundSummary
	)

	for round := 1; round <= opts.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fit cancelled: %w", err)
		}

		axes := make([][]float64, sp.dim())
		combos := 1
		for i := range axes {
			axes[i] = generateGrid(current[i][0], current[i][1], opts.ValuesPerParam)
			combos *= len(axes[i])
		}
		if combos > maxCombosPerRound {
			return nil, fmt.Errorf("%w: round %d would evaluate %d combinations (max %d)", ErrInvalidOptions, round, combos, maxCombosPerRound)
		}

		scored, err := evaluateAll(ctx, obj, sp, cartesian(axes), opts.Workers)
		if err != nil {
			return nil, fmt.Errorf("fit cancelled: %w", err)
		}
		sort.SliceStable(scored, func(i, j int) bool { return scored[i].Cost < scored[j].Cost })

		if best == nil || scored[0].Cost < best.Cost {
			b := scored[0]
			best = &b
		}
		topK := scored
		if len(topK) > opts.TopK {
			topK = scored[:opts.TopK]
		}

		rounds = append(rounds, RoundSummary{
			Round:      round,
			Bounds:     boundsMap(sp, current),
			BestCost:   scored[0].Cost,
			BestParams: scored[0].Params,
			NumCombos:  len(scored),
			TopK:       append([]ScoredPoint(nil), topK...),
		})
		diagf("grid round %d/%d: %d combos, best cost %.6g at %+v", round, opts.Rounds, len(scored), scored[0].Cost, scored[0].Params)

		if round < opts.Rounds {
			for i := range current {
				start, end := narrowBounds(topK, i, opts.ValuesPerParam)
				orig := sp.ranges[i]
				current[i] = [2]float64{math.Max(start, orig[0]), math.Min(end, orig[1])}
			}
			diagf("narrowed bounds for round %d: %v", round+1, boundsMap(sp, current))
		}
	}

	return &Result{
		Params: best.Params,
		Cost:   best.Cost,
		Status: fmt.Sprintf("GridComplete(%d rounds)", len(rounds)),
		Rounds: rounds,
	}, nil
}

// evaluateAll scores every point on a pool of workers.
func evaluateAll(ctx context.Context, obj *Objective, sp space, points [][]float64, workers int) ([]ScoredPoint, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]ScoredPoint, len(points))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				p := sp.params(points[i])
				out[i] = ScoredPoint{Params: p, Cost: obj.Cost(p), x: points[i]}
			}
		}()
	}

feed:
	for i := range points {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// cartesian returns every combination of one value per axis.
func cartesian(axes [][]float64) [][]float64 {
	out := [][]float64{{}}
	for _, axis := range axes {
		next := make([][]float64, 0, len(out)*len(axis))
		for _, prefix := range out {
			for _, v := range axis {
				p := make([]float64, len(prefix), len(prefix)+1)
				copy(p, prefix)
				next = append(next, append(p, v))
			}
		}
		out = next
	}
	return out
}

func boundsMap(sp space, ranges [][2]float64) map[string][2]float64 {
	m := make(map[string][2]float64, len(ranges))
	for i, name := range sp.names {
		m[name] = ranges[i]
	}
	return m
}

// narrowBounds computes narrowed bounds for parameter i from the top K points.
// Finds min/max across top K and adds a margin of 1 step.
func narrowBounds(topK []ScoredPoint, i int, valuesPerParam int) (start, end float64) {
	if len(topK) == 0 {
		return 0, 0
	}

	minVal := math.Inf(1)
	maxVal := math.Inf(-1)
	for _, r := range topK {
		if i >= len(r.x) {
			continue
		}
		minVal = math.Min(minVal, r.x[i])
		maxVal = math.Max(maxVal, r.x[i])
	}
	if math.IsInf(minVal, 1) && math.IsInf(maxVal, -1) {
		return 0, 0
	}

	// If we only have one result, or all results have the same value
	if minVal == maxVal {
		margin := math.Abs(minVal) * singleValueMarginRatio
		if margin < minMargin {
			margin = minMargin
		}
		return minVal - margin, maxVal + margin
	}

	step := (maxVal - minVal) / float64(valuesPerParam-1)
	return minVal - step*defaultMarginSteps, maxVal + step*defaultMarginSteps
}

// generateGrid creates n evenly-spaced values between start and end (inclusive).
func generateGrid(start, end float64, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	if n == 1 {
		return []float64{(start + end) / 2.0}
	}
	if n > maxValuesPerParam {
		n = maxValuesPerParam
	}

	grid := make([]float64, n)
	step := (end - start) / float64(n-1)
	for i := 0; i < n; i++ {
		grid[i] = start + step*float64(i)
	}
	return grid
}
