package optim

import (
	"context"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/mpcsim/internal/experiment"
)

// Evaluation is one grid point and the metric it scored.
type Evaluation struct {
	Params map[string]float64
	Value  float64
	Err    error
}

// GridSearch tries every combination of the given parameter values and
// keeps the one that minimizes a run metric.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	// Parallelism bounds concurrent runs; zero or less means unbounded.
	Parallelism int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Search builds and runs one experiment per grid point. Points whose
// experiment fails to build or run are reported with Err set and never
// win. Evaluations are returned sorted best first.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) (map[string]float64, float64, []Evaluation, error) {
	points := g.points(0, map[string]float64{}, nil)
	evals := make([]Evaluation, len(points))

	eg, ctx := errgroup.WithContext(ctx)
	if g.Parallelism > 0 {
		eg.SetLimit(g.Parallelism)
	}
	var mu sync.Mutex
	for i, params := range points {
		i, params := i, params
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			val, err := evaluate(ctx, buildExperiment, params, metricName)
			mu.Lock()
			evals[i] = Evaluation{Params: params, Value: val, Err: err}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, math.Inf(1), nil, err
	}

	sort.SliceStable(evals, func(a, b int) bool { return evals[a].Value < evals[b].Value })

	best := math.Inf(1)
	var bestParams map[string]float64
	if len(evals) > 0 && evals[0].Err == nil {
		best, bestParams = evals[0].Value, evals[0].Params
	}
	return bestParams, best, evals, nil
}

func evaluate(
	ctx context.Context,
	buildExperiment func(map[string]float64) (*experiment.Experiment, error),
	params map[string]float64,
	metricName string,
) (float64, error) {
	exp, err := buildExperiment(params)
	if err != nil {
		return math.Inf(1), err
	}
	result, err := exp.Run(ctx)
	if err != nil {
		return math.Inf(1), err
	}
	val, ok := result.Metrics[metricName]
	if !ok || math.IsNaN(val) || len(result.Errors) > 0 {
		return math.Inf(1), nil
	}
	return val, nil
}

// points expands the grid depth-first.
func (g *GridSearch) points(depth int, current map[string]float64, out []map[string]float64) []map[string]float64 {
	if depth == len(g.paramNames) {
		return append(out, current)
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val
		out = g.points(depth+1, newParams, out)
	}
	return out
}
