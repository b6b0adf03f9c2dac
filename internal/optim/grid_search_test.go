package optim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/mpcsim/internal/experiment"
	"github.com/san-kum/mpcsim/internal/sim"
)

func baseConfig() experiment.Config {
	return experiment.Config{
		Track:      "straight",
		Integrator: "euler",
		Controller: "pid",
		Sim: sim.Config{
			Dt:              0.1,
			Duration:        3,
			TargetVelocity:  10,
			InitialVelocity: 10,
			LateralOffset:   1,
			Lookahead:       10,
			PolyDegree:      3,
			Lf:              2.67,
			MaxSteer:        0.4,
		},
	}
}

func build(params map[string]float64) (*experiment.Experiment, error) {
	cfg := baseConfig()
	cfg.Params = params
	exp := experiment.New(cfg, nil)
	if err := exp.Setup(experiment.NewRegistry()); err != nil {
		return nil, err
	}
	return exp, nil
}

func TestGridSearchExpandsGrid(t *testing.T) {
	g := NewGridSearch([]string{"Kp", "KEpsi"}, [][]float64{{0, 0.15, 0.3}, {0.5, 1.2}})
	g.Parallelism = 2

	best, val, evals, err := g.Search(context.Background(), build, "cte_rms")
	if err != nil {
		t.Fatal(err)
	}
	if len(evals) != 6 {
		t.Fatalf("expected 6 evaluations, got %d", len(evals))
	}
	for i := 1; i < len(evals); i++ {
		if evals[i].Value < evals[i-1].Value {
			t.Errorf("evaluations not sorted at %d", i)
		}
	}
	if best == nil || math.IsInf(val, 1) {
		t.Fatal("no best point found")
	}
	// Without proportional gain the offset is never corrected.
	if best["Kp"] == 0 {
		t.Errorf("best point should use cross-track feedback, got %v", best)
	}
	if val != evals[0].Value {
		t.Errorf("best value %f differs from first evaluation %f", val, evals[0].Value)
	}
}

func TestGridSearchSkipsFailures(t *testing.T) {
	boom := errors.New("boom")
	buildOrFail := func(params map[string]float64) (*experiment.Experiment, error) {
		if params["Kp"] < 0 {
			return nil, boom
		}
		return build(params)
	}

	g := NewGridSearch([]string{"Kp"}, [][]float64{{-1, 0.15}})
	best, _, evals, err := g.Search(context.Background(), buildOrFail, "cte_rms")
	if err != nil {
		t.Fatal(err)
	}
	if best["Kp"] != 0.15 {
		t.Errorf("failed point won: %v", best)
	}
	if !errors.Is(evals[len(evals)-1].Err, boom) {
		t.Errorf("expected failure recorded last, got %v", evals)
	}
}

func TestGridSearchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewGridSearch([]string{"Kp"}, [][]float64{{0.1, 0.2}})
	if _, _, _, err := g.Search(ctx, build, "cte_rms"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", err)
	}
}
