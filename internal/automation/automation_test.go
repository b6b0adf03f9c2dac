package automation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/mpcsim/internal/config"
	"github.com/san-kum/mpcsim/internal/dynamo"
)

func baseConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Track = "straight"
	cfg.Integrator = "euler"
	cfg.Controller = "pid"
	cfg.Duration = 2
	cfg.InitialVelocity = 10
	cfg.TargetVelocity = 10
	cfg.DelaySteps = 0
	return cfg
}

func TestLoadScenario(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	data := `
name: latency
steps:
  - name: baseline
    controller: pid
  - name: laggy
    delay_steps: 0
    params:
      Kp: 0.2
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if s.Name != "latency" || len(s.Steps) != 2 {
		t.Fatalf("got %+v", s)
	}
	if s.Steps[1].DelaySteps == nil || *s.Steps[1].DelaySteps != 0 {
		t.Error("explicit zero delay should be kept")
	}
	if s.Steps[0].DelaySteps != nil {
		t.Error("missing delay should stay unset")
	}

	empty := filepath.Join(dir, "empty.yaml")
	os.WriteFile(empty, []byte("name: nothing\n"), 0644)
	if _, err := LoadScenario(empty); err == nil {
		t.Error("expected error for scenario without steps")
	}
}

func TestApply(t *testing.T) {
	base := baseConfig()
	base.DelaySteps = 2
	base.ControllerParams = map[string]float64{"Kp": 0.1, "Kd": 0.3}

	zero := 0
	cfg := ScenarioStep{
		Track:      "oval",
		DelaySteps: &zero,
		Params:     map[string]float64{"Kp": 0.5},
	}.Apply(base)

	if cfg.Track != "oval" || cfg.Controller != "pid" {
		t.Errorf("track=%s controller=%s", cfg.Track, cfg.Controller)
	}
	if cfg.DelaySteps != 0 {
		t.Errorf("delay = %d", cfg.DelaySteps)
	}
	if cfg.ControllerParams["Kp"] != 0.5 || cfg.ControllerParams["Kd"] != 0.3 {
		t.Errorf("params = %v", cfg.ControllerParams)
	}
	if base.ControllerParams["Kp"] != 0.1 || base.Track != "straight" || base.DelaySteps != 2 {
		t.Error("base config was mutated")
	}
}

func TestRunScenario(t *testing.T) {
	r := NewRunner(2, nil)
	s := &Scenario{Name: "compare", Steps: []ScenarioStep{
		{Name: "pid"},
		{Controller: "none"},
	}}

	results, err := r.RunScenario(context.Background(), s, baseConfig())
	if err != nil {
		t.Fatalf("RunScenario: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Name != "pid" || results[1].Name != "step-2" {
		t.Errorf("names %q, %q", results[0].Name, results[1].Name)
	}
	if results[1].Config.Controller != "none" {
		t.Errorf("step 2 controller = %s", results[1].Config.Controller)
	}
	for _, res := range results {
		if res.Result.StepsTaken != 20 {
			t.Errorf("%s took %d steps", res.Name, res.Result.StepsTaken)
		}
	}
}

func TestRunScenarioRejectsBadStep(t *testing.T) {
	r := NewRunner(0, nil)
	s := &Scenario{Steps: []ScenarioStep{{Track: "moon"}}}
	if _, err := r.RunScenario(context.Background(), s, baseConfig()); err == nil {
		t.Error("expected error for unknown track")
	}
}

func TestRunDelaySweep(t *testing.T) {
	r := NewRunner(0, nil)
	base := baseConfig()
	base.LateralOffset = 1

	results, err := r.RunDelaySweep(context.Background(), base, []int{0, 2})
	if err != nil {
		t.Fatalf("RunDelaySweep: %v", err)
	}
	if len(results) != 2 || results[0].DelaySteps != 0 || results[1].DelaySteps != 2 {
		t.Fatalf("got %+v", results)
	}

	delayed := results[1].Result.Frames
	for i := 0; i < 2; i++ {
		if delayed[i].Applied != (dynamo.Command{}) {
			t.Errorf("frame %d applied %+v before the delay elapsed", i, delayed[i].Applied)
		}
	}
	if results[0].Result.Frames[0].Applied == (dynamo.Command{}) {
		t.Error("undelayed run should apply its first command immediately")
	}
}

func TestRunMonteCarlo(t *testing.T) {
	r := NewRunner(2, nil)
	mc := MonteCarloConfig{Trials: 4, OffsetSpread: 0.5, SpeedSpread: 1, MaxCTE: 3, Seed: 7}

	a, err := r.RunMonteCarlo(context.Background(), baseConfig(), mc)
	if err != nil {
		t.Fatalf("RunMonteCarlo: %v", err)
	}
	b, err := r.RunMonteCarlo(context.Background(), baseConfig(), mc)
	if err != nil {
		t.Fatal(err)
	}

	if len(a) != 4 {
		t.Fatalf("got %d trials", len(a))
	}
	for i := range a {
		if a[i].LateralOffset != b[i].LateralOffset || a[i].InitialVelocity != b[i].InitialVelocity {
			t.Errorf("trial %d not reproducible with a fixed seed", i)
		}
		if a[i].LateralOffset < -0.5 || a[i].LateralOffset > 0.5 {
			t.Errorf("offset %f outside spread", a[i].LateralOffset)
		}
	}

	stable, unstable := MonteCarloStats(a)
	if stable != 4 || unstable != 0 {
		t.Errorf("stable=%d unstable=%d", stable, unstable)
	}
}

func TestMonteCarloStats(t *testing.T) {
	s, u := MonteCarloStats([]MonteCarloResult{{Stable: true}, {Stable: false}, {Stable: true}})
	if s != 2 || u != 1 {
		t.Errorf("got %d, %d", s, u)
	}
}
