package automation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/mpcsim/internal/config"
	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/experiment"
	"github.com/san-kum/mpcsim/internal/sim"
)

// Scenario is a batch of runs that share a base configuration.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep overrides the base configuration for one run. Zero values
// keep the base setting.
type ScenarioStep struct {
	Name           string             `yaml:"name"`
	Track          string             `yaml:"track"`
	Integrator     string             `yaml:"integrator"`
	Controller     string             `yaml:"controller"`
	Duration       float64            `yaml:"duration"`
	TargetVelocity float64            `yaml:"target_velocity"`
	DelaySteps     *int               `yaml:"delay_steps"`
	LateralOffset  float64            `yaml:"lateral_offset"`
	Params         map[string]float64 `yaml:"params"`
}

// StepResult pairs a run with the step that produced it.
type StepResult struct {
	Name   string
	Config *config.Config
	Result *sim.Result
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}
	return &scenario, nil
}

// Apply returns a copy of base with the step's overrides.
func (s ScenarioStep) Apply(base *config.Config) *config.Config {
	cfg := *base
	if s.Track != "" {
		cfg.Track = s.Track
	}
	if s.Integrator != "" {
		cfg.Integrator = s.Integrator
	}
	if s.Controller != "" {
		cfg.Controller = s.Controller
	}
	if s.Duration > 0 {
		cfg.Duration = s.Duration
	}
	if s.TargetVelocity > 0 {
		cfg.TargetVelocity = s.TargetVelocity
	}
	if s.DelaySteps != nil {
		cfg.DelaySteps = *s.DelaySteps
	}
	if s.LateralOffset != 0 {
		cfg.LateralOffset = s.LateralOffset
	}

	cfg.ControllerParams = make(map[string]float64, len(base.ControllerParams)+len(s.Params))
	for k, v := range base.ControllerParams {
		cfg.ControllerParams[k] = v
	}
	for k, v := range s.Params {
		cfg.ControllerParams[k] = v
	}
	return &cfg
}

// Runner executes batches of independent runs, at most Parallelism at a
// time.
type Runner struct {
	Registry    *experiment.Registry
	Parallelism int
	Log         *zap.Logger
}

func NewRunner(parallelism int, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{Registry: experiment.NewRegistry(), Parallelism: parallelism, Log: log}
}

// runAll builds one loop per config and runs them concurrently. Build
// errors are reported before anything runs.
func (r *Runner) runAll(ctx context.Context, cfgs []*config.Config) ([]*sim.Result, error) {
	loops := make([]*sim.Loop, len(cfgs))
	for i, cfg := range cfgs {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("run %d: %w", i+1, err)
		}
		exp := experiment.New(cfg.ExperimentConfig(), r.Log)
		if err := exp.Setup(r.Registry); err != nil {
			return nil, fmt.Errorf("run %d: %w", i+1, err)
		}
		loops[i] = exp.Loop()
	}
	return sim.RunAll(ctx, loops, r.Parallelism)
}

// RunScenario executes every step of a scenario over base.
func (r *Runner) RunScenario(ctx context.Context, scenario *Scenario, base *config.Config) ([]StepResult, error) {
	cfgs := make([]*config.Config, len(scenario.Steps))
	for i, step := range scenario.Steps {
		cfgs[i] = step.Apply(base)
	}

	r.Log.Info("running scenario", zap.String("name", scenario.Name), zap.Int("steps", len(cfgs)))
	results, err := r.runAll(ctx, cfgs)
	if err != nil {
		return nil, err
	}

	out := make([]StepResult, len(results))
	for i, res := range results {
		name := scenario.Steps[i].Name
		if name == "" {
			name = fmt.Sprintf("step-%d", i+1)
		}
		out[i] = StepResult{Name: name, Config: cfgs[i], Result: res}
	}
	return out, nil
}

// SweepResult is one point of a latency sweep.
type SweepResult struct {
	DelaySteps int
	Result     *sim.Result
}

// RunDelaySweep repeats base once per actuation delay. The controller's
// compensation and the simulated actuator always share the delay.
func (r *Runner) RunDelaySweep(ctx context.Context, base *config.Config, delays []int) ([]SweepResult, error) {
	cfgs := make([]*config.Config, len(delays))
	for i, d := range delays {
		cfg := *base
		cfg.DelaySteps = d
		cfgs[i] = &cfg
	}

	results, err := r.runAll(ctx, cfgs)
	if err != nil {
		return nil, err
	}
	out := make([]SweepResult, len(results))
	for i, res := range results {
		out[i] = SweepResult{DelaySteps: delays[i], Result: res}
	}
	return out, nil
}

type MonteCarloConfig struct {
	Trials int
	// OffsetSpread and SpeedSpread are the half-widths of the uniform
	// perturbations of the start offset and speed.
	OffsetSpread float64
	SpeedSpread  float64
	// MaxCTE is the lane half-width a stable trial must stay within.
	MaxCTE float64
	Seed   int64
}

type MonteCarloResult struct {
	TrialID         int
	LateralOffset   float64
	InitialVelocity float64
	MaxCTE          float64
	Failures        int
	Stable          bool
}

// RunMonteCarlo perturbs the start of base and reports which trials stay
// within the lane.
func (r *Runner) RunMonteCarlo(ctx context.Context, base *config.Config, mc MonteCarloConfig) ([]MonteCarloResult, error) {
	seed := mc.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	cfgs := make([]*config.Config, mc.Trials)
	for i := range cfgs {
		cfg := *base
		cfg.LateralOffset = base.LateralOffset + (rng.Float64()-0.5)*2*mc.OffsetSpread
		cfg.InitialVelocity = math.Max(0, base.InitialVelocity+(rng.Float64()-0.5)*2*mc.SpeedSpread)
		cfgs[i] = &cfg
	}

	results, err := r.runAll(ctx, cfgs)
	if err != nil {
		return nil, err
	}

	out := make([]MonteCarloResult, len(results))
	for i, res := range results {
		maxCTE := 0.0
		for _, f := range res.Frames {
			maxCTE = math.Max(maxCTE, math.Abs(f.State[dynamo.CTE]))
		}
		out[i] = MonteCarloResult{
			TrialID:         i,
			LateralOffset:   cfgs[i].LateralOffset,
			InitialVelocity: cfgs[i].InitialVelocity,
			MaxCTE:          maxCTE,
			Failures:        res.Failures,
			Stable:          len(res.Errors) == 0 && maxCTE <= mc.MaxCTE,
		}
	}
	return out, nil
}

func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}
