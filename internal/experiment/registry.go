package experiment

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/san-kum/mpcsim/internal/control"
	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/integrators"
	"github.com/san-kum/mpcsim/internal/metrics"
	"github.com/san-kum/mpcsim/internal/mpc"
	"github.com/san-kum/mpcsim/internal/nlp"
	"github.com/san-kum/mpcsim/internal/sim"
)

type controllerFactory func(cfg Config, log *zap.Logger) (dynamo.Controller, error)

type Registry struct {
	tracks      map[string]func() *sim.Track
	integrators map[string]func() dynamo.Integrator
	controllers map[string]controllerFactory
}

func NewRegistry() *Registry {
	r := &Registry{
		tracks:      make(map[string]func() *sim.Track),
		integrators: make(map[string]func() dynamo.Integrator),
		controllers: make(map[string]controllerFactory),
	}

	r.tracks["straight"] = func() *sim.Track { return sim.Straight(1000, 2) }
	r.tracks["sine"] = func() *sim.Track { return sim.Sine(1000, 6, 120, 2) }
	r.tracks["oval"] = func() *sim.Track { return sim.Oval(150, 40, 2) }

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }
	r.integrators["rk45"] = func() dynamo.Integrator { return integrators.NewRK45() }

	r.controllers["mpc"] = func(cfg Config, log *zap.Logger) (dynamo.Controller, error) {
		return mpc.New(cfg.MPC,
			mpc.WithSolver(nlp.NewAugLag(cfg.Solver)),
			mpc.WithLogger(log),
		)
	}
	r.controllers["pid"] = func(cfg Config, log *zap.Logger) (dynamo.Controller, error) {
		return control.NewLateral(cfg.Sim.TargetVelocity, cfg.Sim.Dt), nil
	}
	r.controllers["lqr"] = func(cfg Config, log *zap.Logger) (dynamo.Controller, error) {
		return control.NewLaneKeepLQR(cfg.Sim.TargetVelocity), nil
	}
	r.controllers["none"] = func(cfg Config, log *zap.Logger) (dynamo.Controller, error) {
		return control.NewNone(), nil
	}

	return r
}

func (r *Registry) GetTrack(name string) (*sim.Track, error) {
	fn, ok := r.tracks[name]
	if !ok {
		return nil, fmt.Errorf("unknown track: %s", name)
	}
	return fn(), nil
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

// GetController builds the named controller and applies cfg.Params to it
// when it is tunable.
func (r *Registry) GetController(name string, cfg Config, log *zap.Logger) (dynamo.Controller, error) {
	fn, ok := r.controllers[name]
	if !ok {
		return nil, fmt.Errorf("unknown controller: %s", name)
	}
	ctrl, err := fn(cfg, log)
	if err != nil {
		return nil, err
	}
	if len(cfg.Params) == 0 {
		return ctrl, nil
	}
	tunable, ok := ctrl.(dynamo.Configurable)
	if !ok {
		return nil, fmt.Errorf("controller %s has no tunable params", name)
	}
	for _, k := range sortedKeys(cfg.Params) {
		if err := tunable.SetParam(k, cfg.Params[k]); err != nil {
			return nil, fmt.Errorf("controller %s: %w", name, err)
		}
	}
	return ctrl, nil
}

func (r *Registry) ListTracks() []string      { return sortedKeys(r.tracks) }
func (r *Registry) ListIntegrators() []string { return sortedKeys(r.integrators) }
func (r *Registry) ListControllers() []string { return sortedKeys(r.controllers) }

func (r *Registry) DefaultMetrics(targetVelocity float64) []dynamo.Metric {
	return metrics.Standard(targetVelocity)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
