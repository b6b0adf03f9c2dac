package experiment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/mpc"
	"github.com/san-kum/mpcsim/internal/nlp"
	"github.com/san-kum/mpcsim/internal/sim"
)

type Config struct {
	Track      string
	Integrator string
	Controller string

	Sim    sim.Config
	MPC    mpc.Config
	Solver nlp.Settings

	// Params are applied to the controller through SetParam.
	Params map[string]float64
}

type Experiment struct {
	cfg  Config
	loop *sim.Loop
	log  *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Experiment {
	if log == nil {
		log = zap.NewNop()
	}
	return &Experiment{cfg: cfg, log: log}
}

// Setup resolves names through the registry and builds the loop with the
// standard metric set plus any extra observers.
func (e *Experiment) Setup(r *Registry, observers ...dynamo.Observer) error {
	track, err := r.GetTrack(e.cfg.Track)
	if err != nil {
		return err
	}
	integ, err := r.GetIntegrator(e.cfg.Integrator)
	if err != nil {
		return err
	}
	ctrl, err := r.GetController(e.cfg.Controller, e.cfg, e.log)
	if err != nil {
		return err
	}

	loop, err := sim.New(track, ctrl, integ, e.cfg.Sim, sim.WithLogger(e.log))
	if err != nil {
		return err
	}
	for _, m := range r.DefaultMetrics(e.cfg.Sim.TargetVelocity) {
		loop.AddMetric(m)
	}
	for _, o := range observers {
		loop.AddObserver(o)
	}
	e.loop = loop
	return nil
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.loop == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.loop.Run(ctx)
}

func (e *Experiment) Config() Config { return e.cfg }

// Loop returns the underlying loop for stepping it interactively.
func (e *Experiment) Loop() *sim.Loop {
	return e.loop
}
