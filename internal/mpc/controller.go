package mpc

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/models"
	"github.com/san-kum/mpcsim/internal/nlp"
	"github.com/san-kum/mpcsim/internal/poly"
	"github.com/san-kum/mpcsim/internal/telemetry"
)

// NeutralCommand is issued when the optimizer fails before any solve has
// succeeded: wheels straight, mild braking.
var NeutralCommand = dynamo.Command{Steer: 0, Throttle: -0.1}

// Result of one control cycle.
type Result struct {
	Command dynamo.Command
	// Actuation is the physical command behind Command.
	Actuation dynamo.Actuation
	// Compensated is the latency-propagated state that seeded the horizon.
	Compensated dynamo.State
	// Predicted positions for t in [1, N-1].
	Predicted dynamo.Trajectory
	// Horizon is the full optimized state sequence, t in [0, N).
	Horizon []dynamo.State
	Cost      float64
	Status    nlp.Status
	// Fallback is set when Command came from the failure policy.
	Fallback bool
}

// Controller is the model-predictive path tracker. Solve calls are
// serialized; the only state carried between them is the last issued
// actuation and the previous solution used for warm starts.
type Controller struct {
	mu     sync.Mutex
	cfg    Config
	model  *models.Bicycle
	solver nlp.Solver
	log    *zap.Logger

	held      dynamo.Actuation
	lastGood  *dynamo.Actuation
	prevActs  []dynamo.Actuation
	predicted dynamo.Trajectory
}

type Option func(*Controller)

// WithSolver replaces the default augmented-Lagrangian backend.
func WithSolver(s nlp.Solver) Option {
	return func(c *Controller) { c.solver = s }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// New validates cfg and returns a controller. Configuration errors are fatal.
func New(cfg Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		cfg:    cfg,
		model:  models.NewBicycle(cfg.Lf),
		solver: nlp.NewAugLag(nlp.DefaultSettings()),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Controller) Config() Config { return c.cfg }

// Solve runs one control cycle. On optimizer failure the returned Result
// carries the fallback command and err wraps ErrConvergence; callers may
// apply the command either way. Input errors return a zero Result.
func (c *Controller) Solve(state dynamo.State, coeffs poly.Poly) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	defer func() { telemetry.SolveDuration.Observe(time.Since(start).Seconds()) }()

	if err := c.validate(state, coeffs); err != nil {
		telemetry.SolveTotal.WithLabelValues(telemetry.ResultRejected).Inc()
		return Result{}, err
	}

	x0 := Compensate(c.model, state, c.held, coeffs, c.cfg.DelaySteps, c.cfg.Dt)
	prob := NewProblem(c.cfg, x0, coeffs)
	guess := prob.WarmStart(c.warmActs())

	sol, err := c.solver.Solve(prob, guess)
	if sol != nil {
		telemetry.SolverIterations.Observe(float64(sol.InnerIterations))
		telemetry.ConstraintViolation.Set(sol.Violation)
	}
	if err == nil && (sol == nil || len(sol.X) != prob.Dim() || !finite(sol.X)) {
		err = fmt.Errorf("%w: solver returned an unusable solution", nlp.ErrNotConverged)
	}
	if err != nil {
		return c.fallback(x0, err), fmt.Errorf("%w: %w", ErrConvergence, err)
	}

	states, acts := prob.Unpack(sol.X)
	u := acts[0]
	res := Result{
		Command: dynamo.Command{
			Steer:    clamp(u.Delta/c.cfg.MaxSteer, -1, 1),
			Throttle: clamp(u.A, -1, 1),
		},
		Actuation:   u,
		Compensated: x0,
		Predicted:   trajectory(states[1:]),
		Horizon:     states,
		Cost:        sol.Cost,
		Status:      sol.Status,
	}

	c.held = u
	c.lastGood = &u
	c.prevActs = acts
	c.predicted = res.Predicted

	result := telemetry.ResultConverged
	if sol.Status != nlp.Converged {
		result = telemetry.ResultSuboptimal
	}
	telemetry.SolveTotal.WithLabelValues(result).Inc()
	c.log.Debug("mpc solve",
		zap.Float64("steer", res.Command.Steer),
		zap.Float64("throttle", res.Command.Throttle),
		zap.Float64("cost", sol.Cost),
		zap.Int("outer", sol.OuterIterations),
		zap.Int("inner", sol.InnerIterations),
		zap.Stringer("status", sol.Status),
	)
	return res, nil
}

// Compute adapts Solve to dynamo.Controller.
func (c *Controller) Compute(x dynamo.State, ref poly.Poly) (dynamo.Command, error) {
	res, err := c.Solve(x, ref)
	if err != nil && !errors.Is(err, ErrConvergence) {
		return dynamo.Command{}, err
	}
	return res.Command, err
}

// Predicted returns a copy of the trajectory from the last successful solve.
func (c *Controller) Predicted() dynamo.Trajectory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.predicted.Clone()
}

// Held returns the actuation currently assumed to be applied.
func (c *Controller) Held() dynamo.Actuation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held
}

func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.held = dynamo.Actuation{}
	c.lastGood = nil
	c.prevActs = nil
	c.predicted = dynamo.Trajectory{}
}

func (c *Controller) GetParams() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.GetParams()
}

func (c *Controller) SetParam(name string, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.SetParam(name, value)
}

func (c *Controller) validate(state dynamo.State, coeffs poly.Poly) error {
	if !state.IsValid() {
		return fmt.Errorf("%w: %w", ErrInvalidInput, dynamo.ErrInvalidState)
	}
	if want := c.cfg.PolyDegree + 1; len(coeffs) != want {
		return fmt.Errorf("%w: %d coefficients, want %d: %w", ErrInvalidInput, len(coeffs), want, dynamo.ErrDimensionMismatch)
	}
	if !coeffs.IsValid() {
		return fmt.Errorf("%w: non-finite coefficient", ErrInvalidInput)
	}
	return nil
}

// warmActs shifts the previous plan one step forward, repeating its tail.
func (c *Controller) warmActs() []dynamo.Actuation {
	if len(c.prevActs) == 0 {
		return nil
	}
	out := make([]dynamo.Actuation, len(c.prevActs))
	copy(out, c.prevActs[1:])
	out[len(out)-1] = c.prevActs[len(c.prevActs)-1]
	return out
}

// fallback holds the last good actuation, or issues NeutralCommand when
// there is none. The issued command becomes the held actuation; the last
// good one is kept for the next failure.
func (c *Controller) fallback(x0 dynamo.State, cause error) Result {
	cmd := NeutralCommand
	if c.lastGood != nil {
		cmd = dynamo.Command{
			Steer:    clamp(c.lastGood.Delta/c.cfg.MaxSteer, -1, 1),
			Throttle: clamp(c.lastGood.A, -1, 1),
		}
	}
	u := dynamo.Actuation{Delta: cmd.Steer * c.cfg.MaxSteer, A: cmd.Throttle}

	c.held = u
	c.prevActs = nil
	c.predicted = dynamo.Trajectory{}

	telemetry.SolveTotal.WithLabelValues(telemetry.ResultFallback).Inc()
	c.log.Warn("mpc solve failed, applying fallback",
		zap.Error(cause),
		zap.Bool("held_last", c.lastGood != nil),
		zap.Float64("steer", cmd.Steer),
		zap.Float64("throttle", cmd.Throttle),
	)

	return Result{
		Command:     cmd,
		Actuation:   u,
		Compensated: x0,
		Status:      nlp.Infeasible,
		Fallback:    true,
	}
}

func trajectory(states []dynamo.State) dynamo.Trajectory {
	tr := dynamo.Trajectory{
		X: make([]float64, len(states)),
		Y: make([]float64, len(states)),
	}
	for i, s := range states {
		tr.X[i] = s[dynamo.X]
		tr.Y[i] = s[dynamo.Y]
	}
	return tr
}

func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
