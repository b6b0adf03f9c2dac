package sim

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/models"
	"github.com/san-kum/mpcsim/internal/mpc"
	"github.com/san-kum/mpcsim/internal/poly"
)

// ErrTrackEnd is returned by Step when an open track has fewer waypoints
// ahead than the lookahead needs.
var ErrTrackEnd = errors.New("sim: reached end of track")

// searchWindow bounds the forward nearest-waypoint search.
const searchWindow = 60

// Loop closes the control loop around a kinematic bicycle plant: each
// cycle fits the waypoints ahead, asks the controller for a command, pushes
// it through the actuator delay line and integrates the plant over dt.
type Loop struct {
	track      *Track
	controller dynamo.Controller
	integrator dynamo.Integrator
	plant      *models.Bicycle
	cfg        Config
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
	log        *zap.Logger

	pose    []float64
	t       float64
	step    int
	nearest int
	queue   []dynamo.Command
}

type Option func(*Loop)

func WithLogger(log *zap.Logger) Option {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

func New(track *Track, controller dynamo.Controller, integrator dynamo.Integrator, cfg Config, opts ...Option) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if track.Len() <= cfg.Lookahead {
		return nil, ErrTrackTooShort
	}
	l := &Loop{
		track:      track,
		controller: controller,
		integrator: integrator,
		plant:      models.NewBicycle(cfg.Lf),
		cfg:        cfg,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.Reset()
	return l, nil
}

func (l *Loop) AddMetric(m dynamo.Metric)     { l.metrics = append(l.metrics, m) }
func (l *Loop) AddObserver(o dynamo.Observer) { l.observers = append(l.observers, o) }

func (l *Loop) Config() Config                { return l.cfg }
func (l *Loop) Track() *Track                 { return l.track }
func (l *Loop) Controller() dynamo.Controller { return l.controller }
func (l *Loop) Pose() Pose                    { return poseOf(l.pose) }
func (l *Loop) Time() float64                 { return l.t }

// Reset puts the vehicle back at the start of the track, offset to the
// left by LateralOffset, with an empty delay line.
func (l *Loop) Reset() {
	h := l.track.Heading(0)
	sin, cos := math.Sincos(h)
	l.pose = Pose{
		X:   l.track.X[0] - l.cfg.LateralOffset*sin,
		Y:   l.track.Y[0] + l.cfg.LateralOffset*cos,
		Psi: h,
		V:   l.cfg.InitialVelocity,
	}.slice()
	l.t = 0
	l.step = 0
	l.nearest = -1
	l.queue = make([]dynamo.Command, l.cfg.DelaySteps)
	for _, m := range l.metrics {
		m.Reset()
	}
	if r, ok := l.controller.(interface{ Reset() }); ok {
		r.Reset()
	}
}

// Reference fits the waypoints ahead of the vehicle and returns the
// coefficients together with the vehicle-frame state.
func (l *Loop) Reference() (poly.Poly, dynamo.State, error) {
	p := poseOf(l.pose)
	l.nearest = l.track.Nearest(p.X, p.Y, l.nearest, searchWindow)

	start := l.nearest - 1
	if start < 0 {
		start = 0
		if l.track.Closed {
			start = l.track.Len() - 1
		}
	}
	px, py := l.track.Window(start, l.cfg.Lookahead)
	if len(px) < l.cfg.Lookahead {
		return nil, dynamo.State{}, ErrTrackEnd
	}

	vx, vy := poly.ToVehicleFrame(px, py, p.X, p.Y, p.Psi)
	coeffs, err := poly.Fit(vx, vy, l.cfg.PolyDegree)
	if err != nil {
		return nil, dynamo.State{}, err
	}

	// The vehicle sits at the origin of its own frame, heading along +x.
	state := dynamo.State{0, 0, 0, p.V, coeffs.Eval(0), -math.Atan(coeffs.Deriv(0))}
	return coeffs, state, nil
}

// Step runs one control cycle.
func (l *Loop) Step() (Frame, error) {
	coeffs, state, err := l.Reference()
	if err != nil {
		if errors.Is(err, ErrTrackEnd) {
			return Frame{}, err
		}
		return Frame{}, &dynamo.StepError{Step: l.step, Time: l.t, State: state, Wrapped: err}
	}

	cmd, err := l.controller.Compute(state, coeffs)
	fallback := false
	if err != nil {
		if !errors.Is(err, mpc.ErrConvergence) {
			return Frame{}, &dynamo.StepError{Step: l.step, Time: l.t, State: state, Wrapped: err}
		}
		fallback = true
	}

	for _, m := range l.metrics {
		m.Observe(state, cmd, l.t)
	}
	for _, obs := range l.observers {
		obs.OnStep(state, cmd, l.t)
	}

	applied := cmd
	if len(l.queue) > 0 {
		applied = l.queue[0]
		l.queue = append(l.queue[1:], cmd)
	}

	frame := Frame{
		Step:     l.step,
		Time:     l.t,
		Pose:     poseOf(l.pose),
		State:    state,
		Coeffs:   coeffs,
		Command:  cmd,
		Applied:  applied,
		Fallback: fallback,
	}
	if pr, ok := l.controller.(dynamo.Predictor); ok && !fallback {
		frame.Predicted = pr.Predicted()
	}

	u := dynamo.Actuation{Delta: applied.Steer * l.cfg.MaxSteer, A: applied.Throttle}
	next := l.integrator.Step(l.plant, l.pose, u, l.t, l.cfg.Dt)
	if l.cfg.ValidateState && !finite(next) {
		return frame, &dynamo.StepError{Step: l.step, Time: l.t, State: state, Wrapped: dynamo.ErrInvalidState}
	}

	l.pose = next
	l.t += l.cfg.Dt
	l.step++
	return frame, nil
}

// Run resets the loop and steps it for the configured duration, stopping
// early at the end of an open track or on a non-recoverable error.
func (l *Loop) Run(ctx context.Context) (*Result, error) {
	l.Reset()

	steps := int(math.Round(l.cfg.Duration / l.cfg.Dt))
	result := &Result{
		Frames:  make([]Frame, 0, steps),
		Metrics: make(map[string]float64),
	}

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return result, errors.Join(dynamo.ErrContextCanceled, ctx.Err())
		default:
		}

		frame, err := l.Step()
		if errors.Is(err, ErrTrackEnd) {
			result.Completed = true
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, err)
			l.log.Warn("run aborted", zap.Int("step", l.step), zap.Error(err))
			break
		}
		if frame.Fallback {
			result.Failures++
		}
		result.Frames = append(result.Frames, frame)
		result.StepsTaken++
	}

	for _, m := range l.metrics {
		result.Metrics[m.Name()] = m.Value()
	}

	l.log.Info("run finished",
		zap.String("track", l.track.Name),
		zap.Int("steps", result.StepsTaken),
		zap.Int("failures", result.Failures),
		zap.Bool("completed", result.Completed),
	)
	return result, nil
}

func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
