package dynamo

import (
	"fmt"
	"math"

	"github.com/san-kum/mpcsim/internal/poly"
)

// Indices into State.
const (
	X = iota
	Y
	Psi
	V
	CTE
	EPsi

	StateDim = 6
)

// State is (x, y, psi, v, cte, epsi) in the vehicle frame.
type State [StateDim]float64

// ParseState converts a slice into a State, rejecting any length other than 6.
func ParseState(s []float64) (State, error) {
	var st State
	if len(s) != StateDim {
		return st, fmt.Errorf("%w: state has %d components, want %d", ErrDimensionMismatch, len(s), StateDim)
	}
	copy(st[:], s)
	return st, nil
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Sub(other State) State {
	var out State
	for i := range s {
		out[i] = s[i] - other[i]
	}
	return out
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Slice() []float64 {
	out := make([]float64, StateDim)
	copy(out, s[:])
	return out
}

// Actuation is the physical command: steering angle in radians and
// acceleration in the model's units.
type Actuation struct {
	Delta float64
	A     float64
}

// Command is the normalized command sent to the actuators, both in [-1, 1].
type Command struct {
	Steer    float64
	Throttle float64
}

// Trajectory holds predicted positions for rendering. It is never fed back
// into the optimizer.
type Trajectory struct {
	X []float64
	Y []float64
}

func (t Trajectory) Len() int { return len(t.X) }

func (t Trajectory) Clone() Trajectory {
	return Trajectory{
		X: append([]float64(nil), t.X...),
		Y: append([]float64(nil), t.Y...),
	}
}

// System is a continuous-time plant, dX/dt = f(X, u, t).
type System interface {
	Derive(x []float64, u Actuation, t float64) []float64
	StateDim() int
}

type Integrator interface {
	Step(dyn System, x []float64, u Actuation, t float64, dt float64) []float64
}

// Controller maps a vehicle-frame state and reference path to a command.
// A non-nil error may accompany a usable fallback command.
type Controller interface {
	Compute(x State, ref poly.Poly) (Command, error)
}

// Predictor is implemented by controllers that expose a predicted path.
type Predictor interface {
	Predicted() Trajectory
}

type Metric interface {
	Name() string
	Observe(x State, u Command, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(x State, u Command, t float64)
}

type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}
