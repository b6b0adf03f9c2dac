package models

import (
	"fmt"
	"math"

	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/poly"
)

// DefaultLf is the CoG-to-front-axle distance of a mid-size sedan, metres.
const DefaultLf = 2.67

// Bicycle is the kinematic bicycle model. Positive Delta turns the heading
// counter-clockwise.
type Bicycle struct {
	Lf float64
}

func NewBicycle(lf float64) *Bicycle {
	return &Bicycle{Lf: lf}
}

// Step advances a vehicle-frame state by one dt, tracking cte and epsi
// against the reference f.
func (b *Bicycle) Step(s dynamo.State, u dynamo.Actuation, f poly.Poly, dt float64) dynamo.State {
	x, y, psi, v, epsi := s[dynamo.X], s[dynamo.Y], s[dynamo.Psi], s[dynamo.V], s[dynamo.EPsi]
	sin, cos := math.Sincos(psi)
	yaw := v / b.Lf * u.Delta * dt

	var next dynamo.State
	next[dynamo.X] = x + v*cos*dt
	next[dynamo.Y] = y + v*sin*dt
	next[dynamo.Psi] = psi + yaw
	next[dynamo.V] = v + u.A*dt
	next[dynamo.CTE] = f.Eval(x) - y + v*math.Sin(epsi)*dt
	next[dynamo.EPsi] = psi - math.Atan(f.Deriv(x)) + yaw
	return next
}

// Rollout applies Step once per actuation, returning len(us)+1 states
// starting with s.
func (b *Bicycle) Rollout(s dynamo.State, us []dynamo.Actuation, f poly.Poly, dt float64) []dynamo.State {
	out := make([]dynamo.State, 0, len(us)+1)
	out = append(out, s)
	for _, u := range us {
		s = b.Step(s, u, f, dt)
		out = append(out, s)
	}
	return out
}

// StateDim is the size of the continuous plant state (x, y, psi, v) in the
// global frame.
func (b *Bicycle) StateDim() int { return 4 }

// Derive is the continuous-time plant used by the closed-loop simulator.
func (b *Bicycle) Derive(x []float64, u dynamo.Actuation, t float64) []float64 {
	psi, v := x[2], x[3]
	sin, cos := math.Sincos(psi)
	return []float64{
		v * cos,
		v * sin,
		v / b.Lf * u.Delta,
		u.A,
	}
}

func (b *Bicycle) GetParams() map[string]float64 {
	return map[string]float64{"lf": b.Lf}
}

func (b *Bicycle) SetParam(name string, value float64) error {
	switch name {
	case "lf":
		if value <= 0 {
			return fmt.Errorf("lf must be positive, got %f", value)
		}
		b.Lf = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
