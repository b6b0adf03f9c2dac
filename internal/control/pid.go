package control

import (
	"fmt"
	"math"

	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/poly"
)

// PID is a discrete scalar loop with a fixed sample time.
type PID struct {
	Kp     float64
	Ki     float64
	Kd     float64
	Target float64
	Dt     float64

	integral float64
	prevErr  float64
	first    bool
}

func NewPID(kp, ki, kd, target, dt float64) *PID {
	return &PID{
		Kp:     kp,
		Ki:     ki,
		Kd:     kd,
		Target: target,
		Dt:     dt,
		first:  true,
	}
}

// Update returns the control for one sample of the measured value.
func (p *PID) Update(measured float64) float64 {
	err := p.Target - measured
	if p.first || p.Dt <= 0 {
		p.prevErr = err
		p.first = false
		return p.Kp * err
	}

	p.integral += err * p.Dt
	derivative := (err - p.prevErr) / p.Dt
	p.prevErr = err
	return p.Kp*err + p.Ki*p.integral + p.Kd*derivative
}

// Reset clears integral and derivative state
func (p *PID) Reset() {
	p.integral = 0
	p.prevErr = 0
	p.first = true
}

// Lateral is the baseline tracker: a PID on cross-track error with a
// heading-error term for steering, and a PID on speed for throttle.
type Lateral struct {
	Steer *PID
	Speed *PID
	// KEpsi scales the heading-error term.
	KEpsi float64
}

// NewLateral returns gains that hold a straight or gently curved lane at
// the given target speed.
func NewLateral(targetVelocity, dt float64) *Lateral {
	return &Lateral{
		Steer: NewPID(0.15, 0.005, 0.3, 0, dt),
		Speed: NewPID(0.5, 0.05, 0, targetVelocity, dt),
		KEpsi: 1.2,
	}
}

// Compute steers towards the road (positive cte means the road lies to
// the left) and against the heading error.
func (l *Lateral) Compute(x dynamo.State, ref poly.Poly) (dynamo.Command, error) {
	if !x.IsValid() {
		return dynamo.Command{}, dynamo.ErrInvalidState
	}
	steer := -l.Steer.Update(x[dynamo.CTE]) - l.KEpsi*x[dynamo.EPsi]
	throttle := l.Speed.Update(x[dynamo.V])
	return dynamo.Command{Steer: clip(steer), Throttle: clip(throttle)}, nil
}

func (l *Lateral) Reset() {
	l.Steer.Reset()
	l.Speed.Reset()
}

// GetParams returns tunable parameters for live adjustment
func (l *Lateral) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp":              l.Steer.Kp,
		"Ki":              l.Steer.Ki,
		"Kd":              l.Steer.Kd,
		"KEpsi":           l.KEpsi,
		"target_velocity": l.Speed.Target,
	}
}

func (l *Lateral) SetParam(name string, value float64) error {
	switch name {
	case "Kp":
		l.Steer.Kp = value
	case "Ki":
		l.Steer.Ki = value
	case "Kd":
		l.Steer.Kd = value
	case "KEpsi":
		l.KEpsi = value
	case "target_velocity":
		l.Speed.Target = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}

func clip(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
