package control

import (
	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/poly"
)

// LQR is static state feedback on the tracking errors
// e = (cte, epsi, v - target), giving u = (steer, throttle) = -K e.
type LQR struct {
	K              [2][3]float64
	TargetVelocity float64
}

func NewLQR(k [2][3]float64, targetVelocity float64) *LQR {
	return &LQR{K: k, TargetVelocity: targetVelocity}
}

// Gains from the lane-keeping linearization at 15 m/s, dt 0.1.
var laneKeepGains = [2][3]float64{
	{-0.35, 1.1, 0},
	{0, 0, 0.45},
}

func NewLaneKeepLQR(targetVelocity float64) *LQR {
	return NewLQR(laneKeepGains, targetVelocity)
}

func (l *LQR) Compute(x dynamo.State, ref poly.Poly) (dynamo.Command, error) {
	if !x.IsValid() {
		return dynamo.Command{}, dynamo.ErrInvalidState
	}
	e := [3]float64{x[dynamo.CTE], x[dynamo.EPsi], x[dynamo.V] - l.TargetVelocity}
	var u [2]float64
	for i := range u {
		for j := range e {
			u[i] -= l.K[i][j] * e[j]
		}
	}
	return dynamo.Command{Steer: clip(u[0]), Throttle: clip(u[1])}, nil
}
