package integrators

import "github.com/san-kum/mpcsim/internal/dynamo"

// Euler is the forward Euler scheme. With the bicycle plant it reproduces
// the controller's own discrete model exactly.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn dynamo.System, x []float64, u dynamo.Actuation, t, dt float64) []float64 {
	dx := dyn.Derive(x, u, t)
	result := make([]float64, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}
