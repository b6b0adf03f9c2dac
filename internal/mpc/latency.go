package mpc

import (
	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/models"
	"github.com/san-kum/mpcsim/internal/poly"
)

// Compensate predicts where the vehicle will be when a command issued now
// takes effect: the bicycle model is stepped delaySteps times with the
// actuation that is still being applied. Zero steps returns s unchanged.
func Compensate(model *models.Bicycle, s dynamo.State, held dynamo.Actuation, f poly.Poly, delaySteps int, dt float64) dynamo.State {
	for i := 0; i < delaySteps; i++ {
		s = model.Step(s, held, f, dt)
	}
	return s
}
