package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/models"
)

func drive(integ dynamo.Integrator, dyn dynamo.System, x []float64, u dynamo.Actuation, dt float64, steps int) []float64 {
	for i := 0; i < steps; i++ {
		x = integ.Step(dyn, x, u, float64(i)*dt, dt)
	}
	return x
}

func TestStraightLine(t *testing.T) {
	bike := models.NewBicycle(models.DefaultLf)
	integs := map[string]dynamo.Integrator{
		"euler": NewEuler(),
		"rk4":   NewRK4(),
		"rk45":  NewRK45(),
	}
	for name, integ := range integs {
		t.Run(name, func(t *testing.T) {
			x := drive(integ, bike, []float64{0, 0, 0, 10}, dynamo.Actuation{}, 0.1, 20)
			if math.Abs(x[0]-20) > 1e-9 || math.Abs(x[1]) > 1e-12 {
				t.Errorf("expected (20, 0), got (%.6f, %.6f)", x[0], x[1])
			}
		})
	}
}

func TestEulerMatchesDiscreteModel(t *testing.T) {
	bike := models.NewBicycle(models.DefaultLf)
	u := dynamo.Actuation{Delta: 0.1, A: 0.5}
	s := dynamo.State{1, 2, 0.3, 8, 0, 0}

	next := bike.Step(s, u, nil, 0.1)
	x := NewEuler().Step(bike, []float64{1, 2, 0.3, 8}, u, 0, 0.1)

	for i := 0; i < 4; i++ {
		if math.Abs(x[i]-next[i]) > 1e-12 {
			t.Errorf("state %d: euler %.12f, model %.12f", i, x[i], next[i])
		}
	}
}

// Constant speed and steering traces a circle of radius Lf/delta.
func TestCircleAccuracy(t *testing.T) {
	bike := models.NewBicycle(models.DefaultLf)
	u := dynamo.Actuation{Delta: 0.1}
	v := 5.0
	dt := 0.05
	steps := 200
	radius := bike.Lf / u.Delta

	tests := []struct {
		name  string
		integ dynamo.Integrator
		tol   float64
	}{
		{"rk4", NewRK4(), 1e-6},
		{"rk45", NewRK45(), 1e-4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := drive(tt.integ, bike, []float64{0, 0, 0, v}, u, dt, steps)
			// Circle centre sits at (0, radius).
			r := math.Hypot(x[0], x[1]-radius)
			if math.Abs(r-radius) > tt.tol {
				t.Errorf("radius drifted: got %.8f, want %.8f", r, radius)
			}
			wantPsi := v / bike.Lf * u.Delta * dt * float64(steps)
			if math.Abs(x[2]-wantPsi) > 1e-9 {
				t.Errorf("heading: got %.9f, want %.9f", x[2], wantPsi)
			}
		})
	}
}

func TestRK45CoversFullPeriod(t *testing.T) {
	bike := models.NewBicycle(models.DefaultLf)
	integ := NewRK45()
	x := integ.Step(bike, []float64{0, 0, 0, 0}, dynamo.Actuation{A: 1}, 0, 0.5)
	if math.Abs(x[3]-0.5) > 1e-12 {
		t.Errorf("speed after 0.5s at a=1: got %.12f", x[3])
	}
	if math.Abs(x[0]-0.125) > 1e-9 {
		t.Errorf("distance after 0.5s at a=1: got %.12f", x[0])
	}
}

func BenchmarkRK4(b *testing.B) {
	bike := models.NewBicycle(models.DefaultLf)
	integ := NewRK4()
	x := []float64{0, 0, 0, 10}
	u := dynamo.Actuation{Delta: 0.05}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integ.Step(bike, x, u, 0, 0.01)
	}
}

func BenchmarkRK45(b *testing.B) {
	bike := models.NewBicycle(models.DefaultLf)
	integ := NewRK45()
	x := []float64{0, 0, 0, 10}
	u := dynamo.Actuation{Delta: 0.05}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integ.Step(bike, x, u, 0, 0.1)
	}
}
