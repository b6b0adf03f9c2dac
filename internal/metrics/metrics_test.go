package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/mpcsim/internal/dynamo"
)

func TestRMS(t *testing.T) {
	m := NewCTERMS()
	if m.Value() != 0 {
		t.Errorf("empty rms should be 0")
	}
	m.Observe(dynamo.State{0, 0, 0, 0, 3, 0}, dynamo.Command{}, 0)
	m.Observe(dynamo.State{0, 0, 0, 0, -4, 0}, dynamo.Command{}, 0.1)

	want := math.Sqrt(12.5)
	if math.Abs(m.Value()-want) > 1e-12 {
		t.Errorf("cte_rms = %f, want %f", m.Value(), want)
	}

	m.Reset()
	if m.Value() != 0 {
		t.Errorf("reset did not clear rms")
	}
}

func TestSpeedError(t *testing.T) {
	m := NewSpeedError(10)
	m.Observe(dynamo.State{0, 0, 0, 8, 0, 0}, dynamo.Command{}, 0)
	m.Observe(dynamo.State{0, 0, 0, 13, 0, 0}, dynamo.Command{}, 0)
	if m.Value() != 2.5 {
		t.Errorf("speed_error = %f, want 2.5", m.Value())
	}
}

func TestControlEffort(t *testing.T) {
	m := NewControlEffort()
	m.Observe(dynamo.State{}, dynamo.Command{Steer: -0.5, Throttle: 0.25}, 0)
	m.Observe(dynamo.State{}, dynamo.Command{Steer: 0, Throttle: -0.25}, 0)
	if m.Value() != 0.5 {
		t.Errorf("control_effort = %f, want 0.5", m.Value())
	}
}

func TestSteerSmoothness(t *testing.T) {
	m := NewSteerSmoothness()
	for _, s := range []float64{0.1, 0.3, -0.1} {
		m.Observe(dynamo.State{}, dynamo.Command{Steer: s}, 0)
	}
	// |0.2| and |-0.4| over two transitions.
	if math.Abs(m.Value()-0.3) > 1e-12 {
		t.Errorf("steer_smoothness = %f, want 0.3", m.Value())
	}
}

func TestLaneKeeping(t *testing.T) {
	m := NewLaneKeeping(1)
	m.Observe(dynamo.State{0, 0, 0, 0, 0.5, 0}, dynamo.Command{}, 0)
	m.Observe(dynamo.State{0, 0, 0, 0, 1.5, 0}, dynamo.Command{}, 0)
	if m.Value() != 0.5 {
		t.Errorf("lane_keeping = %f, want 0.5", m.Value())
	}
}

func TestStandardNames(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range Standard(10) {
		if seen[m.Name()] {
			t.Errorf("duplicate metric %s", m.Name())
		}
		seen[m.Name()] = true
	}
	for _, name := range []string{"cte_rms", "epsi_rms", "speed_error", "control_effort", "steer_smoothness"} {
		if !seen[name] {
			t.Errorf("missing metric %s", name)
		}
	}
}
