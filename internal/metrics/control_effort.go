package metrics

import (
	"math"

	"github.com/san-kum/mpcsim/internal/dynamo"
)

// ControlEffort is the mean of |steer| + |throttle| over the run.
type ControlEffort struct {
	name    string
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(x dynamo.State, u dynamo.Command, t float64) {
	c.sum += math.Abs(u.Steer) + math.Abs(u.Throttle)
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

// SteerSmoothness is the mean absolute change in steer between
// consecutive commands.
type SteerSmoothness struct {
	name    string
	prev    float64
	sum     float64
	samples int
}

func NewSteerSmoothness() *SteerSmoothness {
	return &SteerSmoothness{name: "steer_smoothness"}
}

func (s *SteerSmoothness) Name() string { return s.name }

func (s *SteerSmoothness) Observe(x dynamo.State, u dynamo.Command, t float64) {
	if s.samples > 0 {
		s.sum += math.Abs(u.Steer - s.prev)
	}
	s.prev = u.Steer
	s.samples++
}

func (s *SteerSmoothness) Value() float64 {
	if s.samples < 2 {
		return 0
	}
	return s.sum / float64(s.samples-1)
}

func (s *SteerSmoothness) Reset() {
	s.prev = 0
	s.sum = 0
	s.samples = 0
}
