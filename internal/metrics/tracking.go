package metrics

import (
	"math"

	"github.com/san-kum/mpcsim/internal/dynamo"
)

// RMS is the root mean square of one state component.
type RMS struct {
	name    string
	index   int
	sumSq   float64
	samples int
}

func NewRMS(name string, index int) *RMS {
	return &RMS{name: name, index: index}
}

func NewCTERMS() *RMS  { return NewRMS("cte_rms", dynamo.CTE) }
func NewEPsiRMS() *RMS { return NewRMS("epsi_rms", dynamo.EPsi) }

func (r *RMS) Name() string { return r.name }

func (r *RMS) Observe(x dynamo.State, u dynamo.Command, t float64) {
	v := x[r.index]
	r.sumSq += v * v
	r.samples++
}

func (r *RMS) Value() float64 {
	if r.samples == 0 {
		return 0
	}
	return math.Sqrt(r.sumSq / float64(r.samples))
}

func (r *RMS) Reset() {
	r.sumSq = 0
	r.samples = 0
}

// SpeedError is the mean |v - target|.
type SpeedError struct {
	name    string
	target  float64
	sum     float64
	samples int
}

func NewSpeedError(target float64) *SpeedError {
	return &SpeedError{name: "speed_error", target: target}
}

func (s *SpeedError) Name() string { return s.name }

func (s *SpeedError) Observe(x dynamo.State, u dynamo.Command, t float64) {
	s.sum += math.Abs(x[dynamo.V] - s.target)
	s.samples++
}

func (s *SpeedError) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return s.sum / float64(s.samples)
}

func (s *SpeedError) Reset() {
	s.sum = 0
	s.samples = 0
}

// Standard returns the metric set recorded for every closed-loop run.
func Standard(targetVelocity float64) []dynamo.Metric {
	return []dynamo.Metric{
		NewCTERMS(),
		NewEPsiRMS(),
		NewSpeedError(targetVelocity),
		NewControlEffort(),
		NewSteerSmoothness(),
		NewLaneKeeping(1.0),
	}
}
