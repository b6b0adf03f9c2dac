package metrics

import (
	"math"

	"github.com/san-kum/mpcsim/internal/dynamo"
)

// LaneKeeping is the fraction of samples with |cte| within the threshold.
type LaneKeeping struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewLaneKeeping(threshold float64) *LaneKeeping {
	return &LaneKeeping{
		name:      "lane_keeping",
		threshold: threshold,
	}
}

func (s *LaneKeeping) Name() string {
	return s.name
}

func (s *LaneKeeping) Observe(x dynamo.State, u dynamo.Command, t float64) {
	s.samples++
	if math.Abs(x[dynamo.CTE]) > s.threshold || !x.IsValid() {
		s.violations++
	}
}

func (s *LaneKeeping) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *LaneKeeping) Reset() {
	s.violations = 0
	s.samples = 0
}
