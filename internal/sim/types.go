package sim

import (
	"fmt"

	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/poly"
)

type Config struct {
	Dt       float64 `yaml:"dt"`
	Duration float64 `yaml:"duration"`

	TargetVelocity  float64 `yaml:"target_velocity"`
	InitialVelocity float64 `yaml:"initial_velocity"`
	// LateralOffset shifts the start pose to the left of the track.
	LateralOffset float64 `yaml:"lateral_offset"`

	// DelaySteps is the actuator latency in control cycles.
	DelaySteps int `yaml:"delay_steps"`
	// Lookahead is the number of waypoints fitted each cycle.
	Lookahead  int `yaml:"lookahead"`
	PolyDegree int `yaml:"poly_degree"`

	// Plant parameters. They may differ from the controller's model.
	Lf       float64 `yaml:"lf"`
	MaxSteer float64 `yaml:"max_steer"`

	ValidateState bool `yaml:"validate_state"`
}

func (c Config) Validate() error {
	switch {
	case c.Dt <= 0:
		return fmt.Errorf("dt must be positive, got %f", c.Dt)
	case c.Duration <= 0:
		return fmt.Errorf("duration must be positive, got %f", c.Duration)
	case c.DelaySteps < 0:
		return fmt.Errorf("delay_steps must be non-negative, got %d", c.DelaySteps)
	case c.PolyDegree < 0:
		return fmt.Errorf("poly_degree must be non-negative, got %d", c.PolyDegree)
	case c.Lookahead <= c.PolyDegree:
		return fmt.Errorf("lookahead %d too short for degree %d", c.Lookahead, c.PolyDegree)
	case c.Lf <= 0:
		return fmt.Errorf("lf must be positive, got %f", c.Lf)
	case c.MaxSteer <= 0:
		return fmt.Errorf("max_steer must be positive, got %f", c.MaxSteer)
	}
	return nil
}

// Pose is the plant state in the global frame.
type Pose struct {
	X, Y, Psi, V float64
}

func (p Pose) slice() []float64 { return []float64{p.X, p.Y, p.Psi, p.V} }

func poseOf(x []float64) Pose { return Pose{x[0], x[1], x[2], x[3]} }

// Frame records one control cycle.
type Frame struct {
	Step int
	Time float64
	Pose Pose
	// State is the vehicle-frame state handed to the controller.
	State  dynamo.State
	Coeffs poly.Poly
	// Command is what the controller issued; Applied is what reached the
	// plant after the actuator delay.
	Command dynamo.Command
	Applied dynamo.Command
	// Predicted is the controller's plan in the vehicle frame, if any.
	Predicted dynamo.Trajectory
	Fallback  bool
}

type Result struct {
	Frames     []Frame
	Metrics    map[string]float64
	StepsTaken int
	// Failures counts cycles that ran on a fallback command.
	Failures int
	Errors   []error
	// Completed is set when an open track ran out of waypoints.
	Completed bool
}
