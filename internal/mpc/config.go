package mpc

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidConfig indicates a configuration the controller refuses to run with.
	ErrInvalidConfig = errors.New("mpc: invalid configuration")

	// ErrInvalidInput indicates a state or coefficient vector that cannot be solved.
	ErrInvalidInput = errors.New("mpc: invalid input")

	// ErrConvergence indicates the optimizer failed and a fallback command was issued.
	ErrConvergence = errors.New("mpc: optimizer failed to converge")
)

// ConfigError names the offending field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("mpc: invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// Weights scale each term of the tracking cost.
type Weights struct {
	CTE       float64 `yaml:"cte"`
	EPsi      float64 `yaml:"epsi"`
	V         float64 `yaml:"v"`
	Delta     float64 `yaml:"delta"`
	A         float64 `yaml:"a"`
	DeltaRate float64 `yaml:"delta_rate"`
	ARate     float64 `yaml:"a_rate"`
}

type Config struct {
	// Horizon length in steps and step size in seconds.
	N  int     `yaml:"n"`
	Dt float64 `yaml:"dt"`

	TargetVelocity float64 `yaml:"target_velocity"`
	DelaySteps     int     `yaml:"delay_steps"`

	Lf       float64 `yaml:"lf"`
	MaxSteer float64 `yaml:"max_steer"`

	// PolyDegree fixes the expected reference polynomial length to PolyDegree+1.
	PolyDegree int `yaml:"poly_degree"`

	Weights Weights `yaml:"weights"`
}

const (
	DefaultN          = 10
	DefaultDt         = 0.1
	DefaultLf         = 2.67
	DefaultPolyDegree = 3
)

// DefaultMaxSteer is 25 degrees.
var DefaultMaxSteer = 25 * math.Pi / 180

func DefaultWeights() Weights {
	return Weights{
		CTE:       50,
		EPsi:      50,
		V:         1,
		Delta:     10,
		A:         10,
		DeltaRate: 100,
		ARate:     10,
	}
}

func DefaultConfig(targetVelocity float64, delaySteps int) Config {
	return Config{
		N:              DefaultN,
		Dt:             DefaultDt,
		TargetVelocity: targetVelocity,
		DelaySteps:     delaySteps,
		Lf:             DefaultLf,
		MaxSteer:       DefaultMaxSteer,
		PolyDegree:     DefaultPolyDegree,
		Weights:        DefaultWeights(),
	}
}

func (c Config) Validate() error {
	switch {
	case c.N < 2:
		return &ConfigError{"n", fmt.Sprintf("must be at least 2, got %d", c.N)}
	case !(c.Dt > 0) || math.IsInf(c.Dt, 0):
		return &ConfigError{"dt", fmt.Sprintf("must be positive and finite, got %g", c.Dt)}
	case c.DelaySteps < 0:
		return &ConfigError{"delay_steps", fmt.Sprintf("must be non-negative, got %d", c.DelaySteps)}
	case c.DelaySteps >= c.N:
		return &ConfigError{"delay_steps", fmt.Sprintf("%d consumes the whole horizon of %d steps", c.DelaySteps, c.N)}
	case !(c.Lf > 0):
		return &ConfigError{"lf", fmt.Sprintf("must be positive, got %g", c.Lf)}
	case !(c.MaxSteer > 0):
		return &ConfigError{"max_steer", fmt.Sprintf("must be positive, got %g", c.MaxSteer)}
	case c.PolyDegree < 0:
		return &ConfigError{"poly_degree", fmt.Sprintf("must be non-negative, got %d", c.PolyDegree)}
	case math.IsNaN(c.TargetVelocity) || math.IsInf(c.TargetVelocity, 0):
		return &ConfigError{"target_velocity", "must be finite"}
	}
	return c.Weights.validate()
}

func (w Weights) validate() error {
	named := []struct {
		name string
		v    float64
	}{
		{"weights.cte", w.CTE},
		{"weights.epsi", w.EPsi},
		{"weights.v", w.V},
		{"weights.delta", w.Delta},
		{"weights.a", w.A},
		{"weights.delta_rate", w.DeltaRate},
		{"weights.a_rate", w.ARate},
	}
	for _, n := range named {
		if n.v < 0 || math.IsNaN(n.v) || math.IsInf(n.v, 0) {
			return &ConfigError{n.name, fmt.Sprintf("must be finite and non-negative, got %g", n.v)}
		}
	}
	return nil
}

// GetParams exposes the weights and targets for live tuning.
func (c *Config) GetParams() map[string]float64 {
	return map[string]float64{
		"target_velocity": c.TargetVelocity,
		"w_cte":           c.Weights.CTE,
		"w_epsi":          c.Weights.EPsi,
		"w_v":             c.Weights.V,
		"w_delta":         c.Weights.Delta,
		"w_a":             c.Weights.A,
		"w_delta_rate":    c.Weights.DeltaRate,
		"w_a_rate":        c.Weights.ARate,
	}
}

// SetParam updates one tunable. The change is applied only if the
// resulting config still validates.
func (c *Config) SetParam(name string, value float64) error {
	next := *c
	switch name {
	case "target_velocity":
		next.TargetVelocity = value
	case "w_cte":
		next.Weights.CTE = value
	case "w_epsi":
		next.Weights.EPsi = value
	case "w_v":
		next.Weights.V = value
	case "w_delta":
		next.Weights.Delta = value
	case "w_a":
		next.Weights.A = value
	case "w_delta_rate":
		next.Weights.DeltaRate = value
	case "w_a_rate":
		next.Weights.ARate = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
