package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/mpcsim/internal/experiment"
	"github.com/san-kum/mpcsim/internal/mpc"
	"github.com/san-kum/mpcsim/internal/nlp"
	"github.com/san-kum/mpcsim/internal/sim"
)

const (
	DefaultDt              = 0.1
	DefaultDuration        = 30.0
	DefaultTargetVelocity  = 15.0
	DefaultInitialVelocity = 10.0
	DefaultDelaySteps      = 1
	DefaultLookahead       = 12
	DefaultMaxSteerDeg     = 25.0
)

type Config struct {
	Track      string  `yaml:"track"`
	Integrator string  `yaml:"integrator"`
	Controller string  `yaml:"controller"`
	Dt         float64 `yaml:"dt"`
	Duration   float64 `yaml:"duration"`

	TargetVelocity  float64 `yaml:"target_velocity"`
	InitialVelocity float64 `yaml:"initial_velocity"`
	LateralOffset   float64 `yaml:"lateral_offset"`
	DelaySteps      int     `yaml:"delay_steps"`
	Lookahead       int     `yaml:"lookahead"`

	Vehicle VehicleConfig `yaml:"vehicle"`
	Horizon HorizonConfig `yaml:"horizon"`
	Weights mpc.Weights   `yaml:"weights"`
	Solver  nlp.Settings  `yaml:"solver"`
	Log     LogConfig     `yaml:"log"`

	MetricsAddr string `yaml:"metrics_addr"`
	CANIface    string `yaml:"can_iface"`

	ControllerParams map[string]float64 `yaml:"controller_params"`
}

type VehicleConfig struct {
	Lf          float64 `yaml:"lf"`
	MaxSteerDeg float64 `yaml:"max_steer_deg"`
}

type HorizonConfig struct {
	N          int `yaml:"n"`
	PolyDegree int `yaml:"poly_degree"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func DefaultConfig() *Config {
	return &Config{
		Track:           "sine",
		Integrator:      "rk4",
		Controller:      "mpc",
		Dt:              DefaultDt,
		Duration:        DefaultDuration,
		TargetVelocity:  DefaultTargetVelocity,
		InitialVelocity: DefaultInitialVelocity,
		DelaySteps:      DefaultDelaySteps,
		Lookahead:       DefaultLookahead,
		Vehicle: VehicleConfig{
			Lf:          mpc.DefaultLf,
			MaxSteerDeg: DefaultMaxSteerDeg,
		},
		Horizon: HorizonConfig{
			N:          mpc.DefaultN,
			PolyDegree: mpc.DefaultPolyDegree,
		},
		Weights: mpc.DefaultWeights(),
		Solver:  nlp.DefaultSettings(),
		Log:     LogConfig{Level: "info"},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) MaxSteer() float64 {
	return c.Vehicle.MaxSteerDeg * math.Pi / 180
}

// ControllerConfig maps the file layout onto the MPC configuration. The
// controller and the simulated actuator share one step size and delay.
func (c *Config) ControllerConfig() mpc.Config {
	return mpc.Config{
		N:              c.Horizon.N,
		Dt:             c.Dt,
		TargetVelocity: c.TargetVelocity,
		DelaySteps:     c.DelaySteps,
		Lf:             c.Vehicle.Lf,
		MaxSteer:       c.MaxSteer(),
		PolyDegree:     c.Horizon.PolyDegree,
		Weights:        c.Weights,
	}
}

func (c *Config) SolverSettings() nlp.Settings {
	return c.Solver
}

func (c *Config) SimConfig() sim.Config {
	return sim.Config{
		Dt:              c.Dt,
		Duration:        c.Duration,
		TargetVelocity:  c.TargetVelocity,
		InitialVelocity: c.InitialVelocity,
		LateralOffset:   c.LateralOffset,
		DelaySteps:      c.DelaySteps,
		Lookahead:       c.Lookahead,
		PolyDegree:      c.Horizon.PolyDegree,
		Lf:              c.Vehicle.Lf,
		MaxSteer:        c.MaxSteer(),
		ValidateState:   true,
	}
}

func (c *Config) ExperimentConfig() experiment.Config {
	return experiment.Config{
		Track:      c.Track,
		Integrator: c.Integrator,
		Controller: c.Controller,
		Sim:        c.SimConfig(),
		MPC:        c.ControllerConfig(),
		Solver:     c.SolverSettings(),
		Params:     c.ControllerParams,
	}
}

// Validate checks the parts of the file each consumer would reject, so a
// bad file fails before anything runs.
func (c *Config) Validate() error {
	if err := c.ControllerConfig().Validate(); err != nil {
		return err
	}
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("solver: %w", err)
	}
	if err := c.SimConfig().Validate(); err != nil {
		return fmt.Errorf("sim: %w", err)
	}
	return nil
}
