package config

import "sort"

func preset(track string, edit func(c *Config)) *Config {
	c := DefaultConfig()
	c.Track = track
	edit(c)
	return c
}

var Presets = map[string]map[string]*Config{
	"straight": {
		"highway": preset("straight", func(c *Config) {
			c.TargetVelocity, c.InitialVelocity = 30, 25
			c.Lookahead = 20
		}),
		"merge": preset("straight", func(c *Config) {
			c.TargetVelocity, c.InitialVelocity = 20, 20
			c.LateralOffset = 3.5
		}),
	},
	"sine": {
		"city": preset("sine", func(c *Config) {
			c.TargetVelocity, c.InitialVelocity = 10, 5
			c.DelaySteps = 1
		}),
		"twisty": preset("sine", func(c *Config) {
			c.TargetVelocity, c.InitialVelocity = 15, 10
			c.DelaySteps = 2
			c.Weights.CTE, c.Weights.EPsi = 200, 200
		}),
	},
	"oval": {
		"circuit": preset("oval", func(c *Config) {
			c.TargetVelocity, c.InitialVelocity = 20, 10
			c.Duration = 60
		}),
		"laggy": preset("oval", func(c *Config) {
			c.TargetVelocity, c.InitialVelocity = 15, 10
			c.DelaySteps = 3
		}),
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(track, name string) *Config {
	trackPresets, ok := Presets[track]
	if !ok {
		return nil
	}
	cfg, ok := trackPresets[name]
	if !ok {
		return nil
	}
	c := *cfg
	return &c
}

func ListPresets(track string) []string {
	trackPresets, ok := Presets[track]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(trackPresets))
	for name := range trackPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
