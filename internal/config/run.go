package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/corridor.report/internal/engine"
	"github.com/banshee-data/corridor.report/internal/signal"
)

// ExampleConfigPath is the checked-in example run configuration.
const ExampleConfigPath = "config/corridor.example.json"

const (
	DefaultVehicleInputInterval = 900
	DefaultRandomSeed           = -1
	DefaultEngineAddress        = "127.0.0.1:7311"
	DefaultEngineTimeout        = 30 * time.Second
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid run configuration")

// RunConfig describes one simulation run: the horizon, engine session
// options and the signal plan of every controller.
type RunConfig struct {
	SimulationTime       *int    `json:"simulation_time,omitempty"`
	VehicleInputInterval *int    `json:"vehicle_input_interval,omitempty"`
	RandomSeed           *int    `json:"random_seed,omitempty"` // -1 lets the engine choose
	QuickMode            *bool   `json:"quick_mode,omitempty"`
	Comment              *string `json:"comment,omitempty"`

	Engine *EngineConfig `json:"engine,omitempty"`

	Signals []SignalConfig `json:"signals"`
	// Offsets, when present, overrides the offset of the named signals.
	Offsets map[string]int `json:"offsets,omitempty"`
}

// EngineConfig locates the engine bridge.
type EngineConfig struct {
	Address *string `json:"address,omitempty"`
	Timeout *string `json:"timeout,omitempty"` // duration string like "30s"
}

// SignalConfig is the raw plan of one controller.
type SignalConfig struct {
	Name      string     `json:"name"`
	Offset    int        `json:"offset"`
	MainPhase int        `json:"main_phase,omitempty"`
	Phases    [][]string `json:"phases"`
	Durations []float64  `json:"durations"`
	// Repeat lays Durations end to end this many times; 0 means once.
	Repeat int `json:"repeat,omitempty"`
}

// durations expands the repeated duration blocks.
func (s SignalConfig) durations() []float64 {
	n := s.Repeat
	if n <= 1 {
		return s.Durations
	}
	out := make([]float64, 0, n*len(s.Durations))
	for i := 0; i < n; i++ {
		out = append(out, s.Durations...)
	}
	return out
}

// LoadRunConfig loads a RunConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadRunConfig(path string) (*RunConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseRunConfig(data)
}

// ParseRunConfig parses and validates JSON run configuration.
func ParseRunConfig(data []byte) (*RunConfig, error) {
	cfg := &RunConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func invalid(plan, format string, args ...interface{}) error {
	return &signal.ConfigError{Plan: plan, Err: fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalid}, args...)...)}
}

// Validate checks run-level settings. Plan contents are checked when the
// plans are compiled.
func (c *RunConfig) Validate() error {
	if c.SimulationTime == nil {
		return invalid("", "simulation_time is required")
	}
	if *c.SimulationTime <= 0 {
		return invalid("", "simulation_time must be positive, got %d", *c.SimulationTime)
	}
	if c.VehicleInputInterval != nil && *c.VehicleInputInterval <= 0 {
		return invalid("", "vehicle_input_interval must be positive, got %d", *c.VehicleInputInterval)
	}
	if c.Engine != nil && c.Engine.Timeout != nil && *c.Engine.Timeout != "" {
		if _, err := time.ParseDuration(*c.Engine.Timeout); err != nil {
			return invalid("", "invalid engine.timeout '%s': %v", *c.Engine.Timeout, err)
		}
	}
	if len(c.Signals) == 0 {
		return invalid("", "at least one signal is required")
	}

	names := make(map[string]bool, len(c.Signals))
	for i, s := range c.Signals {
		if s.Name == "" {
			return invalid("", "signal %d has no name", i+1)
		}
		if strings.ContainsAny(s.Name, " \t\r\n,") {
			return invalid(s.Name, "signal names may not contain whitespace or commas")
		}
		if s.Repeat < 0 {
			return invalid(s.Name, "repeat must not be negative, got %d", s.Repeat)
		}
		if names[s.Name] {
			return invalid(s.Name, "signal listed twice")
		}
		names[s.Name] = true
	}
	for name := range c.Offsets {
		if !names[name] {
			return invalid(name, "offset given for unknown signal")
		}
	}
	return nil
}

func (c *RunConfig) GetSimulationTime() int {
	if c.SimulationTime == nil {
		return 0
	}
	return *c.SimulationTime
}

func (c *RunConfig) GetVehicleInputInterval() int {
	if c.VehicleInputInterval == nil {
		return DefaultVehicleInputInterval
	}
	return *c.VehicleInputInterval
}

func (c *RunConfig) GetRandomSeed() int {
	if c.RandomSeed == nil {
		return DefaultRandomSeed
	}
	return *c.RandomSeed
}

func (c *RunConfig) GetQuickMode() bool {
	if c.QuickMode == nil {
		return true
	}
	return *c.QuickMode
}

func (c *RunConfig) GetComment() string {
	if c.Comment == nil {
		return ""
	}
	return *c.Comment
}

func (c *RunConfig) GetEngineAddress() string {
	if c.Engine == nil || c.Engine.Address == nil || *c.Engine.Address == "" {
		return DefaultEngineAddress
	}
	return *c.Engine.Address
}

func (c *RunConfig) GetEngineTimeout() time.Duration {
	if c.Engine == nil || c.Engine.Timeout == nil || *c.Engine.Timeout == "" {
		return DefaultEngineTimeout
	}
	d, err := time.ParseDuration(*c.Engine.Timeout)
	if err != nil {
		return DefaultEngineTimeout
	}
	return d
}

// SignalNames lists the controllers in configuration order.
func (c *RunConfig) SignalNames() []string {
	out := make([]string, len(c.Signals))
	for i, s := range c.Signals {
		out[i] = s.Name
	}
	return out
}

// RawPlans returns the signal plans with the offsets map applied.
func (c *RunConfig) RawPlans() []signal.RawPlan {
	out := make([]signal.RawPlan, len(c.Signals))
	for i, s := range c.Signals {
		offset := s.Offset
		if o, ok := c.Offsets[s.Name]; ok {
			offset = o
		}
		out[i] = signal.RawPlan{
			Name:           s.Name,
			Offset:         offset,
			MainPhaseIndex: s.MainPhase,
			Phases:         s.Phases,
			Durations:      s.durations(),
		}
	}
	return out
}

// Plans compiles every signal plan against the simulation horizon.
func (c *RunConfig) Plans() ([]*signal.SignalPlan, error) {
	return signal.CompileAll(c.RawPlans(), c.GetSimulationTime())
}

// EngineSettings is the session configuration sent to the engine.
func (c *RunConfig) EngineSettings() engine.Settings {
	return engine.Settings{
		Horizon:              c.GetSimulationTime(),
		Seed:                 c.GetRandomSeed(),
		Quick:                c.GetQuickMode(),
		VehicleInputInterval: c.GetVehicleInputInterval(),
	}
}
