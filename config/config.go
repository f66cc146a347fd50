// Package config provides configuration loading and access for the simulator.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all simulation configuration parameters.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Disease    DiseaseConfig    `yaml:"disease"`
	Encounters EncounterConfig  `yaml:"encounters"`
	Output     OutputConfig     `yaml:"output"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimulationConfig holds batch and run sizing.
type SimulationConfig struct {
	NumSimulations int   `yaml:"num_simulations"`
	NumPeople      int   `yaml:"num_people"`
	NumDays        int   `yaml:"num_days"`
	Seed           int64 `yaml:"seed"`        // 0 = time-based
	Parallelism    int   `yaml:"parallelism"` // concurrent runs
	Workers        int   `yaml:"workers"`     // per-day workers inside one run
}

// DiseaseConfig holds the transition probabilities.
type DiseaseConfig struct {
	InfectionProb         float64 `yaml:"infection_prob"`          // initial infection, per individual
	VaccinationProb       float64 `yaml:"vaccination_prob"`        // initial vaccination, per individual
	TransmissionProb      float64 `yaml:"transmission_prob"`       // per infectious encounter
	DeathProb             float64 `yaml:"death_prob"`              // per infected day
	RecoveryThresholdDays int     `yaml:"recovery_threshold_days"` // days infected before recovery
}

// EncounterConfig holds encounter sampling parameters.
type EncounterConfig struct {
	MaxPerDay int `yaml:"max_per_day"` // 0 = bounded only by living count
}

// OutputConfig selects the day snapshot sinks.
type OutputConfig struct {
	Dir       string `yaml:"dir"`
	Text      bool   `yaml:"text"`
	CountsCSV bool   `yaml:"counts_csv"`
	SQLite    bool   `yaml:"sqlite"`
	LogCounts bool   `yaml:"log_counts"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Snapshots int // emitted snapshots per run: day 0 plus one per simulated day
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used. Load does not validate;
// call Validate before starting a simulation.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.ComputeDerived()

	return cfg, nil
}

// ComputeDerived recalculates values derived from the loaded fields.
// Call it after changing fields by hand.
func (c *Config) ComputeDerived() {
	c.Derived.Snapshots = c.Simulation.NumDays + 1
	if c.Simulation.Parallelism < 1 {
		c.Simulation.Parallelism = 1
	}
	if c.Simulation.Workers < 1 {
		c.Simulation.Workers = 1
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// Validate reports every configuration problem at once. Each problem wraps
// ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	if c.Simulation.NumSimulations < 1 {
		invalid("simulation.num_simulations must be at least 1, got %d", c.Simulation.NumSimulations)
	}
	if c.Simulation.NumPeople < 1 {
		invalid("simulation.num_people must be at least 1, got %d", c.Simulation.NumPeople)
	}
	if c.Simulation.NumDays < 0 {
		invalid("simulation.num_days must not be negative, got %d", c.Simulation.NumDays)
	}
	if c.Disease.RecoveryThresholdDays < 1 {
		invalid("disease.recovery_threshold_days must be at least 1, got %d", c.Disease.RecoveryThresholdDays)
	}
	if c.Encounters.MaxPerDay < 0 {
		invalid("encounters.max_per_day must not be negative, got %d", c.Encounters.MaxPerDay)
	}

	if c.Output.SQLite && c.Output.Dir == "" {
		invalid("output.sqlite requires output.dir")
	}

	probs := []struct {
		name string
		v    float64
	}{
		{"disease.infection_prob", c.Disease.InfectionProb},
		{"disease.vaccination_prob", c.Disease.VaccinationProb},
		{"disease.transmission_prob", c.Disease.TransmissionProb},
		{"disease.death_prob", c.Disease.DeathProb},
	}
	for _, p := range probs {
		if !ValidProb(p.v) {
			invalid("%s must be in [0,1], got %v", p.name, p.v)
		}
	}

	return errors.Join(errs...)
}

// ValidProb reports whether p is a probability in [0,1]. NaN is rejected.
func ValidProb(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
