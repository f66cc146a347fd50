// Package sim advances populations day by day: the day stepper, single
// simulation runs and batches of independent runs.
package sim

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/contagion/config"
)

// Params are the numeric parameters of one simulation run.
type Params struct {
	NumPeople         int
	NumDays           int
	InfectionProb     float64 // initial infection, per individual
	VaccinationProb   float64 // initial vaccination, per individual
	TransmissionProb  float64 // per infectious encounter
	DeathProb         float64 // per infected day
	RecoveryThreshold uint32  // days infected after which an individual recovers
	MaxEncounters     int     // 0 = bounded only by the living count
}

// ParamsFromConfig extracts run parameters from a loaded config.
func ParamsFromConfig(cfg *config.Config) Params {
	threshold := cfg.Disease.RecoveryThresholdDays
	if threshold < 0 {
		threshold = 0
	}
	return Params{
		NumPeople:         cfg.Simulation.NumPeople,
		NumDays:           cfg.Simulation.NumDays,
		InfectionProb:     cfg.Disease.InfectionProb,
		VaccinationProb:   cfg.Disease.VaccinationProb,
		TransmissionProb:  cfg.Disease.TransmissionProb,
		DeathProb:         cfg.Disease.DeathProb,
		RecoveryThreshold: uint32(threshold),
		MaxEncounters:     cfg.Encounters.MaxPerDay,
	}
}

// Validate checks the parameters the same way config.Validate does.
func (p Params) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", config.ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	if p.NumPeople < 1 {
		invalid("num_people must be at least 1, got %d", p.NumPeople)
	}
	if p.NumDays < 0 {
		invalid("num_days must not be negative, got %d", p.NumDays)
	}
	if p.RecoveryThreshold < 1 {
		invalid("recovery_threshold_days must be at least 1")
	}
	if p.MaxEncounters < 0 {
		invalid("max_encounters must not be negative, got %d", p.MaxEncounters)
	}
	probs := []struct {
		name string
		v    float64
	}{
		{"infection_prob", p.InfectionProb},
		{"vaccination_prob", p.VaccinationProb},
		{"transmission_prob", p.TransmissionProb},
		{"death_prob", p.DeathProb},
	}
	for _, pr := range probs {
		if !config.ValidProb(pr.v) {
			invalid("%s must be in [0,1], got %v", pr.name, pr.v)
		}
	}
	return errors.Join(errs...)
}
