package calibrate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/pthm-cable/contagion/config"
	"github.com/pthm-cable/contagion/sim"
	"github.com/pthm-cable/contagion/telemetry"
)

// Target is the epidemic outcome to reproduce, averaged over runs.
type Target struct {
	AttackRate float64 `yaml:"attack_rate"` // fraction ever infected
	DeathFrac  float64 `yaml:"death_frac"`  // fraction dead at the last day
}

// Validate checks that both fractions are probabilities.
func (t Target) Validate() error {
	if !config.ValidProb(t.AttackRate) {
		return fmt.Errorf("%w: target attack rate must be in [0,1], got %v", config.ErrInvalidConfig, t.AttackRate)
	}
	if !config.ValidProb(t.DeathFrac) {
		return fmt.Errorf("%w: target death fraction must be in [0,1], got %v", config.ErrInvalidConfig, t.DeathFrac)
	}
	return nil
}

// FitnessEvaluator runs simulation batches and scores them against a target.
type FitnessEvaluator struct {
	params     *ParamVector
	baseConfig *config.Config
	target     Target
	runs       int
	seed       int64
	logger     *slog.Logger

	mu          sync.Mutex
	lastSummary telemetry.Summary
}

// NewFitnessEvaluator creates a new evaluator. Every evaluation runs the
// same runs seeds, so scores differ only by the parameters.
func NewFitnessEvaluator(params *ParamVector, baseCfg *config.Config, target Target, runs int, seed int64) *FitnessEvaluator {
	if runs < 1 {
		runs = 1
	}
	if seed == 0 {
		seed = 42
	}
	return &FitnessEvaluator{
		params:     params,
		baseConfig: baseCfg,
		target:     target,
		runs:       runs,
		seed:       seed,
		logger:     slog.New(slog.DiscardHandler),
	}
}

// LastSummary returns the batch summary of the most recent evaluation.
func (fe *FitnessEvaluator) LastSummary() telemetry.Summary {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastSummary
}

// Evaluate computes fitness for raw parameter values (lower = better): the
// squared distance between the mean outcome and the target.
func (fe *FitnessEvaluator) Evaluate(ctx context.Context, x []float64) (float64, error) {
	cfg := fe.baseConfig.Clone()
	fe.params.ApplyToConfig(cfg, x)
	cfg.Simulation.NumSimulations = fe.runs
	cfg.ComputeDerived()

	collectors := make([]*telemetry.Collector, fe.runs)
	for i := range collectors {
		collectors[i] = telemetry.NewCollector()
	}

	batch, err := sim.NewBatch(cfg, sim.Options{
		Seed:        fe.seed,
		Parallelism: cfg.Simulation.Parallelism,
		Workers:     cfg.Simulation.Workers,
		SinkFor:     func(run int) (sim.Sink, error) { return collectors[run], nil },
		Logger:      fe.logger,
	})
	if err != nil {
		return math.Inf(1), err
	}
	if _, err := batch.Run(ctx); err != nil {
		return math.Inf(1), err
	}

	stats := make([]telemetry.RunStats, len(collectors))
	for i, c := range collectors {
		stats[i] = c.Stats()
	}
	summary := telemetry.Summarize(stats)

	fe.mu.Lock()
	fe.lastSummary = summary
	fe.mu.Unlock()

	return fe.computeFitness(summary), nil
}

func (fe *FitnessEvaluator) computeFitness(s telemetry.Summary) float64 {
	da := s.AttackRateMean - fe.target.AttackRate
	dd := s.DeathFracMean - fe.target.DeathFrac
	return da*da + dd*dd
}
