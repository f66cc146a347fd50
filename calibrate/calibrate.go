package calibrate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/contagion/config"
)

// Options controls a calibration.
type Options struct {
	Target     Target
	MaxEvals   int   // evaluation budget (default 100)
	Population int   // CMA-ES population size (0 = auto)
	Runs       int   // simulations averaged per evaluation (default 8)
	Seed       int64 // base seed shared by every evaluation

	// Log receives one CSV row per evaluation. nil = no log.
	Log    io.Writer
	Logger *slog.Logger
}

// EvalRecord is one row of the evaluation log.
type EvalRecord struct {
	Eval             int     `csv:"eval"`
	Fitness          float64 `csv:"fitness"`
	TransmissionProb float64 `csv:"transmission_prob"`
	DeathProb        float64 `csv:"death_prob"`
	AttackRate       float64 `csv:"attack_rate"`
	DeathFrac        float64 `csv:"death_frac"`
}

// Result is the best parameter set found.
type Result struct {
	Params  []float64 // clamped raw values, in ParamVector order
	Fitness float64
	Evals   int
	Elapsed time.Duration
	Config  *config.Config // base config with Params applied
}

// Run searches the disease parameters of base that best reproduce
// opts.Target. ctx cancellation ends the search early; the best parameters
// found so far are still returned.
func Run(ctx context.Context, base *config.Config, opts Options) (*Result, error) {
	if err := base.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Target.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxEvals < 1 {
		opts.MaxEvals = 100
	}
	if opts.Runs < 1 {
		opts.Runs = 8
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	params := NewParamVector()
	evaluator := NewFitnessEvaluator(params, base, opts.Target, opts.Runs, opts.Seed)
	dim := params.Dim()
	initX := params.Normalize(params.ExtractFromConfig(base))

	popSize := opts.Population
	if popSize == 0 {
		// Auto-size: 4 + floor(3*ln(n))
		popSize = 4 + int(3.0*math.Log(float64(dim)))
	}

	evalCount := 0
	bestFitness := math.Inf(1)
	var bestParams []float64
	var evalErr error
	headerWritten := false
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if ctx.Err() != nil || evalErr != nil {
				return math.Inf(1)
			}

			clamped := params.Clamp(params.Denormalize(x))
			fitness, err := evaluator.Evaluate(ctx, clamped)
			if err != nil {
				if ctx.Err() == nil {
					evalErr = err
				}
				return math.Inf(1)
			}
			evalCount++

			if fitness < bestFitness {
				bestFitness = fitness
				bestParams = clamped
			}

			summary := evaluator.LastSummary()
			if opts.Log != nil {
				rec := []EvalRecord{{
					Eval:             evalCount,
					Fitness:          fitness,
					TransmissionProb: clamped[0],
					DeathProb:        clamped[1],
					AttackRate:       summary.AttackRateMean,
					DeathFrac:        summary.DeathFracMean,
				}}
				var werr error
				if !headerWritten {
					werr = gocsv.Marshal(rec, opts.Log)
					headerWritten = true
				} else {
					werr = gocsv.MarshalWithoutHeaders(rec, opts.Log)
				}
				if werr != nil {
					logger.Warn("failed to write evaluation log", "error", werr)
				}
			}

			logger.Info("evaluation",
				"eval", evalCount,
				"max_evals", opts.MaxEvals,
				"fitness", fitness,
				"best", bestFitness,
				"transmission_prob", clamped[0],
				"death_prob", clamped[1],
				"attack_rate", summary.AttackRateMean,
				"death_frac", summary.DeathFracMean,
				"elapsed", time.Since(startTime).Round(time.Millisecond),
			)
			return fitness
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: opts.MaxEvals,
		Concurrent:      0, // Sequential evaluation
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}

	logger.Info("starting calibration",
		"dim", dim,
		"population", popSize,
		"max_evals", opts.MaxEvals,
		"runs_per_eval", opts.Runs,
		"target_attack_rate", opts.Target.AttackRate,
		"target_death_frac", opts.Target.DeathFrac,
	)

	result, err := optimize.Minimize(problem, initX, settings, method)
	if evalErr != nil {
		return nil, fmt.Errorf("evaluation failed: %w", evalErr)
	}
	if err != nil {
		logger.Info("optimization ended", "reason", err)
	}

	// Use best params found (may be from any evaluation, not just final)
	if bestParams == nil {
		if result == nil {
			return nil, fmt.Errorf("calibration stopped before any evaluation: %w", err)
		}
		bestParams = params.Clamp(params.Denormalize(result.X))
	}

	bestCfg := base.Clone()
	params.ApplyToConfig(bestCfg, bestParams)
	bestCfg.ComputeDerived()

	return &Result{
		Params:  bestParams,
		Fitness: bestFitness,
		Evals:   evalCount,
		Elapsed: time.Since(startTime),
		Config:  bestCfg,
	}, nil
}
