package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pthm-cable/contagion/components"
	"github.com/pthm-cable/contagion/config"
	"github.com/pthm-cable/contagion/systems"
)

// Options controls how a batch executes.
type Options struct {
	// Seed is the base seed; run i uses Seed+i. 0 = time-based.
	Seed int64
	// Parallelism is the number of runs executed concurrently (min 1).
	Parallelism int
	// Workers is the per-day worker count inside each run (min 1).
	Workers int

	// SourceFor overrides the random source of run i.
	SourceFor func(run int) systems.Source
	// SinkFor returns the sink of run i. Sinks that implement io.Closer
	// are closed when their run ends. nil = discard.
	SinkFor func(run int) (Sink, error)
	// TimerFor optionally returns the phase timer of run i.
	TimerFor func(run int) PhaseTimer

	Logger *slog.Logger
}

// RunResult is the outcome of one run in a batch.
type RunResult struct {
	Run      int
	Days     int // last emitted day, -1 if nothing was emitted
	Phase    Phase
	Final    components.Counts // counts of the last evaluated day
	Err      error
	Duration time.Duration
}

// BatchResult holds every run's outcome.
type BatchResult struct {
	ID   string
	Runs []RunResult
}

// Batch runs independent simulations sharing one configuration.
type Batch struct {
	id             string
	params         Params
	numSimulations int
	opts           Options
	logger         *slog.Logger
}

// NewBatch validates cfg and prepares a batch. A configuration error is
// returned before any run starts.
func NewBatch(cfg *config.Config, opts Options) (*Batch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	params := ParamsFromConfig(cfg)
	if err := params.Validate(); err != nil {
		return nil, err
	}

	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.SourceFor == nil {
		base := opts.Seed
		if base == 0 {
			base = time.Now().UnixNano()
		}
		opts.SourceFor = func(run int) systems.Source {
			return systems.NewSource(base + int64(run))
		}
	}
	if opts.SinkFor == nil {
		opts.SinkFor = func(int) (Sink, error) { return Discard, nil }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	return &Batch{
		id:             id,
		params:         params,
		numSimulations: cfg.Simulation.NumSimulations,
		opts:           opts,
		logger:         logger.With("batch", id),
	}, nil
}

// ID returns the batch identifier.
func (b *Batch) ID() string { return b.id }

// Params returns the per-run parameters.
func (b *Batch) Params() Params { return b.params }

// Run executes every simulation. A failing run does not affect the others;
// the returned error joins every run error. Cancelling ctx stops runs
// between days and skips runs not yet started.
func (b *Batch) Run(ctx context.Context) (*BatchResult, error) {
	results := make([]RunResult, b.numSimulations)
	sem := make(chan struct{}, b.opts.Parallelism)
	var wg sync.WaitGroup

	b.logger.Info("starting batch",
		"simulations", b.numSimulations,
		"people", b.params.NumPeople,
		"days", b.params.NumDays,
		"parallelism", b.opts.Parallelism,
	)

	for i := 0; i < b.numSimulations; i++ {
		sem <- struct{}{}
		if err := ctx.Err(); err != nil {
			<-sem
			for j := i; j < b.numSimulations; j++ {
				results[j] = RunResult{Run: j, Days: -1, Err: fmt.Errorf("run %d not started: %w", j, err)}
			}
			break
		}

		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = b.runOne(ctx, idx)
		}(i)
	}
	wg.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	b.logger.Info("batch finished", "runs", len(results), "failed", len(errs))

	return &BatchResult{ID: b.id, Runs: results}, errors.Join(errs...)
}

// runOne executes a single run with its own population, source and sink.
func (b *Batch) runOne(ctx context.Context, idx int) (result RunResult) {
	start := time.Now()
	result = RunResult{Run: idx, Days: -1}

	sink, err := b.opts.SinkFor(idx)
	if err != nil {
		result.Err = fmt.Errorf("run %d: open sink: %w", idx, err)
		b.logger.Error("sink unavailable", "run", idx, "error", err)
		return result
	}
	if closer, ok := sink.(io.Closer); ok {
		defer func() {
			if cerr := closer.Close(); cerr != nil && result.Err == nil {
				result.Err = fmt.Errorf("run %d: close sink: %w", idx, cerr)
			}
		}()
	}

	opts := []RunOption{WithWorkers(b.opts.Workers), WithLogger(b.logger)}
	if b.opts.TimerFor != nil {
		opts = append(opts, WithTimer(b.opts.TimerFor(idx)))
	}
	run, err := NewRun(idx, b.params, b.opts.SourceFor(idx), sink, opts...)
	if err != nil {
		result.Err = err
		return result
	}

	err = run.Execute(ctx)
	result.Phase = run.Phase()
	switch run.Phase() {
	case PhaseRunning, PhaseFinished:
		result.Days = run.Day()
		result.Final = run.LastReport().Counts
	case PhaseAborted:
		result.Days = run.Day() - 1
		result.Final = run.LastReport().Counts
	}
	result.Err = err
	result.Duration = time.Since(start)

	if err != nil {
		b.logger.Error("run failed", "run", idx, "day", run.Day(), "error", err)
	} else {
		b.logger.Info("run finished",
			"run", idx,
			"days", run.Day(),
			"duration", result.Duration,
			"susceptible", result.Final[components.KindSusceptible],
			"infected", result.Final[components.KindInfected],
			"recovered", result.Final[components.KindRecovered],
			"vaccinated", result.Final[components.KindVaccinated],
			"dead", result.Final[components.KindDead],
		)
	}
	return result
}
