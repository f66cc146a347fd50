package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pthm-cable/contagion/systems"
)

var (
	// ErrRunNotStarted is returned by Step before Start.
	ErrRunNotStarted = errors.New("run not started")
	// ErrRunFinished is returned by Start or Step once the last day was emitted.
	ErrRunFinished = errors.New("run finished")
	// ErrRunAborted is returned after a sink error ended the run.
	ErrRunAborted = errors.New("run aborted")
)

// Phase is the lifecycle position of a Run.
type Phase uint8

const (
	PhaseNotStarted Phase = iota
	PhaseRunning          // Day(t) emitted, t < NumDays
	PhaseFinished         // Day(NumDays) emitted
	PhaseAborted          // a sink error stopped the run
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseRunning:
		return "running"
	case PhaseFinished:
		return "finished"
	case PhaseAborted:
		return "aborted"
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// RunOption customizes a Run.
type RunOption func(*Run)

// WithPopulation runs on pop instead of a fresh all-Susceptible population.
// The initialization pass still applies to its Susceptible individuals.
func WithPopulation(pop *Population) RunOption {
	return func(r *Run) { r.pop = pop }
}

// WithWorkers sets the day stepper's worker count.
func WithWorkers(n int) RunOption {
	return func(r *Run) { r.workers = n }
}

// WithTimer reports each day's phase timings to t.
func WithTimer(t PhaseTimer) RunOption {
	return func(r *Run) { r.timer = t }
}

// WithLogger sets the run's logger.
func WithLogger(l *slog.Logger) RunOption {
	return func(r *Run) { r.logger = l }
}

// Run drives one population from day 0 to day NumDays, emitting each day.
//
// A Run is not safe for concurrent use; independent runs share nothing and
// may execute on separate goroutines.
type Run struct {
	index   int
	params  Params
	pop     *Population
	stepper *DayStepper
	rng     systems.Source
	sink    Sink
	workers int
	timer   PhaseTimer
	logger  *slog.Logger

	day   int
	phase Phase
	last  DayReport
}

// NewRun creates a run. rng is the run's only source of randomness.
func NewRun(index int, params Params, rng systems.Source, sink Sink, opts ...RunOption) (*Run, error) {
	if rng == nil {
		return nil, errors.New("nil random source")
	}
	if sink == nil {
		sink = Discard
	}
	r := &Run{
		index:   index,
		params:  params,
		rng:     rng,
		sink:    sink,
		workers: 1,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.pop == nil {
		pop, err := NewPopulation(params)
		if err != nil {
			return nil, err
		}
		r.pop = pop
	} else {
		r.params = r.pop.Params()
	}
	r.stepper = NewDayStepper(r.params, r.workers)
	r.stepper.SetTimer(r.timer)
	if r.timer == nil {
		r.timer = nopTimer{}
	}
	return r, nil
}

// Index returns the run's position in its batch.
func (r *Run) Index() int { return r.index }

// Day returns the last emitted day.
func (r *Run) Day() int { return r.day }

// Phase returns the lifecycle phase.
func (r *Run) Phase() Phase { return r.phase }

// Population returns the run's population.
func (r *Run) Population() *Population { return r.pop }

// LastReport returns the report of the last emitted day.
func (r *Run) LastReport() DayReport { return r.last }

// Start applies the initialization pass and emits day 0.
func (r *Run) Start() error {
	switch r.phase {
	case PhaseFinished:
		return ErrRunFinished
	case PhaseAborted:
		return ErrRunAborted
	case PhaseRunning:
		return fmt.Errorf("run %d already started", r.index)
	}

	r.pop.Seed(r.rng)
	r.day = 0
	r.phase = PhaseRunning
	r.last = DayReport{Day: 0, Counts: r.pop.Counts()}

	return r.emit()
}

// Step runs one day and emits it.
func (r *Run) Step() error {
	switch r.phase {
	case PhaseNotStarted:
		return ErrRunNotStarted
	case PhaseFinished:
		return ErrRunFinished
	case PhaseAborted:
		return ErrRunAborted
	}

	r.timer.StartDay()
	defer r.timer.EndDay()

	r.day++
	r.last = r.stepper.Step(r.pop, r.day, r.rng)
	r.timer.StartPhase(TimingEmit)
	return r.emit()
}

// Execute starts the run if needed and steps until Finished. ctx is checked
// between days; a cancelled run keeps its last complete day.
func (r *Run) Execute(ctx context.Context) error {
	defer r.stepper.Close()

	if r.phase == PhaseNotStarted {
		if err := r.Start(); err != nil {
			return err
		}
	}
	for r.phase == PhaseRunning {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run %d stopped after day %d: %w", r.index, r.day, err)
		}
		if err := r.Step(); err != nil {
			return err
		}
	}
	if r.phase == PhaseAborted {
		return ErrRunAborted
	}
	return nil
}

// Close releases the stepper's workers. Execute calls it itself.
func (r *Run) Close() {
	r.stepper.Close()
}

func (r *Run) emit() error {
	day := Day{
		Run:         r.index,
		Day:         r.day,
		Individuals: r.pop.Individuals(),
		Report:      r.last,
	}
	if err := r.sink.Emit(day); err != nil {
		r.phase = PhaseAborted
		r.logger.Error("sink failed, aborting run", "run", r.index, "day", r.day, "error", err)
		return fmt.Errorf("%w: run %d day %d: emit: %w", ErrRunAborted, r.index, r.day, err)
	}

	if r.day >= r.params.NumDays {
		r.phase = PhaseFinished
	}
	return nil
}
