package sim

import (
	"runtime"
	"sync"

	"github.com/pthm-cable/contagion/components"
	"github.com/pthm-cable/contagion/systems"
)

// parallelThreshold is the minimum population to use parallel processing.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 512

// Timing phase names reported to a PhaseTimer.
const (
	TimingSnapshot = "snapshot"
	TimingCompute  = "compute"
	TimingApply    = "apply"
	TimingEmit     = "emit"
)

// PhaseTimer receives the phase boundaries of each simulated day.
type PhaseTimer interface {
	StartDay()
	StartPhase(name string)
	EndDay()
}

type nopTimer struct{}

func (nopTimer) StartDay()         {}
func (nopTimer) StartPhase(string) {}
func (nopTimer) EndDay()           {}

// DayReport summarizes the transitions of one day.
type DayReport struct {
	Day           int
	NewInfections int
	NewRecoveries int
	NewDeaths     int
	Counts        components.Counts
}

// workerScratch holds per-worker reusable buffers.
type workerScratch struct {
	encounters []components.Status
}

// workChunk represents a range of individuals for a worker to process.
type workChunk struct {
	start, end int
	rng        systems.Source
}

// DayStepper produces the next day's statuses from a frozen snapshot of the
// current day. Every individual is evaluated against current and written to
// its own slot of next; the population only sees the new statuses once the
// whole pass is done.
type DayStepper struct {
	params  Params
	sampler *systems.EncounterSampler
	timer   PhaseTimer

	current []components.Status // frozen snapshot, read-only during a pass
	next    []components.Status // next-day buffer, one slot per individual

	numWorkers int
	scratches  []workerScratch

	// Worker pool channels
	workChan chan workChunk
	doneChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

// NewDayStepper creates a stepper. workers <= 0 uses GOMAXPROCS; 1 keeps the
// pass single-threaded, which consumes draws in id order.
func NewDayStepper(params Params, workers int) *DayStepper {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	scratches := make([]workerScratch, workers)
	for i := range scratches {
		scratches[i].encounters = make([]components.Status, 0, 64)
	}
	return &DayStepper{
		params:     params,
		sampler:    systems.NewEncounterSampler(params.MaxEncounters),
		timer:      nopTimer{},
		numWorkers: workers,
		scratches:  scratches,
	}
}

// SetTimer routes phase boundaries to t. nil disables timing.
func (s *DayStepper) SetTimer(t PhaseTimer) {
	if t == nil {
		t = nopTimer{}
	}
	s.timer = t
}

// Step advances pop by one day and reports what changed.
//
// Parallel evaluation needs rng to implement systems.Forker: each chunk then
// gets its own source forked in chunk order, so results stay reproducible for
// a given seed and worker count. Otherwise the pass runs on one goroutine.
func (s *DayStepper) Step(pop *Population, day int, rng systems.Source) DayReport {
	// Phase A: freeze the current day
	s.timer.StartPhase(TimingSnapshot)
	s.current = pop.SnapshotInto(s.current)
	n := len(s.current)
	if cap(s.next) < n {
		s.next = make([]components.Status, n)
	}
	s.next = s.next[:n]
	s.sampler.Reset(s.current)

	// Phase B: compute next statuses
	s.timer.StartPhase(TimingCompute)
	forker, canFork := rng.(systems.Forker)
	if s.numWorkers > 1 && n >= parallelThreshold && canFork {
		s.computeParallel(n, forker)
	} else {
		s.computeChunk(0, n, &s.scratches[0], rng)
	}

	// Phase C: publish and swap buffers
	s.timer.StartPhase(TimingApply)
	pop.apply(s.next)
	report := s.report(day)
	s.current, s.next = s.next, s.current

	return report
}

// computeChunk processes individuals [i0, i1) against the frozen snapshot.
func (s *DayStepper) computeChunk(i0, i1 int, scratch *workerScratch, rng systems.Source) {
	p := &s.params
	for i := i0; i < i1; i++ {
		st := s.current[i]
		if !st.IsAlive() {
			s.next[i] = st
			continue
		}

		scratch.encounters = s.sampler.SampleInto(scratch.encounters, s.current, i, rng)
		next := systems.AcquireInfection(st, scratch.encounters, p.TransmissionProb, rng)
		if next != st {
			s.next[i] = systems.SurviveExposure(next, p.DeathProb, rng)
			continue
		}
		s.next[i] = systems.ProgressOrDie(st, p.DeathProb, p.RecoveryThreshold, rng)
	}
}

// computeParallel splits the population into one chunk per worker.
func (s *DayStepper) computeParallel(n int, forker systems.Forker) {
	if !s.running {
		s.startWorkers()
	}

	chunkSize := (n + s.numWorkers - 1) / s.numWorkers

	// Sources are forked in chunk order before dispatch
	chunks := make([]workChunk, 0, s.numWorkers)
	for w := 0; w < s.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		chunks = append(chunks, workChunk{start: start, end: end, rng: forker.Fork()})
	}

	for _, c := range chunks {
		s.workChan <- c
	}
	for range chunks {
		<-s.doneChan
	}
}

// startWorkers launches persistent worker goroutines.
func (s *DayStepper) startWorkers() {
	s.workChan = make(chan workChunk, s.numWorkers)
	s.doneChan = make(chan struct{}, s.numWorkers)
	s.stopChan = make(chan struct{})
	s.running = true

	for i := 0; i < s.numWorkers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// worker runs in a goroutine, processing chunks until stopped.
func (s *DayStepper) worker(workerID int) {
	defer s.wg.Done()
	scratch := &s.scratches[workerID]

	for {
		select {
		case <-s.stopChan:
			return
		case chunk := <-s.workChan:
			s.computeChunk(chunk.start, chunk.end, scratch, chunk.rng)
			s.doneChan <- struct{}{}
		}
	}
}

// Close stops the worker pool, if one was started.
func (s *DayStepper) Close() {
	if !s.running {
		return
	}
	close(s.stopChan)
	s.wg.Wait()
	s.running = false
}

func (s *DayStepper) report(day int) DayReport {
	r := DayReport{Day: day}
	for i, next := range s.next {
		prev := s.current[i]
		r.Counts.Add(next)
		if prev.Kind() == next.Kind() {
			continue
		}
		// Susceptible only ever leaves through infection, even when the
		// same day also ends in death or recovery.
		if prev.Kind() == components.KindSusceptible {
			r.NewInfections++
		}
		switch next.Kind() {
		case components.KindRecovered:
			r.NewRecoveries++
		case components.KindDead:
			r.NewDeaths++
		}
	}
	return r
}
