package telemetry

import (
	"log/slog"
	"time"

	"github.com/pthm-cable/contagion/sim"
)

// PerfSample holds timing data for a single day.
type PerfSample struct {
	DayDuration time.Duration
	Phases      map[string]time.Duration
}

// PerfCollector tracks day timings over a rolling window. It implements
// sim.PhaseTimer.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	totalDays     int
	currentPhases map[string]time.Duration
	dayStart      time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a new performance collector.
// windowSize: number of days to average over.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 64
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartDay begins timing a new simulated day.
func (p *PerfCollector) StartDay() {
	p.dayStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase begins timing a specific phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	// End previous phase if any
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndDay finishes timing the current day and records the sample.
func (p *PerfCollector) EndDay() {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		DayDuration: now.Sub(p.dayStart),
		Phases:      p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
	p.totalDays++
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	Days int // days timed in total, not only in the window

	AvgDayDuration time.Duration
	MinDayDuration time.Duration
	MaxDayDuration time.Duration

	// Phase breakdown (average durations)
	PhaseAvg map[string]time.Duration

	// Phase percentages of total day time
	PhasePct map[string]float64

	DaysPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var totalDay time.Duration
	var minDay, maxDay time.Duration
	phaseSum := make(map[string]time.Duration)

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		totalDay += s.DayDuration

		if i == 0 || s.DayDuration < minDay {
			minDay = s.DayDuration
		}
		if s.DayDuration > maxDay {
			maxDay = s.DayDuration
		}

		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avgDay := totalDay / time.Duration(p.sampleCount)

	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avgDay > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avgDay) * 100
		}
	}

	var daysPerSec float64
	if avgDay > 0 {
		daysPerSec = float64(time.Second) / float64(avgDay)
	}

	return PerfStats{
		Days:           p.totalDays,
		AvgDayDuration: avgDay,
		MinDayDuration: minDay,
		MaxDayDuration: maxDay,
		PhaseAvg:       phaseAvg,
		PhasePct:       phasePct,
		DaysPerSecond:  daysPerSec,
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("days", s.Days),
		slog.Int64("avg_day_us", s.AvgDayDuration.Microseconds()),
		slog.Int64("min_day_us", s.MinDayDuration.Microseconds()),
		slog.Int64("max_day_us", s.MaxDayDuration.Microseconds()),
		slog.Float64("days_per_sec", s.DaysPerSecond),
	}
	for _, phase := range []string{sim.TimingSnapshot, sim.TimingCompute, sim.TimingApply, sim.TimingEmit} {
		if pct, ok := s.PhasePct[phase]; ok {
			attrs = append(attrs, slog.Float64(phase+"_pct", pct))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	Run         int     `csv:"run"`
	Days        int     `csv:"days"`
	AvgDayUS    int64   `csv:"avg_day_us"`
	MinDayUS    int64   `csv:"min_day_us"`
	MaxDayUS    int64   `csv:"max_day_us"`
	DaysPerSec  float64 `csv:"days_per_sec"`
	SnapshotPct float64 `csv:"snapshot_pct"`
	ComputePct  float64 `csv:"compute_pct"`
	ApplyPct    float64 `csv:"apply_pct"`
	EmitPct     float64 `csv:"emit_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(run int) PerfStatsCSV {
	return PerfStatsCSV{
		Run:         run,
		Days:        s.Days,
		AvgDayUS:    s.AvgDayDuration.Microseconds(),
		MinDayUS:    s.MinDayDuration.Microseconds(),
		MaxDayUS:    s.MaxDayDuration.Microseconds(),
		DaysPerSec:  s.DaysPerSecond,
		SnapshotPct: s.PhasePct[sim.TimingSnapshot],
		ComputePct:  s.PhasePct[sim.TimingCompute],
		ApplyPct:    s.PhasePct[sim.TimingApply],
		EmitPct:     s.PhasePct[sim.TimingEmit],
	}
}
