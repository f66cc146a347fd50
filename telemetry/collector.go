package telemetry

import (
	"log/slog"

	"github.com/pthm-cable/contagion/components"
	"github.com/pthm-cable/contagion/sim"
)

// RunStats describes the epidemic curve of one run.
type RunStats struct {
	Run             int
	Days            int // last emitted day
	NumPeople       int
	InitialInfected int
	TotalInfections int // infections after day 0
	PeakInfected    int
	PeakDay         int
	Final           components.Counts
}

// AttackRate is the fraction of the population ever infected.
func (s RunStats) AttackRate() float64 {
	if s.NumPeople == 0 {
		return 0
	}
	return float64(s.InitialInfected+s.TotalInfections) / float64(s.NumPeople)
}

// DeathFrac is the fraction of the population dead at the last emitted day.
func (s RunStats) DeathFrac() float64 {
	if s.NumPeople == 0 {
		return 0
	}
	return float64(s.Final[components.KindDead]) / float64(s.NumPeople)
}

// LogValue implements slog.LogValuer for structured logging.
func (s RunStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("run", s.Run),
		slog.Int("days", s.Days),
		slog.Int("initial_infected", s.InitialInfected),
		slog.Int("total_infections", s.TotalInfections),
		slog.Int("peak_infected", s.PeakInfected),
		slog.Int("peak_day", s.PeakDay),
		slog.Float64("attack_rate", s.AttackRate()),
		slog.Float64("death_frac", s.DeathFrac()),
	)
}

// Collector follows the emitted days of one run and accumulates its
// RunStats. Use one Collector per run.
type Collector struct {
	stats   RunStats
	started bool
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Emit implements sim.Sink.
func (c *Collector) Emit(d sim.Day) error {
	var counts components.Counts
	for _, ind := range d.Individuals {
		counts.Add(ind.Status)
	}

	if !c.started {
		c.started = true
		c.stats.Run = d.Run
		c.stats.NumPeople = counts.Total()
		c.stats.InitialInfected = counts[components.KindInfected]
		c.stats.PeakInfected = counts[components.KindInfected]
		c.stats.PeakDay = d.Day
	} else {
		c.stats.TotalInfections += d.Report.NewInfections
	}

	if counts[components.KindInfected] > c.stats.PeakInfected {
		c.stats.PeakInfected = counts[components.KindInfected]
		c.stats.PeakDay = d.Day
	}
	c.stats.Days = d.Day
	c.stats.Final = counts
	return nil
}

// Stats returns the accumulated run statistics.
func (c *Collector) Stats() RunStats {
	return c.stats
}

// Started reports whether any day was collected.
func (c *Collector) Started() bool {
	return c.started
}
