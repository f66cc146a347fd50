package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/contagion/components"
	"github.com/pthm-cable/contagion/sim"
)

// DayStats holds the status counts and infection-age distribution of one
// emitted day.
type DayStats struct {
	Run int `csv:"run"`
	Day int `csv:"day"`

	// Counts at day end
	Susceptible int `csv:"susceptible"`
	Infected    int `csv:"infected"`
	Recovered   int `csv:"recovered"`
	Vaccinated  int `csv:"vaccinated"`
	Dead        int `csv:"dead"`

	// Transitions during the day
	NewInfections int `csv:"new_infections"`
	NewRecoveries int `csv:"new_recoveries"`
	NewDeaths     int `csv:"new_deaths"`

	InfectedFrac float64 `csv:"infected_frac"` // infected / living

	// Days-infected distribution among the infected
	MeanDaysInfected float64 `csv:"mean_days_infected"`
	P90DaysInfected  float64 `csv:"p90_days_infected"`
	MaxDaysInfected  float64 `csv:"max_days_infected"`
}

// NewDayStats computes the stats of an emitted day.
func NewDayStats(d sim.Day) DayStats {
	var counts components.Counts
	ages := make([]float64, 0, len(d.Individuals)/4)
	for _, ind := range d.Individuals {
		counts.Add(ind.Status)
		if ind.Status.IsInfected() {
			ages = append(ages, float64(ind.Status.Days()))
		}
	}

	s := DayStats{
		Run:           d.Run,
		Day:           d.Day,
		Susceptible:   counts[components.KindSusceptible],
		Infected:      counts[components.KindInfected],
		Recovered:     counts[components.KindRecovered],
		Vaccinated:    counts[components.KindVaccinated],
		Dead:          counts[components.KindDead],
		NewInfections: d.Report.NewInfections,
		NewRecoveries: d.Report.NewRecoveries,
		NewDeaths:     d.Report.NewDeaths,
	}
	if living := counts.Living(); living > 0 {
		s.InfectedFrac = float64(s.Infected) / float64(living)
	}
	s.MeanDaysInfected, s.P90DaysInfected, s.MaxDaysInfected = ComputeAgeStats(ages)
	return s
}

// ComputeAgeStats returns the mean, 90th percentile and maximum of values.
// values is sorted in place. Returns zeros for an empty slice.
func ComputeAgeStats(values []float64) (mean, p90, max float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0
	}
	sort.Float64s(values)

	mean = stat.Mean(values, nil)
	p90 = stat.Quantile(0.9, stat.Empirical, values, nil)
	max = values[n-1]
	return mean, p90, max
}

// LogValue implements slog.LogValuer for structured logging.
func (s DayStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("run", s.Run),
		slog.Int("day", s.Day),
		slog.Int("susceptible", s.Susceptible),
		slog.Int("infected", s.Infected),
		slog.Int("recovered", s.Recovered),
		slog.Int("vaccinated", s.Vaccinated),
		slog.Int("dead", s.Dead),
		slog.Int("new_infections", s.NewInfections),
		slog.Int("new_recoveries", s.NewRecoveries),
		slog.Int("new_deaths", s.NewDeaths),
		slog.Float64("infected_frac", s.InfectedFrac),
		slog.Float64("mean_days_infected", s.MeanDaysInfected),
		slog.Float64("max_days_infected", s.MaxDaysInfected),
	)
}

// LogStats logs the day stats using l.
func (s DayStats) LogStats(l *slog.Logger) {
	l.Info("day",
		"run", s.Run,
		"day", s.Day,
		"S", s.Susceptible,
		"I", s.Infected,
		"R", s.Recovered,
		"V", s.Vaccinated,
		"D", s.Dead,
		"new_inf", s.NewInfections,
	)
}
