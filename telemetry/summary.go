package telemetry

import (
	"log/slog"

	"gonum.org/v1/gonum/stat"
)

// Summary aggregates the outcome of a batch across its runs.
type Summary struct {
	Runs int

	AttackRateMean float64
	AttackRateStd  float64
	DeathFracMean  float64
	DeathFracStd   float64
	PeakMean       float64
	PeakStd        float64
	PeakDayMean    float64
}

// Summarize computes mean and sample standard deviation across runs.
// Standard deviations are 0 for fewer than two runs.
func Summarize(runs []RunStats) Summary {
	s := Summary{Runs: len(runs)}
	if len(runs) == 0 {
		return s
	}

	attack := make([]float64, len(runs))
	deaths := make([]float64, len(runs))
	peaks := make([]float64, len(runs))
	peakDays := make([]float64, len(runs))
	for i, r := range runs {
		attack[i] = r.AttackRate()
		deaths[i] = r.DeathFrac()
		peaks[i] = float64(r.PeakInfected)
		peakDays[i] = float64(r.PeakDay)
	}

	s.AttackRateMean, s.AttackRateStd = meanStd(attack)
	s.DeathFracMean, s.DeathFracStd = meanStd(deaths)
	s.PeakMean, s.PeakStd = meanStd(peaks)
	s.PeakDayMean = stat.Mean(peakDays, nil)
	return s
}

func meanStd(x []float64) (mean, std float64) {
	if len(x) < 2 {
		return stat.Mean(x, nil), 0
	}
	return stat.MeanStdDev(x, nil)
}

// LogValue implements slog.LogValuer for structured logging.
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("runs", s.Runs),
		slog.Float64("attack_rate_mean", s.AttackRateMean),
		slog.Float64("attack_rate_std", s.AttackRateStd),
		slog.Float64("death_frac_mean", s.DeathFracMean),
		slog.Float64("death_frac_std", s.DeathFracStd),
		slog.Float64("peak_mean", s.PeakMean),
		slog.Float64("peak_std", s.PeakStd),
		slog.Float64("peak_day_mean", s.PeakDayMean),
	)
}
