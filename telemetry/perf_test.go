package telemetry

import (
	"testing"
	"time"

	"github.com/pthm-cable/contagion/sim"
	"github.com/pthm-cable/contagion/systems"
)

var _ sim.PhaseTimer = (*PerfCollector)(nil)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartDay()
		pc.StartPhase(sim.TimingSnapshot)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(sim.TimingCompute)
		time.Sleep(200 * time.Microsecond)
		pc.EndDay()
	}

	stats := pc.Stats()

	if stats.AvgDayDuration <= 0 {
		t.Error("expected positive average day duration")
	}
	if stats.Days != 5 {
		t.Errorf("days = %d, want 5", stats.Days)
	}
	if _, ok := stats.PhaseAvg[sim.TimingSnapshot]; !ok {
		t.Error("expected snapshot phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[sim.TimingCompute]; !ok {
		t.Error("expected compute phase to be tracked")
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5) // Small window

	for i := 0; i < 10; i++ {
		pc.StartDay()
		pc.StartPhase(sim.TimingCompute)
		time.Sleep(10 * time.Microsecond)
		pc.EndDay()
	}

	stats := pc.Stats()

	if stats.Days != 10 {
		t.Errorf("days = %d, want all 10 counted", stats.Days)
	}
	if stats.AvgDayDuration <= 0 {
		t.Error("expected positive average day duration after window filled")
	}
	if stats.DaysPerSecond <= 0 {
		t.Error("expected positive days per second")
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartDay()
		pc.StartPhase("fast")
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase("slow")
		time.Sleep(1 * time.Millisecond)
		pc.EndDay()
	}

	stats := pc.Stats()

	if stats.PhasePct["slow"] <= stats.PhasePct["fast"] {
		t.Errorf("expected slow phase (%v%%) > fast phase (%v%%)", stats.PhasePct["slow"], stats.PhasePct["fast"])
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	stats := NewPerfCollector(10).Stats()

	if stats.AvgDayDuration != 0 {
		t.Error("expected zero avg day duration for empty collector")
	}
	if stats.PhaseAvg == nil || stats.PhasePct == nil {
		t.Error("expected non-nil phase maps")
	}
}

func TestPerfCollector_TimesRun(t *testing.T) {
	pc := NewPerfCollector(0)
	params := sim.Params{NumPeople: 20, NumDays: 4, InfectionProb: 0.3, TransmissionProb: 0.5, RecoveryThreshold: 3}

	run, err := sim.NewRun(0, params, systems.NewSource(1), nil, sim.WithTimer(pc))
	if err != nil {
		t.Fatal(err)
	}
	if err := run.Execute(t.Context()); err != nil {
		t.Fatal(err)
	}

	stats := pc.Stats()
	if stats.Days != 4 {
		t.Errorf("timed %d days, want 4", stats.Days)
	}
	for _, phase := range []string{sim.TimingSnapshot, sim.TimingCompute, sim.TimingApply, sim.TimingEmit} {
		if _, ok := stats.PhaseAvg[phase]; !ok {
			t.Errorf("phase %s not timed", phase)
		}
	}

	row := stats.ToCSV(3)
	if row.Run != 3 || row.Days != 4 {
		t.Errorf("unexpected csv row: %+v", row)
	}
}
