package telemetry

import (
	"bytes"
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pthm-cable/contagion/components"
	"github.com/pthm-cable/contagion/config"
	"github.com/pthm-cable/contagion/sim"
)

func TestTextSinkFormat(t *testing.T) {
	var buf bytes.Buffer
	ts := NewTextSink(&buf)

	if err := ts.Emit(makeDay(0, 0, components.Susceptible(), components.Infected(3), components.Dead())); err != nil {
		t.Fatal(err)
	}
	if err := ts.Emit(makeDay(0, 1, components.Recovered(), components.Vaccinated(), components.Dead())); err != nil {
		t.Fatal(err)
	}

	want := "ID(0): Susceptible  |  ID(1): Infected(3)  |  ID(2): Dead  |  \n" +
		"ID(0): Recovered  |  ID(1): Vaccinated  |  ID(2): Dead  |  \n"
	if buf.String() != want {
		t.Errorf("got %q\nwant %q", buf.String(), want)
	}
}

func TestTextSinkFlushesEveryDay(t *testing.T) {
	var buf bytes.Buffer
	ts := NewTextSink(&buf)

	if err := ts.Emit(makeDay(0, 0, components.Susceptible())); err != nil {
		t.Fatal(err)
	}
	if buf.Len() == 0 {
		t.Error("expected day to be flushed without Close")
	}
}

func TestCountsSinkHeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	cs := NewCountsSink(&buf, nil)

	for day := 0; day < 3; day++ {
		if err := cs.Emit(makeDay(1, day, components.Susceptible(), components.Infected(1))); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header + 3", len(rows))
	}
	if rows[0][0] != "run" || rows[0][1] != "day" || rows[0][2] != "susceptible" {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[3][0] != "1" || rows[3][1] != "2" {
		t.Errorf("unexpected last row %v", rows[3])
	}
}

func TestCollectorTracksCurve(t *testing.T) {
	c := NewCollector()
	s, i1, r, d := components.Susceptible(), components.Infected(1), components.Recovered(), components.Dead()

	days := []sim.Day{
		makeDay(4, 0, i1, s, s, s),
		makeDay(4, 1, components.Infected(2), i1, i1, s),
		makeDay(4, 2, r, components.Infected(2), d, i1),
		makeDay(4, 3, r, r, d, components.Infected(2)),
	}
	days[1].Report.NewInfections = 2
	days[2].Report.NewInfections = 1

	for _, day := range days {
		if err := c.Emit(day); err != nil {
			t.Fatal(err)
		}
	}

	st := c.Stats()
	if st.Run != 4 || st.Days != 3 || st.NumPeople != 4 {
		t.Errorf("unexpected identity: %+v", st)
	}
	if st.InitialInfected != 1 || st.TotalInfections != 3 {
		t.Errorf("initial %d total %d, want 1 and 3", st.InitialInfected, st.TotalInfections)
	}
	if st.PeakInfected != 3 || st.PeakDay != 1 {
		t.Errorf("peak %d on day %d, want 3 on day 1", st.PeakInfected, st.PeakDay)
	}
	if st.AttackRate() != 1 {
		t.Errorf("attack rate = %v, want 1", st.AttackRate())
	}
	if st.DeathFrac() != 0.25 {
		t.Errorf("death frac = %v, want 0.25", st.DeathFrac())
	}
}

func TestSummarize(t *testing.T) {
	runs := []RunStats{
		{NumPeople: 10, InitialInfected: 2, TotalInfections: 2, PeakInfected: 3, PeakDay: 2},
		{NumPeople: 10, InitialInfected: 2, TotalInfections: 6, PeakInfected: 5, PeakDay: 4},
	}
	runs[0].Final[components.KindDead] = 1
	runs[1].Final[components.KindDead] = 3

	s := Summarize(runs)

	if s.Runs != 2 {
		t.Errorf("runs = %d, want 2", s.Runs)
	}
	if math.Abs(s.AttackRateMean-0.6) > 1e-9 {
		t.Errorf("attack rate mean = %v, want 0.6", s.AttackRateMean)
	}
	// sample std of {0.4, 0.8}
	if math.Abs(s.AttackRateStd-math.Sqrt(0.08)) > 1e-9 {
		t.Errorf("attack rate std = %v, want %v", s.AttackRateStd, math.Sqrt(0.08))
	}
	if math.Abs(s.DeathFracMean-0.2) > 1e-9 {
		t.Errorf("death frac mean = %v, want 0.2", s.DeathFracMean)
	}
	if s.PeakMean != 4 || s.PeakDayMean != 3 {
		t.Errorf("peak mean %v day %v, want 4 and 3", s.PeakMean, s.PeakDayMean)
	}
}

func TestSummarizeSingleRun(t *testing.T) {
	s := Summarize([]RunStats{{NumPeople: 4, InitialInfected: 1}})
	if s.AttackRateStd != 0 || s.AttackRateMean != 0.25 {
		t.Errorf("unexpected single-run summary: %+v", s)
	}
	if empty := Summarize(nil); empty.Runs != 0 {
		t.Errorf("unexpected empty summary: %+v", empty)
	}
}

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("", config.OutputConfig{Text: true}, nil)
	if err != nil || om != nil {
		t.Fatalf("expected nil manager, got %v, %v", om, err)
	}
	// nil manager methods are no-ops
	if err := om.WriteConfig(config.Default()); err != nil {
		t.Error(err)
	}
	if err := om.Close(); err != nil {
		t.Error(err)
	}
}

func TestOutputManagerWritesBatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	cfg := config.Default()
	cfg.Simulation.NumSimulations = 2
	cfg.Simulation.NumDays = 3
	cfg.Simulation.Seed = 5
	cfg.ComputeDerived()

	om, err := NewOutputManager(dir, config.OutputConfig{Text: true, CountsCSV: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := om.WriteConfig(cfg); err != nil {
		t.Fatal(err)
	}

	batch, err := sim.NewBatch(cfg, sim.Options{
		Seed:    cfg.Simulation.Seed,
		SinkFor: func(run int) (sim.Sink, error) { return om.RunSink(run) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := batch.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := om.WritePerf(0, PerfStats{Days: 3}); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	for run := 0; run < 2; run++ {
		data, err := os.ReadFile(om.RunPath(run))
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
		if len(lines) != 4 {
			t.Errorf("run %d: got %d lines, want 4", run, len(lines))
		}
		if strings.Count(lines[0], "  |  ") != cfg.Simulation.NumPeople {
			t.Errorf("run %d: unexpected line %q", run, lines[0])
		}
	}

	f, err := os.Open(filepath.Join(dir, "counts.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1+2*4 {
		t.Errorf("counts.csv has %d rows, want 9", len(rows))
	}

	if _, err := config.Load(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("config.yaml not loadable: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "perf.csv")); err != nil {
		t.Error(err)
	}
}
