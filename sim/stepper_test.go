package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/contagion/components"
	"github.com/pthm-cable/contagion/systems"
)

func baseParams() Params {
	return Params{
		NumPeople:         3,
		NumDays:           5,
		TransmissionProb:  1,
		DeathProb:         0,
		RecoveryThreshold: 5,
	}
}

func stepOnce(t *testing.T, params Params, statuses []components.Status, rng systems.Source) ([]components.Status, DayReport) {
	t.Helper()
	pop, err := NewPopulationFromStatuses(params, statuses)
	require.NoError(t, err)
	stepper := NewDayStepper(pop.Params(), 1)
	defer stepper.Close()

	report := stepper.Step(pop, 1, rng)
	return pop.Snapshot(), report
}

func TestStep_ThreePersonScenario(t *testing.T) {
	statuses := []components.Status{
		components.Susceptible(),
		components.Infected(2),
		components.Vaccinated(),
	}
	// Individual 0 meets one other (count 1), pick 0 skips self to the
	// Infected individual. Everyone else draws zero encounters.
	rng := &systems.ScriptedSource{Ints: []int{1, 0}, DefaultFloat: 0.5}

	got, report := stepOnce(t, baseParams(), statuses, rng)

	assert.Equal(t, []components.Status{
		components.Infected(1),
		components.Infected(3),
		components.Vaccinated(),
	}, got)
	assert.Equal(t, 1, report.NewInfections)
	assert.Zero(t, report.NewDeaths)
	assert.Equal(t, 2, report.Counts[components.KindInfected])
}

func TestStep_SusceptibleNotSampledAgainstInfected(t *testing.T) {
	statuses := []components.Status{
		components.Susceptible(),
		components.Infected(2),
		components.Vaccinated(),
	}
	// count 1, pick 1 shifts to individual 2 (Vaccinated).
	rng := &systems.ScriptedSource{Ints: []int{1, 1}, DefaultFloat: 0.5}

	got, _ := stepOnce(t, baseParams(), statuses, rng)
	assert.Equal(t, components.Susceptible(), got[0])
}

func TestStep_SingleInfectedAtThresholdRecovers(t *testing.T) {
	params := baseParams()
	got, report := stepOnce(t, params, []components.Status{components.Infected(5)}, systems.NewSource(1))

	assert.Equal(t, []components.Status{components.Recovered()}, got)
	assert.Equal(t, 1, report.NewRecoveries)
}

func TestStep_ThresholdBoundary(t *testing.T) {
	params := baseParams()
	params.RecoveryThreshold = 4

	statuses := []components.Status{components.Infected(3), components.Infected(4)}
	// No encounters for anyone; death draws never succeed with dprob 0.
	rng := &systems.ScriptedSource{DefaultFloat: 0}

	got, _ := stepOnce(t, params, statuses, rng)
	assert.Equal(t, components.Infected(4), got[0])
	assert.Equal(t, components.Recovered(), got[1])
}

func TestStep_DeathProbOneOverridesRecovery(t *testing.T) {
	params := baseParams()
	params.DeathProb = 1

	statuses := []components.Status{components.Infected(1), components.Infected(5), components.Infected(9)}
	got, report := stepOnce(t, params, statuses, systems.NewSource(3))

	for i, st := range got {
		assert.Equal(t, components.Dead(), st, "individual %d", i)
	}
	assert.Equal(t, 3, report.NewDeaths)
}

func TestStep_FreshInfectionFacesDeathSameDay(t *testing.T) {
	params := baseParams()
	params.DeathProb = 1

	statuses := []components.Status{components.Susceptible(), components.Infected(2)}
	// Individual 0: count 1, pick 0 -> Infected(2). Individual 1 dies.
	rng := &systems.ScriptedSource{Ints: []int{1, 0, 0}, DefaultFloat: 0.5}

	got, report := stepOnce(t, params, statuses, rng)
	assert.Equal(t, []components.Status{components.Dead(), components.Dead()}, got)
	assert.Equal(t, 1, report.NewInfections)
	assert.Equal(t, 2, report.NewDeaths)
}

func TestStep_SnapshotIsFrozen(t *testing.T) {
	// Individual 1 dies today. Individual 2, evaluated after it, must still
	// see it as Infected and catch the infection from it.
	params := baseParams()
	params.DeathProb = 0.5

	statuses := []components.Status{
		components.Recovered(),
		components.Infected(2),
		components.Susceptible(),
	}
	rng := &systems.ScriptedSource{
		// 0: no encounters. 1: no encounters. 2: count 1, pick 1 -> individual 1.
		Ints: []int{0, 0, 1, 1},
		// 1: death draw 0.1 < 0.5. 2: transmission 0.1 < 1, exposure survival 0.9.
		Floats: []float64{0.1, 0.1, 0.9},
	}

	got, _ := stepOnce(t, params, statuses, rng)
	assert.Equal(t, []components.Status{
		components.Recovered(),
		components.Dead(),
		components.Infected(1),
	}, got)
}

func TestStep_DeadStaysDead(t *testing.T) {
	params := baseParams()
	params.DeathProb = 0.7
	params.TransmissionProb = 0.3

	pop, err := NewPopulationFromStatuses(params, []components.Status{components.Dead()})
	require.NoError(t, err)
	stepper := NewDayStepper(pop.Params(), 1)
	defer stepper.Close()

	rng := systems.NewSource(11)
	for day := 1; day <= 50; day++ {
		stepper.Step(pop, day, rng)
		require.Equal(t, components.Dead(), pop.Snapshot()[0], "day %d", day)
	}
}

func TestStep_TransmissionProbZeroNeverInfects(t *testing.T) {
	params := Params{NumPeople: 200, TransmissionProb: 0, DeathProb: 0, RecoveryThreshold: 1000}
	statuses := make([]components.Status, 200)
	for i := 0; i < 100; i++ {
		statuses[i] = components.Infected(1)
	}

	pop, err := NewPopulationFromStatuses(params, statuses)
	require.NoError(t, err)
	stepper := NewDayStepper(pop.Params(), 1)
	defer stepper.Close()

	rng := systems.NewSource(5)
	for day := 1; day <= 20; day++ {
		report := stepper.Step(pop, day, rng)
		require.Zero(t, report.NewInfections, "day %d", day)
		require.Equal(t, 100, report.Counts[components.KindSusceptible])
	}
}

// checkTransition asserts the legal one-day transitions.
func checkTransition(t *testing.T, params Params, i int, prev, next components.Status) {
	t.Helper()
	switch prev.Kind() {
	case components.KindDead, components.KindRecovered, components.KindVaccinated:
		require.Equal(t, prev, next, "absorbing status changed for %d", i)
	case components.KindSusceptible:
		ok := next == prev || next == components.Infected(1) || next == components.Dead()
		require.True(t, ok, "individual %d: %v -> %v", i, prev, next)
	case components.KindInfected:
		switch next.Kind() {
		case components.KindDead:
		case components.KindRecovered:
			require.GreaterOrEqual(t, prev.Days(), params.RecoveryThreshold, "individual %d recovered early", i)
		case components.KindInfected:
			require.Less(t, prev.Days(), params.RecoveryThreshold, "individual %d stayed infected past threshold", i)
			require.Equal(t, prev.Days()+1, next.Days(), "individual %d", i)
		default:
			t.Fatalf("individual %d: %v -> %v", i, prev, next)
		}
	}
}

func TestStep_TransitionProperties(t *testing.T) {
	params := Params{
		NumPeople:         300,
		NumDays:           40,
		InfectionProb:     0.1,
		VaccinationProb:   0.2,
		TransmissionProb:  0.3,
		DeathProb:         0.05,
		RecoveryThreshold: 6,
		MaxEncounters:     8,
	}

	for _, workers := range []int{1, 4} {
		pop, err := NewPopulation(params)
		require.NoError(t, err)
		rng := systems.NewSource(2024)
		pop.Seed(rng)

		stepper := NewDayStepper(params, workers)
		prev := pop.Snapshot()
		for day := 1; day <= params.NumDays; day++ {
			report := stepper.Step(pop, day, rng)
			next := pop.Snapshot()

			require.Equal(t, params.NumPeople, report.Counts.Total(), "conservation on day %d", day)
			for i := range next {
				checkTransition(t, params, i, prev[i], next[i])
			}
			prev = next
		}
		stepper.Close()
	}
}

func simulate(t *testing.T, params Params, workers int, seed int64) [][]components.Status {
	t.Helper()
	pop, err := NewPopulation(params)
	require.NoError(t, err)
	rng := systems.NewSource(seed)
	pop.Seed(rng)

	stepper := NewDayStepper(params, workers)
	defer stepper.Close()

	days := [][]components.Status{pop.Snapshot()}
	for day := 1; day <= params.NumDays; day++ {
		stepper.Step(pop, day, rng)
		days = append(days, pop.Snapshot())
	}
	return days
}

func TestStep_DeterministicForSeed(t *testing.T) {
	params := Params{
		NumPeople:         100,
		NumDays:           15,
		InfectionProb:     0.2,
		VaccinationProb:   0.1,
		TransmissionProb:  0.4,
		DeathProb:         0.05,
		RecoveryThreshold: 5,
	}
	assert.Equal(t, simulate(t, params, 1, 77), simulate(t, params, 1, 77))
}

func TestStep_ParallelDeterministicForSeedAndWorkers(t *testing.T) {
	params := Params{
		NumPeople:         parallelThreshold * 2,
		NumDays:           8,
		InfectionProb:     0.05,
		TransmissionProb:  0.2,
		DeathProb:         0.02,
		RecoveryThreshold: 4,
		MaxEncounters:     10,
	}
	a := simulate(t, params, 4, 9)
	b := simulate(t, params, 4, 9)
	assert.Equal(t, a, b)
}

func TestStep_ScriptedSourceStaysSequential(t *testing.T) {
	// ScriptedSource cannot fork, so even many workers consume draws in id order.
	params := Params{NumPeople: parallelThreshold, TransmissionProb: 1, RecoveryThreshold: 5}
	statuses := make([]components.Status, parallelThreshold)
	statuses[0] = components.Infected(1)

	pop, err := NewPopulationFromStatuses(params, statuses)
	require.NoError(t, err)
	stepper := NewDayStepper(pop.Params(), 8)
	defer stepper.Close()

	rng := &systems.ScriptedSource{}
	stepper.Step(pop, 1, rng)
	assert.False(t, stepper.running)
	assert.Equal(t, parallelThreshold, rng.IntsUsed())
}
