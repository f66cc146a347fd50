package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/contagion/components"
	"github.com/pthm-cable/contagion/config"
	"github.com/pthm-cable/contagion/systems"
)

func TestNewPopulation_AllSusceptible(t *testing.T) {
	params := baseParams()
	params.NumPeople = 10

	pop, err := NewPopulation(params)
	require.NoError(t, err)
	assert.Equal(t, 10, pop.Len())

	counts := pop.Counts()
	assert.Equal(t, 10, counts[components.KindSusceptible])

	for i, ind := range pop.Individuals() {
		assert.Equal(t, uint32(i), ind.ID)
		assert.Equal(t, components.Susceptible(), ind.Status)
	}
}

func TestNewPopulation_InvalidParams(t *testing.T) {
	params := baseParams()
	params.NumPeople = 0
	params.DeathProb = 1.5

	_, err := NewPopulation(params)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))
	assert.Contains(t, err.Error(), "num_people")
	assert.Contains(t, err.Error(), "death_prob")
}

func TestNewPopulationFromStatuses_KeepsOrder(t *testing.T) {
	statuses := []components.Status{
		components.Dead(),
		components.Infected(4),
		components.Vaccinated(),
	}
	pop, err := NewPopulationFromStatuses(baseParams(), statuses)
	require.NoError(t, err)

	assert.Equal(t, statuses, pop.Snapshot())
	assert.Equal(t, 3, pop.Params().NumPeople)
	assert.Equal(t, 2, pop.Counts().Living())
}

func TestPopulationSeed(t *testing.T) {
	params := baseParams()
	params.VaccinationProb = 0.5
	params.InfectionProb = 0.5

	pop, err := NewPopulationFromStatuses(params, []components.Status{
		components.Susceptible(),
		components.Susceptible(),
		components.Susceptible(),
		components.Dead(),
	})
	require.NoError(t, err)

	// 0: vaccinated. 1: not vaccinated, infected. 2: neither. 3: untouched.
	rng := &systems.ScriptedSource{Floats: []float64{0.1, 0.9, 0.1, 0.9, 0.9}}
	pop.Seed(rng)

	assert.Equal(t, []components.Status{
		components.Vaccinated(),
		components.Infected(1),
		components.Susceptible(),
		components.Dead(),
	}, pop.Snapshot())
	assert.Equal(t, 5, rng.FloatsUsed())
}

func TestSnapshotInto_ReusesBuffer(t *testing.T) {
	pop, err := NewPopulationFromStatuses(baseParams(), []components.Status{
		components.Infected(1),
		components.Recovered(),
	})
	require.NoError(t, err)

	buf := make([]components.Status, 0, 8)
	out := pop.SnapshotInto(buf)
	require.Len(t, out, 2)
	assert.Same(t, &buf[:1][0], &out[0], "buffer with enough capacity should be reused")

	// A copy is detached from the population.
	out[0] = components.Dead()
	assert.Equal(t, components.Infected(1), pop.Snapshot()[0])
}
