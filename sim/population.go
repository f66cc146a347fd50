package sim

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/contagion/components"
	"github.com/pthm-cable/contagion/systems"
)

// Individual is one member of a population as emitted in day snapshots.
type Individual struct {
	ID     uint32
	Status components.Status
}

// Population is the set of individuals of one run, stored as ECS entities
// carrying Identity and Health. Entities are created in id order and never
// removed; Dead individuals stay in the world with a Dead status.
type Population struct {
	params Params
	world  *ecs.World

	mapper *ecs.Map2[components.Identity, components.Health]
	filter *ecs.Filter2[components.Identity, components.Health]

	size int
}

// NewPopulation creates params.NumPeople Susceptible individuals.
func NewPopulation(params Params) (*Population, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return newPopulation(params, make([]components.Status, params.NumPeople)), nil
}

// NewPopulationFromStatuses creates one individual per status, in order.
// params.NumPeople is replaced by len(statuses).
func NewPopulationFromStatuses(params Params, statuses []components.Status) (*Population, error) {
	params.NumPeople = len(statuses)
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return newPopulation(params, statuses), nil
}

func newPopulation(params Params, statuses []components.Status) *Population {
	world := ecs.NewWorld()
	p := &Population{
		params: params,
		world:  world,
		mapper: ecs.NewMap2[components.Identity, components.Health](world),
		filter: ecs.NewFilter2[components.Identity, components.Health](world),
		size:   len(statuses),
	}

	for i, st := range statuses {
		id := components.Identity{ID: uint32(i)}
		health := components.Health{Status: st}
		p.mapper.NewEntity(&id, &health)
	}
	return p
}

// Params returns the run parameters.
func (p *Population) Params() Params {
	return p.params
}

// Len returns the number of individuals, living or dead.
func (p *Population) Len() int {
	return p.size
}

// Seed applies the initialization pass in id order: a vaccination draw per
// individual, then an infection draw for those still Susceptible.
func (p *Population) Seed(rng systems.Source) {
	statuses := p.SnapshotInto(nil)
	for i, st := range statuses {
		statuses[i] = systems.SeedStatus(st, p.params.VaccinationProb, p.params.InfectionProb, rng)
	}
	p.apply(statuses)
}

// SnapshotInto copies every status into dst, indexed by id, and returns it.
// The copy is the frozen view a day is evaluated against.
func (p *Population) SnapshotInto(dst []components.Status) []components.Status {
	if cap(dst) < p.size {
		dst = make([]components.Status, p.size)
	}
	dst = dst[:p.size]

	query := p.filter.Query()
	for query.Next() {
		id, health := query.Get()
		dst[id.ID] = health.Status
	}
	return dst
}

// Snapshot returns a fresh copy of every status, indexed by id.
func (p *Population) Snapshot() []components.Status {
	return p.SnapshotInto(nil)
}

// apply writes next-day statuses back to the Health components.
func (p *Population) apply(next []components.Status) {
	query := p.filter.Query()
	for query.Next() {
		id, health := query.Get()
		health.Status = next[id.ID]
	}
}

// Individuals returns every individual in id order.
func (p *Population) Individuals() []Individual {
	statuses := p.Snapshot()
	out := make([]Individual, len(statuses))
	for i, st := range statuses {
		out[i] = Individual{ID: uint32(i), Status: st}
	}
	return out
}

// Counts tallies the current statuses.
func (p *Population) Counts() components.Counts {
	var c components.Counts
	query := p.filter.Query()
	for query.Next() {
		_, health := query.Get()
		c.Add(health.Status)
	}
	return c
}
