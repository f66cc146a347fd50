package systems

import "github.com/pthm-cable/contagion/components"

// EncounterSampler draws each individual's daily encounters from the living
// members of a frozen snapshot. Reset indexes the snapshot once per day;
// after that SampleInto only reads, so workers may share one sampler.
type EncounterSampler struct {
	maxEncounters int

	living []int // snapshot indices of living individuals, ascending
	pos    []int // pos[i] = index of i within living, -1 when dead
}

// NewEncounterSampler creates a sampler. maxEncounters caps the number of
// encounters per individual per day; 0 leaves only the living-count bound.
func NewEncounterSampler(maxEncounters int) *EncounterSampler {
	if maxEncounters < 0 {
		maxEncounters = 0
	}
	return &EncounterSampler{
		maxEncounters: maxEncounters,
		living:        make([]int, 0, 256),
		pos:           make([]int, 0, 256),
	}
}

// Reset indexes the living individuals of snapshot.
func (s *EncounterSampler) Reset(snapshot []components.Status) {
	s.living = s.living[:0]
	if cap(s.pos) < len(snapshot) {
		s.pos = make([]int, len(snapshot))
	}
	s.pos = s.pos[:len(snapshot)]

	for i, st := range snapshot {
		if !st.IsAlive() {
			s.pos[i] = -1
			continue
		}
		s.pos[i] = len(s.living)
		s.living = append(s.living, i)
	}
}

// Living returns the number of living individuals in the indexed snapshot.
func (s *EncounterSampler) Living() int {
	return len(s.living)
}

// SampleInto appends the encounter statuses of individual self to dst[:0].
//
// The encounter count is uniform in [0, others] where others is the number
// of other living individuals (capped by maxEncounters). Each encounter is
// uniform over those others, re-draws allowed, never self. With fewer than
// two living individuals, or when self is dead, the set is empty and no
// draw is made.
func (s *EncounterSampler) SampleInto(dst []components.Status, snapshot []components.Status, self int, rng Source) []components.Status {
	dst = dst[:0]
	if self < 0 || self >= len(s.pos) {
		return dst
	}
	p := s.pos[self]
	others := len(s.living) - 1
	if p < 0 || others < 1 {
		return dst
	}

	limit := others
	if s.maxEncounters > 0 && s.maxEncounters < limit {
		limit = s.maxEncounters
	}

	k := rng.Intn(limit + 1)
	for n := 0; n < k; n++ {
		j := rng.Intn(others)
		if j >= p {
			j++ // skip self
		}
		dst = append(dst, snapshot[s.living[j]])
	}
	return dst
}
