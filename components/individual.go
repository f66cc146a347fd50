package components

// Identity is the immutable id assigned at population construction.
type Identity struct {
	ID uint32
}

// Health holds the individual's current Status. The day stepper writes it
// once per day, after every individual of that day has been evaluated.
type Health struct {
	Status Status
}

// Counts tallies individuals per Status kind.
type Counts [NumKinds]int

// Add records one individual with status s.
func (c *Counts) Add(s Status) {
	c[s.Kind()]++
}

// Total returns the number of individuals counted.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Living returns the number of counted individuals that are not Dead.
func (c Counts) Living() int {
	return c.Total() - c[KindDead]
}
