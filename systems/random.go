package systems

import (
	"math/rand"
	"time"
)

// Source supplies the randomness for every stochastic rule.
// Float64 must return independent uniform draws in [0,1); Intn must return
// a uniform int in [0,n) for n > 0. *rand.Rand satisfies it.
type Source interface {
	Float64() float64
	Intn(n int) int
}

// Forker is implemented by sources that can derive independent child
// sources, which lets the day stepper hand one to each worker.
type Forker interface {
	Fork() Source
}

// SeededSource is a *rand.Rand that can fork deterministic children.
type SeededSource struct {
	*rand.Rand
}

// NewSource returns a SeededSource. A zero seed uses the current time.
func NewSource(seed int64) *SeededSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SeededSource{Rand: rand.New(rand.NewSource(seed))}
}

// Fork draws a child seed from s, so the sequence of forks is reproducible.
func (s *SeededSource) Fork() Source {
	return &SeededSource{Rand: rand.New(rand.NewSource(s.Int63()))}
}
