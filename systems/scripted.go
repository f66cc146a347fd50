package systems

// ScriptedSource replays fixed draws, for harnesses that need exact control
// over every random decision. Once a queue is exhausted it keeps returning
// the corresponding default.
type ScriptedSource struct {
	Floats []float64
	Ints   []int

	DefaultFloat float64
	DefaultInt   int

	floatsUsed int
	intsUsed   int
}

// Float64 returns the next scripted float.
func (s *ScriptedSource) Float64() float64 {
	i := s.floatsUsed
	s.floatsUsed++
	if i < len(s.Floats) {
		return s.Floats[i]
	}
	return s.DefaultFloat
}

// Intn returns the next scripted int, clamped to [0,n).
func (s *ScriptedSource) Intn(n int) int {
	v := s.DefaultInt
	if s.intsUsed < len(s.Ints) {
		v = s.Ints[s.intsUsed]
	}
	s.intsUsed++
	if v >= n {
		v = n - 1
	}
	if v < 0 {
		v = 0
	}
	return v
}

// FloatsUsed returns how many floats have been drawn, scripted or default.
func (s *ScriptedSource) FloatsUsed() int { return s.floatsUsed }

// IntsUsed returns how many ints have been drawn, scripted or default.
func (s *ScriptedSource) IntsUsed() int { return s.intsUsed }
