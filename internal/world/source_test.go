package world

import "math/rand/v2"

// pcgSource is a deterministic Source for tests.
type pcgSource struct {
	r *rand.Rand
}

func newPCGSource(seed uint64) *pcgSource {
	return &pcgSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *pcgSource) Float32() float32 { return s.r.Float32() }
func (s *pcgSource) Bool() bool       { return s.r.IntN(2) == 1 }
func (s *pcgSource) Fill(p []byte) {
	for i := range p {
		p[i] = byte(s.r.UintN(256))
	}
}

// scriptedSource replays fixed draws and panics when a queue runs dry, so a
// test fails loudly if the generator draws more than expected.
type scriptedSource struct {
	floats []float32
	bools  []bool
	next   byte
}

func (s *scriptedSource) Float32() float32 {
	if len(s.floats) == 0 {
		panic("scriptedSource: out of floats")
	}
	f := s.floats[0]
	s.floats = s.floats[1:]
	return f
}

func (s *scriptedSource) Bool() bool {
	if len(s.bools) == 0 {
		panic("scriptedSource: out of bools")
	}
	b := s.bools[0]
	s.bools = s.bools[1:]
	return b
}

func (s *scriptedSource) Fill(p []byte) {
	for i := range p {
		p[i] = s.next
		s.next++
	}
}

