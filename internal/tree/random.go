package tree

import "math/rand/v2"

// Source supplies the randomness used for child selection and
// reordering. Production code uses SystemSource; tests inject a seeded
// or scripted source for deterministic construction.
type Source interface {
	// Intn returns a uniform value in [0, n). n must be > 0.
	Intn(n int) int
}

// SystemSource draws from the process-global generator.
type SystemSource struct{}

// NewSystemSource returns the default production randomness source.
func NewSystemSource() SystemSource {
	return SystemSource{}
}

// Intn implements Source.
func (SystemSource) Intn(n int) int {
	return rand.IntN(n)
}

// SeededSource is a deterministic source for reproducible construction.
type SeededSource struct {
	rng *rand.Rand
}

// NewSeededSource returns a source seeded with the given value. The same
// seed over the same tree yields the same selection and ordering.
func NewSeededSource(seed uint64) *SeededSource {
	return &SeededSource{rng: rand.New(rand.NewPCG(seed, 0))}
}

// Intn implements Source.
func (s *SeededSource) Intn(n int) int {
	return s.rng.IntN(n)
}
